package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
)

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type WalletOpener interface {
	OpenWallet(ctx context.Context, userID string) (*domain.Wallet, error)
}

func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
}

// UserConsumer opens a wallet for every registered user. OpenWallet is
// idempotent, so redelivered messages are harmless.
type UserConsumer struct {
	reader  MessageReader
	wallets WalletOpener
	logger  *zap.Logger
	backoff time.Duration
}

func NewUserConsumer(reader MessageReader, wallets WalletOpener, logger *zap.Logger) *UserConsumer {
	return &UserConsumer{
		reader:  reader,
		wallets: wallets,
		logger:  logger,
		backoff: 2 * time.Second,
	}
}

// Run consumes until ctx is cancelled. A message whose handling fails is
// retried after a backoff and only committed once handled or found to be
// undecodable.
func (c *UserConsumer) Run(ctx context.Context) {
	c.logger.Info("user consumer started")
	defer c.logger.Info("user consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", zap.Error(err))
			if !c.sleep(ctx) {
				return
			}
			continue
		}

		for {
			err := c.handle(ctx, msg)
			if err == nil {
				break
			}
			c.logger.Error("user event failed",
				zap.Int64("offset", msg.Offset),
				zap.Int("partition", msg.Partition),
				zap.Error(err),
			)
			if !c.sleep(ctx) {
				return
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit error", zap.Error(err))
		}
	}
}

var errMalformedEvent = errors.New("malformed user event")

func (c *UserConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var evt domain.UserRegisteredEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil || evt.UserID == "" {
		// Poison messages are skipped, not retried.
		c.logger.Warn("skipping user event",
			zap.Int64("offset", msg.Offset),
			zap.Error(errors.Join(errMalformedEvent, err)),
		)
		return nil
	}

	w, err := c.wallets.OpenWallet(ctx, evt.UserID)
	if err != nil {
		return fmt.Errorf("open wallet for %s: %w", evt.UserID, err)
	}

	c.logger.Info("wallet ready", zap.String("user_id", evt.UserID), zap.String("wallet_id", w.ID))
	return nil
}

func (c *UserConsumer) sleep(ctx context.Context) bool {
	t := time.NewTimer(c.backoff)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *UserConsumer) Close() error {
	return c.reader.Close()
}
