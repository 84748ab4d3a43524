package service

import (
	"context"
	"time"

	"github.com/rl1809/storefront/internal/port"
)

const defaultTxTimeout = 5 * time.Second

// runInTx bounds one store transaction by timeout so a stuck lock wait can
// never hold a request forever.
func runInTx(ctx context.Context, runner port.TxRunner, timeout time.Duration, fn port.TxFunc) error {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return runner.RunInTx(ctx, fn)
}

// clampPage applies a default limit and an upper bound to list requests.
func clampPage(limit, offset, def, max int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
