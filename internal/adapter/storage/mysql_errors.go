package storage

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/storefront/internal/core/domain"
)

const (
	errDuplicateEntry    = 1062
	errLockWaitTimeout   = 1205
	errDeadlock          = 1213
	errForeignKeyMissing = 1452
)

func mysqlErrorNumber(err error) uint16 {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number
	}
	return 0
}

// classify tags lock conflicts as retryable and leaves everything else as is.
func classify(err error) error {
	switch mysqlErrorNumber(err) {
	case errLockWaitTimeout, errDeadlock:
		return fmt.Errorf("%w: %v", domain.ErrRetryable, err)
	}
	return err
}
