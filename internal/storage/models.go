package storage

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceRecord is one persisted history entry.
type PriceRecord struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// StorageError reports a failed read or write of a persisted resource.
type StorageError struct {
	Op       string
	Resource string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Resource, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
