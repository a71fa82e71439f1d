package domain

import (
	"context"
	"time"
)

// TransactionRef identifies a completed value transfer on a chain.
type TransactionRef struct {
	Hash      string    `json:"hash"` // 64-hex transaction reference
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    Amount    `json:"amount"`
	Memo      string    `json:"memo,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AccountInfo is the observable state of a chain account, including its
// transaction history. History order is newest first.
type AccountInfo struct {
	Address      string           `json:"address"`
	Balance      Amount           `json:"balance"`
	BlockCount   int              `json:"block_count"`
	Transactions []TransactionRef `json:"transactions,omitempty"`
}

// ValueTransferPort abstracts a value-transfer chain (Nano, Dogecoin, a
// database-simulated ledger). Implementations must honor context deadlines;
// a timed-out call is a failed call.
type ValueTransferPort interface {
	SendValue(ctx context.Context, from, to string, amount Amount, memo string) (TransactionRef, error)
	GetBalance(ctx context.Context, address string) (Amount, error)
	ValidateAddress(address string) bool
	GetAccountInfo(ctx context.Context, address string) (AccountInfo, error)
}

// ContentStorePort abstracts an immutable content-addressed store (Arweave,
// an S3-backed mirror, an in-memory fake). Publish returns an opaque content
// ID; in every backend the ID is a 43-character base64url string.
type ContentStorePort interface {
	Publish(ctx context.Context, data []byte, tags map[string]string) (string, error)
	Retrieve(ctx context.Context, id string) ([]byte, error)

	// Balance returns the publishing account's balance in whole store units
	// (AR for Arweave; winston conversions happen inside the adapter).
	Balance(ctx context.Context, address string) (float64, error)

	// EstimateCost returns the publish cost in store units for a payload of
	// the given byte size.
	EstimateCost(ctx context.Context, size int) (float64, error)

	// ValidateID reports whether id has the store's content-ID shape.
	ValidateID(id string) bool
}
