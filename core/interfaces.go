// Package core provides the domain types, configuration and shared
// interfaces for pixelbatch components.
package core

import "context"

// ImageStore is the durable result store. Every method returns only after
// the change is durable.
//
// Example usage:
//
//	rec := core.ImageRecord{ID: core.NewImageID(), Src: src, Prompt: prompt}
//	if err := store.Put(ctx, rec); err != nil {
//	    return err
//	}
//	all, _ := store.GetAll(ctx) // newest id first
type ImageStore interface {
	// Put inserts or replaces a record.
	Put(ctx context.Context, rec ImageRecord) error

	// GetAll returns every record sorted by id descending.
	GetAll(ctx context.Context) ([]ImageRecord, error)

	// Delete removes one record. Deleting a missing id is not an error.
	Delete(ctx context.Context, id int64) error

	// DeleteMany removes several records in a single transaction.
	DeleteMany(ctx context.Context, ids []int64) error
}

// CredentialStore holds the ordered credential pool.
type CredentialStore interface {
	// LoadCredentials returns the stored pool in order. Absent or malformed
	// data yields an empty pool; only storage failures are returned.
	LoadCredentials(ctx context.Context) ([]string, error)

	// SaveCredentials replaces the pool wholesale.
	SaveCredentials(ctx context.Context, keys []string) error
}
