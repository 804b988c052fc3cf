// Package dedup keeps the in-memory view of which content fingerprints and
// invoice keys have already been recorded. The store's unique constraints
// remain authoritative; the index only lets the pipeline skip work early.
package dedup

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// Source is the part of the store the index is rebuilt from.
type Source interface {
	ActiveFingerprints(ctx context.Context) (map[string]string, error)
	InvoiceKeys(ctx context.Context) (map[string]string, error)
}

// Basis names which key matched.
type Basis string

const (
	BasisFingerprint Basis = "content_fingerprint"
	BasisInvoiceKey  Basis = "invoice_key"
)

// Index maps fingerprints and invoice keys to the doc_id that owns them.
type Index struct {
	mu           sync.RWMutex
	fingerprints map[string]string
	invoiceKeys  map[string]string
}

// New returns an empty index.
func New() *Index {
	return &Index{
		fingerprints: make(map[string]string),
		invoiceKeys:  make(map[string]string),
	}
}

// Rebuild replaces the index contents with what src currently holds.
func (ix *Index) Rebuild(ctx context.Context, src Source) error {
	fps, err := src.ActiveFingerprints(ctx)
	if err != nil {
		return eris.Wrap(err, "dedup: load fingerprints")
	}
	keys, err := src.InvoiceKeys(ctx)
	if err != nil {
		return eris.Wrap(err, "dedup: load invoice keys")
	}
	if fps == nil {
		fps = make(map[string]string)
	}
	if keys == nil {
		keys = make(map[string]string)
	}

	ix.mu.Lock()
	ix.fingerprints = fps
	ix.invoiceKeys = keys
	ix.mu.Unlock()
	return nil
}

// Lookup returns the doc_id already holding key under basis.
func (ix *Index) Lookup(basis Basis, key string) (string, bool) {
	if key == "" {
		return "", false
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	docID, ok := ix.table(basis)[key]
	return docID, ok
}

// Add records docID as the owner of key. An existing owner is kept and
// returned with false.
func (ix *Index) Add(basis Basis, key, docID string) (string, bool) {
	if key == "" {
		return "", false
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	t := ix.table(basis)
	if owner, ok := t[key]; ok {
		return owner, false
	}
	t[key] = docID
	return docID, true
}

// Remove forgets key, e.g. when its document failed after being recorded.
func (ix *Index) Remove(basis Basis, key string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.table(basis), key)
}

// Len returns the number of fingerprints and invoice keys held.
func (ix *Index) Len() (fingerprints, invoiceKeys int) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.fingerprints), len(ix.invoiceKeys)
}

func (ix *Index) table(basis Basis) map[string]string {
	if basis == BasisInvoiceKey {
		return ix.invoiceKeys
	}
	return ix.fingerprints
}
