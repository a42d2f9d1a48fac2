package memory

import "github.com/reifenwerk/ledger/internal/storage"

// Compile-time interface assertions documenting which interfaces Store satisfies.
var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Tx     = (*tx)(nil)
	_ storage.Reader = (*state)(nil)
)
