package interposecheck

import "github.com/yugr/interposecheck/internal/store"

// Public type aliases for internal store types used across the Indexer
// and Analyser APIs. These are Go type aliases (=) — identical to the
// internal types at compile time.

type Store = store.Store
type Package = store.Package
type Object = store.Object
type Symbol = store.Symbol
type Direction = store.Direction

const (
	DirImport = store.DirImport
	DirExport = store.DirExport
)
