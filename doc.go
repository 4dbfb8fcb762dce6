// Package interposecheck finds symbol interposition and unresolved
// references across a distro's binary packages.
//
// It bridges two distinct questions about a set of installed .deb
// packages: what ELF objects actually live inside them (the Indexer), and
// what happens when the dynamic linker loads one of those objects
// together with its transitive shared-library dependencies (the
// Analyser) — specifically, which exported symbols are defined more than
// once across the load closure (interposition) and which imported
// symbols are never defined at all (unresolved references).
//
// # Pipeline
//
// interposecheck operates in two independent phases, each with its own
// CLI front-end and each writing to (or reading from) one SQLite
// database:
//
//  1. Index: for each package in a package list, walk its already-unpacked
//     directory (downloading and unpacking are not done here), find every
//     ELF file inside, and record its SONAME, DT_NEEDED
//     dependency names, and classified import/export symbol sets.
//
//  2. Analyze: for each indexed package's executables, build the
//     transitive load closure of its shared library dependencies,
//     simulate first-definition-wins symbol resolution across that
//     closure, and report duplicate definitions and unresolved
//     references.
//
// # Usage
//
//	diag := interposecheck.NewDiagnostics(interposecheck.PolicyRaise, log.Printf)
//	idx := interposecheck.NewIndexer(dbPath, nil, nil, 0)
//	stats, err := idx.IndexPackages(ctx, diag, "pkglist.txt", "/tmp/work")
//
//	st, err := store.Open(dbPath)
//	an := interposecheck.NewAnalyser(st, 0)
//	astats, err := an.AnalyzePackages(ctx, diag, pkgs)
//
// # Diagnostics
//
// Both the Indexer and the Analyser take a [*Diagnostics] value governing
// how warnings are emitted and how fatal conditions are handled ([Policy]).
// The caller chooses the policy: the index-packages command uses
// [PolicyRaise] (a broken package fails that package, not the run), the
// find-interposes command uses [PolicyExit] (a corrupt store is not
// something any single package's analysis can recover from).
package interposecheck
