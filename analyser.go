package interposecheck

import (
	"context"
	"fmt"
	"time"

	"github.com/yugr/interposecheck/internal/store"
	"github.com/yugr/interposecheck/internal/taskpool"
)

// PackageReport pairs one package's Resolver findings with its name, for
// aggregation across an AnalyzePackages run.
type PackageReport struct {
	PackageName string
	Report      *Report
	Duration    time.Duration
}

// AnalyzeStats aggregates PackageReports across one AnalyzePackages run,
// the analysis-phase analogue of IndexStats.
type AnalyzeStats struct {
	Packages []PackageReport
}

// Analyser orchestrates closure construction and symbol resolution across
// a set of packages, the Go analogue of find_interposes.py's main/do_work
// driving loop, dispatched one package per worker.
type Analyser struct {
	store   *store.Store
	workers int
}

// NewAnalyser constructs an Analyser reading from an already-open,
// already-migrated Store. workers <= 0 uses taskpool.DefaultWorkers().
func NewAnalyser(st *store.Store, workers int) *Analyser {
	return &Analyser{store: st, workers: workers}
}

// AnalyzePackages runs the Closure Builder and Resolver over every
// package's executables and returns one Report per package, aggregated
// into AnalyzeStats. Each worker shares the Analyser's single Store,
// opened in the default consistency-preserving mode: *sql.DB already
// pools and serializes concurrent use internally, so — unlike the
// Indexer's bulk-insert workers — no per-worker connection is needed here.
func (a *Analyser) AnalyzePackages(ctx context.Context, diag *Diagnostics, pkgs []*store.Package) (*AnalyzeStats, error) {
	pool := taskpool.New(a.workers, func(ctx context.Context, pkg *store.Package, _ *taskpool.Ctx) (PackageReport, error) {
		return a.analyzePackage(pkg, diag)
	})

	outcome := pool.Run(ctx, pkgs)
	stats := &AnalyzeStats{Packages: outcome.Flatten()}
	if err := outcome.Raise(diag.Warn); err != nil {
		return stats, diag.Fail("analysis had errors: %s", err)
	}
	return stats, nil
}

// analyzePackage builds the load closure for every executable Object in
// pkg and runs the Resolver over each, merging their Reports into one per
// package (find_interposes.py's find_interposes, which likewise loops
// over every executable object in a package within one connection/cursor
// scope).
func (a *Analyser) analyzePackage(pkg *store.Package, diag *Diagnostics) (PackageReport, error) {
	start := time.Now()
	result := PackageReport{PackageName: pkg.Name, Report: &Report{}}

	objects, err := a.store.DeserializePkgObjects(pkg)
	if err != nil {
		return result, fmt.Errorf("package %s: %w", pkg.Name, err)
	}

	for _, obj := range objects {
		obj.Package = pkg

		closure, err := BuildClosure(a.store, diag, obj)
		if err != nil {
			return result, fmt.Errorf("package %s, object %s: %w", pkg.Name, obj.Name, err)
		}

		sub := Analyze(closure, diag)
		result.Report.Duplicates = append(result.Report.Duplicates, sub.Duplicates...)
		result.Report.Unresolved = append(result.Report.Unresolved, sub.Unresolved...)
	}

	result.Duration = time.Since(start)
	return result, nil
}
