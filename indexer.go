package interposecheck

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"

	"github.com/yugr/interposecheck/internal/elfreader"
	"github.com/yugr/interposecheck/internal/store"
	"github.com/yugr/interposecheck/internal/taskpool"
)

// SourceNameResolver resolves a binary package name to the name of the
// source package that built it. The default implementation shells out to
// apt-cache, matching index_packages.py's use of `apt-cache showsrc`.
type SourceNameResolver interface {
	ResolveSourceName(ctx context.Context, pkgName string) (string, error)
}

// FileTypeProber classifies a file by content, returning a descriptive
// string. Core-relevant prefix: "ELF " means the file should be handed to
// the ELF Reader.
type FileTypeProber interface {
	Probe(path string) (string, error)
}

// PackageStats records per-package indexing counts and timing, the Go
// analogue of index_packages.py's Stats class.
type PackageStats struct {
	PackageName string
	Duration    time.Duration
	NumObjects  int
	NumDeps     int
	NumSyms     int
	NumInserts  int
	HasErrors   bool
}

// IndexStats aggregates PackageStats across one IndexPackages run.
type IndexStats struct {
	Packages []PackageStats
}

// Indexer orchestrates ELF extraction and storage for a list of packages,
// the Go analogue of index_packages.py's collect_pkg_data/main driving
// loop, dispatched one package per worker with a lazily-opened per-worker
// database connection.
type Indexer struct {
	dbPath      string
	srcResolver SourceNameResolver
	prober      FileTypeProber
	workers     int
}

// NewIndexer constructs an Indexer writing to the SQLite database at
// dbPath. A nil srcResolver or prober uses the exec/filetype-backed
// defaults; workers <= 0 uses taskpool.DefaultWorkers().
func NewIndexer(dbPath string, srcResolver SourceNameResolver, prober FileTypeProber, workers int) *Indexer {
	if srcResolver == nil {
		srcResolver = AptSourceNameResolver{}
	}
	if prober == nil {
		prober = FiletypeProber{}
	}
	return &Indexer{dbPath: dbPath, srcResolver: srcResolver, prober: prober, workers: workers}
}

// parsePackageList reads a package list file: one `name [version]
// [component]` entry per line, `#`-prefixed lines are comments. Only name
// is consumed by the core, matching index_packages.py:get_packages.
func parsePackageList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open package list %s: %w", path, err)
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		names = append(names, fields[0])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read package list %s: %w", path, err)
	}
	return names, nil
}

// indexJob is one unit of work the Task Pool distributes: index a single
// package's already-extracted directory.
type indexJob struct {
	pkgName string
	pkgDir  string
}

// IndexPackages indexes every package named in pkgListPath. workDir must
// contain one subdirectory per package, already populated with that
// package's unpacked contents — acquiring and extracting the .deb itself
// is outside this tool's scope.
func (idx *Indexer) IndexPackages(ctx context.Context, diag *Diagnostics, pkgListPath, workDir string) (*IndexStats, error) {
	names, err := parsePackageList(pkgListPath)
	if err != nil {
		return nil, err
	}

	jobs := make([]indexJob, len(names))
	for i, name := range names {
		jobs[i] = indexJob{pkgName: name, pkgDir: filepath.Join(workDir, name)}
	}

	pool := taskpool.New(idx.workers, func(ctx context.Context, job indexJob, workerCtx *taskpool.Ctx) (PackageStats, error) {
		st, err := idx.workerStore(workerCtx)
		if err != nil {
			return PackageStats{}, fmt.Errorf("package %s: %w", job.pkgName, err)
		}
		return idx.indexPackage(ctx, diag, st, job)
	})

	outcome := pool.Run(ctx, jobs)
	stats := &IndexStats{Packages: outcome.Flatten()}
	if err := outcome.Raise(diag.Warn); err != nil {
		return stats, fmt.Errorf("indexing had errors: %w", err)
	}
	return stats, nil
}

// workerStore lazily opens (and caches in the worker's Ctx cell) this
// worker's own bulk-insert database connection, mirroring the original's
// `if ctx[0] is None: ctx[0] = database.connect_for_bulk_inserts(...)`.
func (idx *Indexer) workerStore(workerCtx *taskpool.Ctx) (*store.Store, error) {
	if workerCtx.Value == nil {
		st, err := store.OpenForBulkInsert(idx.dbPath)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(); err != nil {
			st.Close()
			return nil, err
		}
		workerCtx.Value = st
	}
	return workerCtx.Value.(*store.Store), nil
}

// indexPackage performs the three steps for one package: resolve source
// name, walk its directory parsing ELF files, persist.
func (idx *Indexer) indexPackage(ctx context.Context, diag *Diagnostics, st *store.Store, job indexJob) (PackageStats, error) {
	start := time.Now()
	stats := PackageStats{PackageName: job.pkgName}

	pkg := &store.Package{Name: job.pkgName}
	var errMsg string

	sourceName, err := idx.srcResolver.ResolveSourceName(ctx, job.pkgName)
	if err != nil {
		errMsg = fmt.Sprintf("resolving source package: %s", err)
	} else {
		pkg.SourceName = &sourceName

		objects, walkErr := idx.collectObjects(diag, job)
		if walkErr != nil {
			errMsg = walkErr.Error()
		} else {
			stats.NumObjects = len(objects)
			for _, obj := range objects {
				stats.NumDeps += len(obj.DepNames)
				stats.NumSyms += len(obj.Imports) + len(obj.Exports)
			}

			if err := st.InsertPackage(pkg, ""); err != nil {
				return stats, fmt.Errorf("insert package %s: %w", job.pkgName, err)
			}
			for _, obj := range objects {
				if err := st.InsertObject(obj, pkg.ID); err != nil {
					return stats, fmt.Errorf("insert object %s in package %s: %w", obj.Name, job.pkgName, err)
				}
				stats.NumInserts += len(obj.DepNames) + len(obj.Imports) + len(obj.Exports)
			}
			stats.Duration = time.Since(start)
			return stats, nil
		}
	}

	// Per-package fatal error: record the package with its error message
	// and no objects.
	if err := st.InsertPackage(pkg, errMsg); err != nil {
		return stats, fmt.Errorf("insert failed package %s: %w", job.pkgName, err)
	}
	stats.HasErrors = true
	stats.Duration = time.Since(start)
	return stats, nil
}

// collectObjects walks job.pkgDir and parses every regular, non-symlink
// file whose type probe begins with "ELF ". Per-file errors are
// warnings: they skip that file but don't fail the package.
func (idx *Indexer) collectObjects(diag *Diagnostics, job indexJob) ([]*store.Object, error) {
	info, err := os.Stat(job.pkgDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("extraction failure: %s not found", job.pkgDir)
	}

	var objects []*store.Object
	err = filepath.WalkDir(job.pkgDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil || fi.Mode()&os.ModeSymlink != 0 || !fi.Mode().IsRegular() {
			return nil
		}

		fileType, err := idx.prober.Probe(path)
		if err != nil || !strings.HasPrefix(fileType, "ELF ") {
			return nil
		}

		obj, err := elfreader.Read(path, diag.Warn)
		if err != nil {
			diag.Warn("%s: %s", path, err)
			return nil
		}
		objects = append(objects, obj)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("extraction failure: walking %s: %w", job.pkgDir, err)
	}
	return objects, nil
}

// AptSourceNameResolver resolves a binary package's source package name
// via `apt-cache showsrc`, taking the last "Package: " line — a direct
// port of index_packages.py's collect_pkg_data source-name lookup.
type AptSourceNameResolver struct{}

func (AptSourceNameResolver) ResolveSourceName(ctx context.Context, pkgName string) (string, error) {
	cmd := exec.CommandContext(ctx, "apt-cache", "showsrc", pkgName)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("apt-cache showsrc %s: %w", pkgName, err)
	}
	var sourceName string
	for _, line := range strings.Split(string(out), "\n") {
		if rest, ok := strings.CutPrefix(line, "Package: "); ok {
			sourceName = strings.TrimSpace(rest)
		}
	}
	if sourceName == "" {
		return "", fmt.Errorf("source package not found for %s", pkgName)
	}
	return sourceName, nil
}

// FiletypeProber classifies files by sniffing their header bytes with
// h2non/filetype, replacing the original's libmagic-backed
// magic.Magic().from_file() call.
type FiletypeProber struct{}

func (FiletypeProber) Probe(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 262) // filetype inspects at most the first 262 bytes
	n, err := f.Read(head)
	if err != nil && n == 0 {
		return "", err
	}
	head = head[:n]

	if filetype.Is(head, "elf") {
		return "ELF file", nil
	}
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return "data", nil
	}
	return kind.MIME.Value, nil
}
