package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/yugr/interposecheck"
)

var (
	flagOutDir  string
	flagJobs    int
	flagDBName  string
	flagVerbose bool
	flagStats   bool
)

// errorHandled is set when runIndex has already printed the error, so
// main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "index_packages <pkglist>",
	Short:         "Extract ELF metadata from a package corpus into a SQLite store",
	Long:          "Walks each package's extracted tree for ELF files, records their dynamic-linking metadata (dependencies and imported/exported symbols) in a SQLite database for later interposition analysis.",
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runIndex,
}

func init() {
	rootCmd.Flags().StringVarP(&flagOutDir, "out-dir", "o", ".", "working directory containing one subdirectory of extracted files per package")
	rootCmd.Flags().IntVarP(&flagJobs, "jobs", "j", 0, "number of worker goroutines (default: 1.5x NumCPU)")
	rootCmd.Flags().StringVar(&flagDBName, "db-name", "db.sqlite", "path to the SQLite database to create or append to")
	rootCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "log a warning for every recoverable per-object/per-package problem")
	rootCmd.Flags().BoolVar(&flagStats, "stats", false, "print per-package timing/count statistics to stderr")
}

func runIndex(cmd *cobra.Command, args []string) error {
	pkgListPath := args[0]

	diag := interposecheck.NewDiagnostics(interposecheck.PolicyRaise, func(format string, fargs ...any) {
		if flagVerbose {
			fmt.Fprintf(os.Stderr, "warning: "+format+"\n", fargs...)
		}
	})

	idx := interposecheck.NewIndexer(flagDBName, nil, nil, flagJobs)

	start := time.Now()
	stats, err := idx.IndexPackages(context.Background(), diag, pkgListPath, flagOutDir)
	if err != nil {
		errorHandled = true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	elapsed := time.Since(start)

	numErrors := 0
	for _, p := range stats.Packages {
		if p.HasErrors {
			numErrors++
		}
	}
	fmt.Fprintf(os.Stderr, "Indexed %d packages (%d with errors) in %s\n",
		len(stats.Packages), numErrors, elapsed.Round(time.Millisecond))

	if flagStats {
		printIndexStats(stats)
	}

	return nil
}

func printIndexStats(stats *interposecheck.IndexStats) {
	if len(stats.Packages) == 0 {
		return
	}
	var totalObjects, totalDeps, totalSyms, totalInserts int
	var totalDuration time.Duration
	for _, p := range stats.Packages {
		totalObjects += p.NumObjects
		totalDeps += p.NumDeps
		totalSyms += p.NumSyms
		totalInserts += p.NumInserts
		totalDuration += p.Duration
	}
	n := float64(len(stats.Packages))
	fmt.Fprintf(os.Stderr, "Stats: mean objects/pkg=%.1f mean deps/pkg=%.1f mean syms/pkg=%.1f mean inserts/pkg=%.1f mean duration/pkg=%s\n",
		float64(totalObjects)/n, float64(totalDeps)/n, float64(totalSyms)/n, float64(totalInserts)/n,
		(totalDuration / time.Duration(len(stats.Packages))).Round(time.Millisecond))
}
