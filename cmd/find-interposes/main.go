package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/yugr/interposecheck"
	"github.com/yugr/interposecheck/internal/store"
)

var (
	flagJobs        int
	flagDBName      string
	flagAllowErrors bool
	flagVerbose     bool
	flagStats       bool
)

// errorHandled is set when a fatal error has already been printed, so
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
	Use:           "find_interposes [pkgs...]",
	Short:         "Report symbol interposition and unresolved-reference findings for indexed packages",
	Long:          "Builds each executable's dynamic-linker load closure from a database produced by index_packages and reports duplicate symbol definitions and unresolved imports within it.",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runFindInterposes,
}

func init() {
	rootCmd.Flags().IntVarP(&flagJobs, "jobs", "j", 0, "number of worker goroutines (default: 1.5x NumCPU)")
	rootCmd.Flags().StringVar(&flagDBName, "db-name", "db.sqlite", "path to the SQLite database produced by index_packages")
	rootCmd.Flags().BoolVar(&flagAllowErrors, "allow-errors", false, "analyze packages that were recorded with an indexing error")
	rootCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "print warnings (duplicate/unresolved findings, SONAME problems, skipped packages) to stderr")
	rootCmd.Flags().BoolVar(&flagStats, "stats", false, "print per-package timing statistics to stderr")
}

func runFindInterposes(cmd *cobra.Command, args []string) error {
	diag := interposecheck.NewDiagnostics(interposecheck.PolicyExit, func(format string, fargs ...any) {
		if flagVerbose {
			fmt.Fprintf(os.Stderr, "warning: "+format+"\n", fargs...)
		}
	})

	st, err := store.Open(flagDBName)
	if err != nil {
		errorHandled = true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	defer st.Close()

	pkgs, err := loadPackages(st, args)
	if err != nil {
		errorHandled = true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}

	if !flagAllowErrors {
		filtered := pkgs[:0]
		for _, pkg := range pkgs {
			if pkg.HasErrors {
				diag.Warn("skipping package %s: recorded with an indexing error (pass --allow-errors to analyze anyway)", pkg.Name)
				continue
			}
			filtered = append(filtered, pkg)
		}
		pkgs = filtered
	}

	analyser := interposecheck.NewAnalyser(st, flagJobs)

	start := time.Now()
	stats, err := analyser.AnalyzePackages(context.Background(), diag, pkgs)
	if err != nil {
		errorHandled = true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	elapsed := time.Since(start)

	numDup, numUnres := printFindings(stats)
	fmt.Fprintf(os.Stderr, "Analyzed %d packages in %s: %d duplicate definitions, %d unresolved references\n",
		len(stats.Packages), elapsed.Round(time.Millisecond), numDup, numUnres)

	if flagStats {
		printAnalyzeStats(stats)
	}

	return nil
}

// loadPackages resolves the CLI's package-name operands to *store.Package
// values, or every package in the store when none are given.
func loadPackages(st *store.Store, names []string) ([]*store.Package, error) {
	if len(names) == 0 {
		return st.DeserializeAllPackages()
	}
	pkgs := make([]*store.Package, 0, len(names))
	for _, name := range names {
		pkg, err := st.DeserializePackage(name)
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}

func printFindings(stats *interposecheck.AnalyzeStats) (numDup, numUnres int) {
	for _, pr := range stats.Packages {
		for _, d := range pr.Report.Duplicates {
			numDup++
			fmt.Printf("%s: duplicate definition of symbol '%s' in %s and %s (loaded for %s)\n",
				pr.PackageName, d.Symbol, d.Winner.Name, d.Loser.Name, d.LoadedFor.Name)
		}
		for _, u := range pr.Report.Unresolved {
			numUnres++
			fmt.Printf("%s: unresolved reference to symbol '%s' in %s (loaded for %s)\n",
				pr.PackageName, u.Symbol, u.Importer.Name, u.LoadedFor.Name)
		}
	}
	return
}

func printAnalyzeStats(stats *interposecheck.AnalyzeStats) {
	if len(stats.Packages) == 0 {
		return
	}
	var total time.Duration
	for _, pr := range stats.Packages {
		total += pr.Duration
	}
	mean := total / time.Duration(len(stats.Packages))
	fmt.Fprintf(os.Stderr, "Stats: mean analysis duration/pkg=%s\n", mean.Round(time.Millisecond))
}
