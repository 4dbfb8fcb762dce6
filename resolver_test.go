package interposecheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yugr/interposecheck/internal/store"
)

func TestAnalyze_NoFindingsForCleanClosure(t *testing.T) {
	root := &store.Object{Name: "app", Imports: []*store.Symbol{{Name: "foo"}}}
	lib := &store.Object{Name: "libfoo.so", Exports: []*store.Symbol{{Name: "foo"}}}

	report := Analyze([]*store.Object{root, lib}, NewDiagnostics(PolicyRaise, nil))
	assert.Empty(t, report.Duplicates)
	assert.Empty(t, report.Unresolved)
}

func TestAnalyze_DuplicateDefinitionReported(t *testing.T) {
	root := &store.Object{Name: "app"}
	lib1 := &store.Object{
		Name:    "liba.so",
		Package: &store.Package{Name: "pkg-a", SourceName: ptr("pkg-a")},
		Exports: []*store.Symbol{{Name: "shared_fn"}},
	}
	lib2 := &store.Object{
		Name:    "libb.so",
		Package: &store.Package{Name: "pkg-b", SourceName: ptr("pkg-b")},
		Exports: []*store.Symbol{{Name: "shared_fn"}},
	}

	report := Analyze([]*store.Object{root, lib1, lib2}, NewDiagnostics(PolicyRaise, nil))
	require.Len(t, report.Duplicates, 1)
	assert.Equal(t, "shared_fn", report.Duplicates[0].Symbol)
	assert.Equal(t, "liba.so", report.Duplicates[0].Winner.Name, "first occurrence wins")
	assert.Equal(t, "libb.so", report.Duplicates[0].Loser.Name)
}

func TestAnalyze_DuplicateIgnoredForRelatedSourcePackage(t *testing.T) {
	root := &store.Object{Name: "app"}
	lib1 := &store.Object{
		Name:    "liba.so",
		Package: &store.Package{Name: "glibc", SourceName: ptr("glibc")},
		Exports: []*store.Symbol{{Name: "free"}},
	}
	lib2 := &store.Object{
		Name:    "libb.so",
		Package: &store.Package{Name: "glibc-bin", SourceName: ptr("glibc")},
		Exports: []*store.Symbol{{Name: "free"}},
	}

	report := Analyze([]*store.Object{root, lib1, lib2}, NewDiagnostics(PolicyRaise, nil))
	assert.Empty(t, report.Duplicates, "same source package should be allow-listed")
}

func TestAnalyze_DuplicateIgnoredForDynamicLinkerVsLibc(t *testing.T) {
	root := &store.Object{Name: "app"}
	ldso := &store.Object{Name: "ld-2.31.so", Package: &store.Package{Name: "libc6"}, Exports: []*store.Symbol{{Name: "dl_open"}}}
	libc := &store.Object{Name: "libc-2.31.so", Package: &store.Package{Name: "libc6"}, Exports: []*store.Symbol{{Name: "dl_open"}}}

	report := Analyze([]*store.Object{root, ldso, libc}, NewDiagnostics(PolicyRaise, nil))
	assert.Empty(t, report.Duplicates)
}

func TestAnalyze_DuplicateIgnoredForKnownGccSymbols(t *testing.T) {
	root := &store.Object{Name: "app"}
	lib1 := &store.Object{Name: "liba.so", Exports: []*store.Symbol{{Name: "_init"}}}
	lib2 := &store.Object{Name: "libb.so", Exports: []*store.Symbol{{Name: "_init"}}}

	report := Analyze([]*store.Object{root, lib1, lib2}, NewDiagnostics(PolicyRaise, nil))
	assert.Empty(t, report.Duplicates)
}

func TestAnalyze_UnresolvedReferenceReported(t *testing.T) {
	root := &store.Object{Name: "app", Imports: []*store.Symbol{{Name: "nonexistent_fn"}}}
	report := Analyze([]*store.Object{root}, NewDiagnostics(PolicyRaise, nil))
	require.Len(t, report.Unresolved, 1)
	assert.Equal(t, "nonexistent_fn", report.Unresolved[0].Symbol)
}

func TestAnalyze_WeakUnresolvedIsIgnored(t *testing.T) {
	root := &store.Object{Name: "app", Imports: []*store.Symbol{{Name: "optional_fn", IsWeak: true}}}
	report := Analyze([]*store.Object{root}, NewDiagnostics(PolicyRaise, nil))
	assert.Empty(t, report.Unresolved)
}

func TestAnalyze_OpenGLUnresolvedIsIgnored(t *testing.T) {
	root := &store.Object{Name: "app", Imports: []*store.Symbol{{Name: "glClear"}}}
	report := Analyze([]*store.Object{root}, NewDiagnostics(PolicyRaise, nil))
	assert.Empty(t, report.Unresolved)
}

func TestAnalyze_ThreadDbPsSymbolsIgnored(t *testing.T) {
	obj := &store.Object{Name: "libthread_db.so.1", Imports: []*store.Symbol{{Name: "ps_pglobal_lookup"}}}
	root := &store.Object{Name: "app"}
	report := Analyze([]*store.Object{root, obj}, NewDiagnostics(PolicyRaise, nil))
	assert.Empty(t, report.Unresolved)
}

func TestAnalyze_EmptyClosureYieldsEmptyReport(t *testing.T) {
	report := Analyze(nil, NewDiagnostics(PolicyRaise, nil))
	assert.Empty(t, report.Duplicates)
	assert.Empty(t, report.Unresolved)
}

func TestSameOrRelatedSource_NilSourceNameNeverMatches(t *testing.T) {
	a := &store.Package{Name: "pkg-a"}
	b := &store.Package{Name: "pkg-a"}
	assert.False(t, sameOrRelatedSource(a, b), "a comparison with an unknown source name must never panic or match")
}

func TestSameOrRelatedSource_PrefixMatchesEitherDirection(t *testing.T) {
	a := &store.Package{SourceName: ptr("glibc")}
	b := &store.Package{SourceName: ptr("glibc-bin")}
	assert.True(t, sameOrRelatedSource(a, b))
	assert.True(t, sameOrRelatedSource(b, a))
}

func TestSameOrRelatedSource_UnrelatedNamesDontMatch(t *testing.T) {
	a := &store.Package{SourceName: ptr("glibc")}
	b := &store.Package{SourceName: ptr("openssl")}
	assert.False(t, sameOrRelatedSource(a, b))
}
