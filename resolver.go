package interposecheck

import (
	"regexp"
	"strings"

	"github.com/yugr/interposecheck/internal/linker"
	"github.com/yugr/interposecheck/internal/store"
)

// dupKey builds a dedup key for a duplicate-definition warning that's
// symmetric in the two object names, so the same {sym, objA, objB} triple
// is recognized regardless of which object is encountered as winner or
// loser in a given closure, matching find_interposes.py's dup_warnings
// set (which inserts both orderings of the pair).
func dupKey(symName, nameA, nameB string) string {
	if nameA > nameB {
		nameA, nameB = nameB, nameA
	}
	return "dup:" + symName + ":" + nameA + ":" + nameB
}

// DuplicateDefinition reports that sym is exported by both Winner and
// Loser in the same load closure: Winner is the earlier (and therefore,
// under first-definer-wins resolution, effective) definition.
type DuplicateDefinition struct {
	Symbol      string
	Winner      *store.Object
	Loser       *store.Object
	LoadedFor   *store.Object // the executable whose closure surfaced this
	LoadedInPkg string
}

// UnresolvedReference reports that sym, imported by Importer, has no
// definition anywhere in the load closure.
type UnresolvedReference struct {
	Symbol      string
	Importer    *store.Object
	LoadedFor   *store.Object
	LoadedInPkg string
}

// Report collects one package's interposition findings, the structured
// successor to find_interposes.py's direct print statements.
type Report struct {
	Duplicates []DuplicateDefinition
	Unresolved []UnresolvedReference
}

var (
	perlSymbolRE = regexp.MustCompile(`^(Perl|PL)`)
	glSymbolRE   = regexp.MustCompile(`^(egl|gl|glut)[A-Z]`)
)

// canIgnoreUnresolved reports whether an unresolved import is a known
// benign case, ported 1:1 from find_interposes.py:can_ignore_unres.
func canIgnoreUnresolved(sym *store.Symbol, obj, mainObj *store.Object) bool {
	// These functions are provided to libthread_db by gdb.
	if strings.HasPrefix(sym.Name, "ps_") && strings.HasPrefix(obj.Name, "libthread_db") {
		return true
	}
	// Perl libs import symbols from the executable.
	if perlSymbolRE.MatchString(sym.Name) && obj.Package != nil && strings.HasPrefix(obj.Package.Name, "perl") {
		return true
	}
	// OpenGL is often loaded at runtime via dlopen.
	if glSymbolRE.MatchString(sym.Name) {
		return true
	}
	return false
}

// sameOrRelatedSource reports whether a and b are the same source
// package, or one's name is a prefix of the other's (e.g. "glibc" /
// "glibc-bin"), following find_interposes.py:can_ignore_dup's startswith
// check — guarded so the comparison only applies when both source names
// are known (the original crashes with an AttributeError when
// source_name is None and the prefix branch is reached).
func sameOrRelatedSource(a, b *store.Package) bool {
	if a.SourceName == nil || b.SourceName == nil {
		return false
	}
	x, y := *a.SourceName, *b.SourceName
	if x == "" || y == "" {
		return false
	}
	return x == y || strings.HasPrefix(x, y) || strings.HasPrefix(y, x)
}

// canIgnoreDuplicate reports whether a duplicate definition between obj
// and otherObj is a known benign case, ported 1:1 from
// find_interposes.py:can_ignore_dup.
func canIgnoreDuplicate(sym *store.Symbol, obj, otherObj *store.Object) bool {
	if obj.Package != nil && otherObj.Package != nil && sameOrRelatedSource(obj.Package, otherObj.Package) {
		return true
	}
	// Ld.so duplicates some functions from libc.
	if (linker.IsDynamicLinker(obj.Name) && linker.IsLibc(otherObj.Name)) ||
		(linker.IsDynamicLinker(otherObj.Name) && linker.IsLibc(obj.Name)) {
		return true
	}
	// Parts of libc contain duplicate symbols.
	if linker.IsLibcSublib(obj.Name) && linker.IsLibcSublib(otherObj.Name) {
		return true
	}
	// Known GCC issue: https://gcc.gnu.org/ml/gcc-help/2018-04/msg00097.html
	if sym.Name == "_init" || sym.Name == "_fini" {
		return true
	}
	// Known binutils issue: https://sourceware.org/ml/binutils/2018-05/msg00012.html
	switch sym.Name {
	case "__bss_start", "_edata", "_etext", "__etext", "_end":
		return true
	}
	return false
}

// Analyze runs the definition and resolution passes over one executable's
// load closure (closure[0] is the executable itself, per BuildClosure),
// reporting every duplicate definition and unresolved reference not
// covered by the allow-lists above. diag's WarnOnce dedups repeat
// warnings across the whole analysis run, mirroring find_interposes.py's
// `dup_warnings`/`soname_warnings` sets.
func Analyze(closure []*store.Object, diag *Diagnostics) *Report {
	report := &Report{}
	if len(closure) == 0 {
		return report
	}
	mainObj := closure[0]
	pkgName := ""
	if mainObj.Package != nil {
		pkgName = mainObj.Package.Name
	}

	// Pass 1: collect definitions, first-definer-wins, reporting duplicates.
	symOrigins := make(map[string]*store.Object)
	for _, obj := range closure {
		for _, sym := range obj.Exports {
			other, ok := symOrigins[sym.Name]
			if !ok {
				symOrigins[sym.Name] = obj
				continue
			}
			if canIgnoreDuplicate(sym, obj, other) {
				continue
			}
			key := dupKey(sym.Name, obj.Name, other.Name)
			diag.WarnOnce(key,
				"duplicate definition of symbol '%s' in modules %s (from package %s) and %s (from package %s) (when loading object %s in package %s)",
				sym.Name, other.Name, packageSourceName(other), obj.Name, packageSourceName(obj), mainObj.Name, pkgName)
			report.Duplicates = append(report.Duplicates, DuplicateDefinition{
				Symbol: sym.Name, Winner: other, Loser: obj, LoadedFor: mainObj, LoadedInPkg: pkgName,
			})
		}
	}

	// Pass 2: resolve imports against the definitions collected above.
	for _, obj := range closure {
		for _, sym := range obj.Imports {
			if _, ok := symOrigins[sym.Name]; ok {
				continue
			}
			if sym.IsWeak || canIgnoreUnresolved(sym, obj, mainObj) {
				continue
			}
			diag.Warn(
				"unresolved reference to symbol '%s' in library %s (from package %s) (when loading object %s in package %s)",
				sym.Name, obj.Name, packageSourceName(obj), mainObj.Name, pkgName)
			report.Unresolved = append(report.Unresolved, UnresolvedReference{
				Symbol: sym.Name, Importer: obj, LoadedFor: mainObj, LoadedInPkg: pkgName,
			})
		}
	}

	return report
}

func packageSourceName(obj *store.Object) string {
	if obj.Package == nil {
		return ""
	}
	if obj.Package.SourceName != nil {
		return *obj.Package.SourceName
	}
	return ""
}
