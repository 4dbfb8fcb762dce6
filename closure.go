package interposecheck

import "github.com/yugr/interposecheck/internal/store"

// DepResolver is the Store capability the Closure Builder needs: resolve
// one Object's recorded dependency names to the Objects providing them,
// and load an Object's own import/export symbol sets. Narrowing to an
// interface here (rather than depending on *store.Store directly) is
// what lets closure_test.go drive BuildClosure off an in-memory fake
// instead of a real database.
type DepResolver interface {
	DeserializeDeps(obj *store.Object, warnOnceDupSoname func(key, format string, args ...any)) ([]*store.Object, error)
	DeserializeSyms(obj *store.Object) (imports, exports []*store.Symbol, err error)
}

// resolveGraph populates obj's Imports/Exports and recursively its Deps
// (and, transitively, every dependency's own symbols and Deps) by SONAME,
// memoising already-loaded objects in bySoname so a library with
// multiple dependents is resolved, symbol-loaded and walked exactly once
// — index_packages.py's deserialize_deps_and_syms, with its
// per-function-attribute `warned` set replaced by diag's caller-owned
// dedup.
func resolveGraph(deps DepResolver, diag *Diagnostics, obj *store.Object, bySoname map[string]*store.Object) error {
	imports, exports, err := deps.DeserializeSyms(obj)
	if err != nil {
		return err
	}
	obj.Imports, obj.Exports = imports, exports

	resolved, err := deps.DeserializeDeps(obj, func(key, format string, args ...any) {
		diag.WarnOnce("dup-soname:"+key, format, args...)
	})
	if err != nil {
		return err
	}

	newDeps := make([]*store.Object, 0, len(resolved))
	for _, dep := range resolved {
		// The store's join never returns an Object without a SONAME, but
		// another DepResolver may; such a dependency is passed through
		// unwalked, and the BFS below skips it with a warning.
		if dep.SoName == nil {
			newDeps = append(newDeps, dep)
			continue
		}
		if existing, ok := bySoname[*dep.SoName]; ok {
			newDeps = append(newDeps, existing)
			continue
		}
		bySoname[*dep.SoName] = dep
		if err := resolveGraph(deps, diag, dep, bySoname); err != nil {
			return err
		}
		newDeps = append(newDeps, dep)
	}
	obj.Deps = newDeps
	return nil
}

// BuildClosure computes root's transitive load closure: the ordered list
// of distinct-SONAME library Objects the dynamic linker would load
// alongside root, breadth-first from root's immediate dependencies, plus
// root itself in front. This order is symbol-resolution priority — the
// Resolver treats an earlier entry as winning over a later one for the
// same exported symbol name.
func BuildClosure(deps DepResolver, diag *Diagnostics, root *store.Object) ([]*store.Object, error) {
	bySoname := make(map[string]*store.Object)
	if err := resolveGraph(deps, diag, root, bySoname); err != nil {
		return nil, err
	}

	list := []*store.Object{root}
	loadedSonames := make(map[string]bool)
	pending := root.Deps

	for len(pending) > 0 {
		var next []*store.Object
		for _, obj := range pending {
			if obj.SoName == nil {
				pkgName := ""
				if obj.Package != nil {
					pkgName = obj.Package.Name
				}
				diag.WarnOnce("closure-missing-soname:"+pkgName+":"+obj.Name, "library %s does not have a SONAME", obj.Name)
				continue
			}
			if loadedSonames[*obj.SoName] {
				continue
			}
			list = append(list, obj)
			loadedSonames[*obj.SoName] = true
			next = append(next, obj.Deps...)
		}
		pending = next
	}

	return list, nil
}
