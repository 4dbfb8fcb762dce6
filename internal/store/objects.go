package store

import "fmt"

// InsertObject persists an Object, its dependency names, and all of its
// symbols (imports followed by exports) in one transaction, matching
// lib/model.py:Object.serialize's "one logical unit per Object" contract.
func (s *Store) InsertObject(obj *Object, packageID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("insert object %q: begin: %w", obj.Name, err)
	}
	defer tx.Rollback()

	soname := ""
	if obj.SoName != nil {
		soname = *obj.SoName
	}
	res, err := tx.Exec(
		"INSERT INTO objects (name, soname, is_shlib, is_symbolic, package_id) VALUES (?, ?, ?, ?, ?)",
		obj.Name, soname, obj.IsShlib, obj.IsSymbolic, packageID,
	)
	if err != nil {
		return fmt.Errorf("insert object %q: %w", obj.Name, err)
	}
	objectID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert object %q: last insert id: %w", obj.Name, err)
	}
	obj.ID = objectID
	obj.PackageID = packageID

	depStmt, err := tx.Prepare("INSERT INTO shlib_deps (object_id, dep_name) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("insert object %q: prepare deps: %w", obj.Name, err)
	}
	defer depStmt.Close()
	for _, dep := range obj.DepNames {
		if _, err := depStmt.Exec(objectID, dep); err != nil {
			return fmt.Errorf("insert object %q: dep %q: %w", obj.Name, dep, err)
		}
	}

	symStmt, err := tx.Prepare(
		"INSERT INTO symbols (name, version, is_weak, is_protected, import_or_export, object_id) VALUES (?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("insert object %q: prepare symbols: %w", obj.Name, err)
	}
	defer symStmt.Close()
	for _, sym := range obj.Imports {
		if _, err := symStmt.Exec(sym.Name, sym.Version, sym.IsWeak, sym.IsProtected, DirImport, objectID); err != nil {
			return fmt.Errorf("insert object %q: import symbol %q: %w", obj.Name, sym.Name, err)
		}
	}
	for _, sym := range obj.Exports {
		if _, err := symStmt.Exec(sym.Name, sym.Version, sym.IsWeak, sym.IsProtected, DirExport, objectID); err != nil {
			return fmt.Errorf("insert object %q: export symbol %q: %w", obj.Name, sym.Name, err)
		}
	}

	return tx.Commit()
}

// DeserializePkgObjects returns the non-shared-library Objects (executables
// and PIEs — the load-closure roots) belonging to pkg.
func (s *Store) DeserializePkgObjects(pkg *Package) ([]*Object, error) {
	rows, err := s.db.Query(
		"SELECT id, name, soname, is_shlib, is_symbolic FROM objects WHERE package_id = ? AND is_shlib = 0",
		pkg.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("deserialize pkg objects for %q: %w", pkg.Name, err)
	}
	defer rows.Close()

	var objs []*Object
	for rows.Next() {
		obj := &Object{PackageID: pkg.ID, Package: pkg}
		var soname string
		if err := rows.Scan(&obj.ID, &obj.Name, &soname, &obj.IsShlib, &obj.IsSymbolic); err != nil {
			return nil, fmt.Errorf("deserialize pkg objects for %q: scan: %w", pkg.Name, err)
		}
		obj.SoName = sourceNameFromColumn(soname)
		objs = append(objs, obj)
	}
	return objs, rows.Err()
}

// depRow is one row of the SONAME join query used by DeserializeDeps.
type depRow struct {
	obj    *Object
	pkg    *Package
	soname string
}

// DeserializeDeps resolves obj's recorded DT_NEEDED names to the Objects
// providing those SONAMEs in the store, joining on SoName. When multiple
// Objects share a SONAME the first one encountered wins and
// warnOnceDupSoname(soname, ...) is called to report it — the caller (a
// *Diagnostics) owns the dedup-by-key bookkeeping so the warning fires
// once per analysis run rather than relying on store-global state.
func (s *Store) DeserializeDeps(obj *Object, warnOnceDupSoname func(key, format string, args ...any)) ([]*Object, error) {
	rows, err := s.db.Query(`
		SELECT o.id, o.name, o.soname, o.is_shlib, o.is_symbolic,
		       p.id, p.name, p.source_name
		FROM shlib_deps d
		JOIN objects o ON o.soname = d.dep_name AND o.soname != ''
		JOIN packages p ON p.id = o.package_id
		WHERE d.object_id = ?`, obj.ID)
	if err != nil {
		return nil, fmt.Errorf("deserialize deps for object %q: %w", obj.Name, err)
	}
	defer rows.Close()

	// Depended-on names with no matching SONAME anywhere in the store are
	// simply absent from the join result and dropped silently, matching
	// lib/model.py:deserialize_deps (no warning for an unresolved DT_NEEDED
	// name — only for a SONAME collision between two present Objects).
	bySoname := make(map[string]*depRow)
	var order []string
	for rows.Next() {
		var r depRow
		r.obj = &Object{}
		r.pkg = &Package{}
		var soname, sourceName string
		if err := rows.Scan(
			&r.obj.ID, &r.obj.Name, &soname, &r.obj.IsShlib, &r.obj.IsSymbolic,
			&r.pkg.ID, &r.pkg.Name, &sourceName,
		); err != nil {
			return nil, fmt.Errorf("deserialize deps for object %q: scan: %w", obj.Name, err)
		}
		r.obj.SoName = sourceNameFromColumn(soname)
		r.obj.PackageID = r.pkg.ID
		r.obj.Package = r.pkg
		r.pkg.SourceName = sourceNameFromColumn(sourceName)
		r.soname = soname

		if existing, ok := bySoname[soname]; ok {
			warnOnceDupSoname(soname, "duplicate implementations of SONAME %q: %s (from %s) and %s (from %s)",
				soname, existing.obj.Name, existing.pkg.Name, r.obj.Name, r.pkg.Name)
			continue
		}
		bySoname[soname] = &r
		order = append(order, soname)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deserialize deps for object %q: %w", obj.Name, err)
	}

	deps := make([]*Object, 0, len(order))
	for _, soname := range order {
		deps = append(deps, bySoname[soname].obj)
	}
	return deps, nil
}
