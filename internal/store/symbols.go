package store

import "fmt"

// DeserializeSyms returns the (imports, exports) symbol lists for obj,
// matching lib/model.py:Symbol.deserialize_syms.
func (s *Store) DeserializeSyms(obj *Object) (imports, exports []*Symbol, err error) {
	rows, err := s.db.Query(
		"SELECT id, name, version, is_weak, is_protected, import_or_export FROM symbols WHERE object_id = ?",
		obj.ID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("deserialize syms for object %q: %w", obj.Name, err)
	}
	defer rows.Close()

	for rows.Next() {
		sym := &Symbol{ObjectID: obj.ID}
		var direction int
		if err := rows.Scan(&sym.ID, &sym.Name, &sym.Version, &sym.IsWeak, &sym.IsProtected, &direction); err != nil {
			return nil, nil, fmt.Errorf("deserialize syms for object %q: scan: %w", obj.Name, err)
		}
		sym.Direction = Direction(direction)
		if sym.Direction == DirImport {
			imports = append(imports, sym)
		} else {
			exports = append(exports, sym)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("deserialize syms for object %q: %w", obj.Name, err)
	}
	return imports, exports, nil
}
