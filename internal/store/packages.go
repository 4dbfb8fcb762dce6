package store

import (
	"database/sql"
	"fmt"
)

// InsertPackage inserts a Package and, if errMsg is non-empty, a single
// associated error row, matching lib/model.py:Package.serialize (at most
// one error message is recorded per package). The store-assigned ID is
// written back to pkg.ID.
func (s *Store) InsertPackage(pkg *Package, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("insert package: begin: %w", err)
	}
	defer tx.Rollback()

	sourceName := sourceNameColumn(pkg.SourceName)
	res, err := tx.Exec("INSERT INTO packages (name, source_name) VALUES (?, ?)", pkg.Name, sourceName)
	if err != nil {
		return fmt.Errorf("insert package %q: %w", pkg.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert package %q: last insert id: %w", pkg.Name, err)
	}
	pkg.ID = id

	if errMsg != "" {
		if _, err := tx.Exec("INSERT INTO errors (package_id, message) VALUES (?, ?)", id, errMsg); err != nil {
			return fmt.Errorf("insert error for package %q: %w", pkg.Name, err)
		}
		pkg.HasErrors = true
	}

	return tx.Commit()
}

// sourceNameColumn converts the nullable SourceName into the empty-string
// sentinel the store uses on disk.
func sourceNameColumn(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// sourceNameFromColumn converts the stored empty-string sentinel back into
// an absent (nil) SourceName.
func sourceNameFromColumn(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// DeserializePackage looks up exactly one Package by name. Multiple or
// zero matches are reported as errors rather than silently picking one.
func (s *Store) DeserializePackage(name string) (*Package, error) {
	rows, err := s.db.Query("SELECT id, name, source_name FROM packages WHERE name = ?", name)
	if err != nil {
		return nil, fmt.Errorf("deserialize package %q: %w", name, err)
	}
	defer rows.Close()

	var pkg *Package
	for rows.Next() {
		if pkg != nil {
			return nil, fmt.Errorf("deserialize package %q: found multiple packages with this name", name)
		}
		pkg, err = scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("deserialize package %q: %w", name, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deserialize package %q: %w", name, err)
	}
	if pkg == nil {
		return nil, fmt.Errorf("deserialize package %q: found no package with this name", name)
	}
	if err := s.fillHasErrors(pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

// DeserializeAllPackages enumerates every Package in the store.
func (s *Store) DeserializeAllPackages() ([]*Package, error) {
	rows, err := s.db.Query("SELECT id, name, source_name FROM packages")
	if err != nil {
		return nil, fmt.Errorf("deserialize all packages: %w", err)
	}
	defer rows.Close()

	var pkgs []*Package
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("deserialize all packages: %w", err)
		}
		pkgs = append(pkgs, pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deserialize all packages: %w", err)
	}
	for _, pkg := range pkgs {
		if err := s.fillHasErrors(pkg); err != nil {
			return nil, err
		}
	}
	return pkgs, nil
}

func scanPackage(rows *sql.Rows) (*Package, error) {
	var pkg Package
	var sourceName string
	if err := rows.Scan(&pkg.ID, &pkg.Name, &sourceName); err != nil {
		return nil, fmt.Errorf("scan package: %w", err)
	}
	pkg.SourceName = sourceNameFromColumn(sourceName)
	return &pkg, nil
}

func (s *Store) fillHasErrors(pkg *Package) error {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM errors WHERE package_id = ?", pkg.ID).Scan(&count)
	if err != nil {
		return fmt.Errorf("count errors for package %q: %w", pkg.Name, err)
	}
	pkg.HasErrors = count != 0
	return nil
}
