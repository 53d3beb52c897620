package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
	"github.com/USDAForestService/gdalraster-sub000/internal/typecatalog"
)

// layerEntry is one vt_layers row with its field and geometry definitions.
type layerEntry struct {
	table       string
	description string
	schema      *domain.LayerSchema
	geomCols    []string
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func insertLayer(ctx context.Context, q querier, s *domain.LayerSchema, geomCols []string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO vt_layers (name, table_name, fid_column) VALUES (?, ?, ?)`,
		s.Name, s.Name, s.FIDColumn)
	if err != nil {
		return fmt.Errorf("insert layer: %w", err)
	}
	for i, f := range s.Fields {
		if err := insertField(ctx, q, s.Name, i, f); err != nil {
			return err
		}
	}
	for i, g := range s.GeomFields {
		_, err := q.ExecContext(ctx,
			`INSERT INTO vt_geometry_fields (layer_name, ordinal, name, column_name, geometry_type, srs, nullable)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.Name, i, g.Name, geomCols[i], typecatalog.GeomTypeName(g.Type), g.SRS, boolInt(g.Nullable))
		if err != nil {
			return fmt.Errorf("insert geometry field %d: %w", i, err)
		}
	}
	return nil
}

func insertField(ctx context.Context, q querier, layer string, ordinal int, f domain.FieldSchema) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO vt_fields (layer_name, ordinal, name, field_type, sub_type, field_width, field_precision,
		                        nullable, is_unique, default_expr, domain_name, alternative_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		layer, ordinal, f.Name, typecatalog.FieldTypeName(f.Type), typecatalog.SubTypeName(f.SubType),
		f.Width, f.Precision, boolInt(f.Nullable), boolInt(f.Unique), f.Default, f.DomainName, f.AlternativeName)
	if err != nil {
		return fmt.Errorf("insert field %q: %w", f.Name, err)
	}
	return nil
}

func loadLayer(ctx context.Context, q querier, name string) (*layerEntry, error) {
	e := &layerEntry{schema: &domain.LayerSchema{}}
	err := q.QueryRowContext(ctx,
		`SELECT name, table_name, fid_column, description FROM vt_layers WHERE name = ?`, name).
		Scan(&e.schema.Name, &e.table, &e.schema.FIDColumn, &e.description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("layer %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("load layer %q: %w", name, err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT name, field_type, sub_type, field_width, field_precision, nullable, is_unique,
		        default_expr, domain_name, alternative_name
		 FROM vt_fields WHERE layer_name = ? ORDER BY ordinal`, name)
	if err != nil {
		return nil, fmt.Errorf("load fields of %q: %w", name, err)
	}
	for rows.Next() {
		var f domain.FieldSchema
		var ft, st string
		var nullable, unique int
		if err := rows.Scan(&f.Name, &ft, &st, &f.Width, &f.Precision, &nullable, &unique,
			&f.Default, &f.DomainName, &f.AlternativeName); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan field: %w", err)
		}
		f.Type = typecatalog.FieldTypeFromName(ft)
		f.SubType = typecatalog.SubTypeFromName(st)
		f.Nullable, f.Unique = nullable != 0, unique != 0
		e.schema.Fields = append(e.schema.Fields, f)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = q.QueryContext(ctx,
		`SELECT name, column_name, geometry_type, srs, nullable
		 FROM vt_geometry_fields WHERE layer_name = ? ORDER BY ordinal`, name)
	if err != nil {
		return nil, fmt.Errorf("load geometry fields of %q: %w", name, err)
	}
	for rows.Next() {
		var g domain.GeomFieldSchema
		var col, gt string
		var nullable int
		if err := rows.Scan(&g.Name, &col, &gt, &g.SRS, &nullable); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan geometry field: %w", err)
		}
		g.Type = typecatalog.GeomTypeFromName(gt)
		g.Nullable = nullable != 0
		e.schema.GeomFields = append(e.schema.GeomFields, g)
		e.geomCols = append(e.geomCols, col)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return e, nil
}

// deleteLayer removes the catalog rows of a layer. Child rows are deleted
// explicitly because DuckDB has no cascading foreign keys.
func deleteLayer(ctx context.Context, q querier, name string) error {
	for _, stmt := range []string{
		`DELETE FROM vt_geometry_fields WHERE layer_name = ?`,
		`DELETE FROM vt_fields WHERE layer_name = ?`,
		`DELETE FROM vt_layers WHERE name = ?`,
	} {
		if _, err := q.ExecContext(ctx, stmt, name); err != nil {
			return fmt.Errorf("delete layer %q: %w", name, err)
		}
	}
	return nil
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return err
}

// CreateFieldDomain records a field domain in the store.
func (d *Dataset) CreateFieldDomain(ctx context.Context, fd *domain.FieldDomain) error {
	if fd.Name == "" {
		return domain.ErrValidation("field domain name is required")
	}
	if _, found, err := d.FieldDomain(ctx, fd.Name); err != nil {
		return err
	} else if found {
		return domain.ErrConflict("field domain %q already exists", fd.Name)
	}

	var minV, maxV sql.NullString
	minInc, maxInc := true, true
	if fd.Min != nil {
		minV = sql.NullString{String: strconv.FormatFloat(fd.Min.Value, 'g', -1, 64), Valid: true}
		minInc = fd.Min.Inclusive
	}
	if fd.Max != nil {
		maxV = sql.NullString{String: strconv.FormatFloat(fd.Max.Value, 'g', -1, 64), Valid: true}
		maxInc = fd.Max.Inclusive
	}

	return d.inTx(ctx, func(q querier) error {
		_, err := q.ExecContext(ctx,
			`INSERT INTO vt_field_domains (name, description, kind, field_type, sub_type,
			                               min_value, min_inclusive, max_value, max_inclusive, glob)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fd.Name, fd.Description, typecatalog.DomainKindName(fd.Kind),
			typecatalog.FieldTypeName(fd.FieldType), typecatalog.SubTypeName(fd.SubType),
			minV, boolInt(minInc), maxV, boolInt(maxInc), fd.Glob)
		if err != nil {
			return fmt.Errorf("insert field domain %q: %w", fd.Name, err)
		}
		for i, c := range fd.Codes {
			var value sql.NullString
			if c.Value != nil {
				value = sql.NullString{String: *c.Value, Valid: true}
			}
			_, err := q.ExecContext(ctx,
				`INSERT INTO vt_field_domain_codes (domain_name, ordinal, code, value) VALUES (?, ?, ?, ?)`,
				fd.Name, i, c.Code, value)
			if err != nil {
				return fmt.Errorf("insert code %q of domain %q: %w", c.Code, fd.Name, err)
			}
		}
		return nil
	})
}

// FieldDomain looks up a field domain by name. found is false when no
// domain has that name.
func (d *Dataset) FieldDomain(ctx context.Context, name string) (*domain.FieldDomain, bool, error) {
	q := d.q()
	fd := &domain.FieldDomain{Name: name}
	var kind, ft, st string
	var minV, maxV sql.NullString
	var minInc, maxInc int
	err := q.QueryRowContext(ctx,
		`SELECT description, kind, field_type, sub_type, min_value, min_inclusive, max_value, max_inclusive, glob
		 FROM vt_field_domains WHERE name = ?`, name).
		Scan(&fd.Description, &kind, &ft, &st, &minV, &minInc, &maxV, &maxInc, &fd.Glob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load field domain %q: %w", name, err)
	}
	fd.Kind = typecatalog.DomainKindFromName(kind)
	fd.FieldType = typecatalog.FieldTypeFromName(ft)
	fd.SubType = typecatalog.SubTypeFromName(st)
	if fd.Min, err = parseBound(minV, minInc); err != nil {
		return nil, false, err
	}
	if fd.Max, err = parseBound(maxV, maxInc); err != nil {
		return nil, false, err
	}

	rows, err := q.QueryContext(ctx,
		`SELECT code, value FROM vt_field_domain_codes WHERE domain_name = ? ORDER BY ordinal`, name)
	if err != nil {
		return nil, false, fmt.Errorf("load codes of domain %q: %w", name, err)
	}
	for rows.Next() {
		var c domain.CodedValue
		var value sql.NullString
		if err := rows.Scan(&c.Code, &value); err != nil {
			rows.Close()
			return nil, false, fmt.Errorf("scan domain code: %w", err)
		}
		if value.Valid {
			v := value.String
			c.Value = &v
		}
		fd.Codes = append(fd.Codes, c)
	}
	if err := closeRows(rows); err != nil {
		return nil, false, err
	}
	return fd, true, nil
}

// FieldDomainNames lists the field domains in the store, sorted.
func (d *Dataset) FieldDomainNames(ctx context.Context) ([]string, error) {
	rows, err := d.q().QueryContext(ctx, `SELECT name FROM vt_field_domains`)
	if err != nil {
		return nil, fmt.Errorf("list field domains: %w", err)
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan field domain name: %w", err)
		}
		names = append(names, n)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func parseBound(v sql.NullString, inclusive int) (*domain.DomainBound, error) {
	if !v.Valid {
		return nil, nil
	}
	x, err := strconv.ParseFloat(v.String, 64)
	if err != nil {
		return nil, fmt.Errorf("parse domain bound %q: %w", v.String, err)
	}
	return &domain.DomainBound{Value: x, Inclusive: inclusive != 0}, nil
}
