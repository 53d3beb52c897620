package vector

import (
	"context"
	"strings"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
)

func (l *Layer) refreshSchema(ctx context.Context) error {
	def, err := l.store.Definition(ctx)
	if err != nil {
		return wrapStore("read layer definition", err)
	}
	if def == nil {
		return domain.ErrSchema("layer %q has no definition", l.store.Name())
	}
	l.schema = def.Clone()
	if l.schema.FIDColumn == "" {
		l.schema.FIDColumn = l.store.FIDColumn()
	}
	return nil
}

func (l *Layer) exposedGeomName(i int) string {
	if n := l.schema.GeomFields[i].Name; n != "" {
		return n
	}
	return l.cfg.DefaultGeomName
}

// geomFieldForName resolves an input key to a geometry field index. The
// exposed name always matches; the configured aliases only match when the
// layer has exactly one geometry field and it has no native name.
func (l *Layer) geomFieldForName(name string) int {
	for i := range l.schema.GeomFields {
		if l.exposedGeomName(i) == name {
			return i
		}
	}
	if len(l.schema.GeomFields) != 1 || l.schema.GeomFields[0].Name != "" {
		return -1
	}
	for _, alias := range l.cfg.GeomAliases {
		if strings.EqualFold(alias, name) {
			return 0
		}
	}
	return -1
}

// nativeFieldNames maps exposed names to the names the store ignores by.
func (l *Layer) nativeFieldNames(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if i := l.schema.FieldIndex(n); i >= 0 {
			out = append(out, l.schema.Fields[i].Name)
			continue
		}
		if n == domain.IgnoreGeometryToken {
			out = append(out, n)
			continue
		}
		if g := l.geomFieldForName(n); g >= 0 {
			out = append(out, l.nativeGeomName(g))
			continue
		}
		return nil, domain.ErrSchema("field %q not found in layer %q", n, l.Name())
	}
	return out, nil
}

func (l *Layer) nativeGeomName(i int) string {
	if n := l.schema.GeomFields[i].Name; n != "" {
		return n
	}
	return domain.IgnoreGeometryToken
}

// FieldDomain looks up a field domain by name. found is false when the
// dataset has no such domain, which is distinct from a coded domain with
// no codes.
func (l *Layer) FieldDomain(ctx context.Context, name string) (*domain.FieldDomain, bool, error) {
	d, found, err := l.store.FieldDomain(ctx, name)
	if err != nil {
		return nil, false, wrapStore("field domain", err)
	}
	return d, found, nil
}

// FieldDomainOf returns the domain bound to an attribute field. A field
// without a domain yields found=false; a field bound to a domain the
// dataset does not define is a SchemaError.
func (l *Layer) FieldDomainOf(ctx context.Context, field string) (*domain.FieldDomain, bool, error) {
	i := l.schema.FieldIndex(field)
	if i < 0 {
		return nil, false, domain.ErrSchema("field %q not found in layer %q", field, l.Name())
	}
	name := l.schema.Fields[i].DomainName
	if name == "" {
		return nil, false, nil
	}
	d, found, err := l.FieldDomain(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, domain.ErrSchema("field %q references unknown domain %q", field, name)
	}
	return d, true, nil
}
