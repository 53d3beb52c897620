package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
	"github.com/USDAForestService/gdalraster-sub000/internal/typecatalog"
	"github.com/USDAForestService/gdalraster-sub000/internal/vector"
)

var reportedCapabilities = []string{
	domain.CapRandomRead, domain.CapSequentialWrite, domain.CapRandomWrite,
	domain.CapUpsertFeature, domain.CapDeleteFeature, domain.CapCreateField,
	domain.CapTransactions, domain.CapFastFeatureCount, domain.CapFastGetExtent,
	domain.CapFastSetNextByIndex, domain.CapIgnoreFields, domain.CapFastGetArrowStream,
}

func newLayersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "layers",
		Short: "List the layers in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ds, err := a.openDataset(ctx)
			if err != nil {
				return err
			}
			defer ds.Close() //nolint:errcheck

			names, err := ds.LayerNames(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.quiet || a.output == OutputTable {
				for _, n := range names {
					fmt.Fprintln(out, n)
				}
				return nil
			}
			if names == nil {
				names = []string{}
			}
			if a.output == OutputCSV {
				rows := make([][]string, len(names))
				for i, n := range names {
					rows[i] = []string{n}
				}
				return PrintCSV(out, []string{"name"}, rows)
			}
			return PrintJSON(out, names)
		},
	}
}

type fieldInfo struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	SubType   string `json:"subtype,omitempty"`
	Nullable  bool   `json:"nullable"`
	Unique    bool   `json:"unique,omitempty"`
	Default   string `json:"default,omitempty"`
	Domain    string `json:"domain,omitempty"`
	Width     int    `json:"width,omitempty"`
	Precision int    `json:"precision,omitempty"`
}

type geomFieldInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	SRS      string `json:"srs,omitempty"`
	Nullable bool   `json:"nullable"`
}

type layerInfo struct {
	Name           string          `json:"name"`
	FIDColumn      string          `json:"fid_column"`
	GeometryColumn string          `json:"geometry_column,omitempty"`
	FeatureCount   int64           `json:"feature_count"`
	Extent         []float64       `json:"extent,omitempty"`
	Fields         []fieldInfo     `json:"fields"`
	GeomFields     []geomFieldInfo `json:"geometry_fields"`
	Capabilities   []string        `json:"capabilities"`
}

func describeLayer(cmd *cobra.Command, l *vector.Layer) (*layerInfo, error) {
	ctx := cmd.Context()
	n, err := l.FeatureCount(ctx)
	if err != nil {
		return nil, err
	}
	info := &layerInfo{
		Name:           l.Name(),
		FIDColumn:      l.FIDColumn(),
		GeometryColumn: l.GeometryColumn(),
		FeatureCount:   n,
		Fields:         []fieldInfo{},
		GeomFields:     []geomFieldInfo{},
		Capabilities:   []string{},
	}
	if b, ok, err := l.Extent(ctx); err != nil {
		return nil, err
	} else if ok {
		info.Extent = []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	}

	s := l.Schema()
	for _, f := range s.Fields {
		fi := fieldInfo{
			Name: f.Name, Type: typecatalog.FieldTypeName(f.Type), Nullable: f.Nullable,
			Unique: f.Unique, Default: f.Default, Domain: f.DomainName,
			Width: f.Width, Precision: f.Precision,
		}
		if f.SubType != domain.SubTypeNone {
			fi.SubType = typecatalog.SubTypeName(f.SubType)
		}
		info.Fields = append(info.Fields, fi)
	}
	defaultName := l.Config().DefaultGeomName
	for _, g := range s.GeomFields {
		name := g.Name
		if name == "" {
			name = defaultName
		}
		info.GeomFields = append(info.GeomFields, geomFieldInfo{
			Name: name, Type: typecatalog.GeomTypeName(g.Type), SRS: g.SRS, Nullable: g.Nullable,
		})
	}
	for _, c := range reportedCapabilities {
		if l.TestCapability(c) {
			info.Capabilities = append(info.Capabilities, c)
		}
	}
	return info, nil
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <layer>",
		Short: "Show a layer's schema, extent and capabilities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLayer(cmd.Context(), args[0], func(l *vector.Layer) error {
				info, err := describeLayer(cmd, l)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if a.output == OutputJSON {
					return PrintJSON(out, info)
				}

				detail := map[string]any{
					"name":          info.Name,
					"fid_column":    info.FIDColumn,
					"feature_count": info.FeatureCount,
					"capabilities":  strings.Join(info.Capabilities, ","),
				}
				if info.GeometryColumn != "" {
					detail["geometry_column"] = info.GeometryColumn
				}
				if info.Extent != nil {
					detail["extent"] = info.Extent
				}
				PrintDetail(out, detail)
				fmt.Fprintln(out)

				rows := make([][]string, 0, len(info.Fields)+len(info.GeomFields))
				for _, f := range info.Fields {
					rows = append(rows, []string{
						f.Name, f.Type, f.SubType, fmt.Sprint(f.Nullable), f.Default, f.Domain,
					})
				}
				for _, g := range info.GeomFields {
					rows = append(rows, []string{g.Name, g.Type, "", fmt.Sprint(g.Nullable), "", ""})
				}
				columns := []string{"field", "type", "subtype", "nullable", "default", "domain"}
				if a.output == OutputCSV {
					return PrintCSV(out, columns, rows)
				}
				PrintTable(out, columns, rows)
				return nil
			})
		},
	}
}

// parseFieldSpec parses "name:Type[:SubType]".
func parseFieldSpec(spec string) (domain.FieldSchema, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 3 || strings.TrimSpace(parts[0]) == "" {
		return domain.FieldSchema{}, fmt.Errorf("invalid field %q: want name:Type[:SubType]", spec)
	}
	f := domain.FieldSchema{Name: strings.TrimSpace(parts[0]), Nullable: true}
	if f.Type = typecatalog.FieldTypeFromName(parts[1]); f.Type == domain.FieldTypeUnknown {
		return domain.FieldSchema{}, fmt.Errorf("invalid field %q: unknown type %q", spec, parts[1])
	}
	if len(parts) == 3 {
		if f.SubType = typecatalog.SubTypeFromName(parts[2]); f.SubType == domain.SubTypeUnknown {
			return domain.FieldSchema{}, fmt.Errorf("invalid field %q: unknown subtype %q", spec, parts[2])
		}
	}
	return f, nil
}

func newCreateLayerCmd(a *app) *cobra.Command {
	var (
		fields   []string
		required []string
		geomType string
		geomName string
		srs      string
		fidName  string
	)
	cmd := &cobra.Command{
		Use:   "create-layer <layer>",
		Short: "Create an empty layer",
		Example: `  vectab create-layer plots --field name:String --field trees:Integer \
    --field alive:Integer:Boolean --required name --geom-type POINT`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema := &domain.LayerSchema{Name: args[0], FIDColumn: fidName}
			for _, spec := range fields {
				f, err := parseFieldSpec(spec)
				if err != nil {
					return err
				}
				schema.Fields = append(schema.Fields, f)
			}
			for _, name := range required {
				i := schema.FieldIndex(name)
				if i < 0 {
					return fmt.Errorf("--required names unknown field %q", name)
				}
				schema.Fields[i].Nullable = false
			}
			if geomType != "" {
				gt := typecatalog.GeomTypeFromName(geomType)
				if gt == domain.GeomUnknown && !isGenericGeomName(geomType) {
					return fmt.Errorf("unknown geometry type %q", geomType)
				}
				schema.GeomFields = append(schema.GeomFields, domain.GeomFieldSchema{
					Name: geomName, Type: gt, SRS: srs, Nullable: true,
				})
			}

			ctx := cmd.Context()
			ds, err := a.openDataset(ctx)
			if err != nil {
				return err
			}
			defer ds.Close() //nolint:errcheck
			if _, err := ds.CreateLayer(ctx, schema); err != nil {
				return err
			}
			if !a.quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "created layer %s\n", schema.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "Attribute field as name:Type[:SubType] (repeatable)")
	cmd.Flags().StringSliceVar(&required, "required", nil, "Fields that may not be null")
	cmd.Flags().StringVar(&geomType, "geom-type", "", "Geometry type, e.g. POINT or MULTIPOLYGON (omit for no geometry)")
	cmd.Flags().StringVar(&geomName, "geom-name", "", "Native geometry column name (empty for an unnamed geometry)")
	cmd.Flags().StringVar(&srs, "srs", "", "Spatial reference WKT")
	cmd.Flags().StringVar(&fidName, "fid", "", "FID column name (default fid)")
	return cmd
}

type domainInfo struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Kind        string              `json:"kind"`
	FieldType   string              `json:"field_type"`
	Codes       map[string]any      `json:"codes,omitempty"`
	Min         *domain.DomainBound `json:"min,omitempty"`
	Max         *domain.DomainBound `json:"max,omitempty"`
	Glob        string              `json:"glob,omitempty"`
}

func toDomainInfo(fd *domain.FieldDomain) domainInfo {
	di := domainInfo{
		Name:        fd.Name,
		Description: fd.Description,
		Kind:        typecatalog.DomainKindName(fd.Kind),
		FieldType:   typecatalog.FieldTypeName(fd.FieldType),
		Min:         fd.Min,
		Max:         fd.Max,
		Glob:        fd.Glob,
	}
	if len(fd.Codes) > 0 {
		di.Codes = make(map[string]any, len(fd.Codes))
		for _, c := range fd.Codes {
			if c.Value != nil {
				di.Codes[c.Code] = *c.Value
			} else {
				di.Codes[c.Code] = nil
			}
		}
	}
	return di
}

func newDomainsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "domains [name]",
		Short: "List field domains, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ds, err := a.openDataset(ctx)
			if err != nil {
				return err
			}
			defer ds.Close() //nolint:errcheck
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				names, err := ds.FieldDomainNames(ctx)
				if err != nil {
					return err
				}
				if a.output == OutputJSON && !a.quiet {
					if names == nil {
						names = []string{}
					}
					return PrintJSON(out, names)
				}
				for _, n := range names {
					fmt.Fprintln(out, n)
				}
				return nil
			}

			fd, ok, err := ds.FieldDomain(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrNotFound("field domain %q not found", args[0])
			}
			di := toDomainInfo(fd)
			if a.output == OutputJSON {
				return PrintJSON(out, di)
			}
			detail := map[string]any{
				"name":       di.Name,
				"kind":       di.Kind,
				"field_type": di.FieldType,
			}
			if di.Description != "" {
				detail["description"] = di.Description
			}
			if di.Codes != nil {
				detail["codes"] = di.Codes
			}
			if di.Min != nil {
				detail["min"] = boundString(di.Min, "[", "(")
			}
			if di.Max != nil {
				detail["max"] = boundString(di.Max, "]", ")")
			}
			if di.Glob != "" {
				detail["glob"] = di.Glob
			}
			PrintDetail(out, detail)
			return nil
		},
	}
}

func boundString(b *domain.DomainBound, inclusive, exclusive string) string {
	mark := exclusive
	if b.Inclusive {
		mark = inclusive
	}
	return fmt.Sprintf("%s %s", formatValue(b.Value), mark)
}

// isGenericGeomName reports whether name denotes the untyped geometry.
func isGenericGeomName(name string) bool {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "GEOMETRY", "UNKNOWN":
		return true
	}
	return false
}
