package vector

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/USDAForestService/gdalraster-sub000/internal/ddl"
	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
	"github.com/USDAForestService/gdalraster-sub000/internal/table"
)

// filterGuard captures the cursor filters so they can be put back exactly.
type filterGuard struct {
	cursor  domain.Cursor
	attr    string
	bbox    orb.Bound
	hasBBox bool
}

func saveFilters(c domain.Cursor) *filterGuard {
	g := &filterGuard{cursor: c, attr: c.AttributeFilter()}
	g.bbox, g.hasBBox = c.SpatialFilter()
	return g
}

func (g *filterGuard) restore(ctx context.Context) error {
	if g.hasBBox {
		b := g.bbox
		g.cursor.SetSpatialFilter(&b)
	} else {
		g.cursor.SetSpatialFilter(nil)
	}
	if err := g.cursor.SetAttributeFilter(ctx, g.attr); err != nil {
		return wrapStore("restore attribute filter", err)
	}
	return nil
}

// GetFeature reads the feature with the given FID. It returns nil, nil when
// no feature matches. The attribute and spatial filters in place before the
// call are restored on return, whatever the outcome.
func (l *Layer) GetFeature(ctx context.Context, fid int64, opts ReadOptions) (rec *table.Record, err error) {
	guard := saveFilters(l.store)
	defer func() {
		if rerr := guard.restore(context.WithoutCancel(ctx)); rerr != nil && err == nil {
			rec, err = nil, rerr
		}
	}()

	l.store.SetSpatialFilter(nil)
	if err := l.store.SetAttributeFilter(ctx, fidFilter(l.fidFilterColumn(), fid)); err != nil {
		return nil, wrapStore("set attribute filter", err)
	}
	l.store.ResetReading()

	tbl, err := l.Fetch(ctx, 1, opts)
	if err != nil {
		return nil, err
	}
	if tbl.Len() == 0 {
		return nil, nil
	}
	return tbl.Record(0), nil
}

// GetNextFeature reads the next feature from the current cursor position.
// It returns nil, nil at the end of the cursor.
func (l *Layer) GetNextFeature(ctx context.Context, opts ReadOptions) (*table.Record, error) {
	tbl, err := l.Fetch(ctx, 1, opts)
	if err != nil {
		return nil, err
	}
	if tbl.Len() == 0 {
		return nil, nil
	}
	return tbl.Record(0), nil
}

func fidFilter(column string, fid int64) string {
	if ddl.ValidateIdentifier(column) != nil {
		column = ddl.QuoteIdentifier(column)
	}
	return fmt.Sprintf("%s = %d", column, fid)
}
