// Package dimensions loads the store, product, customer and region
// dimensions from the sources into the warehouse.
package dimensions

import (
	"github.com/hotdog2030/hotdog-etl/internal/db"
	"github.com/hotdog2030/hotdog-etl/internal/identity"
	"github.com/hotdog2030/hotdog-etl/internal/source"
	"github.com/hotdog2030/hotdog-etl/internal/stats"
	"github.com/hotdog2030/hotdog-etl/internal/warehouse"
)

// Loader writes dimensions and registers every written id with the
// identity resolver. Row-level failures are logged and counted; only
// source read or connection failures are returned as errors.
type Loader struct {
	wh        db.Querier
	pos       *source.Reader
	mini      *source.Reader
	ids       *identity.Resolver
	batchSize int
}

// NewLoader creates a dimension loader. mini may be nil when the
// mini-program source is not part of the run.
func NewLoader(wh db.Querier, pos, mini *source.Reader, ids *identity.Resolver, batchSize int) *Loader {
	return &Loader{wh: wh, pos: pos, mini: mini, ids: ids, batchSize: batchSize}
}

func (l *Loader) writer(counts *stats.Counts) *warehouse.Writer {
	return warehouse.NewWriter(l.wh, l.batchSize, counts)
}

func nullStr(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func flag(v *int) bool {
	return v != nil && *v != 0
}
