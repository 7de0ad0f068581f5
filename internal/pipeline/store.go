package pipeline

import (
	"context"

	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/domain"
	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/observability"
)

// instrumentedStore counts rows written per table.
type instrumentedStore struct {
	TableStore
	metrics *observability.Metrics
}

// Instrument wraps store so successful writes add to rows_written_total.
func Instrument(store TableStore, metrics *observability.Metrics) TableStore {
	return &instrumentedStore{TableStore: store, metrics: metrics}
}

func (s *instrumentedStore) Write(ctx context.Context, t domain.Table) error {
	if err := s.TableStore.Write(ctx, t); err != nil {
		return err
	}
	s.metrics.RowsWritten.WithLabelValues(t.Name).Add(float64(t.Len()))
	return nil
}
