package business

import (
	"context"
	"time"

	"github.com/Merilairon/colruyt-scraper/internal/models"
	"github.com/Merilairon/colruyt-scraper/internal/storage"
	"github.com/Merilairon/colruyt-scraper/metrics"
)

// ChangeSyncer runs the daily price comparison. Snapshot loads, the
// diff and the writes all happen inside one transaction so a crashed
// run never leaves half-written change records behind.
type ChangeSyncer struct {
	tx      TxRunner
	prices  PriceStore
	changes PriceChangeStore
	today   func() time.Time
}

func NewChangeSyncer(tx TxRunner, prices PriceStore, changes PriceChangeStore) *ChangeSyncer {
	return &ChangeSyncer{
		tx:      tx,
		prices:  prices,
		changes: changes,
		today:   time.Now,
	}
}

// Run compares today's price snapshot against yesterday's and persists
// the resulting change records. The transition callback reports each
// phase as it starts; pass nil to ignore.
func (s *ChangeSyncer) Run(ctx context.Context, transition func(PipelineState)) ([]models.PriceChange, error) {
	report := transition
	if report == nil {
		report = func(PipelineState) {}
	}

	var persisted []models.PriceChange
	err := s.tx.RunInTx(ctx, func(q storage.Querier) error {
		report(StateLoadingSnapshots)
		day := dayStart(s.today())
		today, err := s.prices.ByDate(ctx, q, day)
		if err != nil {
			return err
		}
		yesterday, err := s.prices.ByDate(ctx, q, day.AddDate(0, 0, -1))
		if err != nil {
			return err
		}
		existing, err := s.changes.All(ctx, q)
		if err != nil {
			return err
		}

		report(StateDiffing)
		result := Diff(yesterday, today, existing)

		report(StatePersistingChanges)
		all := make([]models.PriceChange, 0, len(result.New)+len(result.Updated))
		all = append(all, result.New...)
		all = append(all, result.Updated...)
		if err := s.changes.UpsertBatch(ctx, q, all); err != nil {
			return err
		}
		metrics.RecordPriceChangesEmitted(len(result.New), len(result.Updated))

		logger.Info().
			Int("new", len(result.New)).
			Int("updated", len(result.Updated)).
			Str("day", day.Format("2006-01-02")).
			Msg("price changes persisted")
		persisted = all
		return nil
	})
	if err != nil {
		return nil, err
	}
	return persisted, nil
}
