package business

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Merilairon/colruyt-scraper/internal/colruyt"
	"github.com/Merilairon/colruyt-scraper/internal/models"
	"github.com/Merilairon/colruyt-scraper/metrics"
	"github.com/Merilairon/colruyt-scraper/pkg/dbconnect"
)

// PipelineState is one phase of a pipeline run. The catalog pipeline
// moves Idle, FetchingProducts, FetchingPromotions, Connecting,
// Ingesting, Done or Failed; the price-change pipeline moves Idle,
// LoadingSnapshots, Diffing, PersistingChanges, Done or Failed.
type PipelineState string

const (
	StateIdle               PipelineState = "Idle"
	StateFetchingProducts   PipelineState = "FetchingProducts"
	StateFetchingPromotions PipelineState = "FetchingPromotions"
	StateConnecting         PipelineState = "Connecting"
	StateIngesting          PipelineState = "Ingesting"
	StateLoadingSnapshots   PipelineState = "LoadingSnapshots"
	StateDiffing            PipelineState = "Diffing"
	StatePersistingChanges  PipelineState = "PersistingChanges"
	StateDone               PipelineState = "Done"
	StateFailed             PipelineState = "Failed"
)

// Harvester collects the upstream catalog; *colruyt.Collector is the
// production implementation.
type Harvester interface {
	CollectProducts(ctx context.Context) (*colruyt.ProductCollection, error)
	CollectPromotions(ctx context.Context) (*colruyt.PromotionCollection, error)
}

type IngestRunner interface {
	Ingest(ctx context.Context, products []models.Product, promotions []models.Promotion) (IngestSummary, error)
}

type ChangeRunner interface {
	Run(ctx context.Context, transition func(PipelineState)) ([]models.PriceChange, error)
}

// ChangePublisher pushes persisted price changes to downstream
// consumers. Publishing is best effort; failures are logged, never
// fatal to the run.
type ChangePublisher interface {
	PublishChanges(ctx context.Context, changes []models.PriceChange) error
}

// CacheInvalidator clears cached read responses once a run has
// committed. Best effort, like publishing.
type CacheInvalidator interface {
	InvalidateLists(ctx context.Context) error
}

// Status reports where each pipeline currently stands.
type Status struct {
	Catalog     PipelineState `json:"catalog"`
	PriceChange PipelineState `json:"priceChange"`
}

// Orchestrator drives the two scheduled pipelines. The database
// connection opens lazily per run so a harvest can start even while
// the database is still coming up.
type Orchestrator struct {
	harvester     Harvester
	connector     dbconnect.DbConnector
	buildIngestor func(db *sql.DB) IngestRunner
	buildSyncer   func(db *sql.DB) ChangeRunner
	publisher     ChangePublisher
	cache         CacheInvalidator

	run metrics.RunMetrics

	mu           sync.Mutex
	catalogState PipelineState
	changeState  PipelineState
}

func NewOrchestrator(
	harvester Harvester,
	connector dbconnect.DbConnector,
	buildIngestor func(db *sql.DB) IngestRunner,
	buildSyncer func(db *sql.DB) ChangeRunner,
	publisher ChangePublisher,
	cache CacheInvalidator,
) *Orchestrator {
	return &Orchestrator{
		harvester:     harvester,
		connector:     connector,
		buildIngestor: buildIngestor,
		buildSyncer:   buildSyncer,
		publisher:     publisher,
		cache:         cache,
		catalogState:  StateIdle,
		changeState:   StateIdle,
	}
}

// Status returns the current phase of both pipelines.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{Catalog: o.catalogState, PriceChange: o.changeState}
}

// LastRun exposes the counters of the most recent runs.
func (o *Orchestrator) LastRun() *metrics.RunMetrics {
	return &o.run
}

// RunCatalogSync executes one full harvest: collect products, collect
// promotions, then hand both to the ingestion transaction. Errors are
// logged and returned; the caller decides whether to reschedule.
func (o *Orchestrator) RunCatalogSync(ctx context.Context) error {
	start := time.Now()
	runLog := logger.With().Str("runId", uuid.NewString()).Str("pipeline", "catalog").Logger()

	// Each invocation walks the machine from Idle; the terminal state
	// of the previous run does not carry over.
	o.setCatalogState(StateIdle)

	o.setCatalogState(StateFetchingProducts)
	products, err := o.harvester.CollectProducts(ctx)
	if err != nil {
		return o.failCatalog(runLog, start, "collecting products", err)
	}

	o.setCatalogState(StateFetchingPromotions)
	promotions, err := o.harvester.CollectPromotions(ctx)
	if err != nil {
		return o.failCatalog(runLog, start, "collecting promotions", err)
	}

	o.run.ProductsCollected.Store(int32(len(products.Products)))
	o.run.PromotionsCollected.Store(int32(len(promotions.Promotions)))
	o.run.PagesFailed.Store(int32(len(products.FailedPages) + len(promotions.FailedPages)))

	o.setCatalogState(StateConnecting)
	db, err := o.connector.Connect()
	if err != nil {
		return o.failCatalog(runLog, start, "connecting to database", err)
	}

	o.setCatalogState(StateIngesting)
	summary, err := o.buildIngestor(db).Ingest(ctx, products.Products, promotions.Promotions)
	if err != nil {
		return o.failCatalog(runLog, start, "ingesting catalog", err)
	}
	metrics.RecordIngestedRecords("products", summary.ProductsUpserted)
	metrics.RecordIngestedRecords("prices", summary.PricesInserted)
	metrics.RecordIngestedRecords("promotions", summary.PromotionsUpserted)

	o.invalidateCache(ctx, runLog)

	o.setCatalogState(StateDone)
	metrics.RecordPipelineRun("catalog", "success", time.Since(start))
	runLog.Info().
		Int("productsFound", products.TotalFound).
		Int("promotionsFound", promotions.TotalFound).
		Ints("failedProductPages", products.FailedPages).
		Ints("failedPromotionPages", promotions.FailedPages).
		Int("linksResolved", summary.LinksResolved).
		Dur("took", time.Since(start)).
		Msg("catalog sync finished")
	return nil
}

// RunPriceChangeSync executes one diff cycle and publishes the
// persisted changes when a publisher is configured.
func (o *Orchestrator) RunPriceChangeSync(ctx context.Context) error {
	start := time.Now()
	runLog := logger.With().Str("runId", uuid.NewString()).Str("pipeline", "price_change").Logger()

	o.setChangeState(StateIdle)

	db, err := o.connector.Connect()
	if err != nil {
		return o.failChange(runLog, start, "connecting to database", err)
	}

	changes, err := o.buildSyncer(db).Run(ctx, o.setChangeState)
	if err != nil {
		return o.failChange(runLog, start, "diffing price snapshots", err)
	}
	o.run.ChangesPersisted.Store(int32(len(changes)))

	if o.publisher != nil && len(changes) > 0 {
		if err := o.publisher.PublishChanges(ctx, changes); err != nil {
			runLog.Error().Err(err).Int("changes", len(changes)).Msg("publishing price changes failed")
		}
	}

	o.invalidateCache(ctx, runLog)

	o.setChangeState(StateDone)
	metrics.RecordPipelineRun("price_change", "success", time.Since(start))
	runLog.Info().
		Int("changes", len(changes)).
		Dur("took", time.Since(start)).
		Msg("price change sync finished")
	return nil
}

func (o *Orchestrator) invalidateCache(ctx context.Context, runLog zerolog.Logger) {
	if o.cache == nil {
		return
	}
	if err := o.cache.InvalidateLists(ctx); err != nil {
		runLog.Warn().Err(err).Msg("invalidating cached lists failed")
	}
}

func (o *Orchestrator) failCatalog(runLog zerolog.Logger, start time.Time, step string, err error) error {
	o.setCatalogState(StateFailed)
	metrics.RecordPipelineRun("catalog", "failure", time.Since(start))
	runLog.Error().Err(err).Str("step", step).Msg("catalog sync failed")
	return err
}

func (o *Orchestrator) failChange(runLog zerolog.Logger, start time.Time, step string, err error) error {
	o.setChangeState(StateFailed)
	metrics.RecordPipelineRun("price_change", "failure", time.Since(start))
	runLog.Error().Err(err).Str("step", step).Msg("price change sync failed")
	return err
}

func (o *Orchestrator) setCatalogState(state PipelineState) {
	o.mu.Lock()
	o.catalogState = state
	o.mu.Unlock()
}

func (o *Orchestrator) setChangeState(state PipelineState) {
	o.mu.Lock()
	o.changeState = state
	o.mu.Unlock()
}
