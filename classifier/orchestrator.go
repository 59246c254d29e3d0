// Package classifier runs the two classification entry points: the polling
// batch orchestrator over PostgreSQL and the real-time consumer of
// speculative traces.
package classifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/toncenter/ton-indexer/ton-classify-go/events"
	"github.com/toncenter/ton-indexer/ton-classify-go/loader"
	"github.com/toncenter/ton-indexer/ton-classify-go/models"
	"github.com/toncenter/ton-indexer/ton-classify-go/repository"
)

// fetchBackoff bounds staleness of the polling loop under low load.
const fetchBackoff = 2 * time.Second

// maxTraceNodes is the pathological-size guard: traces above it are presumed
// too expensive to classify synchronously and are marked ok untouched.
const maxTraceNodes = 500

type Config struct {
	FetchSize int
	BatchSize int
	PoolSize  int
}

type Orchestrator struct {
	pool      *pgxpool.Pool
	cache     *repository.RedisRepository
	loader    *loader.Loader
	processor *events.Processor
	cfg       Config
	logger    *logrus.Logger
}

func NewOrchestrator(pool *pgxpool.Pool, redisClient *redis.Client, processor *events.Processor, cfg Config, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		pool:      pool,
		cache:     repository.NewRedisRepository(redisClient),
		loader:    loader.New(pool),
		processor: processor,
		cfg:       cfg,
		logger:    logger,
	}
}

type batchJob struct {
	ids  []models.HashType
	done *sync.WaitGroup
}

// Run polls for unclassified traces and fans batches out to a fixed pool of
// workers, blocking until each dispatched round completes before fetching
// the next page.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.WithField("workers", o.cfg.PoolSize).Info("Starting batch trace classification")

	jobs := make(chan batchJob)
	var workers sync.WaitGroup
	for i := 0; i < o.cfg.PoolSize; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			o.worker(ctx, jobs)
		}()
	}
	defer func() {
		close(jobs)
		workers.Wait()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := o.fetchUnclassified(ctx, o.cfg.FetchSize)
		if err != nil {
			o.logger.WithError(err).Error("Failed to fetch traces for classification")
			if err := sleep(ctx, fetchBackoff); err != nil {
				return err
			}
			continue
		}
		if len(batch) == 0 {
			if err := sleep(ctx, fetchBackoff); err != nil {
				return err
			}
			continue
		}

		ids := make([]models.HashType, 0, len(batch))
		skipped := make([]models.HashType, 0)
		for _, t := range batch {
			if isPathological(t.Nodes) {
				skipped = append(skipped, t.TraceId)
			} else {
				ids = append(ids, t.TraceId)
			}
		}
		// Pathological traces carry nothing worth classifying; commit their
		// state transition before dispatching the rest.
		if len(skipped) > 0 {
			if err := o.markClassified(ctx, skipped, models.ClassificationOk); err != nil {
				o.logger.WithError(err).Error("Failed to mark pathological traces")
				continue
			}
		}
		if len(ids) == 0 {
			if err := sleep(ctx, fetchBackoff); err != nil {
				return err
			}
			continue
		}

		var round sync.WaitGroup
		for _, chunk := range splitIntoBatches(ids, o.cfg.BatchSize) {
			round.Add(1)
			select {
			case jobs <- batchJob{ids: chunk, done: &round}:
			case <-ctx.Done():
				round.Done()
				return ctx.Err()
			}
		}
		round.Wait()
	}
}

func (o *Orchestrator) worker(ctx context.Context, jobs <-chan batchJob) {
	for job := range jobs {
		if err := o.processBatch(ctx, job.ids); err != nil {
			// The batch transaction never committed; its traces stay
			// unclassified and are retried on a later pass.
			o.logger.WithError(err).WithField("traces", len(job.ids)).Error("Batch classification failed")
		}
		job.done.Done()
	}
}

// processBatch loads the batch, warms the write-through cache for every
// participating account, classifies all traces concurrently and persists
// the outcome in one transaction.
func (o *Orchestrator) processBatch(ctx context.Context, ids []models.HashType) error {
	traces, err := o.loader.LoadTraces(ctx, ids)
	if err != nil {
		return fmt.Errorf("load traces: %w", err)
	}

	accounts := loader.CollectAccounts(traces)
	interfaces, err := repository.GatherInterfaces(ctx, o.pool, accounts)
	if err != nil {
		return fmt.Errorf("gather interfaces: %w", err)
	}
	if err := o.cache.PutInterfaces(ctx, interfaces); err != nil {
		return fmt.Errorf("populate interface cache: %w", err)
	}

	results := o.processor.ClassifyAll(ctx, o.cache, traces)

	okIds := make([]models.HashType, 0, len(results))
	failedIds := make([]models.HashType, 0)
	actions := make([]models.Action, 0)
	for _, res := range results {
		if res.Success {
			okIds = append(okIds, res.TraceId)
			actions = append(actions, res.Actions...)
		} else {
			failedIds = append(failedIds, res.TraceId)
		}
	}

	tx, err := o.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Delete-then-insert keeps reclassification idempotent: a crash between
	// classification and commit may reprocess the batch, and trace_id is the
	// only key guarding re-insertion.
	if len(okIds) > 0 {
		if _, err := tx.Exec(ctx, `delete from actions where trace_id = ANY($1)`, okIds); err != nil {
			return fmt.Errorf("clear previous actions: %w", err)
		}
	}

	batch := &pgx.Batch{}
	for _, a := range actions {
		batch.Queue(`
			insert into actions (action_id, trace_id, type, tx_hashes, start_lt, end_lt, source, destination, success)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			a.ActionId, a.TraceId, a.Type, a.TxHashes, a.StartLt, a.EndLt, a.Source, a.Destination, a.Success)
	}
	if len(okIds) > 0 {
		batch.Queue(`update traces set classification_state = $1 where trace_id = ANY($2)`,
			models.ClassificationOk, okIds)
	}
	if len(failedIds) > 0 {
		batch.Queue(`update traces set classification_state = $1 where trace_id = ANY($2)`,
			models.ClassificationFailed, failedIds)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("persist batch results: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	o.logger.WithFields(logrus.Fields{
		"ok":      len(okIds),
		"failed":  len(failedIds),
		"actions": len(actions),
	}).Info("Committed classification batch")
	return nil
}

type unclassifiedTrace struct {
	TraceId models.HashType
	Nodes   int64
}

func (o *Orchestrator) fetchUnclassified(ctx context.Context, limit int) ([]unclassifiedTrace, error) {
	rows, err := o.pool.Query(ctx, `
		select trace_id, nodes_
		from traces
		where state = $1 and classification_state = $2
		order by start_lt asc
		limit $3`,
		models.TraceStateComplete, models.ClassificationUnclassified, limit)
	if err != nil {
		return nil, fmt.Errorf("query unclassified traces: %w", err)
	}
	defer rows.Close()

	var batch []unclassifiedTrace
	for rows.Next() {
		var t unclassifiedTrace
		if err := rows.Scan(&t.TraceId, &t.Nodes); err != nil {
			return nil, fmt.Errorf("scan unclassified trace: %w", err)
		}
		batch = append(batch, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unclassified traces: %w", err)
	}
	return batch, nil
}

func (o *Orchestrator) markClassified(ctx context.Context, ids []models.HashType, state string) error {
	_, err := o.pool.Exec(ctx,
		`update traces set classification_state = $1 where trace_id = ANY($2)`, state, ids)
	return err
}

func isPathological(nodes int64) bool {
	return nodes == 0 || nodes > maxTraceNodes
}

func splitIntoBatches(ids []models.HashType, size int) [][]models.HashType {
	if size <= 0 {
		return [][]models.HashType{ids}
	}
	batches := make([][]models.HashType, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
