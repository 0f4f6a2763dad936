package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/chargebox/backend/internal/ledger"
	"github.com/chargebox/backend/internal/metrics"
	"github.com/chargebox/backend/internal/models"
)

// Charger is the synchronous core operation the worker invokes.
type Charger interface {
	SellCharge(ctx context.Context, sellerID int64, phoneNumber string, amount int64, reference string, metadata models.Metadata) (int64, error)
}

// Worker consumes sale jobs. Domain rejections (invalid amount,
// insufficient balance, missing seller, replayed top-up) are terminal;
// anything else is treated as transient and requeued with a delay, up to
// maxAttempts deliveries per job.
type Worker struct {
	rdb         *redis.Client
	charger     Charger
	concurrency int
	maxAttempts int
	retryDelay  time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewWorker(rdb *redis.Client, charger Charger, concurrency int) *Worker {
	return &Worker{
		rdb:         rdb,
		charger:     charger,
		concurrency: concurrency,
		maxAttempts: 3,
		retryDelay:  5 * time.Second,
	}
}

// Start launches the consumer goroutines.
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.consume(ctx)
		}()
	}
}

// Stop halts consumption and waits for in-flight jobs to finish. A job that
// already began its unit of work runs to commit or rollback.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Worker) consume(ctx context.Context) {
	for {
		res, err := w.rdb.BLPop(ctx, time.Second, SaleQueueKey).Result()
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			slog.Error("sale queue pop failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		// BLPop returns [key, value]
		if len(res) == 2 {
			metrics.QueueDepth.Dec()
			w.handle(ctx, []byte(res[1]))
		}
	}
}

// handle processes one delivery and returns the outcome label recorded in
// metrics: applied, rejected, retried or dropped.
func (w *Worker) handle(ctx context.Context, payload []byte) string {
	outcome := w.dispatch(ctx, payload)
	metrics.QueueJobsTotal.WithLabelValues(outcome).Inc()
	return outcome
}

func (w *Worker) dispatch(ctx context.Context, payload []byte) string {
	var job SaleJob
	if err := json.Unmarshal(payload, &job); err != nil {
		slog.Error("sale job payload malformed", "error", err)
		return "dropped"
	}

	balance, err := w.charger.SellCharge(ctx, job.SellerID, job.PhoneNumber, job.Amount, job.Reference, job.Metadata)
	if err == nil {
		slog.Info("sale applied", "job_id", job.JobID, "seller_id", job.SellerID, "new_balance", balance)
		return "applied"
	}

	if errors.Is(err, ledger.ErrInvalidAmount) ||
		errors.Is(err, ledger.ErrInsufficientBalance) ||
		errors.Is(err, ledger.ErrSellerNotFound) {
		slog.Warn("sale rejected", "job_id", job.JobID, "seller_id", job.SellerID, "error", err)
		return "rejected"
	}

	job.Attempt++
	if job.Attempt >= w.maxAttempts {
		slog.Error("sale job dropped after retries", "job_id", job.JobID, "attempts", job.Attempt, "error", err)
		return "dropped"
	}

	slog.Warn("sale failed, requeueing", "job_id", job.JobID, "attempt", job.Attempt, "error", err)
	time.Sleep(w.retryDelay)
	data, _ := json.Marshal(job)
	if err := w.rdb.RPush(ctx, SaleQueueKey, data).Err(); err != nil {
		slog.Error("sale job requeue failed", "job_id", job.JobID, "error", err)
		return "dropped"
	}
	metrics.QueueDepth.Inc()
	return "retried"
}
