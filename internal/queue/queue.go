// Package queue wraps the synchronous ledger core for fire-and-forget sale
// callers. The core exposes no async variant; this layer owns enqueueing,
// retry and backoff.
package queue

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/chargebox/backend/internal/metrics"
	"github.com/chargebox/backend/internal/models"
)

// SaleQueueKey is the Redis list holding pending sale jobs.
const SaleQueueKey = "sale_charge_queue"

// SaleJob is one queued SellCharge invocation.
type SaleJob struct {
	JobID       string          `json:"job_id"`
	SellerID    int64           `json:"seller_id"`
	PhoneNumber string          `json:"phone_number"`
	Amount      int64           `json:"amount"`
	Reference   string          `json:"reference,omitempty"`
	Metadata    models.Metadata `json:"metadata,omitempty"`
	Attempt     int             `json:"attempt"`
}

// Producer pushes sale jobs onto the Redis queue.
type Producer struct {
	rdb *redis.Client
}

func NewProducer(rdb *redis.Client) *Producer {
	return &Producer{rdb: rdb}
}

// Enqueue pushes a job and returns its ID. Jobs without a caller-supplied
// reference get one derived from the job ID, so a retried delivery
// short-circuits on the ledger's reference dedup instead of double-debiting.
func (p *Producer) Enqueue(ctx context.Context, job SaleJob) (string, error) {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.Reference == "" {
		job.Reference = "sale:job:" + job.JobID
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", err
	}
	if err := p.rdb.RPush(ctx, SaleQueueKey, data).Err(); err != nil {
		return "", err
	}
	metrics.QueueDepth.Inc()
	return job.JobID, nil
}
