// Package jobqueue runs background jobs from a Redis list with retries.
package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tcdynamics/workflowai/internal/pkg/metrics"
)

const (
	// Redis key prefixes
	JobKeyPrefix     = "job:"
	JobQueueKey      = "job_queue"
	JobProcessingKey = "job_processing"
	JobStatsKey      = "job_stats"
	// JobRetryKey is a sorted set of job ids scored by due time in unix ms.
	JobRetryKey = "job_retry"

	// Job settings
	DefaultMaxRetries = 3
	JobTTL            = 24 * time.Hour // Jobs expire after 24 hours

	stuckMaxAge        = 10 * time.Minute
	stuckSweepInterval = time.Minute
	retryPollInterval  = time.Second
	retryBatchSize     = 100
)

// promoteDueScript moves due retries back to the pending list atomically so
// concurrent pollers never push the same id twice.
var promoteDueScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('LPUSH', KEYS[2], id)
end
return #ids
`)

// Handler executes one job. A returned error schedules a retry.
type Handler func(ctx context.Context, job *Job) error

// Queue manages background jobs using Redis
type Queue struct {
	client   *redis.Client
	workers  int
	handlers map[JobType]Handler
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	// RetryDelay returns the wait before attempt n+1.
	RetryDelay func(retry int) time.Duration
}

// NewQueue creates a new job queue
func NewQueue(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = 2 // Default number of workers
	}
	return &Queue{
		client:   client,
		workers:  workers,
		handlers: make(map[JobType]Handler),
		stopCh:   make(chan struct{}),
		RetryDelay: func(retry int) time.Duration {
			return time.Minute * time.Duration(retry)
		},
	}
}

// Register binds a handler to a job type. Call before Start.
func (q *Queue) Register(jobType JobType, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = h
}

// Start starts the job queue workers
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}
	q.running = true
	log.Info().Int("workers", q.workers).Msg("job queue starting")

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	// Recovers jobs stuck in processing due to crashes
	q.wg.Add(1)
	go q.stuckSweeper(stuckMaxAge, stuckSweepInterval)

	q.wg.Add(1)
	go q.retryPoller(retryPollInterval)
}

// Stop stops the job queue workers and waits for in-flight jobs.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	close(q.stopCh)
	q.running = false
	q.mu.Unlock()

	log.Info().Msg("job queue stopping")
	q.wg.Wait()
	log.Info().Msg("job queue stopped")
}

// Enqueue adds a new job to the queue
func (q *Queue) Enqueue(ctx context.Context, jobType JobType, payload any) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	now := time.Now()
	job := &Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    raw,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: DefaultMaxRetries,
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, jobData, JobTTL)
	pipe.LPush(ctx, JobQueueKey, job.ID)
	pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusPending), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Debug().Str("job_id", job.ID).Str("type", string(job.Type)).Msg("job enqueued")
	return job, nil
}

// RunOnce waits up to timeout for one job and processes it. It reports
// whether a job was taken.
func (q *Queue) RunOnce(ctx context.Context, timeout time.Duration) (bool, error) {
	job, err := q.dequeueJob(ctx, timeout)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	q.processJob(ctx, job)
	return true, nil
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			return
		default:
		}
		if _, err := q.RunOnce(ctx, time.Second); err != nil {
			log.Error().Err(err).Int("worker", id).Msg("job dequeue failed")
			time.Sleep(time.Second)
		}
	}
}

// dequeueJob moves the next job id to the processing list atomically.
func (q *Queue) dequeueJob(ctx context.Context, timeout time.Duration) (*Job, error) {
	jobID, err := q.client.BRPopLPush(ctx, JobQueueKey, JobProcessingKey, timeout).Result()
	if err != nil {
		return nil, err
	}

	jobData, err := q.client.Get(ctx, JobKeyPrefix+jobID).Result()
	if err != nil {
		q.removeFromProcessing(ctx, jobID)
		return nil, fmt.Errorf("job data not found for ID %s: %w", jobID, err)
	}

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		q.removeFromProcessing(ctx, jobID)
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	return &job, nil
}

func (q *Queue) processJob(ctx context.Context, job *Job) {
	logger := log.With().Str("job_id", job.ID).Str("type", string(job.Type)).Logger()
	job.MarkAsProcessing()
	q.updateJob(ctx, job)

	q.mu.Lock()
	handler, ok := q.handlers[job.Type]
	q.mu.Unlock()

	var err error
	if !ok {
		err = fmt.Errorf("unknown job type: %s", job.Type)
	} else {
		err = handler(ctx, job)
	}

	if err == nil {
		job.MarkAsCompleted()
		q.updateJobStats(ctx, JobStatusCompleted, 1)
		metrics.JobsTotal.WithLabelValues(string(job.Type), string(JobStatusCompleted)).Inc()
		q.removeCompletedJob(ctx, job.ID)
		q.removeFromProcessing(ctx, job.ID)
		return
	}

	job.MarkAsFailed(err.Error())
	if !ok || !job.IsRetryable() {
		logger.Error().Err(err).Int("attempts", job.RetryCount).Msg("job permanently failed")
		q.updateJob(ctx, job)
		q.updateJobStats(ctx, JobStatusFailed, 1)
		metrics.JobsTotal.WithLabelValues(string(job.Type), string(JobStatusFailed)).Inc()
		q.removeFromProcessing(ctx, job.ID)
		return
	}

	logger.Warn().Err(err).Int("attempt", job.RetryCount).Int("max_retries", job.MaxRetries).Msg("job failed, retrying")
	job.MarkAsRetrying()
	q.updateJob(ctx, job)
	metrics.JobsTotal.WithLabelValues(string(job.Type), string(JobStatusRetrying)).Inc()
	if err := q.scheduleRetry(ctx, job.ID, time.Now().Add(q.RetryDelay(job.RetryCount))); err != nil {
		// still in processing, RecoverStuck picks it up
		logger.Error().Err(err).Msg("failed to schedule retry")
	}
}

// scheduleRetry parks the job in the retry set and releases it from the
// processing list in one transaction.
func (q *Queue) scheduleRetry(ctx context.Context, jobID string, due time.Time) error {
	pipe := q.client.TxPipeline()
	pipe.ZAdd(ctx, JobRetryKey, redis.Z{Score: float64(due.UnixMilli()), Member: jobID})
	pipe.LRem(ctx, JobProcessingKey, 1, jobID)
	_, err := pipe.Exec(ctx)
	return err
}

// PromoteDue moves retries due at or before now back to the pending list and
// returns how many were moved.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	return promoteDueScript.Run(ctx, q.client,
		[]string{JobRetryKey, JobQueueKey},
		now.UnixMilli(), retryBatchSize,
	).Int()
}

func (q *Queue) retryPoller(interval time.Duration) {
	defer q.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			if _, err := q.PromoteDue(context.Background(), time.Now()); err != nil {
				log.Error().Err(err).Msg("job retry promotion failed")
			}
		}
	}
}

// stuckSweeper periodically requeues jobs stuck in processing for longer than maxAge
func (q *Queue) stuckSweeper(maxAge, interval time.Duration) {
	defer q.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			if n, err := q.RecoverStuck(context.Background(), maxAge); err != nil {
				log.Error().Err(err).Msg("job sweeper failed")
			} else if n > 0 {
				log.Warn().Int("recovered", n).Msg("requeued stuck jobs")
			}
		}
	}
}

// RecoverStuck moves jobs that have been processing longer than maxAge back
// to the pending list.
func (q *Queue) RecoverStuck(ctx context.Context, maxAge time.Duration) (int, error) {
	ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	now := time.Now()
	recovered := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil {
			// Job data missing or unreadable
			q.removeFromProcessing(ctx, id)
			continue
		}
		if job.Status != JobStatusProcessing && job.Status != JobStatusRetrying {
			q.removeFromProcessing(ctx, id)
			continue
		}
		started := job.UpdatedAt
		if job.Status == JobStatusProcessing && job.ProcessedAt != nil && !job.ProcessedAt.IsZero() {
			started = *job.ProcessedAt
		}
		if now.Sub(started) <= maxAge {
			continue
		}
		job.Status = JobStatusPending
		job.ErrorMsg = "recovered by sweeper"
		job.UpdatedAt = now
		q.updateJob(ctx, job)
		q.removeFromProcessing(ctx, id)
		if err := q.client.RPush(ctx, JobQueueKey, id).Err(); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

func (q *Queue) updateJob(ctx context.Context, job *Job) {
	jobData, err := json.Marshal(job)
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to marshal job")
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, jobData, JobTTL).Err(); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to update job")
	}
}

func (q *Queue) removeFromProcessing(ctx context.Context, jobID string) {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, jobID).Err(); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("failed to remove job from processing list")
	}
}

func (q *Queue) removeCompletedJob(ctx context.Context, jobID string) {
	if err := q.client.Del(ctx, JobKeyPrefix+jobID).Err(); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("failed to remove completed job")
	}
}

func (q *Queue) updateJobStats(ctx context.Context, status JobStatus, delta int64) {
	if err := q.client.HIncrBy(ctx, JobStatsKey, string(status), delta).Err(); err != nil {
		log.Error().Err(err).Msg("failed to update job stats")
	}
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	jobData, err := q.client.Get(ctx, JobKeyPrefix+jobID).Result()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// GetJobStats returns statistics about job statuses
func (q *Queue) GetJobStats(ctx context.Context) (map[JobStatus]int64, error) {
	stats, err := q.client.HGetAll(ctx, JobStatsKey).Result()
	if err != nil {
		return nil, err
	}
	result := make(map[JobStatus]int64)
	for status, count := range stats {
		if countInt, err := json.Number(count).Int64(); err == nil {
			result[JobStatus(status)] = countInt
		}
	}
	return result, nil
}

// GetQueueSize returns the number of pending jobs
func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobQueueKey).Result()
}

// GetRetrySize returns the number of jobs waiting for a retry
func (q *Queue) GetRetrySize(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, JobRetryKey).Result()
}

// GetProcessingSize returns the number of jobs being processed
func (q *Queue) GetProcessingSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobProcessingKey).Result()
}
