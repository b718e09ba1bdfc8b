package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studylens-backend/internal/logger"
	"studylens-backend/internal/models"
	"studylens-backend/internal/services"
	"studylens-backend/internal/session"
)

const (
	queueName    = "queue:session-jobs"
	popTimeout   = 5 * time.Second
	lockTTL      = 10 * time.Minute
	localBacklog = 256

	MsgJobUpdate = "job_update"
)

// Pool runs asynchronous session work. With Redis, jobs go through a shared
// list so any instance can pick them up; otherwise they stay in-process.
type Pool struct {
	redis       *redis.Client // optional
	store       *session.Store
	publisher   session.Publisher // optional
	local       chan models.Job
	workerCount int
	jobTimeout  time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	log         *logger.Logger
}

func NewPool(
	redisClient *redis.Client,
	store *session.Store,
	publisher session.Publisher,
	workerCount int,
	jobTimeout time.Duration,
	log *logger.Logger,
) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		redis:       redisClient,
		store:       store,
		publisher:   publisher,
		local:       make(chan models.Job, localBacklog),
		workerCount: workerCount,
		jobTimeout:  jobTimeout,
		ctx:         ctx,
		cancel:      cancel,
		log:         log.With("component", "worker_pool"),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Info("worker pool started", "workers", p.workerCount, "redis", p.redis != nil)
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
}

// Submit validates and enqueues job, filling in its id and timestamp.
func (p *Pool) Submit(ctx context.Context, job models.Job) (models.Job, error) {
	if err := validateJob(job); err != nil {
		return job, err
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	if p.redis != nil {
		data, err := json.Marshal(job)
		if err != nil {
			return job, err
		}
		if err := p.redis.RPush(ctx, queueName, data).Err(); err != nil {
			return job, fmt.Errorf("enqueue job: %w", err)
		}
	} else {
		select {
		case p.local <- job:
		default:
			return job, &services.RateLimitError{Message: "Too many background jobs queued. Please try again later."}
		}
	}

	p.log.Debug("job queued", "job_id", job.ID, "type", job.Type, "session_id", job.SessionID)
	return job, nil
}

func validateJob(job models.Job) error {
	if job.SessionID == uuid.Nil {
		return &services.ValidationError{Message: "session_id is required", Fields: map[string]string{"session_id": "required"}}
	}
	switch job.Type {
	case models.JobGenerateAll, models.JobGenerateRoadmap, models.JobFetchTranscript:
		return nil
	case models.JobGenerateFeature:
		if !job.Feature.IsTranscriptFeature() {
			return &services.ValidationError{
				Message: fmt.Sprintf("unknown feature %q", job.Feature),
				Fields:  map[string]string{"feature": "invalid"},
			}
		}
		return nil
	default:
		return &services.ValidationError{Message: fmt.Sprintf("unknown job type: %s", job.Type)}
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		job, ok := p.next()
		if !ok {
			p.log.Debug("worker shutting down", "worker", id)
			return
		}
		p.run(id, job)
	}
}

// next blocks until a job is available or the pool stops.
func (p *Pool) next() (models.Job, bool) {
	for {
		if p.ctx.Err() != nil {
			return models.Job{}, false
		}

		if p.redis == nil {
			select {
			case <-p.ctx.Done():
				return models.Job{}, false
			case job := <-p.local:
				return job, true
			}
		}

		result, err := p.redis.BLPop(p.ctx, popTimeout, queueName).Result()
		if err != nil || len(result) < 2 {
			continue // Timeout or error, retry
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			p.log.Error("failed to parse job", "error", err)
			continue
		}

		// Try to acquire lock
		lockKey := "job_lock:" + job.ID.String()
		locked, err := p.redis.SetNX(p.ctx, lockKey, "1", lockTTL).Result()
		if err != nil || !locked {
			continue // Another worker has this job
		}
		return job, true
	}
}

func (p *Pool) run(workerID int, job models.Job) {
	// In-flight jobs finish even when the pool is stopping.
	base := context.WithoutCancel(p.ctx)
	ctx := base
	if timeout := p.timeoutFor(job); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(base, timeout)
		defer cancel()
	}

	p.log.Info("processing job", "worker", workerID, "job_id", job.ID, "type", job.Type, "session_id", job.SessionID)

	err := p.Process(ctx, job)
	if err != nil {
		p.handleFailure(base, job, err)
	} else {
		p.handleSuccess(base, job)
	}

	if p.redis != nil {
		p.redis.Del(base, "job_lock:"+job.ID.String())
	}
}

// timeoutFor gives generate-all one budget per feature; its calls share the
// same generation slots.
func (p *Pool) timeoutFor(job models.Job) time.Duration {
	if job.Type == models.JobGenerateAll {
		return p.jobTimeout * time.Duration(len(models.TranscriptFeatures))
	}
	return p.jobTimeout
}

// Process executes job synchronously against its session.
func (p *Pool) Process(ctx context.Context, job models.Job) error {
	sess, err := p.store.Get(ctx, job.SessionID)
	if err != nil {
		return err
	}

	switch job.Type {
	case models.JobGenerateAll:
		return sess.GenerateAll(ctx)
	case models.JobGenerateFeature:
		return sess.GenerateFeature(ctx, job.Feature, job.Text)
	case models.JobGenerateRoadmap:
		return sess.GenerateRoadmap(ctx, job.Topic)
	case models.JobFetchTranscript:
		return sess.FetchTranscript(ctx)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Pool) handleSuccess(ctx context.Context, job models.Job) {
	p.log.Info("job completed", "job_id", job.ID, "type", job.Type)
	p.publish(ctx, job, "completed", "")
}

// handleFailure reports the failure. Jobs are not retried: feature failures
// are already recorded on the session and a client retries by resubmitting.
func (p *Pool) handleFailure(ctx context.Context, job models.Job, err error) {
	if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrFeatureBusy) {
		p.log.Warn("job skipped", "job_id", job.ID, "type", job.Type, "error", err)
	} else {
		p.log.Error("job failed", "job_id", job.ID, "type", job.Type, "error", err)
	}
	p.publish(ctx, job, "failed", err.Error())
}

func (p *Pool) publish(ctx context.Context, job models.Job, status, errMsg string) {
	if p.publisher == nil {
		return
	}
	p.publisher.PublishSession(ctx, job.SessionID, models.WSMessage{
		Type: MsgJobUpdate,
		Payload: models.JobEvent{
			JobID:     job.ID,
			SessionID: job.SessionID,
			Type:      job.Type,
			Status:    status,
			Error:     errMsg,
		},
	})
}
