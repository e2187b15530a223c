package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-deckgen/internal/jobqueue"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is prepended to every key written by a Queue
const DefaultPrefix = "deckgen"

// Scripts move job ids between the state lists in one step, so an id is
// always in exactly one of them even if the caller stops halfway.
var (
	// KEYS: waiting, active
	claimScript = redis.NewScript(`
local id = redis.call('LPOP', KEYS[1])
if not id then
	return false
end
redis.call('SADD', KEYS[2], id)
return id
`)

	// KEYS: delayed, waiting; ARGV: now in unix millis
	promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(due) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('RPUSH', KEYS[2], id)
end
return due
`)

	// KEYS: active, waiting; ARGV: job id
	requeueScript = redis.NewScript(`
if redis.call('SREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('RPUSH', KEYS[2], ARGV[1])
return 1
`)
)

// Queue implements jobqueue.Queue on Redis.
type Queue struct {
	client *redis.Client
	name   string
	logger *slog.Logger
	now    func() time.Time

	jobsKey      string
	seqKey       string
	idsKey       string
	waitingKey   string
	delayedKey   string
	activeKey    string
	completedKey string
	failedKey    string
}

var _ jobqueue.Queue = (*Queue)(nil)

// NewQueue creates a queue named name whose keys start with prefix.
func NewQueue(client *redis.Client, prefix, name string, logger *slog.Logger) *Queue {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	base := prefix + ":" + name + ":"
	return &Queue{
		client:       client,
		name:         name,
		logger:       logger.With("component", "redis_job_queue", "queue", name),
		now:          func() time.Time { return time.Now().UTC() },
		jobsKey:      base + "jobs",
		seqKey:       base + "seq",
		idsKey:       base + "ids",
		waitingKey:   base + "waiting",
		delayedKey:   base + "delayed",
		activeKey:    base + "active",
		completedKey: base + "completed",
		failedKey:    base + "failed",
	}
}

// Name implements jobqueue.Queue.
func (q *Queue) Name() string {
	return q.name
}

// AddJob implements jobqueue.Queue.
func (q *Queue) AddJob(ctx context.Context, name string, payload any, opts jobqueue.JobOptions) (*jobqueue.Job, error) {
	jobs, err := q.AddJobsBulk(ctx, []jobqueue.NewJob{{Name: name, Payload: payload, Options: opts}})
	if err != nil {
		return nil, err
	}
	return jobs[0], nil
}

// AddJobsBulk implements jobqueue.Queue. The jobs are written in one MULTI/EXEC block.
func (q *Queue) AddJobsBulk(ctx context.Context, specs []jobqueue.NewJob) ([]*jobqueue.Job, error) {
	jobs, err := jobqueue.BuildJobs(q.name, specs, q.now())
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return jobs, nil
	}

	encoded := make([]string, len(jobs))
	for i, job := range jobs {
		data, err := json.Marshal(job)
		if err != nil {
			return nil, fmt.Errorf("failed to encode job: %w", err)
		}
		encoded[i] = string(data)
	}

	// the sequence keeps listing order stable for jobs created in the same instant
	end, err := q.client.IncrBy(ctx, q.seqKey, int64(len(jobs))).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to reserve job sequence: %w", err)
	}
	first := end - int64(len(jobs))

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, job := range jobs {
			id := job.ID.String()
			pipe.HSet(ctx, q.jobsKey, id, encoded[i])
			pipe.ZAdd(ctx, q.idsKey, redis.Z{Score: float64(first + int64(i)), Member: id})
			pipe.RPush(ctx, q.waitingKey, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add jobs: %w", err)
	}

	q.logger.Debug("jobs added", "count", len(jobs))
	return jobs, nil
}

// GetJobs implements jobqueue.Queue.
func (q *Queue) GetJobs(ctx context.Context, statuses ...jobqueue.Status) ([]*jobqueue.Job, error) {
	if err := q.promoteDelayed(ctx); err != nil {
		return nil, err
	}

	ids, err := q.client.ZRange(ctx, q.idsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list job ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := q.client.HMGet(ctx, q.jobsKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load jobs: %w", err)
	}

	filter := make(map[jobqueue.Status]bool, len(statuses))
	for _, status := range statuses {
		filter[status] = true
	}

	jobs := make([]*jobqueue.Job, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		job, err := decodeJob(raw)
		if err != nil {
			return nil, err
		}
		if len(filter) > 0 && !filter[job.Status] {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// GetJobCounts implements jobqueue.Queue.
func (q *Queue) GetJobCounts(ctx context.Context) (jobqueue.Counts, error) {
	if err := q.promoteDelayed(ctx); err != nil {
		return nil, err
	}

	var waiting, delayed, active, completed, failed *redis.IntCmd
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		waiting = pipe.LLen(ctx, q.waitingKey)
		delayed = pipe.ZCard(ctx, q.delayedKey)
		active = pipe.SCard(ctx, q.activeKey)
		completed = pipe.SCard(ctx, q.completedKey)
		failed = pipe.SCard(ctx, q.failedKey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	counts := jobqueue.NewCounts()
	counts[jobqueue.StatusWaiting] = int(waiting.Val())
	counts[jobqueue.StatusDelayed] = int(delayed.Val())
	counts[jobqueue.StatusActive] = int(active.Val())
	counts[jobqueue.StatusCompleted] = int(completed.Val())
	counts[jobqueue.StatusFailed] = int(failed.Val())
	return counts, nil
}

// Claim implements jobqueue.Queue. The id moves to the active set before the
// job record is touched, and the record update ignores cancellation of ctx.
func (q *Queue) Claim(ctx context.Context) (*jobqueue.Job, error) {
	if err := q.promoteDelayed(ctx); err != nil {
		return nil, err
	}

	id, err := claimScript.Run(ctx, q.client, []string{q.waitingKey, q.activeKey}).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	ctx = context.WithoutCancel(ctx)
	job, err := q.load(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Status = jobqueue.StatusActive
	job.UpdatedAt = q.now()

	if err := q.save(ctx, job, nil); err != nil {
		return nil, err
	}
	return job, nil
}

// Complete implements jobqueue.Queue.
func (q *Queue) Complete(ctx context.Context, id uuid.UUID) error {
	job, err := q.load(ctx, id.String())
	if err != nil {
		return err
	}
	job.Attempts++
	job.Status = jobqueue.StatusCompleted
	job.LastError = ""
	job.UpdatedAt = q.now()

	return q.save(ctx, job, func(pipe redis.Pipeliner) {
		pipe.SRem(ctx, q.activeKey, job.ID.String())
		pipe.SAdd(ctx, q.completedKey, job.ID.String())
	})
}

// Fail implements jobqueue.Queue.
func (q *Queue) Fail(ctx context.Context, id uuid.UUID, reason error) error {
	job, err := q.load(ctx, id.String())
	if err != nil {
		return err
	}

	now := q.now()
	job.Attempts++
	job.LastError = jobqueue.FailureMessage(reason)
	job.Status, job.RunAt = jobqueue.NextState(job, now)
	job.UpdatedAt = now

	member := job.ID.String()
	err = q.save(ctx, job, func(pipe redis.Pipeliner) {
		pipe.SRem(ctx, q.activeKey, member)
		if job.Status == jobqueue.StatusFailed {
			pipe.SAdd(ctx, q.failedKey, member)
			return
		}
		pipe.ZAdd(ctx, q.delayedKey, redis.Z{Score: float64(job.RunAt.UnixMilli()), Member: member})
	})
	if err != nil {
		return err
	}

	q.logger.Debug("job attempt failed",
		"job_id", id,
		"attempts", job.Attempts,
		"max_attempts", job.MaxAttempts,
		"status", job.Status)
	return nil
}

// RequeueActive implements jobqueue.Queue.
func (q *Queue) RequeueActive(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := q.client.SMembers(ctx, q.activeKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list active jobs: %w", err)
	}

	now := q.now()
	cutoff := now.Add(-olderThan)
	requeued := 0
	for _, id := range ids {
		job, err := q.load(ctx, id)
		if err != nil {
			return requeued, err
		}
		if job.UpdatedAt.After(cutoff) {
			continue
		}

		// only the caller that removes the id from the active set requeues it
		moved, err := requeueScript.Run(ctx, q.client, []string{q.activeKey, q.waitingKey}, id).Int64()
		if err != nil {
			return requeued, fmt.Errorf("failed to requeue job: %w", err)
		}
		if moved == 0 {
			continue
		}
		requeued++

		job.Status = jobqueue.StatusWaiting
		job.RunAt = now
		job.UpdatedAt = now
		if err := q.save(context.WithoutCancel(ctx), job, nil); err != nil {
			return requeued, err
		}
	}
	return requeued, nil
}

// Close implements jobqueue.Queue. The client belongs to the caller and is left open.
func (q *Queue) Close() error {
	return nil
}

// promoteDelayed moves delayed jobs whose run time has passed to the waiting list
func (q *Queue) promoteDelayed(ctx context.Context) error {
	now := q.now()
	due, err := promoteScript.Run(ctx, q.client, []string{q.delayedKey, q.waitingKey},
		strconv.FormatInt(now.UnixMilli(), 10)).StringSlice()
	if err != nil {
		return fmt.Errorf("failed to promote delayed jobs: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	for _, id := range due {
		job, err := q.load(ctx, id)
		if err != nil {
			return err
		}
		job.Status = jobqueue.StatusWaiting
		job.UpdatedAt = now
		if err := q.save(ctx, job, nil); err != nil {
			return err
		}
	}
	return nil
}

// load reads a single job by id
func (q *Queue) load(ctx context.Context, id string) (*jobqueue.Job, error) {
	raw, err := q.client.HGet(ctx, q.jobsKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", jobqueue.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return decodeJob(raw)
}

// save writes the job and applies extra state changes in one transaction
func (q *Queue) save(ctx context.Context, job *jobqueue.Job, extra func(pipe redis.Pipeliner)) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobsKey, job.ID.String(), data)
		if extra != nil {
			extra(pipe)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

func decodeJob(raw string) (*jobqueue.Job, error) {
	var job jobqueue.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}
