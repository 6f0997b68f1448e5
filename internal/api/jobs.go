package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medlit/paperbot/internal/process/processor"
	"github.com/medlit/paperbot/internal/worker"
)

type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job tracks one uploaded file through the background pipeline.
type Job struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Status     JobStatus `json:"status"`
	PaperID    string    `json:"paper_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	path string
}

// JobQueue is an in-memory FIFO of upload jobs. Jobs do not survive a
// restart; the content-hash gate makes re-uploading them safe.
type JobQueue struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	pending []string
}

func NewJobQueue() *JobQueue {
	return &JobQueue{jobs: make(map[string]*Job)}
}

func (q *JobQueue) Enqueue(filename, path string) Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	job := &Job{
		ID:        uuid.NewString(),
		Filename:  filename,
		Status:    JobQueued,
		CreatedAt: time.Now(),
		path:      path,
	}

	q.jobs[job.ID] = job
	q.pending = append(q.pending, job.ID)

	return *job
}

func (q *JobQueue) Get(id string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return Job{}, false
	}

	return *job, true
}

// next pops the oldest queued job and marks it running.
func (q *JobQueue) next() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return Job{}, false
	}

	id := q.pending[0]
	q.pending = q.pending[1:]

	job := q.jobs[id]
	job.Status = JobRunning

	return *job, true
}

func (q *JobQueue) finish(id string, result processor.Result) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return
	}

	job.FinishedAt = time.Now()
	job.PaperID = result.PaperID

	switch result.Status {
	case processor.StatusSuccess:
		job.Status = JobDone
	case processor.StatusDuplicate:
		job.Status = JobDone
		job.Detail = result.Reason
	case processor.StatusFailed:
		job.Status = JobFailed
		job.Detail = result.Err.Error()
	}
}

// Pipeline runs one stored upload through the paper pipeline.
type Pipeline interface {
	Process(ctx context.Context, path string) processor.Result
}

// Runner drains the job queue in the background, one file at a time.
type Runner struct {
	queue    *JobQueue
	pipeline Pipeline
	logger   *zerolog.Logger
}

func NewRunner(queue *JobQueue, pipeline Pipeline, logger *zerolog.Logger) *Runner {
	return &Runner{
		queue:    queue,
		pipeline: pipeline,
		logger:   logger,
	}
}

func (r *Runner) Run(ctx context.Context) error {
	return worker.Loop(ctx, worker.Config{
		Name:         "upload-queue",
		PollInterval: 500 * time.Millisecond,
		Process:      r.step,
		Logger:       r.logger,
	})
}

func (r *Runner) step(ctx context.Context) error {
	job, ok := r.queue.next()
	if !ok {
		return nil
	}

	defer worker.RecoverPanic(r.logger, "upload job")

	r.logger.Info().Str("job_id", job.ID).Str("file", job.Filename).Msg("processing upload")

	result := r.pipeline.Process(ctx, job.path)
	r.queue.finish(job.ID, result)

	if result.Status == processor.StatusFailed {
		r.logger.Error().Err(result.Err).Str("job_id", job.ID).Str("stage", string(result.Stage)).Msg("upload job failed")
	}

	return nil
}
