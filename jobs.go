package main

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/goagiq/mcp-markitdown-ui/ocr"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// JobStatus is the lifecycle state of a conversion job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrQueueClosed = errors.New("job queue is closed")
)

// Job represents a queued document conversion
type Job struct {
	ID        string                `json:"job_id"`
	Filename  string                `json:"filename,omitempty"`
	Status    JobStatus             `json:"status"`
	Result    *ocr.ConversionResult `json:"result,omitempty"`
	Error     string                `json:"error,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`

	// input is released once the job has been processed
	data []byte
	info ocr.StreamInfo
}

// JobStore manages jobs and their statuses
type JobStore struct {
	sync.RWMutex
	jobs map[string]*Job
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*Job)}
}

func generateJobID() string {
	return uuid.New().String()
}

func newJob(data []byte, info ocr.StreamInfo) *Job {
	now := time.Now()
	return &Job{
		ID:        generateJobID(),
		Filename:  info.Filename,
		Status:    JobPending,
		CreatedAt: now,
		UpdatedAt: now,
		data:      data,
		info:      info,
	}
}

func (store *JobStore) addJob(job *Job) {
	store.Lock()
	defer store.Unlock()
	store.jobs[job.ID] = job
	log.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"filename": job.Filename,
	}).Info("Job added")
}

// getJob returns a copy of the job so callers never race with the workers.
func (store *JobStore) getJob(jobID string) (Job, bool) {
	store.RLock()
	defer store.RUnlock()
	job, exists := store.jobs[jobID]
	if !exists {
		return Job{}, false
	}
	return *job, true
}

// GetAllJobs returns copies of all jobs, newest first.
func (store *JobStore) GetAllJobs() []Job {
	store.RLock()
	defer store.RUnlock()

	jobs := make([]Job, 0, len(store.jobs))
	for _, job := range store.jobs {
		jobs = append(jobs, *job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	return jobs
}

func (store *JobStore) updateJobStatus(jobID string, status JobStatus, result *ocr.ConversionResult, errMsg string) {
	store.Lock()
	defer store.Unlock()
	job, exists := store.jobs[jobID]
	if !exists {
		return
	}
	job.Status = status
	if result != nil {
		job.Result = result
	}
	if errMsg != "" {
		job.Error = errMsg
	}
	if status == JobCompleted || status == JobFailed {
		job.data = nil
	}
	job.UpdatedAt = time.Now()
	log.WithFields(logrus.Fields{
		"job_id": jobID,
		"status": status,
	}).Info("Job status updated")
}

// JobQueue feeds queued jobs to a fixed pool of workers.
type JobQueue struct {
	store     *JobStore
	converter Converter
	queue     chan *Job
	wg        sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// startWorkerPool starts numWorkers workers. Cancelling ctx fails the running
// and the still queued conversions; Stop waits until the queue is drained.
func startWorkerPool(ctx context.Context, store *JobStore, converter Converter, numWorkers, capacity int) *JobQueue {
	q := &JobQueue{
		store:     store,
		converter: converter,
		queue:     make(chan *Job, max(capacity, 1)),
	}
	for i := 0; i < max(numWorkers, 1); i++ {
		q.wg.Add(1)
		go func(workerID int) {
			defer q.wg.Done()
			log.Infof("Worker %d started", workerID)
			for job := range q.queue {
				log.Infof("Worker %d processing job: %s", workerID, job.ID)
				q.processJob(ctx, job)
			}
		}(i)
	}
	return q
}

// Submit stores the job and queues it without blocking.
func (q *JobQueue) Submit(job *Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.store.addJob(job)
	select {
	case q.queue <- job:
		return nil
	default:
		q.store.updateJobStatus(job.ID, JobFailed, nil, ErrQueueFull.Error())
		return ErrQueueFull
	}
}

// Stop rejects new jobs and waits for the queued ones to finish.
func (q *JobQueue) Stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.queue)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *JobQueue) processJob(ctx context.Context, job *Job) {
	q.store.updateJobStatus(job.ID, JobInProgress, nil, "")

	result, err := q.converter.Convert(ctx, job.data, job.info)
	if err != nil {
		log.WithField("job_id", job.ID).Errorf("Error converting document: %v", err)
		q.store.updateJobStatus(job.ID, JobFailed, nil, err.Error())
		return
	}

	q.store.updateJobStatus(job.ID, JobCompleted, result, "")
	log.Infof("Job completed: %s", job.ID)
}
