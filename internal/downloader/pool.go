// Package downloader provides the bounded worker pool that fetches a post's
// media items concurrently.
package downloader

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"fantiadl/pkg/logger"
)

// DownloadJob represents a single item download task
type DownloadJob struct {
	URL        string
	TargetPath string
	PostID     string
	Kind       string
	Index      int
}

// DownloadResult represents the result of a download job
type DownloadResult struct {
	Job      DownloadJob
	Success  bool
	Error    error
	Duration time.Duration
	Size     int64
}

// ItemFetcher streams a remote URL
type ItemFetcher interface {
	Download(ctx context.Context, url string) (io.ReadCloser, int64, error)
}

// ItemStorage persists downloaded items
type ItemStorage interface {
	Exists(path string) bool
	SaveFile(r io.Reader, path string) error
}

// WorkerPool manages concurrent download workers
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan DownloadJob
	resultQueue chan DownloadResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	fetcher     ItemFetcher
	storage     ItemStorage
	logger      logger.Logger
}

// NewWorkerPool creates a download worker pool. Workers stop when ctx is
// cancelled or the job queue is closed via Stop.
func NewWorkerPool(
	ctx context.Context,
	numWorkers int,
	fetcher ItemFetcher,
	storage ItemStorage,
	log logger.Logger,
) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}

	poolCtx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan DownloadJob, numWorkers*2),
		resultQueue: make(chan DownloadResult, numWorkers),
		ctx:         poolCtx,
		cancel:      cancel,
		fetcher:     fetcher,
		storage:     storage,
		logger:      log,
	}
}

// Start launches all workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the job queue, waits for in-flight jobs, and closes the
// result channel
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()
}

// Submit adds a download job to the queue
func (wp *WorkerPool) Submit(job DownloadJob) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Results returns the channel carrying completed job results
func (wp *WorkerPool) Results() <-chan DownloadResult {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		select {
		case <-wp.ctx.Done():
			return
		default:
		}

		result := wp.processJob(job, id)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}

func (wp *WorkerPool) processJob(job DownloadJob, workerID int) DownloadResult {
	start := time.Now()
	result := DownloadResult{Job: job}

	// Already on disk from an earlier run; counts as success without a fetch
	if wp.storage.Exists(job.TargetPath) {
		wp.logger.DebugWithFields("Item already downloaded", map[string]interface{}{
			"worker_id": workerID,
			"post_id":   job.PostID,
			"path":      job.TargetPath,
		})
		result.Success = true
		result.Duration = time.Since(start)
		return result
	}

	body, size, err := wp.fetcher.Download(wp.ctx, job.URL)
	if err != nil {
		result.Error = fmt.Errorf("download failed: %w", err)
		result.Duration = time.Since(start)
		wp.logger.ErrorWithFields("Worker failed to download item", map[string]interface{}{
			"worker_id": workerID,
			"post_id":   job.PostID,
			"kind":      job.Kind,
			"error":     err.Error(),
		})
		return result
	}
	defer body.Close()

	if err := wp.storage.SaveFile(body, job.TargetPath); err != nil {
		result.Error = fmt.Errorf("save failed: %w", err)
		result.Duration = time.Since(start)
		wp.logger.ErrorWithFields("Worker failed to save item", map[string]interface{}{
			"worker_id": workerID,
			"post_id":   job.PostID,
			"path":      job.TargetPath,
			"error":     err.Error(),
		})
		return result
	}

	result.Success = true
	result.Size = size
	result.Duration = time.Since(start)

	wp.logger.DebugWithFields("Worker completed job", map[string]interface{}{
		"worker_id": workerID,
		"post_id":   job.PostID,
		"path":      job.TargetPath,
		"size":      size,
	})

	return result
}

// QueueSize returns the number of queued jobs
func (wp *WorkerPool) QueueSize() int {
	return len(wp.jobQueue)
}
