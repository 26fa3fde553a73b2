// Package executor turns a classified post into files on disk, fanning item
// downloads out over a bounded worker pool.
package executor

import (
	"context"
	"strconv"

	"fantiadl/internal/downloader"
	"fantiadl/pkg/classifier"
	errs "fantiadl/pkg/errors"
	"fantiadl/pkg/fantia"
	"fantiadl/pkg/logger"
	"fantiadl/pkg/storage"
)

// Options configures post execution
type Options struct {
	// Workers bounds concurrent item downloads within one post
	Workers int
	// Build controls item naming
	Build BuildOptions
	// Exclusions filters items by filename; nil means nothing is excluded
	Exclusions *ExclusionSet
}

// Outcome summarizes one post's execution. A post is complete when every
// non-excluded item succeeded; excluded items never count against it.
type Outcome struct {
	PostDir   string
	Attempted int
	Succeeded int
	Skipped   int
	Failed    int
	// FirstError is the first item failure observed, for reporting
	FirstError error
}

// Complete reports whether every attempted item succeeded
func (o Outcome) Complete() bool {
	return o.Failed == 0
}

// Executor downloads a post's items into its directory
type Executor struct {
	client  *fantia.Client
	storage *storage.Manager
	opts    Options
	logger  logger.Logger
}

// New creates an Executor
func New(client *fantia.Client, store *storage.Manager, opts Options, log logger.Logger) *Executor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Executor{client: client, storage: store, opts: opts, logger: log}
}

// Execute downloads all of the post's items. Item failures are counted in
// the outcome rather than aborting the post; only context cancellation
// returns early.
func (e *Executor) Execute(ctx context.Context, post *fantia.Post, blocks []classifier.Block) (Outcome, error) {
	postID := strconv.Itoa(post.ID)
	fanclubID := strconv.Itoa(post.Fanclub.ID)
	postDir := e.storage.PostDir(fanclubID, postID, post.Title)
	outcome := Outcome{PostDir: postDir}

	items, links := BuildItems(post, blocks, e.opts.Build)

	var planned []DownloadItem
	for _, item := range items {
		if e.opts.Exclusions.Excludes(item) {
			e.logger.DebugWithFields("Skipping excluded item", map[string]interface{}{
				"post_id": postID,
				"name":    item.TargetName,
			})
			outcome.Skipped++
			continue
		}
		planned = append(planned, item)
	}
	outcome.Attempted = len(planned)

	if len(links) > 0 {
		if err := e.storage.AppendExternalLinks(postDir, links); err != nil {
			e.logger.WithError(err).WithField("post_id", postID).Warn("Failed to write external links file")
		}
	}

	if len(planned) == 0 {
		return outcome, ctx.Err()
	}

	if err := e.storage.EnsureDir(postDir); err != nil {
		return outcome, errs.Wrap(errs.KindItemDownload, err, "failed to create post directory")
	}

	pool := downloader.NewWorkerPool(ctx, e.opts.Workers, e.client, e.storage, e.logger)
	pool.Start()

	go func() {
		// Stop always runs so the result channel closes even when the
		// context dies mid-submit
		defer pool.Stop()
		for i, item := range planned {
			job := downloader.DownloadJob{
				URL:        item.SourceURL,
				TargetPath: item.TargetPath(postDir),
				PostID:     postID,
				Kind:       string(item.Kind),
				Index:      i,
			}
			if err := pool.Submit(job); err != nil {
				// Remaining jobs are abandoned
				return
			}
		}
	}()

	received := 0
	for result := range pool.Results() {
		received++
		if result.Success {
			outcome.Succeeded++
		} else {
			outcome.Failed++
			if outcome.FirstError == nil {
				outcome.FirstError = errs.Wrap(errs.KindItemDownload, result.Error, "item download failed")
			}
		}
		logger.LogDownload(postID, result.Job.TargetPath, result.Job.Kind, result.Success, result.Error)
	}

	// Jobs never dispatched because the context was cancelled count as
	// failures for completion purposes
	if received < len(planned) {
		outcome.Failed += len(planned) - received
	}

	if err := ctx.Err(); err != nil {
		return outcome, err
	}
	return outcome, nil
}
