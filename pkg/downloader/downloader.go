// Package downloader orchestrates a full run: resolving targets, walking
// listings, classifying posts, and executing item downloads, with the
// completion ledger gating reprocessing.
package downloader

import (
	"context"
	"errors"
	"strconv"
	"time"

	"fantiadl/pkg/classifier"
	"fantiadl/pkg/config"
	errs "fantiadl/pkg/errors"
	"fantiadl/pkg/executor"
	"fantiadl/pkg/fantia"
	"fantiadl/pkg/ledger"
	"fantiadl/pkg/logger"
	"fantiadl/pkg/metadata"
	"fantiadl/pkg/ratelimit"
	"fantiadl/pkg/storage"
	"fantiadl/pkg/ui"
	"fantiadl/pkg/walker"
)

// Stats accumulates run totals
type Stats struct {
	PostsProcessed int
	PostsSkipped   int
	PostsFailed    int
	PostsGone      int
}

// Downloader wires the full pipeline together for one run
type Downloader struct {
	cfg        *config.Config
	client     *fantia.Client
	classifier *classifier.Classifier
	executor   *executor.Executor
	store      *storage.Manager
	ledger     ledger.Ledger
	logger     logger.Logger
	month      time.Time
	stats      Stats
}

// New builds a Downloader from the resolved configuration. sessionID is the
// Fantia session cookie value; empty runs unauthenticated.
func New(cfg *config.Config, sessionID string, log logger.Logger) (*Downloader, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	client := fantia.NewClient(fantia.Options{
		SessionID:  sessionID,
		UserAgent:  cfg.Session.UserAgent,
		Timeout:    cfg.Download.DownloadTimeout,
		MaxRetries: cfg.RateLimit.MaxRetries,
		Limiter:    ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute),
	}, log)

	store, err := storage.NewManager(cfg.Output.BaseDirectory)
	if err != nil {
		return nil, err
	}

	led, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, err
	}

	var exclusions *executor.ExclusionSet
	if cfg.Download.ExcludeFile != "" {
		exclusions, err = executor.LoadExclusions(cfg.Download.ExcludeFile)
		if err != nil {
			led.Close()
			return nil, err
		}
	}

	var month time.Time
	if cfg.Download.Month != "" {
		month, err = time.Parse(config.MonthLayout, cfg.Download.Month)
		if err != nil {
			led.Close()
			return nil, errs.Wrap(errs.KindInvalidTarget, err, "invalid download month")
		}
	}

	cls := classifier.New(client, classifier.Options{
		DownloadThumbnail:  cfg.Download.Thumbnails,
		ParseExternalLinks: cfg.Download.ExternalLinks,
	}, log)

	exec := executor.New(client, store, executor.Options{
		Workers:    cfg.Download.ConcurrentDownloads,
		Build:      executor.BuildOptions{UseServerFilenames: cfg.Download.UseServerFilenames},
		Exclusions: exclusions,
	}, log)

	return &Downloader{
		cfg:        cfg,
		client:     client,
		classifier: cls,
		executor:   exec,
		store:      store,
		ledger:     led,
		logger:     log,
		month:      month,
	}, nil
}

// Close releases held resources
func (d *Downloader) Close() error {
	return d.ledger.Close()
}

// Stats returns the run's accumulated totals
func (d *Downloader) Stats() Stats {
	return d.stats
}

// Run executes the configured entry mode. Followed-fanclub sweeps and the
// timeline mode ignore positional targets; otherwise each target is
// processed in order, continuing past failures when ignore-errors is set.
func (d *Downloader) Run(ctx context.Context, targets []fantia.Target) error {
	// Timeline mode wins: with -n set, -p only restricts the timeline to
	// paid fanclubs rather than selecting the sweep
	switch {
	case d.cfg.Download.NewPosts > 0:
		return d.runTimeline(ctx)
	case d.cfg.Download.Fanclubs || d.cfg.Download.PaidFanclubs:
		return d.runFollowed(ctx)
	}

	if len(targets) == 0 {
		return errs.New(errs.KindInvalidTarget, "no targets given")
	}

	var firstErr error
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		switch t := target.(type) {
		case fantia.PostTarget:
			err = d.processPost(ctx, t.ID)
		case fantia.FanclubTarget:
			err = d.walkFanclub(ctx, t.ID)
		default:
			err = errs.Newf(errs.KindInvalidTarget, "unsupported target %v", target)
		}

		if err != nil {
			if interrupted(ctx, err) {
				return err
			}
			if !d.cfg.Download.IgnoreErrors {
				return err
			}
			d.logger.WithError(err).Warn("Target failed, continuing")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// runFollowed sweeps every followed fanclub, or only the paid-plan ones
func (d *Downloader) runFollowed(ctx context.Context) error {
	fanclubs, err := walker.FollowedFanclubs(ctx, d.client, d.cfg.Download.PaidFanclubs, d.logger)
	if err != nil {
		return err
	}
	if len(fanclubs) == 0 {
		ui.Print("No followed fanclubs found\n")
		return nil
	}

	ui.PrintInfo("Sweeping fanclubs", strconv.Itoa(len(fanclubs)))

	var firstErr error
	for _, fc := range fanclubs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.walkFanclub(ctx, fc.ID); err != nil {
			if interrupted(ctx, err) {
				return err
			}
			if !d.cfg.Download.IgnoreErrors {
				return err
			}
			d.logger.WithError(err).WithField("fanclub_id", fc.ID).Warn("Fanclub sweep failed, continuing")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// runTimeline processes the newest posts across followed fanclubs. With the
// paid filter on, posts from free follows are passed over without counting
// toward the requested total.
func (d *Downloader) runTimeline(ctx context.Context) error {
	var allowed map[string]bool
	if d.cfg.Download.PaidFanclubs {
		fanclubs, err := walker.FollowedFanclubs(ctx, d.client, true, d.logger)
		if err != nil {
			return err
		}
		allowed = make(map[string]bool, len(fanclubs))
		for _, fc := range fanclubs {
			allowed[fc.ID] = true
		}
	}

	w := walker.NewTimelineWalker(d.client, d.cfg.Download.NewPosts, allowed, d.logger)
	return d.drain(ctx, w)
}

// walkFanclub walks one fanclub's post listing and processes each post.
// A listing page failure terminates this walk.
func (d *Downloader) walkFanclub(ctx context.Context, fanclubID string) error {
	ui.PrintInfo("Fanclub", fanclubID)
	w := walker.NewFanclubWalker(d.client, fanclubID, d.cfg.Download.Limit, d.month, d.logger)
	return d.drain(ctx, w)
}

// postWalker yields post references until exhaustion
type postWalker interface {
	Next(ctx context.Context) (walker.PostRef, error)
}

func (d *Downloader) drain(ctx context.Context, w postWalker) error {
	for {
		ref, err := w.Next(ctx)
		if err == walker.ErrEnd {
			return nil
		}
		if err != nil {
			return err
		}

		if err := d.processPost(ctx, ref.ID); err != nil {
			if interrupted(ctx, err) {
				return err
			}
			if !d.cfg.Download.IgnoreErrors {
				return err
			}
			d.logger.WithError(err).WithField("post_id", ref.ID).Warn("Post failed, continuing")
		}
	}
}

// processPost runs the ledger check, classification, and execution for one
// post
func (d *Downloader) processPost(ctx context.Context, postID string) error {
	process, err := d.ledger.ShouldProcess(ctx, postID, d.cfg.Ledger.BypassPostCheck)
	if err != nil {
		return err
	}
	if !process {
		d.stats.PostsSkipped++
		d.logger.WithField("post_id", postID).Debug("Post already completed, skipping")
		return nil
	}

	post, blocks, err := d.classifier.Classify(ctx, postID)
	if err != nil {
		switch errs.KindOf(err) {
		case errs.KindPostGone:
			// Deleted or inaccessible posts are passed over without a
			// ledger record so they are retried if they ever come back
			d.stats.PostsGone++
			d.logger.WithField("post_id", postID).Warn("Post is gone, skipping")
			return nil
		default:
			d.stats.PostsFailed++
			if recErr := d.ledger.RecordOutcome(ctx, postID, "", false); recErr != nil {
				d.logger.WithError(recErr).WithField("post_id", postID).Error("Failed to record outcome")
			}
			return err
		}
	}

	fanclubID := strconv.Itoa(post.Fanclub.ID)
	ui.Print("Post %s: %s\n", postID, post.Title)

	outcome, execErr := d.executor.Execute(ctx, post, blocks)
	if execErr != nil && interrupted(ctx, execErr) {
		// Interrupted mid-post; leave a marker so the partial directory is
		// recognizable, but record nothing as completed
		if d.cfg.Download.MarkIncompletePosts {
			_ = d.store.MarkIncomplete(outcome.PostDir)
		}
		return execErr
	}

	if d.cfg.Download.DumpMetadata {
		if err := metadata.Write(d.store, outcome.PostDir, post); err != nil {
			d.logger.WithError(err).WithField("post_id", postID).Warn("Failed to write metadata")
		}
	}

	if outcome.Complete() {
		if err := d.store.ClearIncomplete(outcome.PostDir); err != nil {
			d.logger.WithError(err).WithField("post_id", postID).Warn("Failed to clear incomplete marker")
		}
	} else if d.cfg.Download.MarkIncompletePosts {
		if err := d.store.MarkIncomplete(outcome.PostDir); err != nil {
			d.logger.WithError(err).WithField("post_id", postID).Warn("Failed to mark post incomplete")
		}
	}

	if err := d.ledger.RecordOutcome(ctx, postID, fanclubID, outcome.Complete()); err != nil {
		return err
	}

	if !outcome.Complete() {
		d.stats.PostsFailed++
		d.logger.WarnWithFields("Post finished with failures", map[string]interface{}{
			"post_id":   postID,
			"succeeded": outcome.Succeeded,
			"failed":    outcome.Failed,
			"skipped":   outcome.Skipped,
		})
		if outcome.FirstError != nil {
			return outcome.FirstError
		}
		return errs.New(errs.KindItemDownload, "post finished with failed items")
	}

	d.stats.PostsProcessed++
	return nil
}

// interrupted reports whether err is the run's cancellation surfacing,
// possibly wrapped by intermediate layers
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
