package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fantiadl/pkg/auth"
	"fantiadl/pkg/config"
	"fantiadl/pkg/downloader"
	errs "fantiadl/pkg/errors"
	"fantiadl/pkg/fantia"
	"fantiadl/pkg/logger"
	"fantiadl/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool

	// Session flags
	sessionArg   string
	sessionLabel string

	// Download flags
	postLimit       int
	downloadMonth   string
	newPosts        int
	allFanclubs     bool
	paidFanclubs    bool
	thumbnails      bool
	externalLinks   bool
	serverFilenames bool
	dumpMetadata    bool
	markIncomplete  bool
	ignoreErrors    bool
	excludeFile     string
	outputDir       string
	concurrent      int
	rateLimit       int
	maxRetries      int
	downloadTimeout int

	// Ledger flags
	dbPath       string
	dbBypassPost bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fantiadl [flags] url...",
	Short: "Download media and content from Fantia fanclubs and posts",
	Long: `Fantia Downloader fetches posts, galleries, file attachments, and blog
media from fantia.jp, resuming incrementally across runs.

Targets are fanclub or post URLs:
  https://fantia.jp/fanclubs/1234
  https://fantia.jp/posts/56789

A session cookie is required for content behind a plan. Store one with
'fantiadl auth login', pass it with -c, or set FANTIADL_SESSION_ID.`,
	Example: `  # Download every post of a fanclub
  fantiadl https://fantia.jp/fanclubs/1234

  # Download a single post with thumbnails and external links
  fantiadl -t -x https://fantia.jp/posts/56789

  # Sweep all followed fanclubs, resuming from the completion database
  fantiadl -f --db fantia.db

  # The 10 newest posts from paid plans only
  fantiadl -n 10 -p

  # Only posts from one month
  fantiadl -d 2024-06 https://fantia.jp/fanclubs/1234`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	Args:    cobra.ArbitraryArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet || logLevel == "error" {
			ui.SetQuietMode(true)
		}
	},
	RunE: runRoot,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .fantiadl.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")

	rootCmd.Flags().StringVarP(&sessionArg, "cookie", "c", "", "session cookie value or path to a cookies.txt file")
	rootCmd.Flags().StringVarP(&sessionLabel, "session", "a", "", "use a specific stored session")

	rootCmd.Flags().IntVarP(&postLimit, "limit", "l", 0, "stop each fanclub sweep after this many posts")
	rootCmd.Flags().StringVarP(&downloadMonth, "download-month", "d", "", "only download posts from this month (YYYY-MM)")
	rootCmd.Flags().IntVarP(&newPosts, "download-new-posts", "n", 0, "download the newest posts across followed fanclubs")
	rootCmd.Flags().BoolVarP(&allFanclubs, "download-fanclubs", "f", false, "sweep every followed fanclub")
	rootCmd.Flags().BoolVarP(&paidFanclubs, "download-paid-fanclubs", "p", false, "restrict to fanclubs with a paid plan")
	rootCmd.Flags().BoolVarP(&thumbnails, "download-thumb", "t", false, "also download post thumbnails")
	rootCmd.Flags().BoolVarP(&externalLinks, "parse-for-external-links", "x", false, "collect external links from post text")
	rootCmd.Flags().BoolVarP(&serverFilenames, "use-server-filenames", "s", false, "name files after the server-reported filename")
	rootCmd.Flags().BoolVarP(&dumpMetadata, "dump-metadata", "m", false, "write each post's metadata.json")
	rootCmd.Flags().BoolVarP(&markIncomplete, "mark-incomplete-posts", "r", false, "leave an .incomplete marker in partially downloaded posts")
	rootCmd.Flags().BoolVarP(&ignoreErrors, "ignore-errors", "i", false, "continue past failed targets and posts")
	rootCmd.Flags().StringVar(&excludeFile, "exclude", "", "file listing filenames that must not be downloaded")
	rootCmd.Flags().StringVarP(&outputDir, "output-directory", "o", "", "base output directory (default: current directory)")
	rootCmd.Flags().IntVar(&concurrent, "concurrent", 0, "concurrent item downloads per post")
	rootCmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "requests per minute")
	rootCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "retry attempts for transient failures")
	rootCmd.Flags().IntVar(&downloadTimeout, "download-timeout", 0, "per-request timeout in seconds")

	rootCmd.Flags().StringVar(&dbPath, "db", "", "completion database path (enables incremental runs)")
	rootCmd.Flags().BoolVar(&dbBypassPost, "db-bypass-post-check", false, "reprocess posts already marked completed")

	rootCmd.SetVersionTemplate(`Fantia Downloader {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func runRoot(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := config.Load(configFile, func(c *config.Config) {
		applyRootFlags(cmd, c)
	})
	if err != nil {
		return err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return err
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("Fantia downloader starting")

	sweepMode := cfg.Download.Fanclubs || cfg.Download.PaidFanclubs || cfg.Download.NewPosts > 0

	targets, targetErr := parseTargets(args)
	if len(targets) == 0 && !sweepMode {
		if targetErr != nil {
			return targetErr
		}
		return errs.New(errs.KindInvalidTarget, "no targets given; pass fanclub/post URLs or use -f, -p, or -n")
	}

	sessionID, err := resolveSession(cfg, sweepMode)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dl, err := downloader.New(cfg, sessionID, log)
	if err != nil {
		return err
	}
	defer dl.Close()

	runErr := dl.Run(ctx, targets)

	stats := dl.Stats()
	ui.Print("Done: %d posts downloaded, %d skipped, %d failed, %d gone\n",
		stats.PostsProcessed, stats.PostsSkipped, stats.PostsFailed, stats.PostsGone)

	if runErr != nil {
		if ctx.Err() != nil {
			log.Warn("Interrupted")
			return context.Canceled
		}
		return runErr
	}
	return targetErr
}

// applyRootFlags overlays explicitly-set flags onto the loaded configuration
func applyRootFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("cookie") {
		c.Session.Cookie = sessionArg
	}
	if flags.Changed("limit") {
		c.Download.Limit = postLimit
	}
	if flags.Changed("download-month") {
		c.Download.Month = downloadMonth
	}
	if flags.Changed("download-new-posts") {
		c.Download.NewPosts = newPosts
	}
	if flags.Changed("download-fanclubs") {
		c.Download.Fanclubs = allFanclubs
	}
	if flags.Changed("download-paid-fanclubs") {
		c.Download.PaidFanclubs = paidFanclubs
	}
	if flags.Changed("download-thumb") {
		c.Download.Thumbnails = thumbnails
	}
	if flags.Changed("parse-for-external-links") {
		c.Download.ExternalLinks = externalLinks
	}
	if flags.Changed("use-server-filenames") {
		c.Download.UseServerFilenames = serverFilenames
	}
	if flags.Changed("dump-metadata") {
		c.Download.DumpMetadata = dumpMetadata
	}
	if flags.Changed("mark-incomplete-posts") {
		c.Download.MarkIncompletePosts = markIncomplete
	}
	if flags.Changed("ignore-errors") {
		c.Download.IgnoreErrors = ignoreErrors
	}
	if flags.Changed("exclude") {
		c.Download.ExcludeFile = excludeFile
	}
	if flags.Changed("output-directory") {
		c.Output.BaseDirectory = outputDir
	}
	if flags.Changed("concurrent") {
		c.Download.ConcurrentDownloads = concurrent
	}
	if flags.Changed("rate-limit") {
		c.RateLimit.RequestsPerMinute = rateLimit
	}
	if flags.Changed("max-retries") {
		c.RateLimit.MaxRetries = maxRetries
	}
	if flags.Changed("download-timeout") {
		c.Download.DownloadTimeout = time.Duration(downloadTimeout) * time.Second
	}
	if flags.Changed("db") {
		c.Ledger.Path = dbPath
	}
	if flags.Changed("db-bypass-post-check") {
		c.Ledger.BypassPostCheck = dbBypassPost
	}
	if flags.Changed("log-level") {
		c.Logging.Level = logLevel
	}
	if quiet {
		c.Logging.Quiet = true
	}
}

// parseTargets resolves the positional arguments into typed targets. An
// invalid URL is reported on its own without aborting the sibling URLs; the
// first such error is returned alongside the valid targets so the run's exit
// status still reflects it.
func parseTargets(args []string) ([]fantia.Target, error) {
	var targets []fantia.Target
	var firstErr error
	for _, arg := range args {
		target, err := fantia.ParseTarget(arg)
		if err != nil {
			logger.GetLogger().WithError(err).WithField("url", arg).Error("Skipping invalid target")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		targets = append(targets, target)
	}
	return targets, firstErr
}

// resolveSession determines the session cookie for this run. Sweep modes
// need an authenticated session; plain targets may run without one, with
// plan-gated content coming back as missing.
func resolveSession(cfg *config.Config, sweepMode bool) (string, error) {
	if cfg.Session.Cookie != "" {
		return auth.ResolveSessionValue(cfg.Session.Cookie)
	}

	if manager, err := auth.NewManager(); err == nil {
		var session *auth.Session
		if sessionLabel != "" {
			session, err = manager.Retrieve(sessionLabel)
			if err != nil {
				return "", err
			}
		} else {
			session, _ = manager.RetrieveDefault()
		}
		if session != nil {
			if session.UserAgent != "" {
				cfg.Session.UserAgent = session.UserAgent
			}
			return session.SessionID, nil
		}
	}

	if !sweepMode {
		logger.GetLogger().Warn("No session cookie configured; plan-gated content will be inaccessible")
		return "", nil
	}

	// Followed-fanclub and timeline modes are meaningless unauthenticated
	if sessionID, err := auth.PromptSessionID(); err == nil {
		return sessionID, nil
	}
	return "", errs.New(errs.KindAuth,
		"a session cookie is required; run 'fantiadl auth login', pass -c, or set FANTIADL_SESSION_ID")
}
