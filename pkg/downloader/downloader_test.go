package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fantiadl/pkg/classifier"
	"fantiadl/pkg/config"
	"fantiadl/pkg/executor"
	"fantiadl/pkg/fantia"
	"fantiadl/pkg/ledger"
	"fantiadl/pkg/logger"
	"fantiadl/pkg/storage"
)

const csrfPage = `<html><head><meta name="csrf-token" content="tok"></head></html>`

// fakeFantia serves post pages, detail payloads, and item bytes, counting
// how often each post's detail API is hit
type fakeFantia struct {
	mux     *http.ServeMux
	apiHits map[string]*int32
}

func newFakeFantia() *fakeFantia {
	return &fakeFantia{mux: http.NewServeMux(), apiHits: make(map[string]*int32)}
}

func (f *fakeFantia) addPost(postID string, fanclubID int, itemPaths []string, baseURL func() string) {
	var hits int32
	f.apiHits[postID] = &hits

	f.mux.HandleFunc("/posts/"+postID, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(csrfPage))
	})
	f.mux.HandleFunc("/api/v1/posts/"+postID, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)

		photos := make([]map[string]interface{}, len(itemPaths))
		for i, p := range itemPaths {
			photos[i] = map[string]interface{}{
				"id":  i,
				"url": map[string]string{"original": baseURL() + p},
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"post": map[string]interface{}{
				"id":      mustAtoi(postID),
				"title":   "Post " + postID,
				"fanclub": map[string]interface{}{"id": fanclubID},
				"post_contents": []map[string]interface{}{
					{"id": 1, "category": "photo_gallery", "visible_status": "visible", "post_content_photos": photos},
				},
			},
		})
	})
}

func (f *fakeFantia) hits(postID string) int {
	return int(atomic.LoadInt32(f.apiHits[postID]))
}

func mustAtoi(s string) int {
	var n int
	fmt.Sscanf(s, "%d", &n)
	return n
}

// newTestDownloader assembles a Downloader against a fake server, mirroring
// New but with the base URL pointed at the test server
func newTestDownloader(t *testing.T, cfg *config.Config, fake *fakeFantia) (*Downloader, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(fake.mux)
	t.Cleanup(server.Close)

	log := logger.NewTestLogger()
	client := fantia.NewClient(fantia.Options{BaseURL: server.URL, MaxRetries: 1}, log)

	if cfg.Output.BaseDirectory == "" {
		cfg.Output.BaseDirectory = t.TempDir()
	}
	store, err := storage.NewManager(cfg.Output.BaseDirectory)
	require.NoError(t, err)

	led, err := ledger.Open(cfg.Ledger.Path)
	require.NoError(t, err)
	t.Cleanup(func() { led.Close() })

	var month time.Time
	if cfg.Download.Month != "" {
		month, err = time.Parse(config.MonthLayout, cfg.Download.Month)
		require.NoError(t, err)
	}

	dl := &Downloader{
		cfg:        cfg,
		client:     client,
		classifier: classifier.New(client, classifier.Options{}, log),
		executor: executor.New(client, store, executor.Options{
			Workers: 2,
		}, log),
		store:  store,
		ledger: led,
		logger: log,
		month:  month,
	}
	return dl, server
}

func baseConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = t.TempDir()
	return cfg
}

func TestRunSinglePost(t *testing.T) {
	fake := newFakeFantia()
	var base string
	fake.addPost("100", 55, []string{"/items/a.jpg", "/items/b.jpg"}, func() string { return base })
	fake.mux.HandleFunc("/items/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("item bytes"))
	})

	cfg := baseConfig(t)
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "fantia.db")

	dl, server := newTestDownloader(t, cfg, fake)
	base = server.URL

	err := dl.Run(context.Background(), []fantia.Target{fantia.PostTarget{ID: "100"}})
	require.NoError(t, err)

	assert.Equal(t, 1, dl.Stats().PostsProcessed)
	postDir := dl.store.PostDir("55", "100", "Post 100")
	assert.True(t, dl.store.Exists(filepath.Join(postDir, "000_000.jpg")))
	assert.True(t, dl.store.Exists(filepath.Join(postDir, "000_001.jpg")))

	rec, err := dl.ledger.Get(context.Background(), "100")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Completed)
	assert.Equal(t, "55", rec.FanclubID)
}

func TestRunSkipsCompletedPosts(t *testing.T) {
	fake := newFakeFantia()
	var base string
	fake.addPost("100", 55, nil, func() string { return base })

	cfg := baseConfig(t)
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "fantia.db")

	dl, server := newTestDownloader(t, cfg, fake)
	base = server.URL

	require.NoError(t, dl.ledger.RecordOutcome(context.Background(), "100", "55", true))

	err := dl.Run(context.Background(), []fantia.Target{fantia.PostTarget{ID: "100"}})
	require.NoError(t, err)

	// The detail payload is never fetched for a completed post
	assert.Equal(t, 0, fake.hits("100"))
	assert.Equal(t, 1, dl.Stats().PostsSkipped)
}

func TestRunBypassReprocessesCompletedPosts(t *testing.T) {
	fake := newFakeFantia()
	var base string
	fake.addPost("100", 55, nil, func() string { return base })

	cfg := baseConfig(t)
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "fantia.db")
	cfg.Ledger.BypassPostCheck = true

	dl, server := newTestDownloader(t, cfg, fake)
	base = server.URL

	require.NoError(t, dl.ledger.RecordOutcome(context.Background(), "100", "55", true))

	err := dl.Run(context.Background(), []fantia.Target{fantia.PostTarget{ID: "100"}})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.hits("100"))
	assert.Equal(t, 1, dl.Stats().PostsProcessed)
}

func TestRunGonePostIsSkippedWithoutRecord(t *testing.T) {
	fake := newFakeFantia()
	fake.mux.HandleFunc("/posts/100", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	cfg := baseConfig(t)
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "fantia.db")

	dl, _ := newTestDownloader(t, cfg, fake)

	err := dl.Run(context.Background(), []fantia.Target{fantia.PostTarget{ID: "100"}})
	require.NoError(t, err)
	assert.Equal(t, 1, dl.Stats().PostsGone)

	// No record is left, so the post is retried if it ever comes back
	rec, err := dl.ledger.Get(context.Background(), "100")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRunContinueOnError(t *testing.T) {
	fake := newFakeFantia()
	var base string
	fake.addPost("200", 55, []string{"/items/ok.jpg"}, func() string { return base })
	fake.mux.HandleFunc("/items/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("item bytes"))
	})
	// Post 100's detail payload is broken
	fake.mux.HandleFunc("/posts/100", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(csrfPage))
	})
	fake.mux.HandleFunc("/api/v1/posts/100", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	cfg := baseConfig(t)
	cfg.Download.IgnoreErrors = true

	dl, server := newTestDownloader(t, cfg, fake)
	base = server.URL

	targets := []fantia.Target{fantia.PostTarget{ID: "100"}, fantia.PostTarget{ID: "200"}}
	err := dl.Run(context.Background(), targets)

	// The first failure is reported but the second target still ran
	require.Error(t, err)
	assert.Equal(t, 1, dl.Stats().PostsProcessed)
	assert.Equal(t, 1, dl.Stats().PostsFailed)
	assert.Equal(t, 1, fake.hits("200"))
}

func TestRunStopsOnErrorByDefault(t *testing.T) {
	fake := newFakeFantia()
	var base string
	fake.addPost("200", 55, nil, func() string { return base })
	fake.mux.HandleFunc("/posts/100", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(csrfPage))
	})
	fake.mux.HandleFunc("/api/v1/posts/100", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	cfg := baseConfig(t)

	dl, server := newTestDownloader(t, cfg, fake)
	base = server.URL

	targets := []fantia.Target{fantia.PostTarget{ID: "100"}, fantia.PostTarget{ID: "200"}}
	err := dl.Run(context.Background(), targets)

	require.Error(t, err)
	assert.Equal(t, 0, fake.hits("200"))
}

func TestRunIncompletePostMarkedAndRecorded(t *testing.T) {
	fake := newFakeFantia()
	var base string
	fake.addPost("100", 55, []string{"/items/ok.jpg", "/items/missing.jpg"}, func() string { return base })
	fake.mux.HandleFunc("/items/ok.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("item bytes"))
	})
	fake.mux.HandleFunc("/items/missing.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	cfg := baseConfig(t)
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "fantia.db")
	cfg.Download.MarkIncompletePosts = true
	cfg.Download.IgnoreErrors = true

	dl, server := newTestDownloader(t, cfg, fake)
	base = server.URL

	err := dl.Run(context.Background(), []fantia.Target{fantia.PostTarget{ID: "100"}})
	require.Error(t, err)

	postDir := dl.store.PostDir("55", "100", "Post 100")
	assert.True(t, dl.store.IsIncomplete(postDir))

	rec, err := dl.ledger.Get(context.Background(), "100")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.Completed)
}

func TestRunIncompleteMarkerClearedOnLaterSuccess(t *testing.T) {
	fake := newFakeFantia()
	var base string
	fake.addPost("100", 55, []string{"/items/ok.jpg"}, func() string { return base })
	fake.mux.HandleFunc("/items/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("item bytes"))
	})

	cfg := baseConfig(t)
	cfg.Download.MarkIncompletePosts = true

	dl, server := newTestDownloader(t, cfg, fake)
	base = server.URL

	postDir := dl.store.PostDir("55", "100", "Post 100")
	require.NoError(t, dl.store.MarkIncomplete(postDir))

	err := dl.Run(context.Background(), []fantia.Target{fantia.PostTarget{ID: "100"}})
	require.NoError(t, err)
	assert.False(t, dl.store.IsIncomplete(postDir))
}

func TestRunTimelineModeWinsOverPaidSweep(t *testing.T) {
	fake := newFakeFantia()
	var base string
	fake.addPost("100", 55, nil, func() string { return base })

	// Paid-plan page lists fanclub 55 only
	fake.mux.HandleFunc("/mypage/users/plans", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a href="/fanclubs/55">plan</a></body></html>`))
	})

	var listingHits int32
	fake.mux.HandleFunc("/fanclubs/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&listingHits, 1)
		w.Write([]byte("<html></html>"))
	})

	var timelinePages int32
	fake.mux.HandleFunc("/api/v1/me/timelines/posts", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&timelinePages, 1) > 1 {
			w.Write([]byte(`{"posts":[]}`))
			return
		}
		// The first entry comes from a free follow and must be passed over
		w.Write([]byte(`{"posts":[{"id":999,"fanclub":{"id":77}},{"id":100,"fanclub":{"id":55}}]}`))
	})

	cfg := baseConfig(t)
	cfg.Download.NewPosts = 5
	cfg.Download.PaidFanclubs = true

	dl, server := newTestDownloader(t, cfg, fake)
	base = server.URL

	err := dl.Run(context.Background(), nil)
	require.NoError(t, err)

	// The timeline ran with the paid filter; no fanclub listing was swept
	assert.Equal(t, 0, int(atomic.LoadInt32(&listingHits)))
	assert.Equal(t, 1, fake.hits("100"))
	assert.Equal(t, 1, dl.Stats().PostsProcessed)
}

func TestInterruptedDetectsWrappedCancellation(t *testing.T) {
	ctx := context.Background()

	assert.True(t, interrupted(ctx, fmt.Errorf("worker pool is shutting down: %w", context.Canceled)))
	assert.True(t, interrupted(ctx, context.DeadlineExceeded))
	assert.False(t, interrupted(ctx, fmt.Errorf("boom")))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, interrupted(cancelled, nil))
}

func TestRunNoTargets(t *testing.T) {
	cfg := baseConfig(t)
	dl, _ := newTestDownloader(t, cfg, newFakeFantia())

	err := dl.Run(context.Background(), nil)
	assert.Error(t, err)
}
