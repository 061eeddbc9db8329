package analyze_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/finchlyline/relsleuth/internal/analyze"
	"github.com/finchlyline/relsleuth/internal/model"
	"github.com/finchlyline/relsleuth/internal/resolver"
	"github.com/finchlyline/relsleuth/internal/status"
)

// stubResolver honours the Resolver contract: it validates locators the
// way the engine client does and aborts on the job context.
type stubResolver struct {
	matches []model.RawMatchSet
	block   chan struct{} // non-nil: wait for close, observing ctx
}

func (s *stubResolver) Resolve(ctx context.Context, urls []string) ([]model.RawMatchSet, error) {
	for _, u := range urls {
		if err := resolver.CheckURL(u); err != nil {
			return nil, err
		}
	}
	if s.block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.block:
		}
	}
	return s.matches, nil
}

// callbackRecorder is the caller's endpoint: it records every terminal
// report and when it arrived.
type callbackRecorder struct {
	mu      sync.Mutex
	reports []model.AnalysisReport
	times   []time.Time
	srv     *httptest.Server
}

func newCallbackRecorder(t *testing.T) *callbackRecorder {
	t.Helper()
	r := &callbackRecorder{}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var report model.AnalysisReport
		require.NoError(t, json.NewDecoder(req.Body).Decode(&report))
		r.mu.Lock()
		r.reports = append(r.reports, report)
		r.times = append(r.times, time.Now())
		r.mu.Unlock()
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *callbackRecorder) target() model.Target {
	return model.Target{Method: http.MethodPost, URI: r.srv.URL}
}

func (r *callbackRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

func (r *callbackRecorder) last() (model.AnalysisReport, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reports[len(r.reports)-1], r.times[len(r.times)-1]
}

// beatRecorder counts heartbeat deliveries.
type beatRecorder struct {
	mu    sync.Mutex
	times []time.Time
	srv   *httptest.Server
}

func newBeatRecorder(t *testing.T) *beatRecorder {
	t.Helper()
	r := &beatRecorder{}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		r.mu.Lock()
		r.times = append(r.times, time.Now())
		r.mu.Unlock()
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *beatRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.times)
}

func (r *beatRecorder) lastBeat() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.times) == 0 {
		return time.Time{}
	}
	return r.times[len(r.times)-1]
}

func newManager(t *testing.T, r resolver.Resolver) *analyze.Manager {
	t.Helper()
	m := analyze.NewManager(status.New(), r, analyze.NewNotifier())
	t.Cleanup(m.Shutdown)
	return m
}

func awaitCallback(t *testing.T, cb *callbackRecorder) model.AnalysisReport {
	t.Helper()
	require.Eventually(t, func() bool { return cb.count() > 0 },
		5*time.Second, 10*time.Millisecond, "expected callback was not delivered")
	report, _ := cb.last()
	return report
}

func threeArtsMatches() []model.RawMatchSet {
	withLicense := model.RawArchive{
		Filename:        "acme-core-1.0.0.jar",
		Size:            4096,
		ArchiveID:       100,
		BuildType:       "maven",
		GroupID:         "org.acme",
		ArtifactID:      "acme-core",
		Version:         "1.0.0",
		Extension:       "jar",
		BuiltFromSource: true,
		Filenames:       []string{"acme-core-1.0.0.jar"},
		Licenses:        []model.RawLicense{{SpdxLicenseID: "Apache-2.0", Source: "POM"}},
	}
	plain := model.RawArchive{
		Filename:        "acme-cli-1.0.0.jar",
		Size:            2048,
		ArchiveID:       101,
		BuildType:       "maven",
		ArtifactID:      "acme-cli",
		Version:         "1.0.0",
		Extension:       "jar",
		BuiltFromSource: true,
		Filenames:       []string{"acme-cli-1.0.0.jar"},
	}
	stray := model.RawArchive{
		Filename:  "vendored.jar",
		Size:      512,
		Filenames: []string{"vendored.jar"},
	}

	return []model.RawMatchSet{{
		{
			Key:   model.RawBuildKey{System: model.BuildSystemNone, ID: 0},
			Build: model.RawBuild{Archives: []model.RawArchive{stray}},
		},
		{
			Key:   model.RawBuildKey{System: model.BuildSystemPNC, ID: 42},
			Build: model.RawBuild{PncID: "42", Archives: []model.RawArchive{withLicense, plain}},
		},
	}}
}

func TestAnalyzeSuccess(t *testing.T) {
	t.Parallel()

	cb := newCallbackRecorder(t)
	m := newManager(t, &stubResolver{matches: threeArtsMatches()})

	id, err := m.Submit(t.Context(), model.AnalyzePayload{
		URLs:     []string{"http://host/threeArts.zip"},
		Callback: cb.target(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	report := awaitCallback(t, cb)
	require.True(t, report.Success)
	require.Equal(t, id, report.ID)
	require.Equal(t, "http://host/threeArts.zip", report.URL)
	require.Len(t, report.Results, 1)

	result := report.Results[0]
	require.Len(t, result.Builds, 1)
	require.Equal(t, "42", result.Builds[0].PncID)
	require.Len(t, result.Builds[0].Artifacts, 2)
	require.Equal(t, "Apache-2.0", result.Builds[0].Artifacts[0].Licenses[0].SpdxLicenseID)
	require.Len(t, result.NotFoundArtifacts, 1)

	job, ok := m.Status(id)
	require.True(t, ok)
	require.Equal(t, model.StatusCompleted, job.Status)
	require.Len(t, job.Results, 1)

	// the terminal callback is delivered exactly once
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, cb.count())
}

func TestAnalyzeMalformedLocator(t *testing.T) {
	t.Parallel()

	cb := newCallbackRecorder(t)
	m := newManager(t, &stubResolver{})

	id, err := m.Submit(t.Context(), model.AnalyzePayload{
		URLs:     []string{"xxyy:/malformedUrl.zip"},
		Callback: cb.target(),
	})
	require.NoError(t, err)

	report := awaitCallback(t, cb)
	require.False(t, report.Success)
	require.Equal(t, id, report.ID)
	require.Contains(t, report.ErrorMessage, "unknown protocol")
	require.Contains(t, report.ErrorMessage, "xxyy")

	job, ok := m.Status(id)
	require.True(t, ok)
	require.Equal(t, model.StatusFailed, job.Status)
	require.Empty(t, job.Results)
}

func TestAnalyzeCancel(t *testing.T) {
	t.Parallel()

	cb := newCallbackRecorder(t)
	block := make(chan struct{})
	defer close(block)
	m := newManager(t, &stubResolver{block: block})

	id, err := m.Submit(t.Context(), model.AnalyzePayload{
		URLs:     []string{"http://host/slow.zip"},
		Callback: cb.target(),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, ok := m.Status(id)
		return ok && job.Status == model.StatusRunning
	}, 5*time.Second, 5*time.Millisecond)

	require.True(t, m.Cancel(id))

	report := awaitCallback(t, cb)
	require.False(t, report.Success)
	require.Contains(t, report.ErrorMessage, "cancelled")

	job, ok := m.Status(id)
	require.True(t, ok)
	require.Equal(t, model.StatusCancelled, job.Status)

	// terminal states are sticky, a second cancel is a not-found no-op
	require.False(t, m.Cancel(id))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, cb.count())
}

func TestCancelUnknown(t *testing.T) {
	t.Parallel()

	m := newManager(t, &stubResolver{})
	require.False(t, m.Cancel("no-such-id"))
}

func TestCancelAfterCompletion(t *testing.T) {
	t.Parallel()

	cb := newCallbackRecorder(t)
	m := newManager(t, &stubResolver{matches: threeArtsMatches()})

	id, err := m.Submit(t.Context(), model.AnalyzePayload{
		URLs:     []string{"http://host/threeArts.zip"},
		Callback: cb.target(),
	})
	require.NoError(t, err)
	awaitCallback(t, cb)

	before, ok := m.Status(id)
	require.True(t, ok)
	require.False(t, m.Cancel(id))

	after, ok := m.Status(id)
	require.True(t, ok)
	require.Equal(t, before.Status, after.Status)
	require.Equal(t, before.Results, after.Results)
}

func TestHeartbeat(t *testing.T) {
	t.Parallel()

	cb := newCallbackRecorder(t)
	hb := newBeatRecorder(t)
	block := make(chan struct{})
	m := newManager(t, &stubResolver{matches: threeArtsMatches(), block: block})

	_, err := m.Submit(t.Context(), model.AnalyzePayload{
		URLs:     []string{"http://host/threeArts.zip"},
		Callback: cb.target(),
		Heartbeat: &model.HeartbeatConfig{
			Target: model.Target{Method: http.MethodPost, URI: hb.srv.URL},
			Period: 20,
			Unit:   "MILLISECONDS",
		},
	})
	require.NoError(t, err)

	// heartbeats tick while the job is blocked in the resolver
	require.Eventually(t, func() bool { return hb.count() >= 2 },
		5*time.Second, 5*time.Millisecond)

	close(block)
	awaitCallback(t, cb)
	_, delivered := cb.last()

	// ticking stops the moment the job turns terminal, so no beat may
	// be later than the terminal callback
	time.Sleep(100 * time.Millisecond)
	frozen := hb.count()
	require.LessOrEqual(t, hb.lastBeat().UnixNano(), delivered.UnixNano())
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, frozen, hb.count())
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()

	cb := newCallbackRecorder(t)
	m := newManager(t, &stubResolver{})

	t.Run("no urls", func(t *testing.T) {
		_, err := m.Submit(t.Context(), model.AnalyzePayload{Callback: cb.target()})
		require.ErrorIs(t, err, analyze.ErrNoURLs)
	})

	t.Run("no callback", func(t *testing.T) {
		_, err := m.Submit(t.Context(), model.AnalyzePayload{URLs: []string{"http://host/a.zip"}})
		require.ErrorIs(t, err, analyze.ErrNoCallback)
	})

	t.Run("bad heartbeat unit", func(t *testing.T) {
		_, err := m.Submit(t.Context(), model.AnalyzePayload{
			URLs:     []string{"http://host/a.zip"},
			Callback: cb.target(),
			Heartbeat: &model.HeartbeatConfig{
				Target: model.Target{URI: "http://host/beat"},
				Period: 1,
				Unit:   "FORTNIGHTS",
			},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown heartbeat time unit")
	})

	t.Run("caller supplied id is kept", func(t *testing.T) {
		id, err := m.Submit(t.Context(), model.AnalyzePayload{
			ID:       "my-analysis",
			URLs:     []string{"http://host/a.zip"},
			Callback: cb.target(),
		})
		require.NoError(t, err)
		require.Equal(t, "my-analysis", id)
	})
}
