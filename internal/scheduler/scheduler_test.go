package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagevet/pagevet/internal/audit"
	checkpointmem "github.com/pagevet/pagevet/internal/checkpoint/memory"
	"github.com/pagevet/pagevet/internal/notify"
	scansmem "github.com/pagevet/pagevet/internal/scans/memory"
	storagemem "github.com/pagevet/pagevet/internal/storage/memory"
)

type fakeRenderer struct {
	render func(ctx context.Context, url string) (audit.PageContext, error)
	calls  int
}

func (r *fakeRenderer) Render(ctx context.Context, url string) (audit.PageContext, error) {
	r.calls++
	return r.render(ctx, url)
}

func (r *fakeRenderer) Close(context.Context) error { return nil }

type fakeJudge struct {
	evaluate func(rule audit.Rule) (audit.ScanResult, int)
	judged   []string
}

func (j *fakeJudge) Evaluate(_ context.Context, _ string, rule audit.Rule, _ string) (audit.ScanResult, int) {
	j.judged = append(j.judged, rule.ID)
	return j.evaluate(rule)
}

func okRenderer() *fakeRenderer {
	return &fakeRenderer{render: func(_ context.Context, url string) (audit.PageContext, error) {
		return audit.PageContext{URL: url, VisibleText: "welcome to the shop"}, nil
	}}
}

func passingJudge() *fakeJudge {
	return &fakeJudge{evaluate: func(rule audit.Rule) (audit.ScanResult, int) {
		return audit.ScanResult{
			RuleID:    rule.ID,
			RuleTitle: rule.Title,
			Passed:    !strings.HasSuffix(rule.ID, "3"),
			Reason:    "deterministic verdict for " + rule.ID,
		}, 0
	}}
}

type testEnv struct {
	sched       *Scheduler
	renderer    *fakeRenderer
	judge       *fakeJudge
	checkpoints *checkpointmem.Store
	scans       *scansmem.Store
	blobs       *storagemem.BlobStore
	sink        *notify.MemorySink
	hub         *notify.Hub
	slept       []time.Duration
}

func newTestEnv(t *testing.T, renderer *fakeRenderer, judge *fakeJudge) *testEnv {
	t.Helper()
	env := &testEnv{
		renderer:    renderer,
		judge:       judge,
		checkpoints: checkpointmem.NewStore(),
		scans:       scansmem.NewStore(),
		blobs:       storagemem.NewBlobStore(),
		sink:        notify.NewMemorySink(),
	}
	env.hub = notify.NewHub(notify.Config{}, env.sink)
	t.Cleanup(func() { _ = env.hub.Close(context.Background()) })

	sched, err := New(Config{BatchSize: 2, MinOracleDelay: 10 * time.Second}, Deps{
		Renderer:    renderer,
		Judge:       judge,
		Checkpoints: env.checkpoints,
		Scans:       env.scans,
		Blobs:       env.blobs,
		Hub:         env.hub,
		IDs:         &seqIDs{},
		Clock:       &fixedClock{now: time.Unix(1700000000, 0).UTC()},
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	sched.throttle.sleep = func(_ context.Context, d time.Duration) error {
		env.slept = append(env.slept, d)
		return nil
	}
	env.sched = sched
	return env
}

func TestRunCompletesScan(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, okRenderer(), passingJudge())

	sess, err := env.sched.NewSession(ctx, "example.com", makeRules(5))
	require.NoError(t, err)
	require.Equal(t, "https://example.com", sess.URL)

	// The initial checkpoint exists before any batch runs.
	cp, err := env.checkpoints.Load(ctx, sess.ScanID)
	require.NoError(t, err)
	require.Len(t, cp.Batches, 3)
	require.Empty(t, cp.Results)

	results, err := env.sched.Run(ctx, sess)
	require.NoError(t, err)
	require.Len(t, results, 5)

	// Checkpoint cleared, summary stored, scan terminal.
	_, err = env.checkpoints.Load(ctx, sess.ScanID)
	require.ErrorIs(t, err, audit.ErrNotFound)

	summary, err := env.scans.GetSummary(ctx, sess.ScanID)
	require.NoError(t, err)
	require.Equal(t, 5, summary.Total)
	require.Equal(t, 4, summary.Passed)
	require.Equal(t, 1, summary.Failed)

	scan, err := env.scans.GetScan(ctx, sess.ScanID)
	require.NoError(t, err)
	require.Equal(t, audit.ScanStatusSucceeded, scan.Status)
	require.Equal(t, 3, scan.Counters.BatchesCompleted)

	// Rendered once, archived once.
	require.Equal(t, 1, env.renderer.calls)
	require.Equal(t, 1, env.blobs.Len())
}

func TestRunThrottlesEveryCallAfterTheFirst(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, okRenderer(), passingJudge())

	sess, err := env.sched.NewSession(ctx, "https://example.com", makeRules(4))
	require.NoError(t, err)

	_, err = env.sched.Run(ctx, sess)
	require.NoError(t, err)

	// Batch size 2 means two batches; the spacing spans the batch boundary.
	// Clock is frozen, so each non-first call waits the full window.
	require.Len(t, env.slept, 3)
	for _, d := range env.slept {
		require.Equal(t, 10*time.Second, d)
	}
	require.Equal(t, []string{"r0", "r1", "r2", "r3"}, env.judge.judged)
}

func TestRunDegradesBatchOnRenderFailure(t *testing.T) {
	ctx := context.Background()
	renderer := &fakeRenderer{render: func(context.Context, string) (audit.PageContext, error) {
		return audit.PageContext{}, errors.New("browser crashed")
	}}
	env := newTestEnv(t, renderer, passingJudge())

	sess, err := env.sched.NewSession(ctx, "https://example.com", makeRules(3))
	require.NoError(t, err)

	results, err := env.sched.Run(ctx, sess)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		require.False(t, r.Passed)
		require.Contains(t, r.Reason, "could not be rendered")
	}
	require.Empty(t, env.judge.judged)

	scan, err := env.scans.GetScan(ctx, sess.ScanID)
	require.NoError(t, err)
	require.Equal(t, audit.ScanStatusPartial, scan.Status)
}

func TestResumeContinuesFromCheckpoint(t *testing.T) {
	ctx := context.Background()

	// Reference: a full uninterrupted run.
	ref := newTestEnv(t, okRenderer(), passingJudge())
	refSess, err := ref.sched.NewSession(ctx, "https://example.com", makeRules(5))
	require.NoError(t, err)
	refResults, err := ref.sched.Run(ctx, refSess)
	require.NoError(t, err)

	// Interrupted run: first batch already checkpointed, then a resume.
	env := newTestEnv(t, okRenderer(), passingJudge())
	sess, err := env.sched.NewSession(ctx, "https://example.com", makeRules(5))
	require.NoError(t, err)

	firstBatch := sess.Batches[0]
	var done []audit.ScanResult
	for _, rule := range firstBatch.Rules {
		res, _ := env.judge.evaluate(rule)
		done = append(done, res)
	}
	require.NoError(t, env.checkpoints.Save(ctx, audit.Checkpoint{
		ScanID:  sess.ScanID,
		URL:     sess.URL,
		Batches: sess.Batches[1:],
		Results: done,
	}))

	resumed, err := env.sched.Resume(ctx, sess.ScanID)
	require.NoError(t, err)
	require.Len(t, resumed.Batches, 2)
	require.Len(t, resumed.Results, 2)

	results, err := env.sched.Run(ctx, resumed)
	require.NoError(t, err)
	require.Equal(t, refResults, results)

	// Only the unfinished rules were judged again.
	require.Equal(t, []string{"r2", "r3", "r4"}, env.judge.judged)
}

func TestResumeUnknownScan(t *testing.T) {
	env := newTestEnv(t, okRenderer(), passingJudge())
	_, err := env.sched.Resume(context.Background(), "missing")
	require.ErrorIs(t, err, audit.ErrNotFound)
}

func TestRunEmitsLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, okRenderer(), passingJudge())

	sess, err := env.sched.NewSession(ctx, "https://example.com", makeRules(3))
	require.NoError(t, err)
	_, err = env.sched.Run(ctx, sess)
	require.NoError(t, err)
	require.NoError(t, env.hub.Close(ctx))

	events := env.sink.Events()
	require.NotEmpty(t, events)
	require.Equal(t, notify.KindScanStarted, events[0].Kind)
	require.Equal(t, notify.KindScanFinished, events[len(events)-1].Kind)

	var batchEvents int
	for _, evt := range events {
		if evt.Kind == notify.KindBatchCompleted {
			batchEvents++
		}
	}
	require.Equal(t, 2, batchEvents)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	env := newTestEnv(t, okRenderer(), passingJudge())

	sess, err := env.sched.NewSession(context.Background(), "https://example.com", makeRules(4))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = env.sched.Run(ctx, sess)
	require.ErrorIs(t, err, context.Canceled)

	// The checkpoint survives for a later resume.
	cp, cperr := env.checkpoints.Load(context.Background(), sess.ScanID)
	require.NoError(t, cperr)
	require.Len(t, cp.Batches, 2)
}

func TestNewSessionRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t, okRenderer(), passingJudge())

	_, err := env.sched.NewSession(context.Background(), "ftp://example.com", makeRules(2))
	require.ErrorIs(t, err, audit.ErrInvalidURL)

	_, err = env.sched.NewSession(context.Background(), "https://example.com", nil)
	require.ErrorIs(t, err, audit.ErrInvalidInput)
}
