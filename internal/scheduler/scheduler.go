// Package scheduler drives a scan through its batches: render, judge each
// rule sequentially, checkpoint at every batch boundary.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pagevet/pagevet/internal/aggregate"
	"github.com/pagevet/pagevet/internal/audit"
	"github.com/pagevet/pagevet/internal/metrics"
	"github.com/pagevet/pagevet/internal/notify"
	"github.com/pagevet/pagevet/internal/summary"
)

// Judge evaluates one rule against a page summary, returning the verdict and
// how many times the oracle call was retried.
type Judge interface {
	Evaluate(ctx context.Context, pageSummary string, rule audit.Rule, url string) (audit.ScanResult, int)
}

// Config tunes batching and oracle pacing.
type Config struct {
	BatchSize      int
	MinOracleDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MinOracleDelay <= 0 {
		c.MinOracleDelay = DefaultMinOracleDelay
	}
}

// Deps carries the scheduler's collaborators. Renderer, Judge, Checkpoints,
// Scans, IDs and Clock are required; Blobs and Hub are optional.
type Deps struct {
	Renderer    audit.Renderer
	Judge       Judge
	Checkpoints audit.CheckpointStore
	Scans       audit.ScanStore
	Blobs       audit.BlobStore
	Hub         *notify.Hub
	IDs         audit.IDGenerator
	Clock       audit.Clock
	Logger      *zap.Logger
}

// Scheduler owns the batch loop for scans.
type Scheduler struct {
	cfg      Config
	deps     Deps
	throttle *Throttle
	logger   *zap.Logger
}

// New constructs a Scheduler.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	cfg.applyDefaults()
	switch {
	case deps.Renderer == nil:
		return nil, fmt.Errorf("%w: renderer is required", audit.ErrInvalidInput)
	case deps.Judge == nil:
		return nil, fmt.Errorf("%w: judge is required", audit.ErrInvalidInput)
	case deps.Checkpoints == nil:
		return nil, fmt.Errorf("%w: checkpoint store is required", audit.ErrInvalidInput)
	case deps.Scans == nil:
		return nil, fmt.Errorf("%w: scan store is required", audit.ErrInvalidInput)
	case deps.IDs == nil:
		return nil, fmt.Errorf("%w: id generator is required", audit.ErrInvalidInput)
	case deps.Clock == nil:
		return nil, fmt.Errorf("%w: clock is required", audit.ErrInvalidInput)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:      cfg,
		deps:     deps,
		throttle: NewThrottle(cfg.MinOracleDelay, deps.Clock),
		logger:   deps.Logger,
	}, nil
}

// Session is the mutable state of one scan invocation. lastCall spans batch
// boundaries so oracle pacing holds across the whole scan.
type Session struct {
	ScanID  string
	URL     string
	Batches []audit.Batch
	Results []audit.ScanResult

	lastCall    time.Time
	page        *audit.PageContext
	pageSummary string
	counters    audit.ScanCounters
	renderFails int
}

// NewSession validates the input, partitions the rules, records the scan and
// persists the initial checkpoint so a crash before the first batch is
// already resumable.
func (s *Scheduler) NewSession(ctx context.Context, rawURL string, rules []audit.Rule) (*Session, error) {
	normalized, err := audit.ValidateScanInput(rawURL, rules)
	if err != nil {
		return nil, err
	}
	scanID, err := s.deps.IDs.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate scan id: %w", err)
	}
	batches, err := Partition(normalized, rules, s.cfg.BatchSize, s.deps.IDs, s.deps.Clock)
	if err != nil {
		return nil, err
	}

	if err := s.deps.Scans.CreateScan(ctx, audit.Scan{
		ID:        scanID,
		URL:       normalized,
		Status:    audit.ScanStatusQueued,
		Submitted: s.deps.Clock.Now(),
		RuleCount: len(rules),
	}); err != nil {
		return nil, fmt.Errorf("create scan record: %w", err)
	}

	if err := s.deps.Checkpoints.Save(ctx, audit.Checkpoint{
		ScanID:  scanID,
		URL:     normalized,
		Batches: batches,
	}); err != nil {
		return nil, fmt.Errorf("save initial checkpoint: %w", err)
	}

	return &Session{ScanID: scanID, URL: normalized, Batches: batches}, nil
}

// Resume rebuilds a session from a persisted checkpoint. The accumulated
// results carry over and only the remaining batches will run.
func (s *Scheduler) Resume(ctx context.Context, scanID string) (*Session, error) {
	cp, err := s.deps.Checkpoints.Load(ctx, scanID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint for scan %s: %w", scanID, err)
	}
	sess := &Session{
		ScanID:  cp.ScanID,
		URL:     cp.URL,
		Batches: cp.Batches,
		Results: cp.Results,
	}
	for _, r := range cp.Results {
		if r.Passed {
			sess.counters.RulesPassed++
		} else {
			sess.counters.RulesFailed++
		}
	}
	return sess, nil
}

// Run processes every remaining batch in order, persisting a checkpoint
// after each. On success the checkpoint is cleared and the aggregated
// summary stored. On context cancellation the checkpoint is left in place
// for a later resume.
func (s *Scheduler) Run(ctx context.Context, sess *Session) ([]audit.ScanResult, error) {
	start := s.deps.Clock.Now()
	s.setStatus(ctx, sess, audit.ScanStatusRunning, "")
	s.emit(notify.Event{
		Kind:   notify.KindScanStarted,
		ScanID: sess.ScanID,
		URL:    sess.URL,
		TS:     s.deps.Clock.Now(),
	})

	remaining := sess.Batches
	for len(remaining) > 0 {
		if err := ctx.Err(); err != nil {
			s.setStatus(ctx, sess, audit.ScanStatusPartial, err.Error())
			s.emitFailed(sess, err)
			return sess.Results, fmt.Errorf("scan interrupted: %w", err)
		}

		batch := remaining[0]
		s.runBatch(ctx, sess, batch)
		remaining = remaining[1:]
		sess.Batches = remaining
		sess.counters.BatchesCompleted++
		metrics.ObserveBatch()

		if err := s.deps.Checkpoints.Save(ctx, audit.Checkpoint{
			ScanID:  sess.ScanID,
			URL:     sess.URL,
			Batches: remaining,
			Results: sess.Results,
		}); err != nil {
			s.setStatus(ctx, sess, audit.ScanStatusPartial, err.Error())
			s.emitFailed(sess, err)
			return sess.Results, fmt.Errorf("checkpoint batch %d: %w", batch.BatchIndex, err)
		}
		s.setStatus(ctx, sess, audit.ScanStatusRunning, "")
		s.emit(notify.Event{
			Kind:         notify.KindBatchCompleted,
			ScanID:       sess.ScanID,
			URL:          sess.URL,
			TS:           s.deps.Clock.Now(),
			BatchIndex:   batch.BatchIndex,
			TotalBatches: batch.TotalBatches,
			RulesPassed:  sess.counters.RulesPassed,
			RulesFailed:  sess.counters.RulesFailed,
		})
	}

	final := aggregate.Build(sess.Results)
	sess.Results = final.Results
	if err := s.deps.Scans.SetSummary(ctx, sess.ScanID, final); err != nil {
		s.setStatus(ctx, sess, audit.ScanStatusPartial, err.Error())
		return sess.Results, fmt.Errorf("store summary: %w", err)
	}
	if err := s.deps.Checkpoints.Clear(ctx, sess.ScanID); err != nil {
		s.logger.Warn("clear checkpoint failed",
			zap.String("scan_id", sess.ScanID), zap.Error(err))
	}

	status := audit.ScanStatusSucceeded
	if sess.renderFails > 0 {
		status = audit.ScanStatusPartial
	}
	s.setStatus(ctx, sess, status, "")
	metrics.ObserveScan(string(status))
	s.emit(notify.Event{
		Kind:        notify.KindScanFinished,
		ScanID:      sess.ScanID,
		URL:         sess.URL,
		TS:          s.deps.Clock.Now(),
		RulesPassed: final.Passed,
		RulesFailed: final.Failed,
		Dur:         s.deps.Clock.Now().Sub(start),
	})
	return sess.Results, nil
}

// runBatch judges every rule of the batch sequentially. A renderer failure
// degrades all of the batch's rules to failed verdicts and the scan moves on.
func (s *Scheduler) runBatch(ctx context.Context, sess *Session, batch audit.Batch) {
	page, err := s.ensureRendered(ctx, sess, batch)
	if err != nil {
		sess.renderFails++
		s.logger.Warn("render failed, degrading batch",
			zap.String("scan_id", sess.ScanID),
			zap.Int("batch_index", batch.BatchIndex),
			zap.Error(err),
		)
		for _, rule := range batch.Rules {
			s.record(sess, audit.ScanResult{
				RuleID:    rule.ID,
				RuleTitle: rule.Title,
				Passed:    false,
				Reason:    fmt.Sprintf("page could not be rendered: %v", err),
			})
		}
		return
	}

	for _, rule := range batch.Rules {
		waited, werr := s.throttle.Wait(ctx, sess.lastCall)
		if werr != nil {
			s.record(sess, audit.ScanResult{
				RuleID:    rule.ID,
				RuleTitle: rule.Title,
				Passed:    false,
				Reason:    "scan interrupted before judging",
			})
			continue
		}
		metrics.ObserveThrottleDelay(waited)

		judgeStart := s.deps.Clock.Now()
		res, retries := s.deps.Judge.Evaluate(ctx, sess.pageSummary, rule, page.URL)
		sess.lastCall = s.deps.Clock.Now()
		sess.counters.OracleRetries += retries
		metrics.ObserveOracleRetries(retries)
		metrics.ObserveJudge(sess.lastCall.Sub(judgeStart))
		metrics.ObserveRule(sess.URL, res.Passed)
		s.record(sess, res)
	}
}

// ensureRendered renders the page once per run and caches it for the
// remaining batches. The snapshot is archived to the blob store when one is
// configured; archival failures are logged and ignored.
func (s *Scheduler) ensureRendered(ctx context.Context, sess *Session, batch audit.Batch) (audit.PageContext, error) {
	if sess.page != nil {
		return *sess.page, nil
	}
	renderStart := s.deps.Clock.Now()
	page, err := s.deps.Renderer.Render(ctx, sess.URL)
	if err != nil {
		return audit.PageContext{}, err
	}
	metrics.ObserveRender(sess.URL, s.deps.Clock.Now().Sub(renderStart))
	sess.page = &page
	sess.pageSummary = summary.Summarize(page)
	s.archiveContext(ctx, sess, batch, page)
	return page, nil
}

func (s *Scheduler) archiveContext(ctx context.Context, sess *Session, batch audit.Batch, page audit.PageContext) {
	if s.deps.Blobs == nil {
		return
	}
	data, err := json.Marshal(page)
	if err != nil {
		s.logger.Warn("marshal page context failed", zap.Error(err))
		return
	}
	path := fmt.Sprintf("scans/%s/context-batch-%d.json", sess.ScanID, batch.BatchIndex)
	uri, err := s.deps.Blobs.PutObject(ctx, path, "application/json", data)
	if err != nil {
		s.logger.Warn("archive page context failed",
			zap.String("scan_id", sess.ScanID), zap.Error(err))
		return
	}
	s.logger.Debug("page context archived",
		zap.String("scan_id", sess.ScanID), zap.String("uri", uri))
}

func (s *Scheduler) record(sess *Session, res audit.ScanResult) {
	sess.Results = append(sess.Results, res)
	if res.Passed {
		sess.counters.RulesPassed++
	} else {
		sess.counters.RulesFailed++
	}
}

func (s *Scheduler) setStatus(ctx context.Context, sess *Session, status audit.ScanStatus, errText string) {
	if err := s.deps.Scans.UpdateScanStatus(ctx, sess.ScanID, status, errText, sess.counters); err != nil {
		s.logger.Warn("update scan status failed",
			zap.String("scan_id", sess.ScanID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) emit(evt notify.Event) {
	s.deps.Hub.Emit(evt)
}

func (s *Scheduler) emitFailed(sess *Session, cause error) {
	s.emit(notify.Event{
		Kind:        notify.KindScanFailed,
		ScanID:      sess.ScanID,
		URL:         sess.URL,
		TS:          s.deps.Clock.Now(),
		RulesPassed: sess.counters.RulesPassed,
		RulesFailed: sess.counters.RulesFailed,
		Note:        cause.Error(),
	})
}
