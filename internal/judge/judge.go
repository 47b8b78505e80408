// Package judge evaluates a single (page context, rule) pair against the
// judging oracle, with retry on rate limits and failure classification.
package judge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pagevet/pagevet/internal/audit"
	"github.com/pagevet/pagevet/internal/summary"
)

// Judge drives one judging call per rule. A rule's failure is always
// contained to its own ScanResult so one bad rule never aborts a batch.
type Judge struct {
	oracle     audit.Oracle
	policy     RetryPolicy
	classifier *audit.Classifier
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// New constructs a Judge.
func New(oracle audit.Oracle, policy RetryPolicy, logger *zap.Logger) *Judge {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Judge{
		oracle:     oracle,
		policy:     policy,
		classifier: audit.NewClassifier(),
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// Evaluate judges one rule against the page summary. It never returns an
// error: oracle failures are classified into a failed ScanResult with a
// human-readable reason. The second return value is the number of
// rate-limit retries consumed.
func (j *Judge) Evaluate(ctx context.Context, pageSummary string, rule audit.Rule, url string) (audit.ScanResult, int) {
	prompt := j.buildPrompt(pageSummary, rule, url)

	raw, retries, err := j.invoke(ctx, prompt)
	if err != nil {
		j.logger.Warn("rule judging failed",
			zap.String("rule_id", rule.ID),
			zap.Int("retries", retries),
			zap.Error(err),
		)
		return failedResult(rule, classifyFailure(err, j.policy.MaxAttempts)), retries
	}

	verdict, perr := ExtractVerdict(raw)
	if perr != nil {
		j.logger.Warn("oracle verdict unparsable", zap.String("rule_id", rule.ID), zap.Error(perr))
		return failedResult(rule, "the oracle returned an unreadable verdict for this rule"), retries
	}

	return audit.ScanResult{
		RuleID:    rule.ID,
		RuleTitle: rule.Title,
		Passed:    verdict.Passed,
		Reason:    summary.Truncate(verdict.Reason, audit.MaxReasonLength),
	}, retries
}

// invoke runs the judging state machine: Calling Oracle -> {Success |
// RateLimited -> Backoff -> retry | FatalError}. Exhausting retries
// surfaces the last error.
func (j *Judge) invoke(ctx context.Context, prompt string) (string, int, error) {
	retries := 0
	var lastErr error
	for attempt := 0; attempt < j.policy.MaxAttempts; attempt++ {
		raw, err := j.oracle.Complete(ctx, prompt)
		if err == nil {
			return raw, retries, nil
		}
		lastErr = err
		if !IsRateLimit(err) || errors.Is(err, audit.ErrQuotaExceeded) || errors.Is(err, audit.ErrCreditsExhausted) {
			return "", retries, err
		}
		if attempt == j.policy.MaxAttempts-1 {
			break
		}
		delay, hinted := RetryAfterHint(err)
		if !hinted {
			delay = j.policy.Backoff(attempt)
		}
		j.logger.Debug("oracle rate limited, backing off",
			zap.Duration("delay", delay),
			zap.Bool("hinted", hinted),
			zap.Int("attempt", attempt+1),
		)
		if serr := j.sleep(ctx, delay); serr != nil {
			return "", retries, serr
		}
		retries++
	}
	return "", retries, lastErr
}

func (j *Judge) buildPrompt(pageSummary string, rule audit.Rule, url string) string {
	category := j.classifier.Classify(rule)
	var b strings.Builder
	b.WriteString("You are auditing the webpage at ")
	b.WriteString(url)
	b.WriteString(" against a single rule.\n\n")
	b.WriteString("RULE: ")
	b.WriteString(rule.Title)
	b.WriteString("\nDETAILS: ")
	b.WriteString(rule.Description)
	b.WriteString("\nCATEGORY: ")
	b.WriteString(string(category))
	b.WriteString("\n\nPAGE CONTEXT:\n")
	b.WriteString(summary.RuleSlice(pageSummary))
	b.WriteString("\n\nDecide whether the page satisfies the rule. ")
	b.WriteString("Respond with only a JSON object of the shape ")
	b.WriteString(`{"passed": boolean, "reason": string}`)
	b.WriteString(fmt.Sprintf(" where reason is at most %d characters. No other text.", audit.MaxReasonLength))
	return b.String()
}

func failedResult(rule audit.Rule, reason string) audit.ScanResult {
	return audit.ScanResult{
		RuleID:    rule.ID,
		RuleTitle: rule.Title,
		Passed:    false,
		Reason:    reason,
	}
}

// classifyFailure maps oracle errors to distinct human-readable reasons so
// the UI always has something to render per rule.
func classifyFailure(err error, maxAttempts int) string {
	switch {
	case errors.Is(err, audit.ErrCreditsExhausted):
		return "judging skipped: the oracle account is out of credits"
	case errors.Is(err, audit.ErrQuotaExceeded):
		return "judging skipped: the oracle quota is exhausted for this period"
	case IsRateLimit(err):
		return fmt.Sprintf("judging failed: the oracle stayed rate limited across %d attempts", maxAttempts)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return "judging aborted: the scan ran out of time before this rule was judged"
	default:
		return summary.Truncate("judging failed: "+err.Error(), audit.MaxReasonLength)
	}
}
