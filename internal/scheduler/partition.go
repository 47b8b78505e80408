package scheduler

import (
	"fmt"

	"github.com/pagevet/pagevet/internal/audit"
)

// DefaultBatchSize is the rule count per batch before remainder balancing.
const DefaultBatchSize = 5

// Partition splits the rule set into ordered batches. The batch count is
// ceil(len(rules)/batchSize) and the remainder is spread so the earliest
// batches carry one extra rule each; batch sizes never differ by more than
// one. Rule order within and across batches is preserved.
func Partition(url string, rules []audit.Rule, batchSize int, ids audit.IDGenerator, clock audit.Clock) ([]audit.Batch, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	n := len(rules)
	if n == 0 {
		return nil, fmt.Errorf("%w: no rules to partition", audit.ErrInvalidInput)
	}

	total := (n + batchSize - 1) / batchSize
	base := n / total
	extra := n % total

	now := clock.Now()
	batches := make([]audit.Batch, 0, total)
	offset := 0
	for i := 0; i < total; i++ {
		size := base
		if i < extra {
			size++
		}
		id, err := ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate batch id: %w", err)
		}
		batches = append(batches, audit.Batch{
			BatchID:      id,
			URL:          url,
			Rules:        append([]audit.Rule(nil), rules[offset:offset+size]...),
			BatchIndex:   i,
			TotalBatches: total,
			Timestamp:    now,
		})
		offset += size
	}
	return batches, nil
}
