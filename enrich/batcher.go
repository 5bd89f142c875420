package enrich

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"devsheet/activity"
)

// Request is one item submitted for rewriting.
type Request struct {
	ID         string
	RawText    string
	Source     activity.Source
	LinkedRefs []string
}

// Rewrite is one rewritten text, tied back to its request by ID.
type Rewrite struct {
	ID   string
	Text string
}

// Service turns a batch of raw work notes into professional rewrites. The
// response must be equal-length and order-preserving; the batcher treats any
// violation as a full-batch failure because a shifted entry cannot be safely
// re-attributed.
type Service interface {
	EnrichBatch(ctx context.Context, batch []Request) ([]Rewrite, error)
}

// Report lists which item IDs were rewritten by the service and which fell
// back to their raw text.
type Report struct {
	Succeeded []string
	Failed    []string
}

type BatcherConfig struct {
	BatchSize   int
	MaxAttempts int
	Workers     int
	Backoff     time.Duration
	// Progress, when set, is called after each finished batch.
	Progress func(done, total int)
}

type Batcher struct {
	service Service
	cfg     BatcherConfig
}

func NewBatcher(service Service, cfg BatcherConfig) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &Batcher{service: service, cfg: cfg}
}

// Enrich fills EnrichedText for every log item that lacks one. Items whose
// batch ultimately fails fall back to their raw text, so the postcondition
// holds regardless of service behavior: no item leaves without enriched text.
func (b *Batcher) Enrich(ctx context.Context, log *activity.Log) (*Report, error) {
	pending := make([]Request, 0, log.Len())
	for _, item := range log.Items() {
		if item.EnrichedText != "" {
			continue
		}
		pending = append(pending, Request{
			ID:         item.ID,
			RawText:    item.RawText,
			Source:     item.Source,
			LinkedRefs: item.LinkedRefs,
		})
	}

	report := &Report{}
	if len(pending) == 0 {
		return report, nil
	}

	batches := partition(pending, b.cfg.BatchSize)
	outcomes := make([][]Rewrite, len(batches))
	failed := make([]bool, len(batches))

	// Batches are independent, so a few may be in flight at once; outcomes
	// are slotted by batch index so the result is identical to sequential
	// execution.
	jobs := make(chan int)
	var wg sync.WaitGroup
	var progressMu sync.Mutex
	done := 0

	workers := b.cfg.Workers
	if workers > len(batches) {
		workers = len(batches)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				rewrites, err := b.enrichWithRetry(ctx, batches[idx])
				if err != nil {
					failed[idx] = true
				} else {
					outcomes[idx] = rewrites
				}
				if b.cfg.Progress != nil {
					progressMu.Lock()
					done++
					b.cfg.Progress(done, len(batches))
					progressMu.Unlock()
				}
			}
		}()
	}
	for idx := range batches {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for idx, batch := range batches {
		if failed[idx] {
			for _, req := range batch {
				log.SetEnriched(req.ID, req.RawText)
				report.Failed = append(report.Failed, req.ID)
			}
			continue
		}
		for _, rewrite := range outcomes[idx] {
			log.SetEnriched(rewrite.ID, rewrite.Text)
			report.Succeeded = append(report.Succeeded, rewrite.ID)
		}
	}
	sort.Strings(report.Succeeded)
	sort.Strings(report.Failed)
	return report, nil
}

func (b *Batcher) enrichWithRetry(ctx context.Context, batch []Request) ([]Rewrite, error) {
	var lastErr error
	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := b.cfg.Backoff * time.Duration(1<<(attempt-2))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		rewrites, err := b.service.EnrichBatch(ctx, batch)
		if err != nil {
			lastErr = err
			continue
		}
		if err := validateRewrites(batch, rewrites); err != nil {
			lastErr = err
			continue
		}
		return rewrites, nil
	}
	return nil, lastErr
}

// validateRewrites enforces the order/length contract.
func validateRewrites(batch []Request, rewrites []Rewrite) error {
	if len(rewrites) != len(batch) {
		return fmt.Errorf("enrichment returned %d entries for a batch of %d", len(rewrites), len(batch))
	}
	for i, rewrite := range rewrites {
		if rewrite.ID != batch[i].ID {
			return fmt.Errorf("enrichment response out of order at %d: got %q, want %q", i, rewrite.ID, batch[i].ID)
		}
		if rewrite.Text == "" {
			return fmt.Errorf("enrichment returned empty text for %q", rewrite.ID)
		}
	}
	return nil
}

func partition(requests []Request, size int) [][]Request {
	batches := make([][]Request, 0, (len(requests)+size-1)/size)
	for start := 0; start < len(requests); start += size {
		end := start + size
		if end > len(requests) {
			end = len(requests)
		}
		batches = append(batches, requests[start:end])
	}
	return batches
}
