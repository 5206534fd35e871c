package pipeline

import (
	"context"
	"sort"
	"sync"

	"github.com/MeKo-Tech/billscan/internal/billing"
	"github.com/MeKo-Tech/billscan/internal/extract"
	"github.com/MeKo-Tech/billscan/internal/rasterize"
)

type pageJob struct {
	page rasterize.PageImage
}

type pageOutcome struct {
	index  int
	result billing.PageResult
	usage  extract.Usage
	err    *PageError
}

// processPages fans the pages out over a worker pool and reassembles the
// results in document order. Failed pages are dropped from the page list
// and recorded in PageErrors.
func (p *Pipeline) processPages(ctx context.Context, pages []rasterize.PageImage, progress ProgressCallback) *Result {
	workers := p.cfg.MaxWorkers
	if workers > len(pages) {
		workers = len(pages)
	}
	if workers < 1 {
		workers = 1
	}

	if progress == nil {
		progress = NoOpProgressCallback{}
	}
	progress.OnStart(len(pages))
	defer progress.OnComplete()

	jobs := make(chan pageJob, len(pages))
	outcomes := make(chan pageOutcome, len(pages))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				select {
				case <-ctx.Done():
					outcomes <- pageOutcome{
						index: job.page.Index,
						err:   &PageError{Page: job.page.Index, Stage: "context", Err: ctx.Err()},
					}
					continue
				default:
				}
				res, usage, perr := p.processPage(ctx, job.page)
				outcomes <- pageOutcome{index: job.page.Index, result: res, usage: usage, err: perr}
			}
		}()
	}

	for _, page := range pages {
		jobs <- pageJob{page: page}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	result := &Result{PageCount: len(pages)}
	collected := make([]pageOutcome, 0, len(pages))
	done := 0
	for outcome := range outcomes {
		done++
		result.Usage.Add(outcome.usage)
		if outcome.err != nil {
			progress.OnError(outcome.index, outcome.err)
		} else {
			progress.OnProgress(done, len(pages))
		}
		collected = append(collected, outcome)
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

	pageResults := make([]billing.PageResult, 0, len(collected))
	for _, outcome := range collected {
		if outcome.err != nil {
			result.PageErrors = append(result.PageErrors, outcome.err)
			continue
		}
		pageResults = append(pageResults, outcome.result)
	}
	result.Extraction = p.reconciler.Reconcile(pageResults)
	return result
}
