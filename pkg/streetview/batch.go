package streetview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/greenview-analytics/greenview/pkg/types"
)

// IndexedRequest pairs an acquisition request with its sequence index in the
// session's coordinate order.
type IndexedRequest struct {
	Index   int
	Request types.AcquisitionRequest
}

// BatchResult is the outcome of one download handed back to the
// orchestrator. Results arrive in completion order, not input order.
type BatchResult struct {
	Index   int
	Path    string
	Skipped bool
	Err     error
}

// DownloadBatch downloads the given requests with at most concurrency
// requests in flight and delivers per-item outcomes on the returned channel.
// The channel is closed once every request has an outcome.
//
// After the first quota failure no new downloads are started; in-flight
// downloads finish, and every request not yet started is reported with a
// quota error so no item is silently dropped. Context cancellation stops
// scheduling between items; unstarted requests are then not reported, which
// leaves them pending from the caller's perspective.
func (c *Client) DownloadBatch(ctx context.Context, reqs []IndexedRequest, dir string, concurrency int, delay time.Duration) <-chan BatchResult {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make(chan BatchResult, len(reqs))
	sem := semaphore.NewWeighted(int64(concurrency))

	go func() {
		defer close(results)

		var wg sync.WaitGroup
		var quotaHit atomic.Bool

		for i, ir := range reqs {
			if ctx.Err() != nil {
				break
			}
			if quotaHit.Load() {
				results <- BatchResult{
					Index: ir.Index,
					Err:   fmt.Errorf("download not started: %w", ErrQuotaExceeded),
				}
				continue
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}

			wg.Add(1)
			go func(ir IndexedRequest) {
				defer wg.Done()
				defer sem.Release(1)

				path, skipped, err := c.Download(ctx, ir.Index, ir.Request, dir)
				if err != nil && errors.Is(err, ErrQuotaExceeded) {
					quotaHit.Store(true)
				}
				results <- BatchResult{Index: ir.Index, Path: path, Skipped: skipped, Err: err}
			}(ir)

			// Politeness delay between request launches to stay under the
			// provider's rate limit.
			if delay > 0 && i < len(reqs)-1 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
				}
			}
		}

		wg.Wait()
	}()

	return results
}
