// Package resource bounds the resources spent on indexing.
//
//   - Workers: a weighted semaphore limits concurrent location indexing.
//   - IO: a token bucket limits bytes read from locations per second.
//   - Memory: a fail-fast budget for cached class bytes.
//
//	rc := resource.NewController(resource.Config{
//	    MaxWorkers:         4,
//	    IOLimitBytesPerSec: 64 << 20,
//	    MemoryLimitBytes:   256 << 20,
//	})
//
//	if err := rc.AcquireWorker(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseWorker()
//
// A nil *Controller imposes no limits.
package resource
