package lease

import (
	"context"
	"time"

	"github.com/zircuit-labs/zkr-go-sched/scope"
	"github.com/zircuit-labs/zkr-go-sched/task/periodic"
)

// releaseTimeout bounds the release call after guarded work completes, which
// may run under an already-cancelled tick context during shutdown.
const releaseTimeout = time.Second

// Guard wraps a work unit so that it runs on at most one instance across
// the cluster per tick. The tick first tries to acquire the lease on key;
// if another instance holds it, the tick is skipped entirely: another
// instance is handling it and that is not an error. On success the work
// runs and the lease is released afterwards.
//
// Work expected to outlast ttl should renew from within (see
// Coordinator.KeepAlive); Guard itself does not renew.
func Guard(c *Coordinator, key string, ttl time.Duration, work periodic.Work) periodic.Work {
	return periodic.WorkFunc(func(ctx context.Context, sc scope.Context) error {
		l, ok, err := c.TryAcquire(ctx, key, ttl)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
			defer cancel()
			_ = c.Release(releaseCtx, l) // logged inside
		}()

		return work.Run(ctx, sc)
	})
}
