package locate

import (
	"context"
	"errors"
	"fmt"

	"github.com/cea-hpc/phobos/internal/dss"
	"github.com/cea-hpc/phobos/internal/logging/audit"
)

// reserve makes sure host holds n_data readable locks in every split and
// returns how many locks it had to take. Locks host already held are
// refreshed and count toward the quota. If a split stays short, every lock
// taken by this call is released and the call fails.
func (c *call) reserve(ctx context.Context, host string) (int, error) {
	caps := c.hosts[host]
	nData := c.layout.NData
	held := make([]int, c.layout.SplitCount())

	for s := range held {
		start, end := c.layout.Split(s)
		for i := start; i < end; i++ {
			loc, ok := c.extents.get(i)
			if !ok || loc.Owner != host || !caps.Accessible[i] {
				continue
			}
			if err := c.store.RefreshLock(ctx, loc.Medium.ID, host); err != nil {
				c.log.Warn().Err(err).Str("medium", loc.Medium.ID.String()).Msg("Cannot refresh lock")
				c.audit.LogLock(audit.ActionRefresh, loc.Medium.ID, host, audit.ResultFailed, err)
			} else {
				c.audit.LogLock(audit.ActionRefresh, loc.Medium.ID, host, audit.ResultOK, nil)
				if c.metrics != nil {
					c.metrics.RefreshedLeases.Inc()
				}
			}
			held[s]++
		}
	}

	var acquired []dss.MediumID
	for s := range held {
		start, end := c.layout.Split(s)
		for i := start; i < end && held[s] < nData; i++ {
			loc, ok := c.extents.get(i)
			if !ok || loc.Owner == host || !canRead(c.checker, caps, loc.Medium) {
				continue
			}

			err := c.store.Lock(ctx, loc.Medium.ID, host)
			if errors.Is(err, dss.ErrAlreadyLocked) {
				c.log.Info().Str("medium", loc.Medium.ID.String()).Msg("Medium locked by someone else")
				c.audit.LogLock(audit.ActionLock, loc.Medium.ID, host, audit.ResultRace, err)
				if c.metrics != nil {
					c.metrics.LockRaces.Inc()
				}
				continue
			}
			if err != nil {
				c.log.Warn().Err(err).Str("medium", loc.Medium.ID.String()).Msg("Cannot lock medium")
				c.audit.LogLock(audit.ActionLock, loc.Medium.ID, host, audit.ResultFailed, err)
				continue
			}
			c.audit.LogLock(audit.ActionLock, loc.Medium.ID, host, audit.ResultOK, nil)

			loc.Owner = host
			caps.Accessible[i] = true
			acquired = append(acquired, loc.Medium.ID)
			held[s]++
		}

		if held[s] < nData {
			c.log.Error().
				Str("host", host).
				Int("split", s).
				Int("held", held[s]).
				Int("needed", nData).
				Msg("Not enough leases for split")
			c.rollback(ctx, host, acquired)
			return 0, fmt.Errorf("%w: split %d: %d of %d", ErrInsufficientLeases, s, held[s], nData)
		}
	}
	return len(acquired), nil
}

// rollback releases locks taken by this call. The first failure is logged
// as a warning and the following ones at debug level.
func (c *call) rollback(ctx context.Context, host string, acquired []dss.MediumID) {
	if c.metrics != nil {
		c.metrics.Rollbacks.Inc()
	}
	// A cancelled caller must not leave locks behind.
	ctx = context.WithoutCancel(ctx)

	warned := false
	for _, id := range acquired {
		err := c.store.Unlock(ctx, id, host)
		if err == nil {
			c.audit.LogLock(audit.ActionRollback, id, host, audit.ResultOK, nil)
			continue
		}
		c.audit.LogLock(audit.ActionRollback, id, host, audit.ResultFailed, err)
		if c.metrics != nil {
			c.metrics.RollbackFailures.Inc()
		}

		event := c.log.Debug()
		if !warned {
			event = c.log.Warn()
			warned = true
		}
		event = event.Err(err).Str("medium", id.String())
		if errors.Is(err, dss.ErrLockNotFound) || errors.Is(err, dss.ErrLockOwnedByOther) {
			event.Msg("Lock revoked by a racing party before rollback")
		} else {
			event.Msg("Failed to release lock during rollback")
		}
	}
}
