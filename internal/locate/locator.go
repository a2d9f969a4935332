package locate

import (
	"context"
	"fmt"

	"github.com/cea-hpc/phobos/internal/metrics"
)

// locateAll queries the store for the lock holder and metadata of every
// extent's medium. A failed query drops only that extent; a split whose
// queries all fail makes the object unlocatable, whatever the other splits
// look like.
func (c *call) locateAll(ctx context.Context) error {
	for s := 0; s < c.layout.SplitCount(); s++ {
		start, end := c.layout.Split(s)
		failed := 0

		for i := start; i < end; i++ {
			ext := &c.layout.Extents[i]
			owner, info, err := c.store.LocateMedium(ctx, ext.Medium)
			if err != nil {
				c.log.Warn().Err(err).
					Int("split", s).
					Int("extent", i).
					Str("medium", ext.Medium.String()).
					Msg("Cannot locate medium, dropping extent")
				c.extents.prune(i)
				c.countPruned(metrics.PruneQueryFailed)
				failed++
				continue
			}
			c.extents.set(i, ExtentLocation{Index: i, Extent: ext, Medium: info, Owner: owner})
		}

		if failed == end-start {
			c.extents.pruneAll()
			c.log.Error().Int("split", s).Msg("No extent of split could be located")
			return fmt.Errorf("%w: split %d", ErrSplitDark, s)
		}
	}
	return nil
}
