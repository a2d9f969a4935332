package locate

import (
	"fmt"

	"github.com/cea-hpc/phobos/internal/dss"
	"github.com/cea-hpc/phobos/internal/metrics"
)

// markAccessibility fills the per-host accessibility vectors. A locked
// extent is only ever attributed to its lock holder: if the holder cannot
// read it, it stays inaccessible rather than being handed to another host.
func (c *call) markAccessibility() {
	hosts := sortedHosts(c.hosts)

	for i := range c.extents {
		loc, ok := c.extents.get(i)
		if !ok {
			continue
		}

		if loc.Owner != "" {
			caps, known := c.hosts[loc.Owner]
			if !known {
				c.log.Debug().
					Int("extent", i).
					Str("medium", loc.Medium.ID.String()).
					Str("owner", loc.Owner).
					Msg("Medium locked by a host without usable devices")
				continue
			}
			if canRead(c.checker, caps, loc.Medium) {
				caps.Accessible[i] = true
			} else {
				c.log.Warn().
					Int("extent", i).
					Str("medium", loc.Medium.ID.String()).
					Str("owner", loc.Owner).
					Msg("Medium locked by a host with no compatible device")
			}
			continue
		}

		for _, host := range hosts {
			caps := c.hosts[host]
			caps.Accessible[i] = canRead(c.checker, caps, loc.Medium)
		}
	}
}

// filterInaccessibleExtents drops extents that no host can read.
func (c *call) filterInaccessibleExtents() {
	for i := range c.extents {
		if _, ok := c.extents.get(i); !ok {
			continue
		}
		reachable := false
		for _, caps := range c.hosts {
			if caps.Accessible[i] {
				reachable = true
				break
			}
		}
		if !reachable {
			c.log.Debug().Int("extent", i).Msg("No host can read extent, dropping it")
			c.extents.prune(i)
			c.countPruned(metrics.PruneInaccessible)
		}
	}
}

// rejectUnreachableSplits fails when a split has no extent left.
func (c *call) rejectUnreachableSplits() error {
	for s := 0; s < c.layout.SplitCount(); s++ {
		start, end := c.layout.Split(s)
		if c.extents.presentIn(start, end) == 0 {
			c.log.Error().Int("split", s).Msg("No host can read any extent of split")
			return fmt.Errorf("%w: split %d", ErrSplitUnreachable, s)
		}
	}
	return nil
}

// filterHostsWithPartialAccess drops every host that, for some split, cannot
// read n_data extents or does not have n_data distinct compatible devices
// for them. This assumes the extents of a split are read at the same time
// on distinct drives, which rules out hosts that could read them one after
// the other with fewer drives.
func (c *call) filterHostsWithPartialAccess() {
	nData := c.layout.NData
	var drop []string

	for _, host := range sortedHosts(c.hosts) {
		caps := c.hosts[host]
		for s := 0; s < c.layout.SplitCount(); s++ {
			start, end := c.layout.Split(s)
			readable := 0
			devices := make(map[*dss.Device]bool)

			for i := start; i < end; i++ {
				loc, ok := c.extents.get(i)
				if !ok || !caps.Accessible[i] {
					continue
				}
				readable++
				for _, dev := range caps.Devices {
					if c.checker.CanRead(loc.Medium, dev) {
						devices[dev] = true
					}
				}
			}

			if readable < nData || len(devices) < nData {
				c.log.Debug().
					Str("host", host).
					Int("split", s).
					Int("readable", readable).
					Int("devices", len(devices)).
					Msg("Host cannot read enough of split")
				drop = append(drop, host)
				break
			}
		}
	}

	for _, host := range drop {
		delete(c.hosts, host)
	}
}
