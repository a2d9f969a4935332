// Package locate picks the host that should serve a read of an object and
// reserves the medium locks that host needs.
//
// A call runs through fixed stages: every extent's medium is located in the
// state store, extents no host can read are dropped, hosts that cannot read
// enough of every split are dropped, the remaining hosts are scored by the
// locks they already hold, and the winner tops its locks up to the data
// extent quota of every split. A shortfall releases the locks taken by the
// call and fails it. There is no retry inside a call.
package locate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cea-hpc/phobos/internal/dss"
	"github.com/cea-hpc/phobos/internal/layout"
	"github.com/cea-hpc/phobos/internal/logging/audit"
	"github.com/cea-hpc/phobos/internal/metrics"
)

// Result is the outcome of a successful locate call.
type Result struct {
	// Host is the host that should serve the read.
	Host string
	// NewLeases counts the locks taken by this call. Locks the host already
	// held are refreshed but not counted.
	NewLeases int
	// Media lists, in layout order, the media Host holds and can read.
	Media []dss.MediumID
}

// Config contains configuration for a Locator.
type Config struct {
	Store   dss.Store
	Checker DeviceChecker
	Logger  zerolog.Logger
	Metrics *metrics.LocateMetrics // optional
	Audit   *audit.Logger          // optional
	// Hostname resolves our own host when a call has no focus host.
	Hostname func() (string, error)
}

// Locator runs locate calls against a state store. It holds no per-call
// state, so concurrent calls are safe; contention between them is settled
// by the store's atomic lock primitive.
type Locator struct {
	store    dss.Store
	checker  DeviceChecker
	logger   zerolog.Logger
	metrics  *metrics.LocateMetrics
	audit    *audit.Logger
	hostname func() (string, error)
}

// New creates a Locator.
func New(cfg Config) *Locator {
	hostname := cfg.Hostname
	if hostname == nil {
		hostname = func() (string, error) { return "", nil }
	}
	return &Locator{
		store:    cfg.Store,
		checker:  cfg.Checker,
		logger:   cfg.Logger.With().Str("component", "locate").Logger(),
		metrics:  cfg.Metrics,
		audit:    cfg.Audit,
		hostname: hostname,
	}
}

// call is the working set of one locate invocation.
type call struct {
	*Locator
	log    zerolog.Logger
	layout *layout.Layout
	focus  string

	extents extentSlots
	hosts   map[string]*HostCapabilities
}

// Locate selects the host that should read the object described by lyt and
// reserves enough medium locks for it to rebuild every split. An empty
// focusHost means our own host.
func (l *Locator) Locate(ctx context.Context, lyt *layout.Layout, focusHost string) (res *Result, err error) {
	start := time.Now()
	defer func() {
		if res != nil {
			l.audit.LogLocate(lyt.ObjectID, focusHost, res.Host, res.NewLeases, nil)
		} else {
			l.audit.LogLocate(lyt.ObjectID, focusHost, "", 0, err)
		}
		if l.metrics == nil {
			return
		}
		l.metrics.Calls.WithLabelValues(resultLabel(err)).Inc()
		l.metrics.CallDuration.Observe(time.Since(start).Seconds())
		if res != nil {
			l.metrics.NewLeases.Add(float64(res.NewLeases))
		}
	}()

	if err := lyt.Validate(); err != nil {
		return nil, err
	}
	if focusHost == "" {
		focusHost, err = l.hostname()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSelfHostUnknown, err)
		}
		if focusHost == "" {
			return nil, ErrSelfHostUnknown
		}
	}

	c := &call{
		Locator: l,
		log: l.logger.With().
			Str("locate_id", uuid.NewString()).
			Str("object", lyt.ObjectID).
			Str("focus_host", focusHost).
			Logger(),
		layout:  lyt,
		focus:   focusHost,
		extents: newExtentSlots(len(lyt.Extents)),
	}
	return c.run(ctx)
}

func (c *call) run(ctx context.Context) (*Result, error) {
	c.log.Debug().
		Int("extents", len(c.layout.Extents)).
		Int("n_data", c.layout.NData).
		Int("n_parity", c.layout.NParity).
		Msg("Locating object")

	if err := c.locateAll(ctx); err != nil {
		return nil, err
	}

	c.hosts = BuildHostTable(c.usableDevices(ctx), len(c.layout.Extents), c.focus)

	c.markAccessibility()
	c.filterInaccessibleExtents()
	if err := c.rejectUnreachableSplits(); err != nil {
		c.extents.pruneAll()
		return nil, err
	}
	c.filterHostsWithPartialAccess()
	if len(c.hosts) == 0 {
		c.extents.pruneAll()
		return nil, ErrNoViableHost
	}

	host, ok := c.selectHost()
	if !ok {
		c.extents.pruneAll()
		return nil, ErrNoHostSelected
	}
	c.log.Debug().Str("host", host).Msg("Host selected")

	newLeases, err := c.reserve(ctx, host)
	if err != nil {
		c.extents.pruneAll()
		return nil, err
	}

	res := &Result{Host: host, NewLeases: newLeases, Media: c.heldMedia(host)}
	c.extents.pruneAll()

	c.log.Info().
		Str("host", host).
		Int("new_leases", newLeases).
		Int("media", len(res.Media)).
		Msg("Object located")
	return res, nil
}

// usableDevices gathers usable devices of every family the layout uses. A
// failing family is logged and skipped.
func (c *call) usableDevices(ctx context.Context) []dss.Device {
	var all []dss.Device
	for _, family := range c.layout.Families() {
		devs, err := c.store.UsableDevices(ctx, family, "")
		if err != nil {
			c.log.Warn().Err(err).Str("family", string(family)).Msg("Cannot list usable devices")
			continue
		}
		all = append(all, devs...)
	}
	return all
}

// heldMedia lists media locked by host that it can read, in layout order.
func (c *call) heldMedia(host string) []dss.MediumID {
	caps := c.hosts[host]
	var media []dss.MediumID
	for i := range c.extents {
		loc, ok := c.extents.get(i)
		if !ok || loc.Owner != host || !caps.Accessible[i] {
			continue
		}
		media = append(media, loc.Medium.ID)
	}
	return media
}

func (c *call) countPruned(reason string) {
	if c.metrics != nil {
		c.metrics.PrunedExtents.WithLabelValues(reason).Inc()
	}
}
