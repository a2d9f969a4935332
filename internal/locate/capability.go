package locate

import (
	"maps"
	"slices"

	"github.com/cea-hpc/phobos/internal/dss"
)

// DeviceChecker decides whether a device can mount a medium.
type DeviceChecker interface {
	CanRead(medium *dss.MediumInfo, dev *dss.Device) bool
}

// HostCapabilities is what one host brings to a locate call: the devices it
// owns (borrowed from the device query result) and, per layout extent,
// whether it can read that extent.
type HostCapabilities struct {
	Host       string
	Devices    []*dss.Device
	Accessible []bool
}

// BuildHostTable groups devices by owning host. The focus host always gets
// an entry, even without devices, so that a lock it already holds is still
// recognised.
func BuildHostTable(devices []dss.Device, extentCount int, focusHost string) map[string]*HostCapabilities {
	hosts := make(map[string]*HostCapabilities)
	entry := func(host string) *HostCapabilities {
		caps, ok := hosts[host]
		if !ok {
			caps = &HostCapabilities{Host: host, Accessible: make([]bool, extentCount)}
			hosts[host] = caps
		}
		return caps
	}

	entry(focusHost)
	for i := range devices {
		caps := entry(devices[i].Host)
		caps.Devices = append(caps.Devices, &devices[i])
	}
	return hosts
}

// sortedHosts returns host names in a stable order so that "first
// encountered" means the same thing on every call.
func sortedHosts(hosts map[string]*HostCapabilities) []string {
	return slices.Sorted(maps.Keys(hosts))
}

// canRead reports whether any device of the host can mount the medium.
func canRead(checker DeviceChecker, caps *HostCapabilities, medium *dss.MediumInfo) bool {
	for _, dev := range caps.Devices {
		if checker.CanRead(medium, dev) {
			return true
		}
	}
	return false
}
