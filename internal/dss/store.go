package dss

import (
	"context"
	"os"
)

// Store is the subset of the distributed state store the locate core needs.
// Lock must be atomic "acquire if absent" and scoped to the given host.
type Store interface {
	// UsableDevices returns administratively unlocked devices of a family.
	// An empty host means any host.
	UsableDevices(ctx context.Context, family Family, host string) ([]Device, error)

	// LocateMedium returns the host holding a lock on the medium ("" if
	// none) together with the medium metadata.
	LocateMedium(ctx context.Context, id MediumID) (string, *MediumInfo, error)

	// Lock takes the medium lock for host, failing with ErrAlreadyLocked
	// when someone else got there first.
	Lock(ctx context.Context, id MediumID, host string) error

	// RefreshLock bumps the timestamp of a lock held by host.
	RefreshLock(ctx context.Context, id MediumID, host string) error

	// Unlock drops a lock held by host. ErrLockNotFound and
	// ErrLockOwnedByOther are reported so callers can tell a revoked lock
	// from a failed release.
	Unlock(ctx context.Context, id MediumID, host string) error
}

// Admin covers inventory management and lock inspection.
type Admin interface {
	PutDevice(ctx context.Context, dev Device) error
	PutMedium(ctx context.Context, info MediumInfo) error
	ListLocks(ctx context.Context) ([]Lock, error)
}

// Backend is a full store implementation.
type Backend interface {
	Store
	Admin
	Close() error
}

// resolveLocation applies the LocateMedium rules shared by every backend
// once the medium row and its lock (if any) have been read.
func resolveLocation(info *MediumInfo, lock *Lock) (string, *MediumInfo, error) {
	if info == nil {
		return "", nil, ErrNoSuchMedium
	}
	if info.AdmStatus == AdmLocked {
		return "", nil, ErrMediumAdminLocked
	}
	if !info.Flags.Get {
		return "", nil, ErrGetDisabled
	}
	if lock != nil {
		return lock.Host, info, nil
	}
	if info.ID.Family == FamilyDir {
		return "", nil, ErrMediumUnclaimed
	}
	return "", info, nil
}

func filterUsable(devs []Device, family Family, host string) []Device {
	var out []Device
	for _, d := range devs {
		if d.Family != family || !d.Usable() {
			continue
		}
		if host != "" && d.Host != host {
			continue
		}
		out = append(out, d)
	}
	return out
}

var lockOwner = os.Getpid()
