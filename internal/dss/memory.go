package dss

import (
	"context"
	"sort"
	"sync"
	"time"
)

// LockHook runs before a lock attempt, outside the store mutex. A non-nil
// error aborts the attempt and is returned as-is.
type LockHook func(id MediumID, host string) error

// MemoryStore is a process-local Backend. It is the reference behaviour for
// the persistent backends and carries fault injection knobs for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	devices []Device
	media   map[MediumID]*MediumInfo
	locks   map[MediumID]*Lock

	locateErrs  map[MediumID]error
	deviceErrs  map[Family]error
	unlockErrs  map[MediumID]error
	refreshErrs map[MediumID]error
	beforeLock  LockHook
	now         func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		media:       make(map[MediumID]*MediumInfo),
		locks:       make(map[MediumID]*Lock),
		locateErrs:  make(map[MediumID]error),
		deviceErrs:  make(map[Family]error),
		unlockErrs:  make(map[MediumID]error),
		refreshErrs: make(map[MediumID]error),
		now:         time.Now,
	}
}

// FailLocate makes LocateMedium return err for the medium. A nil err clears it.
func (m *MemoryStore) FailLocate(id MediumID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.locateErrs, id)
		return
	}
	m.locateErrs[id] = err
}

// FailDevices makes UsableDevices return err for the family.
func (m *MemoryStore) FailDevices(family Family, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.deviceErrs, family)
		return
	}
	m.deviceErrs[family] = err
}

// FailUnlock makes Unlock return err for the medium without releasing it.
func (m *MemoryStore) FailUnlock(id MediumID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.unlockErrs, id)
		return
	}
	m.unlockErrs[id] = err
}

// FailRefresh makes RefreshLock return err for the medium and leaves the
// lock timestamp untouched.
func (m *MemoryStore) FailRefresh(id MediumID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.refreshErrs, id)
		return
	}
	m.refreshErrs[id] = err
}

// OnLock installs a hook run before every Lock call.
func (m *MemoryStore) OnLock(hook LockHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beforeLock = hook
}

// PutDevice adds or replaces a device keyed by family, library and serial.
func (m *MemoryStore) PutDevice(_ context.Context, dev Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.devices {
		d := &m.devices[i]
		if d.Family == dev.Family && d.Library == dev.Library && d.Serial == dev.Serial {
			*d = dev
			return nil
		}
	}
	m.devices = append(m.devices, dev)
	return nil
}

// PutMedium adds or replaces a medium.
func (m *MemoryStore) PutMedium(_ context.Context, info MediumInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := info
	m.media[info.ID] = &cp
	return nil
}

// UsableDevices implements Store.
func (m *MemoryStore) UsableDevices(_ context.Context, family Family, host string) ([]Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.deviceErrs[family]; err != nil {
		return nil, err
	}
	return filterUsable(m.devices, family, host), nil
}

// LocateMedium implements Store.
func (m *MemoryStore) LocateMedium(_ context.Context, id MediumID) (string, *MediumInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.locateErrs[id]; err != nil {
		return "", nil, err
	}
	var info *MediumInfo
	if stored, ok := m.media[id]; ok {
		cp := *stored
		info = &cp
	}
	return resolveLocation(info, m.locks[id])
}

// Lock implements Store.
func (m *MemoryStore) Lock(_ context.Context, id MediumID, host string) error {
	m.mu.RLock()
	hook := m.beforeLock
	m.mu.RUnlock()
	if hook != nil {
		if err := hook(id, host); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[id]; held {
		return ErrAlreadyLocked
	}
	m.locks[id] = &Lock{Medium: id, Host: host, Owner: lockOwner, Timestamp: m.now()}
	return nil
}

// ForceLock sets the lock holder regardless of the current state.
func (m *MemoryStore) ForceLock(id MediumID, host string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[id] = &Lock{Medium: id, Host: host, Owner: lockOwner, Timestamp: m.now()}
}

// RefreshLock implements Store.
func (m *MemoryStore) RefreshLock(_ context.Context, id MediumID, host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.refreshErrs[id]; err != nil {
		return err
	}
	lock, held := m.locks[id]
	if !held {
		return ErrLockNotFound
	}
	if lock.Host != host {
		return ErrLockOwnedByOther
	}
	lock.Timestamp = m.now()
	return nil
}

// Unlock implements Store.
func (m *MemoryStore) Unlock(_ context.Context, id MediumID, host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unlockErrs[id]; err != nil {
		return err
	}
	lock, held := m.locks[id]
	if !held {
		return ErrLockNotFound
	}
	if lock.Host != host {
		return ErrLockOwnedByOther
	}
	delete(m.locks, id)
	return nil
}

// ListLocks returns a snapshot of all locks ordered by medium id.
func (m *MemoryStore) ListLocks(_ context.Context) ([]Lock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Lock, 0, len(m.locks))
	for _, l := range m.locks {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Medium.String() < out[j].Medium.String() })
	return out, nil
}

// LockHolder returns the host holding the medium lock, or "".
func (m *MemoryStore) LockHolder(id MediumID) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if l, ok := m.locks[id]; ok {
		return l.Host
	}
	return ""
}

// Close implements Backend.
func (m *MemoryStore) Close() error { return nil }
