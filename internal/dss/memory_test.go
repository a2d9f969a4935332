package dss

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	exerciseBackend(t, NewMemoryStore())
}

func TestMemoryStore_FaultInjection(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seedBackend(t, m)

	boom := errors.New("boom")

	m.FailLocate(tapeA, boom)
	_, _, err := m.LocateMedium(ctx, tapeA)
	assert.ErrorIs(t, err, boom)
	m.FailLocate(tapeA, nil)
	_, _, err = m.LocateMedium(ctx, tapeA)
	assert.NoError(t, err)

	m.FailDevices(FamilyTape, boom)
	_, err = m.UsableDevices(ctx, FamilyTape, "")
	assert.ErrorIs(t, err, boom)
	m.FailDevices(FamilyTape, nil)

	// A hook that lets a competitor win the race.
	m.OnLock(func(id MediumID, host string) error {
		if host == "h1" {
			m.ForceLock(id, "h2")
		}
		return nil
	})
	assert.ErrorIs(t, m.Lock(ctx, tapeA, "h1"), ErrAlreadyLocked)
	assert.Equal(t, "h2", m.LockHolder(tapeA))
	m.OnLock(nil)

	m.FailUnlock(tapeA, boom)
	assert.ErrorIs(t, m.Unlock(ctx, tapeA, "h2"), boom)
	assert.Equal(t, "h2", m.LockHolder(tapeA))
	m.FailUnlock(tapeA, nil)

	m.FailRefresh(tapeA, boom)
	assert.ErrorIs(t, m.RefreshLock(ctx, tapeA, "h2"), boom)
	m.FailRefresh(tapeA, nil)
	require.NoError(t, m.RefreshLock(ctx, tapeA, "h2"))

	require.NoError(t, m.Unlock(ctx, tapeA, "h2"))
	assert.Empty(t, m.LockHolder(tapeA))
}

func TestMemoryStore_PutDeviceReplaces(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	dev := Device{Family: FamilyTape, Library: "legacy", Serial: "D1", Host: "h1", AdmStatus: AdmUnlocked}
	require.NoError(t, m.PutDevice(ctx, dev))
	dev.Host = "h9"
	require.NoError(t, m.PutDevice(ctx, dev))

	devs, err := m.UsableDevices(ctx, FamilyTape, "")
	require.NoError(t, err)
	require.Len(t, devs, 1)
	assert.Equal(t, "h9", devs[0].Host)
}
