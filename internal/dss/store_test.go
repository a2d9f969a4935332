package dss

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tapeA = MediumID{Family: FamilyTape, Library: "legacy", Name: "P00001L6"}
	tapeB = MediumID{Family: FamilyTape, Library: "legacy", Name: "P00002L6"}
	dirA  = MediumID{Family: FamilyDir, Library: "legacy", Name: "/srv/dir-a"}
)

func seedBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()
	all := OpFlags{Put: true, Get: true, Delete: true}

	require.NoError(t, b.PutMedium(ctx, MediumInfo{ID: tapeA, Model: "LTO6", AdmStatus: AdmUnlocked, Flags: all}))
	require.NoError(t, b.PutMedium(ctx, MediumInfo{ID: tapeB, Model: "LTO6", AdmStatus: AdmLocked, Flags: all}))
	require.NoError(t, b.PutMedium(ctx, MediumInfo{ID: dirA, AdmStatus: AdmUnlocked, Flags: all}))

	require.NoError(t, b.PutDevice(ctx, Device{Family: FamilyTape, Library: "legacy", Serial: "D1", Host: "h1", Model: "ULT3580-TD6", AdmStatus: AdmUnlocked}))
	require.NoError(t, b.PutDevice(ctx, Device{Family: FamilyTape, Library: "legacy", Serial: "D2", Host: "h2", Model: "ULT3580-TD6", AdmStatus: AdmUnlocked}))
	require.NoError(t, b.PutDevice(ctx, Device{Family: FamilyTape, Library: "legacy", Serial: "D3", Host: "h2", Model: "ULT3580-TD6", AdmStatus: AdmFailed}))
	require.NoError(t, b.PutDevice(ctx, Device{Family: FamilyDir, Library: "legacy", Serial: "/srv/dir-a", Host: "h1", AdmStatus: AdmUnlocked}))
}

// exerciseBackend checks the Store contract every backend must honour.
func exerciseBackend(t *testing.T, b Backend) {
	ctx := context.Background()
	seedBackend(t, b)

	t.Run("usable devices", func(t *testing.T) {
		devs, err := b.UsableDevices(ctx, FamilyTape, "")
		require.NoError(t, err)
		assert.Len(t, devs, 2)

		devs, err = b.UsableDevices(ctx, FamilyTape, "h2")
		require.NoError(t, err)
		require.Len(t, devs, 1)
		assert.Equal(t, "D2", devs[0].Serial)

		devs, err = b.UsableDevices(ctx, FamilyRadosPool, "")
		require.NoError(t, err)
		assert.Empty(t, devs)
	})

	t.Run("locate", func(t *testing.T) {
		host, info, err := b.LocateMedium(ctx, tapeA)
		require.NoError(t, err)
		assert.Empty(t, host)
		require.NotNil(t, info)
		assert.Equal(t, "LTO6", info.Model)

		_, _, err = b.LocateMedium(ctx, tapeB)
		assert.ErrorIs(t, err, ErrMediumAdminLocked)

		_, _, err = b.LocateMedium(ctx, dirA)
		assert.ErrorIs(t, err, ErrMediumUnclaimed)

		_, _, err = b.LocateMedium(ctx, MediumID{Family: FamilyTape, Library: "legacy", Name: "missing"})
		assert.ErrorIs(t, err, ErrNoSuchMedium)
	})

	t.Run("lock lifecycle", func(t *testing.T) {
		require.NoError(t, b.Lock(ctx, tapeA, "h1"))
		assert.ErrorIs(t, b.Lock(ctx, tapeA, "h2"), ErrAlreadyLocked)

		host, _, err := b.LocateMedium(ctx, tapeA)
		require.NoError(t, err)
		assert.Equal(t, "h1", host)

		assert.NoError(t, b.RefreshLock(ctx, tapeA, "h1"))
		assert.ErrorIs(t, b.RefreshLock(ctx, tapeA, "h2"), ErrLockOwnedByOther)
		assert.ErrorIs(t, b.Unlock(ctx, tapeA, "h2"), ErrLockOwnedByOther)

		locks, err := b.ListLocks(ctx)
		require.NoError(t, err)
		require.Len(t, locks, 1)
		assert.Equal(t, tapeA, locks[0].Medium)
		assert.Equal(t, "h1", locks[0].Host)

		require.NoError(t, b.Unlock(ctx, tapeA, "h1"))
		assert.ErrorIs(t, b.Unlock(ctx, tapeA, "h1"), ErrLockNotFound)
		assert.ErrorIs(t, b.RefreshLock(ctx, tapeA, "h1"), ErrLockNotFound)
	})

	t.Run("claimed dir", func(t *testing.T) {
		require.NoError(t, b.Lock(ctx, dirA, "h1"))
		host, info, err := b.LocateMedium(ctx, dirA)
		require.NoError(t, err)
		assert.Equal(t, "h1", host)
		assert.Equal(t, dirA, info.ID)
		require.NoError(t, b.Unlock(ctx, dirA, "h1"))
	})
}

func TestResolveLocation(t *testing.T) {
	all := OpFlags{Put: true, Get: true, Delete: true}
	lock := &Lock{Medium: tapeA, Host: "h1"}

	tests := []struct {
		name     string
		info     *MediumInfo
		lock     *Lock
		wantHost string
		wantErr  error
	}{
		{"missing", nil, nil, "", ErrNoSuchMedium},
		{"admin locked", &MediumInfo{ID: tapeA, AdmStatus: AdmLocked, Flags: all}, lock, "", ErrMediumAdminLocked},
		{"gets disabled", &MediumInfo{ID: tapeA, AdmStatus: AdmUnlocked, Flags: OpFlags{Put: true}}, nil, "", ErrGetDisabled},
		{"locked", &MediumInfo{ID: tapeA, AdmStatus: AdmUnlocked, Flags: all}, lock, "h1", nil},
		{"free tape", &MediumInfo{ID: tapeA, AdmStatus: AdmUnlocked, Flags: all}, nil, "", nil},
		{"unclaimed dir", &MediumInfo{ID: dirA, AdmStatus: AdmUnlocked, Flags: all}, nil, "", ErrMediumUnclaimed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, info, err := resolveLocation(tt.info, tt.lock)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, info)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.NotNil(t, info)
		})
	}
}

func TestParseMediumID(t *testing.T) {
	id, err := ParseMediumID("tape:legacy:P00001L6")
	require.NoError(t, err)
	assert.Equal(t, tapeA, id)
	assert.Equal(t, "tape:legacy:P00001L6", id.String())

	id, err = ParseMediumID("dir:legacy:/srv/a:b")
	require.NoError(t, err)
	assert.Equal(t, "/srv/a:b", id.Name)

	_, err = ParseMediumID("tape:legacy")
	assert.Error(t, err)
	_, err = ParseMediumID("floppy:legacy:x")
	assert.Error(t, err)
}
