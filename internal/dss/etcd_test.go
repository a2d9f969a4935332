package dss

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEtcdKeys(t *testing.T) {
	assert.Equal(t, "/phobos/media/tape/legacy/P00001L6", mediumKey("/phobos", tapeA))
	assert.Equal(t, "/phobos/locks/tape/legacy/P00001L6", lockKey("/phobos", tapeA))
	assert.Equal(t, "/phobos/locks/", lockPrefix("/phobos"))
	assert.Equal(t, "/phobos/devices/tape/", devicePrefix("/phobos", FamilyTape))
	assert.Equal(t, "/phobos/devices/tape/legacy/D1",
		deviceKey("/phobos", Device{Family: FamilyTape, Library: "legacy", Serial: "D1"}))

	// Every device key of a family sits under that family's prefix.
	assert.Contains(t, deviceKey("/x", Device{Family: FamilyDir, Library: "l", Serial: "s"}), devicePrefix("/x", FamilyDir))
}

func TestEtcdLockRecordFlattens(t *testing.T) {
	rec := etcdLock{Lock: Lock{Medium: tapeA, Host: "h1", Owner: 42}, LeaseID: 7}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "h1", fields["host"])
	assert.EqualValues(t, 7, fields["lease_id"])

	var back etcdLock
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, rec, back)
}

func TestOpenEtcd_RequiresEndpoints(t *testing.T) {
	_, err := OpenEtcd(EtcdConfig{})
	assert.Error(t, err)
}

func TestLeaseSeconds(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int64
	}{
		{time.Millisecond, 1},
		{500 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Minute, 60},
	}
	for _, tt := range tests {
		t.Run(tt.ttl.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, leaseSeconds(tt.ttl))
		})
	}
}
