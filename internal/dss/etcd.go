package dss

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdConfig configures an etcd-backed store.
type EtcdConfig struct {
	Endpoints   []string
	Prefix      string
	DialTimeout time.Duration
	// LockTTL attaches an etcd lease to every medium lock so locks of a
	// dead host expire; refreshing a lock keeps its lease alive. Zero keeps
	// locks until they are explicitly released.
	LockTTL time.Duration
	Logger  zerolog.Logger
}

// EtcdStore keeps inventory and locks as JSON documents in etcd. Lock
// acquisition is a transaction on the lock key's create revision.
type EtcdStore struct {
	client *clientv3.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

type etcdLock struct {
	Lock
	LeaseID int64 `json:"lease_id,omitempty"`
}

// OpenEtcd connects to the etcd cluster.
func OpenEtcd(cfg EtcdConfig) (*EtcdStore, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one etcd endpoint is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "/phobos"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	return &EtcdStore{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.LockTTL,
		logger: cfg.Logger.With().Str("component", "dss-etcd").Logger(),
		now:    time.Now,
	}, nil
}

func deviceKey(prefix string, d Device) string {
	return path.Join(prefix, "devices", string(d.Family), d.Library, d.Serial)
}

func devicePrefix(prefix string, family Family) string {
	return path.Join(prefix, "devices", string(family)) + "/"
}

func mediumKey(prefix string, id MediumID) string {
	return path.Join(prefix, "media", string(id.Family), id.Library, id.Name)
}

func lockKey(prefix string, id MediumID) string {
	return path.Join(prefix, "locks", string(id.Family), id.Library, id.Name)
}

func lockPrefix(prefix string) string {
	return path.Join(prefix, "locks") + "/"
}

func (s *EtcdStore) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if _, err := s.client.Put(ctx, key, string(data)); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// PutDevice implements Admin.
func (s *EtcdStore) PutDevice(ctx context.Context, dev Device) error {
	if dev.AdmStatus == "" {
		dev.AdmStatus = AdmUnlocked
	}
	return s.put(ctx, deviceKey(s.prefix, dev), dev)
}

// PutMedium implements Admin.
func (s *EtcdStore) PutMedium(ctx context.Context, info MediumInfo) error {
	if info.AdmStatus == "" {
		info.AdmStatus = AdmUnlocked
	}
	return s.put(ctx, mediumKey(s.prefix, info.ID), info)
}

// UsableDevices implements Store.
func (s *EtcdStore) UsableDevices(ctx context.Context, family Family, host string) ([]Device, error) {
	resp, err := s.client.Get(ctx, devicePrefix(s.prefix, family), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("get devices: %w", err)
	}
	devs := make([]Device, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var d Device
		if err := json.Unmarshal(kv.Value, &d); err != nil {
			s.logger.Warn().Err(err).Str("key", string(kv.Key)).Msg("Skipping undecodable device")
			continue
		}
		devs = append(devs, d)
	}
	return filterUsable(devs, family, host), nil
}

// LocateMedium implements Store. The medium and its lock are read in one
// transaction so they come from the same revision.
func (s *EtcdStore) LocateMedium(ctx context.Context, id MediumID) (string, *MediumInfo, error) {
	resp, err := s.client.Txn(ctx).Then(
		clientv3.OpGet(mediumKey(s.prefix, id)),
		clientv3.OpGet(lockKey(s.prefix, id)),
	).Commit()
	if err != nil {
		return "", nil, fmt.Errorf("locate medium %s: %w", id, err)
	}

	var info *MediumInfo
	if kvs := resp.Responses[0].GetResponseRange().GetKvs(); len(kvs) > 0 {
		info = &MediumInfo{}
		if err := json.Unmarshal(kvs[0].Value, info); err != nil {
			return "", nil, fmt.Errorf("decode medium %s: %w", id, err)
		}
	}
	var lock *Lock
	if kvs := resp.Responses[1].GetResponseRange().GetKvs(); len(kvs) > 0 {
		var l etcdLock
		if err := json.Unmarshal(kvs[0].Value, &l); err != nil {
			return "", nil, fmt.Errorf("decode lock %s: %w", id, err)
		}
		lock = &l.Lock
	}
	return resolveLocation(info, lock)
}

// Lock implements Store.
func (s *EtcdStore) Lock(ctx context.Context, id MediumID, host string) error {
	key := lockKey(s.prefix, id)
	rec := etcdLock{Lock: Lock{Medium: id, Host: host, Owner: lockOwner, Timestamp: s.now()}}

	var opts []clientv3.OpOption
	if s.ttl > 0 {
		lease, err := s.client.Grant(ctx, leaseSeconds(s.ttl))
		if err != nil {
			return fmt.Errorf("grant lease for %s: %w", id, err)
		}
		rec.LeaseID = int64(lease.ID)
		opts = append(opts, clientv3.WithLease(lease.ID))
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal lock %s: %w", id, err)
	}

	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, string(data), opts...)).
		Commit()
	if err != nil {
		s.revoke(rec.LeaseID)
		return fmt.Errorf("lock %s: %w", id, err)
	}
	if !resp.Succeeded {
		s.revoke(rec.LeaseID)
		return ErrAlreadyLocked
	}
	s.logger.Debug().Str("medium", id.String()).Str("host", host).Msg("Medium locked")
	return nil
}

// leaseSeconds rounds ttl up to whole seconds, the lease granularity.
func leaseSeconds(ttl time.Duration) int64 {
	secs := int64((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (s *EtcdStore) revoke(leaseID int64) {
	if leaseID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.client.Revoke(ctx, clientv3.LeaseID(leaseID)); err != nil {
		s.logger.Debug().Err(err).Int64("lease", leaseID).Msg("Failed to revoke unused lease")
	}
}

// heldLock reads the lock and checks it belongs to host.
func (s *EtcdStore) heldLock(ctx context.Context, id MediumID, host string) (*etcdLock, int64, error) {
	resp, err := s.client.Get(ctx, lockKey(s.prefix, id))
	if err != nil {
		return nil, 0, fmt.Errorf("get lock %s: %w", id, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, 0, ErrLockNotFound
	}
	var rec etcdLock
	if err := json.Unmarshal(resp.Kvs[0].Value, &rec); err != nil {
		return nil, 0, fmt.Errorf("decode lock %s: %w", id, err)
	}
	if rec.Host != host {
		return nil, 0, ErrLockOwnedByOther
	}
	return &rec, resp.Kvs[0].ModRevision, nil
}

// RefreshLock implements Store.
func (s *EtcdStore) RefreshLock(ctx context.Context, id MediumID, host string) error {
	rec, rev, err := s.heldLock(ctx, id, host)
	if err != nil {
		return err
	}
	rec.Timestamp = s.now()
	rec.Owner = lockOwner
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal lock %s: %w", id, err)
	}

	key := lockKey(s.prefix, id)
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", rev)).
		Then(clientv3.OpPut(key, string(data), clientv3.WithIgnoreLease())).
		Commit()
	if err != nil {
		return fmt.Errorf("refresh lock %s: %w", id, err)
	}
	if !resp.Succeeded {
		_, _, err := s.heldLock(ctx, id, host)
		if err == nil {
			err = fmt.Errorf("refresh lock %s: concurrent update", id)
		}
		return err
	}
	if rec.LeaseID != 0 {
		if _, err := s.client.KeepAliveOnce(ctx, clientv3.LeaseID(rec.LeaseID)); err != nil {
			return fmt.Errorf("keep lease of %s alive: %w", id, err)
		}
	}
	return nil
}

// Unlock implements Store.
func (s *EtcdStore) Unlock(ctx context.Context, id MediumID, host string) error {
	rec, rev, err := s.heldLock(ctx, id, host)
	if err != nil {
		return err
	}
	key := lockKey(s.prefix, id)
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", rev)).
		Then(clientv3.OpDelete(key)).
		Commit()
	if err != nil {
		return fmt.Errorf("unlock %s: %w", id, err)
	}
	if !resp.Succeeded {
		_, _, err := s.heldLock(ctx, id, host)
		if err == nil {
			err = fmt.Errorf("unlock %s: concurrent update", id)
		}
		return err
	}
	s.revoke(rec.LeaseID)
	return nil
}

// ListLocks implements Admin.
func (s *EtcdStore) ListLocks(ctx context.Context) ([]Lock, error) {
	resp, err := s.client.Get(ctx, lockPrefix(s.prefix), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("get locks: %w", err)
	}
	locks := make([]Lock, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var rec etcdLock
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			s.logger.Warn().Err(err).Str("key", string(kv.Key)).Msg("Skipping undecodable lock")
			continue
		}
		locks = append(locks, rec.Lock)
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].Medium.String() < locks[j].Medium.String() })
	return locks, nil
}

// Close implements Backend.
func (s *EtcdStore) Close() error {
	return s.client.Close()
}
