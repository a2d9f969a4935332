// Package dss defines the distributed state store consumed by the locate
// core: device and medium inventory, medium location, and the hostname-scoped
// lock table. Backends live alongside the contract (memory, SQLite, etcd).
package dss

import (
	"fmt"
	"strings"
	"time"
)

// Family is the kind of storage a medium or device belongs to.
type Family string

// Supported families.
const (
	FamilyTape      Family = "tape"
	FamilyDir       Family = "dir"
	FamilyRadosPool Family = "rados_pool"
)

// ParseFamily validates a family name.
func ParseFamily(s string) (Family, error) {
	switch f := Family(strings.ToLower(strings.TrimSpace(s))); f {
	case FamilyTape, FamilyDir, FamilyRadosPool:
		return f, nil
	default:
		return "", fmt.Errorf("unknown family %q", s)
	}
}

// AdmStatus is the administrative status of a device or medium.
type AdmStatus string

// Administrative statuses.
const (
	AdmUnlocked AdmStatus = "unlocked"
	AdmLocked   AdmStatus = "locked"
	AdmFailed   AdmStatus = "failed"
)

// MediumID identifies a medium across the cluster.
type MediumID struct {
	Family  Family `yaml:"family" json:"family"`
	Library string `yaml:"library" json:"library"`
	Name    string `yaml:"name" json:"name"`
}

// String renders the id as family:library:name.
func (id MediumID) String() string {
	return string(id.Family) + ":" + id.Library + ":" + id.Name
}

// ParseMediumID parses the family:library:name form produced by String.
func ParseMediumID(s string) (MediumID, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[2] == "" {
		return MediumID{}, fmt.Errorf("invalid medium id %q (want family:library:name)", s)
	}
	family, err := ParseFamily(parts[0])
	if err != nil {
		return MediumID{}, err
	}
	return MediumID{Family: family, Library: parts[1], Name: parts[2]}, nil
}

// Device is a drive (or directory/pool endpoint) owned by one host.
type Device struct {
	Family    Family    `yaml:"family" json:"family"`
	Library   string    `yaml:"library" json:"library"`
	Serial    string    `yaml:"serial" json:"serial"`
	Host      string    `yaml:"host" json:"host"`
	Model     string    `yaml:"model" json:"model"`
	Path      string    `yaml:"path" json:"path"`
	AdmStatus AdmStatus `yaml:"adm_status" json:"adm_status"`
}

// Usable reports whether the device may be handed out for I/O.
func (d *Device) Usable() bool {
	return d.AdmStatus == "" || d.AdmStatus == AdmUnlocked
}

// OpFlags gates the operations allowed on a medium.
type OpFlags struct {
	Put    bool `yaml:"put" json:"put"`
	Get    bool `yaml:"get" json:"get"`
	Delete bool `yaml:"delete" json:"delete"`
}

// MediumInfo is the metadata the store keeps about a medium.
type MediumInfo struct {
	ID        MediumID  `yaml:"id" json:"id"`
	Model     string    `yaml:"model" json:"model"`
	AdmStatus AdmStatus `yaml:"adm_status" json:"adm_status"`
	Flags     OpFlags   `yaml:"flags" json:"flags"`
}

// Lock is an exclusive, hostname-scoped reservation on a medium.
type Lock struct {
	Medium    MediumID  `json:"medium"`
	Host      string    `json:"host"`
	Owner     int       `json:"owner"` // pid of the locker
	Timestamp time.Time `json:"timestamp"`
}
