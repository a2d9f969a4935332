package dss

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Inventory is a YAML description of devices and media used to seed a store.
type Inventory struct {
	Devices []Device          `yaml:"devices"`
	Media   []InventoryMedium `yaml:"media"`
}

// InventoryMedium is the flat YAML form of a medium. Flags default to all
// operations allowed.
type InventoryMedium struct {
	MediumID  `yaml:",inline"`
	Model     string    `yaml:"model"`
	AdmStatus AdmStatus `yaml:"adm_status"`
	Flags     *OpFlags  `yaml:"flags"`
}

// Info converts the entry to MediumInfo.
func (m InventoryMedium) Info() MediumInfo {
	flags := OpFlags{Put: true, Get: true, Delete: true}
	if m.Flags != nil {
		flags = *m.Flags
	}
	status := m.AdmStatus
	if status == "" {
		status = AdmUnlocked
	}
	return MediumInfo{ID: m.MediumID, Model: m.Model, AdmStatus: status, Flags: flags}
}

// LoadInventory reads and validates an inventory file.
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory file: %w", err)
	}
	inv := &Inventory{}
	if err := yaml.Unmarshal(data, inv); err != nil {
		return nil, fmt.Errorf("parse inventory file: %w", err)
	}

	for i, d := range inv.Devices {
		if _, err := ParseFamily(string(d.Family)); err != nil {
			return nil, fmt.Errorf("devices[%d]: %w", i, err)
		}
		if d.Serial == "" || d.Host == "" {
			return nil, fmt.Errorf("devices[%d]: serial and host are required", i)
		}
	}
	for i, m := range inv.Media {
		if _, err := ParseFamily(string(m.Family)); err != nil {
			return nil, fmt.Errorf("media[%d]: %w", i, err)
		}
		if m.Name == "" {
			return nil, fmt.Errorf("media[%d]: name is required", i)
		}
	}
	return inv, nil
}

// Import writes every device and medium of the inventory into the store.
func (inv *Inventory) Import(ctx context.Context, admin Admin) error {
	for _, d := range inv.Devices {
		if err := admin.PutDevice(ctx, d); err != nil {
			return err
		}
	}
	for _, m := range inv.Media {
		if err := admin.PutMedium(ctx, m.Info()); err != nil {
			return err
		}
	}
	return nil
}
