package layout

import (
	"fmt"
	"os"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/cea-hpc/phobos/internal/dss"
)

type fileExtent struct {
	dss.MediumID `yaml:",inline"`
	UUID         string `yaml:"uuid"`
	Size         string `yaml:"size"`
	Offset       string `yaml:"offset"`
}

type fileLayout struct {
	Object  string       `yaml:"object"`
	Version int          `yaml:"version"`
	NData   int          `yaml:"n_data_extents"`
	NParity int          `yaml:"n_parity_extents"`
	Extents []fileExtent `yaml:"extents"`
}

// Load reads a YAML layout description. Sizes accept human units ("512MiB",
// "1g"); extents without a uuid get a fresh one.
func Load(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML layout description.
func Parse(data []byte) (*Layout, error) {
	var f fileLayout
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse layout file: %w", err)
	}

	l := &Layout{
		ObjectID: f.Object,
		Version:  f.Version,
		NData:    f.NData,
		NParity:  f.NParity,
		Extents:  make([]Extent, 0, len(f.Extents)),
	}
	for i, fe := range f.Extents {
		ext, err := fe.extent()
		if err != nil {
			return nil, fmt.Errorf("extents[%d]: %w", i, err)
		}
		l.Extents = append(l.Extents, ext)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

func (fe fileExtent) extent() (Extent, error) {
	family, err := dss.ParseFamily(string(fe.Family))
	if err != nil {
		return Extent{}, err
	}
	if fe.Name == "" {
		return Extent{}, fmt.Errorf("medium name is required")
	}
	ext := Extent{Medium: dss.MediumID{Family: family, Library: fe.Library, Name: fe.Name}}

	if fe.UUID == "" {
		ext.UUID = uuid.New()
	} else if ext.UUID, err = uuid.Parse(fe.UUID); err != nil {
		return Extent{}, fmt.Errorf("invalid uuid %q: %w", fe.UUID, err)
	}
	if ext.Size, err = parseSize(fe.Size); err != nil {
		return Extent{}, fmt.Errorf("invalid size: %w", err)
	}
	if ext.Offset, err = parseSize(fe.Offset); err != nil {
		return Extent{}, fmt.Errorf("invalid offset: %w", err)
	}
	return ext, nil
}

func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return units.RAMInBytes(s)
}
