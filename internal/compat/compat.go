// Package compat decides whether a drive can mount a medium.
//
// Tape compatibility goes through two tables: a tape model lists the drive
// types that can read it, and a drive type lists the drive models that
// belong to it. Directory and RADOS media have no model constraint.
package compat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cea-hpc/phobos/internal/dss"
)

// ErrMalformedModel is returned for empty or unknown model strings.
var ErrMalformedModel = errors.New("malformed model")

// Rules are the tape compatibility tables.
type Rules struct {
	// TapeTypes maps a tape model to the drive types that can read it.
	TapeTypes map[string][]string `yaml:"tape_types"`
	// DriveTypes maps a drive type to the drive models it covers.
	DriveTypes map[string][]string `yaml:"drive_types"`
}

// DefaultRules returns the LTO tables: each generation is read by its own
// drives and the following one or two generations.
func DefaultRules() Rules {
	return Rules{
		TapeTypes: map[string][]string{
			"LTO5": {"LTO5_drive", "LTO6_drive"},
			"LTO6": {"LTO6_drive", "LTO7_drive"},
			"LTO7": {"LTO7_drive", "LTO8_drive"},
			"LTO8": {"LTO8_drive", "LTO9_drive"},
			"LTO9": {"LTO9_drive"},
		},
		DriveTypes: map[string][]string{
			"LTO5_drive": {"ULTRIUM-TD5", "ULT3580-TD5", "ULTRIUM-HH5", "ULT3580-HH5", "HH LTO Gen 5", "Ultrium 5-SCSI"},
			"LTO6_drive": {"ULTRIUM-TD6", "ULT3580-TD6", "ULTRIUM-HH6", "ULT3580-HH6", "HH LTO Gen 6", "Ultrium 6-SCSI"},
			"LTO7_drive": {"ULTRIUM-TD7", "ULT3580-TD7", "ULTRIUM-HH7", "ULT3580-HH7", "HH LTO Gen 7", "Ultrium 7-SCSI"},
			"LTO8_drive": {"ULTRIUM-TD8", "ULT3580-TD8", "ULTRIUM-HH8", "ULT3580-HH8", "HH LTO Gen 8", "Ultrium 8-SCSI"},
			"LTO9_drive": {"ULTRIUM-TD9", "ULT3580-TD9", "ULTRIUM-HH9", "ULT3580-HH9", "HH LTO Gen 9", "Ultrium 9-SCSI"},
		},
	}
}

// Oracle answers compatibility questions from a set of Rules.
type Oracle struct {
	// tape model -> set of drive models, flattened at construction
	drives map[string]map[string]bool
	logger zerolog.Logger
}

// NewOracle flattens the rules. Drive types referenced by a tape model but
// missing from DriveTypes are reported as an error.
func NewOracle(rules Rules, logger zerolog.Logger) (*Oracle, error) {
	o := &Oracle{
		drives: make(map[string]map[string]bool, len(rules.TapeTypes)),
		logger: logger.With().Str("component", "compat").Logger(),
	}
	for tape, types := range rules.TapeTypes {
		models := make(map[string]bool)
		for _, dt := range types {
			list, ok := rules.DriveTypes[dt]
			if !ok {
				return nil, fmt.Errorf("tape model %s: unknown drive type %q", tape, dt)
			}
			for _, m := range list {
				models[normalize(m)] = true
			}
		}
		o.drives[normalize(tape)] = models
	}
	return o, nil
}

func normalize(model string) string {
	return strings.ToUpper(strings.TrimSpace(model))
}

// Compatible reports whether a drive model can mount a tape model.
func (o *Oracle) Compatible(mediumModel, driveModel string) (bool, error) {
	mm, dm := normalize(mediumModel), normalize(driveModel)
	if mm == "" {
		return false, fmt.Errorf("%w: empty medium model", ErrMalformedModel)
	}
	if dm == "" {
		return false, fmt.Errorf("%w: empty drive model", ErrMalformedModel)
	}
	models, ok := o.drives[mm]
	if !ok {
		return false, fmt.Errorf("%w: unknown tape model %q", ErrMalformedModel, mediumModel)
	}
	return models[dm], nil
}

// CanRead reports whether dev can mount the medium. Malformed models are
// logged and count as incompatible.
func (o *Oracle) CanRead(medium *dss.MediumInfo, dev *dss.Device) bool {
	if medium == nil || dev == nil || dev.Family != medium.ID.Family {
		return false
	}
	if medium.ID.Family != dss.FamilyTape {
		return true
	}
	ok, err := o.Compatible(medium.Model, dev.Model)
	if err != nil {
		o.logger.Warn().Err(err).
			Str("medium", medium.ID.String()).
			Str("device", dev.Serial).
			Msg("Cannot check drive compatibility")
		return false
	}
	return ok
}
