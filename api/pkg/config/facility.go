package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// facilityFile is the on-disk YAML schema for a facility:
//
//	name: plant-2
//	machines:
//	  - Extruder 1
//	  - Extruder 2
//	day_start: "08:00"
//	night_start: "20:00"
//	utc_offset_minutes: -300
type facilityFile struct {
	Name             string   `yaml:"name"`
	Machines         []string `yaml:"machines"`
	DayStart         string   `yaml:"day_start"`
	NightStart       string   `yaml:"night_start"`
	UTCOffsetMinutes *int     `yaml:"utc_offset_minutes"`
}

// FacilityConfig is the resolved runtime view of a facility: which
// machines exist and where the shift boundaries fall. Shift resolution
// uses a fixed UTC offset rather than a named zone so that every device
// on the floor computes the same shift for the same instant.
type FacilityConfig struct {
	Name              string
	Machines          []string
	DayStartMinutes   int // minutes after midnight, facility local time
	NightStartMinutes int
	UTCOffsetMinutes  int
}

// Location returns the fixed facility zone.
func (f *FacilityConfig) Location() *time.Location {
	return time.FixedZone("facility", f.UTCOffsetMinutes*60)
}

// KnownMachine reports whether name is registered for this facility.
// An empty machine list accepts any name.
func (f *FacilityConfig) KnownMachine(name string) bool {
	if len(f.Machines) == 0 {
		return true
	}
	for _, m := range f.Machines {
		if m == name {
			return true
		}
	}
	return false
}

// LoadFacilityConfig resolves the facility from the YAML file when a
// path is configured, falling back to the env-provided defaults.
func LoadFacilityConfig(cfg Facility) (*FacilityConfig, error) {
	resolved, err := facilityFromEnv(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.ConfigPath == "" {
		return resolved, nil
	}

	content, err := os.ReadFile(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read facility config %s: %w", cfg.ConfigPath, err)
	}
	fromFile, err := ParseFacilityConfig(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse facility config %s: %w", cfg.ConfigPath, err)
	}
	// File wins over env for everything it sets.
	if fromFile.Name != "" {
		resolved.Name = fromFile.Name
	}
	if len(fromFile.Machines) > 0 {
		resolved.Machines = fromFile.Machines
	}
	if fromFile.DayStartMinutes >= 0 {
		resolved.DayStartMinutes = fromFile.DayStartMinutes
	}
	if fromFile.NightStartMinutes >= 0 {
		resolved.NightStartMinutes = fromFile.NightStartMinutes
	}
	if fromFile.UTCOffsetMinutes != unsetOffset {
		resolved.UTCOffsetMinutes = fromFile.UTCOffsetMinutes
	}
	return resolved, nil
}

const unsetOffset = 1 << 20

// ParseFacilityConfig parses YAML content into a facility. Fields the
// file omits come back as their unset markers so the caller can overlay.
func ParseFacilityConfig(yamlContent []byte) (*FacilityConfig, error) {
	var file facilityFile
	if err := yaml.Unmarshal(yamlContent, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	resolved := &FacilityConfig{
		Name:              file.Name,
		Machines:          file.Machines,
		DayStartMinutes:   -1,
		NightStartMinutes: -1,
		UTCOffsetMinutes:  unsetOffset,
	}
	if file.DayStart != "" {
		minutes, err := parseClock(file.DayStart)
		if err != nil {
			return nil, fmt.Errorf("invalid day_start: %w", err)
		}
		resolved.DayStartMinutes = minutes
	}
	if file.NightStart != "" {
		minutes, err := parseClock(file.NightStart)
		if err != nil {
			return nil, fmt.Errorf("invalid night_start: %w", err)
		}
		resolved.NightStartMinutes = minutes
	}
	if file.UTCOffsetMinutes != nil {
		resolved.UTCOffsetMinutes = *file.UTCOffsetMinutes
	}
	return resolved, nil
}

func facilityFromEnv(cfg Facility) (*FacilityConfig, error) {
	dayStart, err := parseClock(cfg.DayStart)
	if err != nil {
		return nil, fmt.Errorf("invalid FACILITY_DAY_START: %w", err)
	}
	nightStart, err := parseClock(cfg.NightStart)
	if err != nil {
		return nil, fmt.Errorf("invalid FACILITY_NIGHT_START: %w", err)
	}
	return &FacilityConfig{
		Name:              cfg.Name,
		DayStartMinutes:   dayStart,
		NightStartMinutes: nightStart,
		UTCOffsetMinutes:  cfg.UTCOffsetMinutes,
	}, nil
}

// parseClock turns "HH:MM" into minutes after midnight.
func parseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return hours*60 + minutes, nil
}
