// Package shift resolves which production shift an instant belongs to.
// Every device must compute the same (shift, date) for the same instant,
// so resolution takes the facility configuration as explicit input and
// never reads the wall clock itself.
package shift

import (
	"fmt"
	"strings"

	"github.com/floorlinehq/floorline/api/pkg/config"
	"github.com/floorlinehq/floorline/api/pkg/types"

	"time"
)

const dateFormat = "2006-01-02"

// ForTime returns the shift and production date containing t.
//
// The night shift spans midnight: an instant after midnight but before
// the day-shift boundary belongs to the previous calendar day's night
// shift, so its records land on the production day they were worked.
func ForTime(fc *config.FacilityConfig, t time.Time) (types.Shift, string) {
	local := t.In(fc.Location())
	minutes := local.Hour()*60 + local.Minute()

	switch {
	case minutes >= fc.DayStartMinutes && minutes < fc.NightStartMinutes:
		return types.ShiftDay, local.Format(dateFormat)
	case minutes >= fc.NightStartMinutes:
		return types.ShiftNight, local.Format(dateFormat)
	default:
		return types.ShiftNight, local.AddDate(0, 0, -1).Format(dateFormat)
	}
}

// ResourceKey builds the composite key identifying one contended unit of
// work. Machine names may contain spaces and underscores; parsing relies
// on the shift and date segments being the last two.
func ResourceKey(machineName string, s types.Shift, date string) string {
	return fmt.Sprintf("%s_%s_%s", machineName, s, date)
}

// SplitResourceKey is the inverse of ResourceKey.
func SplitResourceKey(key string) (machineName string, s types.Shift, date string, err error) {
	dateSep := strings.LastIndex(key, "_")
	if dateSep <= 0 {
		return "", "", "", fmt.Errorf("malformed resource key %q", key)
	}
	shiftSep := strings.LastIndex(key[:dateSep], "_")
	if shiftSep <= 0 {
		return "", "", "", fmt.Errorf("malformed resource key %q", key)
	}

	machineName = key[:shiftSep]
	s = types.Shift(key[shiftSep+1 : dateSep])
	date = key[dateSep+1:]

	if !s.Valid() {
		return "", "", "", fmt.Errorf("resource key %q has unknown shift %q", key, s)
	}
	if _, parseErr := time.Parse(dateFormat, date); parseErr != nil {
		return "", "", "", fmt.Errorf("resource key %q has invalid date: %w", key, parseErr)
	}

	return machineName, s, date, nil
}
