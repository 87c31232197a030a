package shift

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floorlinehq/floorline/api/pkg/config"
	"github.com/floorlinehq/floorline/api/pkg/types"
)

func testFacility(offsetMinutes int) *config.FacilityConfig {
	return &config.FacilityConfig{
		Name:              "plant-2",
		DayStartMinutes:   8 * 60,
		NightStartMinutes: 20 * 60,
		UTCOffsetMinutes:  offsetMinutes,
	}
}

func TestForTime(t *testing.T) {
	fc := testFacility(0)

	tests := []struct {
		name     string
		instant  time.Time
		wantS    types.Shift
		wantDate string
	}{
		{
			name:     "mid morning is day shift",
			instant:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
			wantS:    types.ShiftDay,
			wantDate: "2024-01-15",
		},
		{
			name:     "day shift boundary is inclusive",
			instant:  time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC),
			wantS:    types.ShiftDay,
			wantDate: "2024-01-15",
		},
		{
			name:     "last minute of day shift",
			instant:  time.Date(2024, 1, 15, 19, 59, 0, 0, time.UTC),
			wantS:    types.ShiftDay,
			wantDate: "2024-01-15",
		},
		{
			name:     "night shift boundary is inclusive",
			instant:  time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC),
			wantS:    types.ShiftNight,
			wantDate: "2024-01-15",
		},
		{
			name:     "after midnight still belongs to previous night shift",
			instant:  time.Date(2024, 1, 16, 2, 15, 0, 0, time.UTC),
			wantS:    types.ShiftNight,
			wantDate: "2024-01-15",
		},
		{
			name:     "minute before day start is previous night shift",
			instant:  time.Date(2024, 1, 16, 7, 59, 0, 0, time.UTC),
			wantS:    types.ShiftNight,
			wantDate: "2024-01-15",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotShift, gotDate := ForTime(fc, tt.instant)
			assert.Equal(t, tt.wantS, gotShift)
			assert.Equal(t, tt.wantDate, gotDate)
		})
	}
}

func TestForTimeUsesFacilityOffset(t *testing.T) {
	// 18:00 UTC is 13:00 facility-local at UTC-5, still day shift there
	fc := testFacility(-300)
	instant := time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)

	gotShift, gotDate := ForTime(fc, instant)
	assert.Equal(t, types.ShiftDay, gotShift)
	assert.Equal(t, "2024-01-15", gotDate)

	// 02:00 UTC on the 16th is 21:00 on the 15th at UTC-5, night shift
	instant = time.Date(2024, 1, 16, 2, 0, 0, 0, time.UTC)
	gotShift, gotDate = ForTime(fc, instant)
	assert.Equal(t, types.ShiftNight, gotShift)
	assert.Equal(t, "2024-01-15", gotDate)
}

func TestResourceKeyRoundTrip(t *testing.T) {
	tests := []struct {
		machine string
		shift   types.Shift
		date    string
		want    string
	}{
		{"M1", types.ShiftDay, "2024-01-01", "M1_Day_2024-01-01"},
		{"Extruder 1", types.ShiftNight, "2024-02-03", "Extruder 1_Night_2024-02-03"},
		{"Line_4_Winder", types.ShiftDay, "2024-12-31", "Line_4_Winder_Day_2024-12-31"},
	}

	for _, tt := range tests {
		key := ResourceKey(tt.machine, tt.shift, tt.date)
		require.Equal(t, tt.want, key)

		machine, s, date, err := SplitResourceKey(key)
		require.NoError(t, err)
		assert.Equal(t, tt.machine, machine)
		assert.Equal(t, tt.shift, s)
		assert.Equal(t, tt.date, date)
	}
}

func TestSplitResourceKeyRejectsMalformed(t *testing.T) {
	for _, key := range []string{
		"",
		"M1",
		"M1_Day",
		"_Day_2024-01-01",
		"M1_Afternoon_2024-01-01",
		"M1_Day_notadate",
	} {
		_, _, _, err := SplitResourceKey(key)
		assert.Error(t, err, "key %q", key)
	}
}
