package alert

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_DisplayedTimes(t *testing.T) {
	r := Record{StartTime: 1000, EndTime: 2000}
	assert.Equal(t, int64(1000), r.DisplayedStartTime())
	assert.Equal(t, int64(2000), r.DisplayedEndTime())

	r.InstanceStartTime = 5000
	r.InstanceEndTime = 6000
	assert.Equal(t, int64(5000), r.DisplayedStartTime())
	assert.Equal(t, int64(6000), r.DisplayedEndTime())
}

func TestRecord_Key(t *testing.T) {
	r := Record{EventID: 42, InstanceStartTime: 1700}
	assert.Equal(t, Key{EventID: 42, InstanceStartTime: 1700}, r.Key())
	assert.Equal(t, "42/1700", r.Key().String())
}

func TestRecord_IsNew(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want bool
	}{
		{"hidden fresh", Record{}, true},
		{"displayed", Record{DisplayStatus: DisplayedNormal}, false},
		{"collapsed", Record{DisplayStatus: DisplayedCollapsed}, false},
		{"snoozed", Record{SnoozedUntil: 10}, false},
		{"muted", Record{Flags: Flags{Muted: true}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.IsNew())
		})
	}
}

func TestRecord_IsSpecial(t *testing.T) {
	r := Record{LastStatusChangeTime: math.MaxInt64}
	assert.True(t, r.IsSpecial())
	assert.False(t, r.IsNotSpecial())

	r.LastStatusChangeTime = 100
	assert.False(t, r.IsSpecial())
}

func TestFlags_BitsCompat(t *testing.T) {
	// muted=1, task=2, alarm=4 in the legacy column
	assert.Equal(t, int64(1), Flags{Muted: true}.Bits())
	assert.Equal(t, int64(2), Flags{Task: true}.Bits())
	assert.Equal(t, int64(4), Flags{Alarm: true}.Bits())
	assert.Equal(t, int64(7), Flags{Muted: true, Task: true, Alarm: true}.Bits())

	f := FlagsFromBits(5)
	assert.True(t, f.Muted)
	assert.False(t, f.Task)
	assert.True(t, f.Alarm)
}

func TestFlags_PreservesUnknownBits(t *testing.T) {
	bits := int64(1<<10 | 1<<2)
	f := FlagsFromBits(bits)
	assert.Equal(t, int64(1<<10), f.Unknown)
	assert.Equal(t, bits, f.Bits())

	f.Muted = true
	assert.Equal(t, bits|1, f.Bits())
}

func TestParseEnums(t *testing.T) {
	ds, err := ParseDisplayStatus(2)
	require.NoError(t, err)
	assert.Equal(t, DisplayedCollapsed, ds)
	_, err = ParseDisplayStatus(3)
	assert.Error(t, err)

	o, err := ParseOrigin(3)
	require.NoError(t, err)
	assert.Equal(t, FullManual, o)
	_, err = ParseOrigin(-1)
	assert.Error(t, err)

	es, err := ParseEventStatus(1)
	require.NoError(t, err)
	assert.Equal(t, Confirmed, es)
	_, err = ParseEventStatus(9)
	assert.Error(t, err)

	as, err := ParseAttendanceStatus(4)
	require.NoError(t, err)
	assert.Equal(t, AttendanceTentative, as)
	_, err = ParseAttendanceStatus(5)
	assert.Error(t, err)
}

func TestDismissType_Policy(t *testing.T) {
	restorable := map[DismissType]bool{
		ManuallyDismissedFromNotification:        true,
		ManuallyDismissedFromActivity:            true,
		AutoDismissedDueToCalendarMove:           false,
		EventMovedUsingApp:                       false,
		AutoDismissedDueToRescheduleConfirmation: false,
	}
	for dt, want := range restorable {
		assert.True(t, dt.ShouldKeep(), dt.String())
		assert.Equal(t, want, dt.CanBeRestored(), dt.String())
	}

	_, err := ParseDismissType(5)
	assert.Error(t, err)
	dt, err := ParseDismissType(3)
	require.NoError(t, err)
	assert.Equal(t, EventMovedUsingApp, dt)
}
