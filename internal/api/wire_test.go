package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planboard/internal/zone"
)

func TestDowntimePayload_DecodeRecord(t *testing.T) {
	raw := `{
		"id": 12,
		"from": "2024-06-10",
		"to": "2024-06-11",
		"start_time": 540,
		"end_time": 600,
		"timezone": "Europe/Berlin",
		"downtime_type_id": 3,
		"resource_ids": [1, 2],
		"updated_at": "2024-06-01T08:30:00Z"
	}`

	var p DowntimePayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	d, err := p.Decode()
	require.NoError(t, err)

	assert.Equal(t, int64(12), d.ID)
	assert.Equal(t, june10, d.From)
	assert.Equal(t, 540, d.StartTime)
	assert.Equal(t, zone.Fixed("Europe/Berlin", 120), d.Zone)
	assert.Equal(t, int64(3), d.TypeID)
	assert.Equal(t, []int64{1, 2}, d.ResourceIDs)
	assert.Equal(t, time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC), d.UpdatedAt)
}

func TestDowntimePayload_OffsetFollowsDate(t *testing.T) {
	p := DowntimePayload{From: "2024-01-15", To: "2024-01-15", StartTime: 540, EndTime: 600, Timezone: "Europe/Berlin", ResourceIDs: []int64{1}}
	d, err := p.Decode()
	require.NoError(t, err)
	assert.Equal(t, 60, d.Zone.Offset)
}

func TestDowntimePayload_EmptyTimezoneIsLocal(t *testing.T) {
	p := DowntimePayload{From: "2024-06-10", To: "2024-06-10", StartTime: 540, EndTime: 600, ResourceIDs: []int64{1}}
	d, err := p.Decode()
	require.NoError(t, err)
	assert.True(t, d.Zone.IsLocal())
}

func TestDowntimePayload_UnknownTimezone(t *testing.T) {
	p := DowntimePayload{From: "2024-06-10", To: "2024-06-10", StartTime: 540, EndTime: 600, Timezone: "Mars/Olympus"}
	_, err := p.Decode()
	assert.Error(t, err)
}

func TestEncodeDowntime_Keys(t *testing.T) {
	d := newDowntime()
	d.TypeID = 3
	d.UpdatedAt = time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)

	raw, err := json.Marshal(EncodeDowntime(d))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "Europe/Berlin", fields["timezone"])
	assert.Equal(t, float64(3), fields["downtime_type_id"])
	assert.Equal(t, "2024-06-01T08:30:00Z", fields["updated_at"])
	assert.NotContains(t, fields, "zone")
}

func TestSchedulePayload_OvertimeResourceMismatch(t *testing.T) {
	p := schedulePayload()
	p.Overtimes[0].ResourceID = 2
	_, err := p.Decode()
	assert.Error(t, err)
}
