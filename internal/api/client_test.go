package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planboard/internal/clash"
	"planboard/internal/daterange"
	"planboard/internal/downtime"
	"planboard/internal/model"
	"planboard/internal/zone"
)

var (
	june10 = daterange.Date(2024, 6, 10)
	june14 = daterange.Date(2024, 6, 14)
	week   = daterange.MustNew(june10, june14)
)

func newDowntime() *downtime.Downtime {
	return &downtime.Downtime{
		ResourceIDs: []int64{1, 2},
		From:        june10,
		To:          june10,
		StartTime:   540,
		EndTime:     600,
		Zone:        zone.Fixed("Europe/Berlin", 120),
		Details:     "maintenance",
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestCreateDowntime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/downtimes", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var req CreateDowntimeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "waiting_list", req.Resolution)
		assert.Equal(t, "2024-06-10", req.Downtime.From)
		assert.Equal(t, 540, req.Downtime.StartTime)
		assert.Equal(t, "Europe/Berlin", req.Downtime.Timezone)

		req.Downtime.ID = 77
		writeJSON(t, w, req.Downtime)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "secret"}, nil)
	created, err := c.CreateDowntime(context.Background(), newDowntime(), clash.ResolutionWaitingList)
	require.NoError(t, err)
	assert.Equal(t, int64(77), created.ID)
	assert.Equal(t, []int64{1, 2}, created.ResourceIDs)
	assert.Equal(t, june10, created.From)
	assert.Equal(t, "maintenance", created.Details)
}

func TestClashes(t *testing.T) {
	start, end := 570, 630
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/downtimes/clashes", r.URL.Path)
		writeJSON(t, w, map[string]any{"clashes": []ClashPayload{
			{BookingID: 5, ResourceID: 1, Title: "checkup", Date: "2024-06-10", Minutes: 60, StartTime: &start, EndTime: &end},
			{BookingID: 6, ResourceID: 2, Date: "2024-06-10", Minutes: 30},
		}})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL}, nil)
	clashes, err := c.Clashes(context.Background(), newDowntime())
	require.NoError(t, err)
	require.Len(t, clashes, 2)
	assert.Equal(t, int64(5), clashes[0].BookingID)
	require.NotNil(t, clashes[0].Range)
	assert.Equal(t, 60, clashes[0].Range.TotalTime())
	assert.Nil(t, clashes[1].Range)
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL}, nil)
	_, err := c.Clashes(context.Background(), newDowntime())
	assert.ErrorIs(t, err, ErrStatus)
	assert.ErrorContains(t, err, "502")

	// a failed lookup surfaces as unknown, never as an empty list
	_, err = clash.NewRemoteFinder(c).Find(context.Background(), newDowntime())
	assert.ErrorIs(t, err, clash.ErrClashesUnknown)
}

func TestDeleteAndUpdate(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPut {
			var p DowntimePayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			writeJSON(t, w, p)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL + "/"}, nil)
	d := newDowntime()
	d.ID = 9
	d.EndTime = 660

	updated, err := c.UpdateDowntime(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 660, updated.EndTime)
	require.NoError(t, c.DeleteDowntime(context.Background(), 9, d.ResourceIDs))

	assert.Equal(t, []string{"PUT /api/v1/downtimes/9", "DELETE /api/v1/downtimes/9"}, calls)
}

func TestListDowntimes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/resources/3/downtimes", r.URL.Path)
		assert.Equal(t, "2024-06-10", r.URL.Query().Get("from"))
		assert.Equal(t, "2024-06-14", r.URL.Query().Get("to"))
		writeJSON(t, w, map[string]any{"downtimes": []DowntimePayload{EncodeDowntime(newDowntime())}})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL}, nil)
	got, err := c.ListDowntimes(context.Background(), 3, week)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 600, got[0].EndTime)
}

func schedulePayload() SchedulePayload {
	until := "2024-12-31"
	start, end := 600, 660
	return SchedulePayload{
		Resource: ResourcePayload{ID: 1, Name: "Room A", Zone: ZonePayload{Name: "Europe/Berlin", Offset: 120}},
		Periods: []PeriodPayload{
			{ID: 1, WeekDay: 1, StartTime: 480, EndTime: 1020, ValidFrom: "2024-01-01", ValidUntil: &until},
		},
		Custom:    []CustomPeriodPayload{{ID: 2, Date: "2024-06-11", StartTime: 600, EndTime: 720}},
		Overtimes: []OvertimePayload{{ID: 3, ResourceID: 1, Date: "2024-06-12", Duration: 30}},
		Downtimes: []DowntimePayload{EncodeDowntime(newDowntime())},
		Bookings: []BookingPayload{{ID: 4, Title: "x", Durations: []SpanPayload{
			{Date: "2024-06-10", Minutes: 60, StartTime: &start, EndTime: &end},
			{Date: "2024-06-11", Minutes: 45, Waiting: true},
		}}},
	}
}

func TestGetSchedule_UsesRedisCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(t, w, schedulePayload())
	}))
	defer srv.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c := NewClient(Options{BaseURL: srv.URL}, nil)
	c.UseRedisCache(rdb, time.Minute)

	first, err := c.GetSchedule(context.Background(), 1, week)
	require.NoError(t, err)
	second, err := c.GetSchedule(context.Background(), 1, week)
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, first, second)
	assert.True(t, mr.Exists("schedule:1:2024-06-10..2024-06-14"))

	// writes for the resource drop its cached schedules
	require.NoError(t, c.DeleteDowntime(context.Background(), 9, []int64{1}))
	assert.False(t, mr.Exists("schedule:1:2024-06-10..2024-06-14"))
}

func TestLoadSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, schedulePayload())
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL}, nil)
	snap, err := c.LoadSnapshot(context.Background(), 1, week)
	require.NoError(t, err)

	assert.Equal(t, zone.Fixed("Europe/Berlin", 120), snap.Resource.Zone)
	require.Len(t, snap.Periods, 1)
	assert.Equal(t, time.Monday, snap.Periods[0].WeekDay)
	require.NotNil(t, snap.Periods[0].ValidUntil)
	assert.Len(t, snap.Custom, 1)
	assert.Equal(t, 30, snap.Overtimes[0].Duration)
	require.Len(t, snap.Downtimes, 1)

	require.Len(t, snap.Bookings, 1)
	spans := snap.Bookings[0].Durations
	require.Len(t, spans, 2)
	_, isFixed := spans[0].(model.FixedDuration)
	assert.True(t, isFixed)
	assert.True(t, spans[1].IsWaiting())
}

func TestIdenticalRequestSupersedesInFlight(t *testing.T) {
	arrived := make(chan struct{}, 2)
	release := make(chan struct{})
	var served atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := served.Add(1)
		arrived <- struct{}{}
		if n == 1 {
			select {
			case <-release:
			case <-r.Context().Done():
				return
			}
		}
		writeJSON(t, w, map[string]any{"clashes": []ClashPayload{}})
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Options{BaseURL: srv.URL}, nil)

	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Clashes(context.Background(), newDowntime())
		firstErr <- err
	}()
	<-arrived

	_, err := c.Clashes(context.Background(), newDowntime())
	require.NoError(t, err)

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("first request was not cancelled")
	}
}

func TestDifferentRequestsRunConcurrently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"clashes": []ClashPayload{}})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, RatePerSecond: 100, Burst: 2}, nil)
	other := newDowntime()
	other.EndTime = 720

	_, err := c.Clashes(context.Background(), newDowntime())
	require.NoError(t, err)
	_, err = c.Clashes(context.Background(), other)
	require.NoError(t, err)
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.NoError(t, NewClient(Options{BaseURL: srv.URL}, nil).HealthCheck(context.Background()))
	assert.ErrorIs(t, NewClient(Options{BaseURL: srv.URL + "/down"}, nil).HealthCheck(context.Background()), ErrStatus)
}
