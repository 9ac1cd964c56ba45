package facts

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate_Boundary(t *testing.T) {
	threshold := 30 * time.Minute
	th := uint64(threshold.Milliseconds())
	last := uint64(1_000_000)

	tests := []struct {
		name string
		now  uint64
		want Freshness
	}{
		{"just fetched", last, Fresh},
		{"threshold - 1", last + th - 1, Fresh},
		{"exactly threshold is stale", last + th, Stale},
		{"threshold + 1", last + th + 1, Stale},
		{"clock behind fetch", last - 10, Fresh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.now, last, true, threshold))
		})
	}

	assert.Equal(t, NoData, Evaluate(last, 0, false, threshold))
}

func TestFacts_Fetch(t *testing.T) {
	f := New()
	_, ok := f.LastFetchMs()
	assert.False(t, ok)
	assert.Equal(t, NoData, f.Freshness(0, time.Minute))

	// A fetch at clock zero is still a fetch
	f.MarkFetched(0)
	ms, ok := f.LastFetchMs()
	assert.True(t, ok)
	assert.Equal(t, uint64(0), ms)
	assert.Equal(t, Fresh, f.Freshness(59_999, time.Minute))
	assert.Equal(t, Stale, f.Freshness(60_000, time.Minute))
}

func TestFacts_DayChangeResetsSunset(t *testing.T) {
	f := New()
	assert.False(t, f.ClockKnown())
	assert.Equal(t, -1, f.SunsetMinutes())

	evening := time.Date(2025, 6, 1, 21, 10, 0, 0, time.UTC)
	assert.False(t, f.SetWallClock(evening))
	assert.True(t, f.ClockKnown())
	assert.Equal(t, WallClock{Year: 2025, Month: time.June, Day: 1, Hour: 21, Minute: 10}, f.WallClock())

	f.MarkSunsetShown()
	assert.False(t, f.SetWallClock(evening.Add(2*time.Hour)))
	assert.True(t, f.SunsetShownToday())

	assert.True(t, f.SetWallClock(evening.Add(3*time.Hour)))
	assert.False(t, f.SunsetShownToday())

	// Same day-of-year in another year is a different day
	f.MarkSunsetShown()
	assert.True(t, f.SetWallClock(time.Date(2026, 6, 2, 0, 1, 0, 0, time.UTC)))
	assert.False(t, f.SunsetShownToday())
}

func TestFacts_Snapshot(t *testing.T) {
	f := New()
	f.SetCoordinatesKnown(true)
	f.SetNetworkAlive(true)
	f.Heartbeat(1234)
	f.SetSunsetMinutes(20*60 + 45)
	f.SetSunsetWindowActive(true)
	f.MarkFetched(1000)

	s := f.Snapshot()
	assert.True(t, s.CoordinatesKnown)
	assert.True(t, s.NetworkAlive)
	assert.Equal(t, uint64(1234), s.HeartbeatMs)
	assert.Equal(t, 1245, s.SunsetMinutes)
	assert.True(t, s.SunsetWindowActive)
	assert.True(t, s.Fetched)
	assert.Equal(t, uint64(1000), s.LastFetchMs)
}

func TestFacts_ConcurrentLanes(t *testing.T) {
	f := New()
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 1000; i++ {
			f.SetWallClock(start.Add(time.Duration(i) * time.Minute))
			f.MarkFetched(uint64(i))
			f.Heartbeat(uint64(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = f.Snapshot()
			_ = f.Freshness(uint64(i), time.Second)
			f.MarkSunsetShown()
		}
	}()
	wg.Wait()

	ms, ok := f.LastFetchMs()
	assert.True(t, ok)
	assert.Equal(t, uint64(999), ms)
}
