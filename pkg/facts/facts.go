// Package facts holds the cells the network lane publishes for the render lane.
//
// Every field is an independent atomic. There is no lock over the group: a
// reader may see a new fetch timestamp next to an old sunset flag for one
// frame. Readers re-read every frame and every value is re-derivable, so the
// group is eventually consistent, never transactional.
package facts

import (
	"sync/atomic"
	"time"
)

// Freshness classifies the age of the displayed data.
type Freshness int

const (
	NoData Freshness = iota
	Fresh
	Stale
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	}
	return "no_data"
}

// Evaluate classifies data fetched at lastFetchMs. Data is stale once its age
// reaches threshold: age == threshold is stale.
func Evaluate(nowMs, lastFetchMs uint64, fetched bool, threshold time.Duration) Freshness {
	if !fetched {
		return NoData
	}
	var age uint64
	if nowMs > lastFetchMs {
		age = nowMs - lastFetchMs
	}
	if age >= uint64(threshold.Milliseconds()) {
		return Stale
	}
	return Fresh
}

// WallClock is the broken-down local time last published by the network lane.
type WallClock struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
}

// Facts are the cross-lane cells. The network lane writes everything except
// the sunset acknowledgement, which belongs to the render lane.
type Facts struct {
	year   atomic.Int32
	month  atomic.Int32
	day    atomic.Int32
	hour   atomic.Int32
	minute atomic.Int32
	dayKey atomic.Int32 // year*1000 + day of year, 0 until first set

	coordinatesKnown atomic.Bool
	lastFetch        atomic.Uint64 // ms+1, 0 = never
	networkAlive     atomic.Bool
	heartbeat        atomic.Uint64

	sunsetMinutes      atomic.Int32 // minutes after local midnight, -1 unknown
	sunsetWindowActive atomic.Bool
	sunsetShownToday   atomic.Bool
}

// New creates facts with nothing known.
func New() *Facts {
	f := &Facts{}
	f.sunsetMinutes.Store(-1)
	return f
}

// SetWallClock publishes the local time. It reports whether the calendar day
// changed, in which case the sunset replay flag is reset.
func (f *Facts) SetWallClock(t time.Time) bool {
	f.year.Store(int32(t.Year()))
	f.month.Store(int32(t.Month()))
	f.day.Store(int32(t.Day()))
	f.hour.Store(int32(t.Hour()))
	f.minute.Store(int32(t.Minute()))

	key := int32(t.Year()*1000 + t.YearDay())
	prev := f.dayKey.Swap(key)
	if prev != 0 && prev != key {
		f.sunsetShownToday.Store(false)
		return true
	}
	return false
}

// WallClock returns the last published local time.
func (f *Facts) WallClock() WallClock {
	return WallClock{
		Year:   int(f.year.Load()),
		Month:  time.Month(f.month.Load()),
		Day:    int(f.day.Load()),
		Hour:   int(f.hour.Load()),
		Minute: int(f.minute.Load()),
	}
}

// ClockKnown reports whether any wall clock has been published.
func (f *Facts) ClockKnown() bool {
	return f.dayKey.Load() != 0
}

func (f *Facts) SetCoordinatesKnown(known bool) { f.coordinatesKnown.Store(known) }
func (f *Facts) CoordinatesKnown() bool         { return f.coordinatesKnown.Load() }

// MarkFetched records a successful fetch at nowMs.
func (f *Facts) MarkFetched(nowMs uint64) {
	f.lastFetch.Store(nowMs + 1)
}

// LastFetchMs returns the time of the last successful fetch.
func (f *Facts) LastFetchMs() (ms uint64, ok bool) {
	v := f.lastFetch.Load()
	if v == 0 {
		return 0, false
	}
	return v - 1, true
}

// Freshness evaluates the last fetch against threshold.
func (f *Facts) Freshness(nowMs uint64, threshold time.Duration) Freshness {
	ms, ok := f.LastFetchMs()
	return Evaluate(nowMs, ms, ok, threshold)
}

func (f *Facts) SetNetworkAlive(alive bool) { f.networkAlive.Store(alive) }
func (f *Facts) NetworkAlive() bool         { return f.networkAlive.Load() }

// Heartbeat marks the network lane as alive at nowMs.
func (f *Facts) Heartbeat(nowMs uint64) { f.heartbeat.Store(nowMs) }
func (f *Facts) HeartbeatMs() uint64    { return f.heartbeat.Load() }

// SetSunsetMinutes publishes today's sunset, -1 when unknown.
func (f *Facts) SetSunsetMinutes(minutes int) { f.sunsetMinutes.Store(int32(minutes)) }
func (f *Facts) SunsetMinutes() int           { return int(f.sunsetMinutes.Load()) }

func (f *Facts) SetSunsetWindowActive(active bool) { f.sunsetWindowActive.Store(active) }
func (f *Facts) SunsetWindowActive() bool          { return f.sunsetWindowActive.Load() }
func (f *Facts) SunsetShownToday() bool            { return f.sunsetShownToday.Load() }

// MarkSunsetShown is the render lane's acknowledgement that it played the
// sunset indication. It is the only cell the render lane writes.
func (f *Facts) MarkSunsetShown() { f.sunsetShownToday.Store(true) }

// Snapshot is a plain copy of all cells, read one by one.
type Snapshot struct {
	Clock              WallClock
	ClockKnown         bool
	CoordinatesKnown   bool
	LastFetchMs        uint64
	Fetched            bool
	NetworkAlive       bool
	HeartbeatMs        uint64
	SunsetMinutes      int
	SunsetWindowActive bool
	SunsetShownToday   bool
}

// Snapshot reads every cell. The result may be torn.
func (f *Facts) Snapshot() Snapshot {
	ms, ok := f.LastFetchMs()
	return Snapshot{
		Clock:              f.WallClock(),
		ClockKnown:         f.ClockKnown(),
		CoordinatesKnown:   f.CoordinatesKnown(),
		LastFetchMs:        ms,
		Fetched:            ok,
		NetworkAlive:       f.NetworkAlive(),
		HeartbeatMs:        f.HeartbeatMs(),
		SunsetMinutes:      f.SunsetMinutes(),
		SunsetWindowActive: f.SunsetWindowActive(),
		SunsetShownToday:   f.SunsetShownToday(),
	}
}
