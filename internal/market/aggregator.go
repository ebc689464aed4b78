package market

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/HCTech2/GOLD-HFT/internal/logging"
)

// ringBuffer is a fixed-capacity tick store. Once full, the oldest tick is
// overwritten. Writes come from the single ingestion goroutine.
type ringBuffer struct {
	ticks []Tick
	head  int
	size  int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{ticks: make([]Tick, capacity)}
}

func (rb *ringBuffer) push(t Tick) {
	rb.ticks[rb.head] = t
	rb.head = (rb.head + 1) % len(rb.ticks)
	if rb.size < len(rb.ticks) {
		rb.size++
	}
}

// recent copies out the newest n ticks, oldest first.
func (rb *ringBuffer) recent(n int) []Tick {
	if n > rb.size {
		n = rb.size
	}
	out := make([]Tick, n)
	start := rb.head - n
	if start < 0 {
		start += len(rb.ticks)
	}
	for i := 0; i < n; i++ {
		out[i] = rb.ticks[(start+i)%len(rb.ticks)]
	}
	return out
}

// series maintains the bar history for one timeframe.
type series struct {
	tf      Timeframe
	bars    []Bar // completed bars, oldest first, bounded by maxBars
	current *Bar  // in-progress bucket, nil before the first tick
	maxBars int
}

func newSeries(tf Timeframe, maxBars int) *series {
	return &series{tf: tf, maxBars: maxBars}
}

func (s *series) appendCompleted(b Bar) {
	b.Complete = true
	s.bars = append(s.bars, b)
	if len(s.bars) > s.maxBars {
		s.bars = s.bars[len(s.bars)-s.maxBars:]
	}
}

// update folds one tick into the series, completing the in-progress bar and
// gap-filling with flat bars when the tick opens a later bucket.
func (s *series) update(t Tick) {
	bucket := t.Time.Truncate(s.tf.Duration())
	mid := t.Mid()

	if s.current == nil {
		s.current = &Bar{Start: bucket, Open: mid, High: mid, Low: mid, Close: mid, TickCount: 1}
		return
	}

	if bucket.Equal(s.current.Start) {
		if mid > s.current.High {
			s.current.High = mid
		}
		if mid < s.current.Low {
			s.current.Low = mid
		}
		s.current.Close = mid
		s.current.TickCount++
		return
	}

	if bucket.Before(s.current.Start) {
		// Out-of-order tick from before the open bucket; fold it into the
		// current bar rather than rewriting history.
		if mid > s.current.High {
			s.current.High = mid
		}
		if mid < s.current.Low {
			s.current.Low = mid
		}
		s.current.TickCount++
		return
	}

	lastClose := s.current.Close
	s.appendCompleted(*s.current)

	// Quiet buckets between the completed bar and the new tick become flat
	// bars at the last close so indicator windows stay time-aligned.
	for gap := s.current.Start.Add(s.tf.Duration()); gap.Before(bucket); gap = gap.Add(s.tf.Duration()) {
		s.appendCompleted(Bar{Start: gap, Open: lastClose, High: lastClose, Low: lastClose, Close: lastClose})
	}

	s.current = &Bar{Start: bucket, Open: mid, High: mid, Low: mid, Close: mid, TickCount: 1}
}

// snapshot returns up to n bars oldest→newest, including the in-progress bar.
func (s *series) snapshot(n int) []Bar {
	total := len(s.bars)
	if s.current != nil {
		total++
	}
	if n > total {
		n = total
	}
	out := make([]Bar, 0, n)
	fromCompleted := n
	if s.current != nil {
		fromCompleted--
	}
	if fromCompleted > 0 {
		out = append(out, s.bars[len(s.bars)-fromCompleted:]...)
	}
	if s.current != nil && n > 0 {
		out = append(out, *s.current)
	}
	return out
}

// Stats reports aggregator counters for the status snapshot.
type Stats struct {
	TicksAccepted  int64     `json:"ticks_accepted"`
	TicksCoalesced int64     `json:"ticks_coalesced"`
	LastTickAt     time.Time `json:"last_tick_at"`
}

// Aggregator ingests the raw tick stream and maintains OHLC bar series for
// every supported timeframe. Ingest must be called from a single goroutine;
// readers get consistent point-in-time snapshots.
type Aggregator struct {
	mu      sync.RWMutex
	ring    *ringBuffer
	series  map[Timeframe]*series
	last    Tick
	hasLast bool
	stats   Stats
	logger  zerolog.Logger
}

// NewAggregator creates an aggregator with the given ring capacity and
// per-timeframe bar retention.
func NewAggregator(ringCapacity, maxBars int) *Aggregator {
	a := &Aggregator{
		ring:   newRingBuffer(ringCapacity),
		series: make(map[Timeframe]*series, len(Timeframes)),
		logger: logging.Component("aggregator"),
	}
	for _, tf := range Timeframes {
		a.series[tf] = newSeries(tf, maxBars)
	}
	return a
}

// Ingest folds one tick into the ring buffer and every bar series.
//
// A tick whose M1 bucket, bid, and ask all match the immediately preceding
// tick is coalesced: it refreshes liveness but adds no new information.
// Returns true when the tick was accepted.
func (a *Aggregator) Ingest(t Tick) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.LastTickAt = t.Time

	if a.hasLast &&
		t.Time.Truncate(time.Minute).Equal(a.last.Time.Truncate(time.Minute)) &&
		t.Bid == a.last.Bid && t.Ask == a.last.Ask {
		a.stats.TicksCoalesced++
		return false
	}

	a.last = t
	a.hasLast = true
	a.stats.TicksAccepted++

	a.ring.push(t)
	for _, s := range a.series {
		s.update(t)
	}
	return true
}

// SeedBars preloads completed historical bars for one timeframe, oldest first.
// Used for warm-start before live ticks arrive.
func (a *Aggregator) SeedBars(tf Timeframe, bars []Bar) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.series[tf]
	if !ok {
		return
	}
	for _, b := range bars {
		s.appendCompleted(b)
	}
	a.logger.Info().Str("timeframe", string(tf)).Int("bars", len(bars)).Msg("seeded historical bars")
}

// Bars returns up to n bars for the timeframe, oldest→newest. The final
// element is the in-progress bar when one exists.
func (a *Aggregator) Bars(tf Timeframe, n int) []Bar {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s, ok := a.series[tf]
	if !ok {
		return nil
	}
	return s.snapshot(n)
}

// LastTick returns the most recent accepted tick.
func (a *Aggregator) LastTick() (Tick, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last, a.hasLast
}

// RecentTicks copies out the newest n ticks, oldest first.
func (a *Aggregator) RecentTicks(n int) []Tick {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ring.recent(n)
}

// Spread returns the current quoted spread, or 0 before the first tick.
func (a *Aggregator) Spread() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.hasLast {
		return 0
	}
	return a.last.Spread()
}

// Stats returns ingestion counters.
func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}
