package market

import (
	"fmt"
	"time"
)

// Tick is a single top-of-book quote from the venue.
type Tick struct {
	Time time.Time `json:"time"`
	Bid  float64   `json:"bid"`
	Ask  float64   `json:"ask"`
}

// Mid returns the quote midpoint.
func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

// Spread returns the quoted spread.
func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// Timeframe identifies a bar aggregation interval.
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
)

// Timeframes lists all supported intervals in ascending order.
var Timeframes = []Timeframe{M1, M5, M15, M30, H1, H4}

// Duration returns the interval length. Unknown timeframes return 0.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case M1:
		return time.Minute
	case M5:
		return 5 * time.Minute
	case M15:
		return 15 * time.Minute
	case M30:
		return 30 * time.Minute
	case H1:
		return time.Hour
	case H4:
		return 4 * time.Hour
	default:
		return 0
	}
}

// ParseTimeframe converts a config string into a Timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if tf.Duration() == 0 {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Bar is one OHLC aggregation bucket. Bars built from ticks use the quote
// midpoint. Complete is false only for the in-progress bucket.
type Bar struct {
	Start     time.Time `json:"start"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	TickCount int       `json:"tick_count"`
	Complete  bool      `json:"complete"`
}
