package model

// Instrument is a tradable symbol. The set is fixed at compile time and
// instruments are compared by identity; per-venue naming lives in the venue
// packages.
type Instrument int

const (
	BtcUsdt Instrument = iota
	EthUsdc
	EthBtc
)

// String returns the venue-agnostic display name.
func (i Instrument) String() string {
	switch i {
	case BtcUsdt:
		return "BTC_USDT"
	case EthUsdc:
		return "ETH_USDC"
	case EthBtc:
		return "ETH_BTC"
	default:
		return "UNKNOWN"
	}
}

// Instruments returns every known instrument.
func Instruments() []Instrument {
	return []Instrument{BtcUsdt, EthUsdc, EthBtc}
}

// ParseInstrument resolves a display name back to an Instrument.
func ParseInstrument(s string) (Instrument, bool) {
	for _, i := range Instruments() {
		if i.String() == s {
			return i, true
		}
	}
	return 0, false
}

// Venue identifies which trading venue produced an order record.
type Venue string

const (
	VenueBinance Venue = "binance"
	VenueDeribit Venue = "deribit"
)

// Side tags a Level as resting on the bid or ask side of a book. The two
// sides share one record type; only the sort direction differs.
type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Level is one top-of-book order record: resting interest at a price on one
// venue. Records are created fresh each refresh cycle, never mutated, and
// discarded on the next cycle.
type Level struct {
	Instrument Instrument
	Venue      Venue
	Side       Side
	Quantity   float64
	Price      float64
}
