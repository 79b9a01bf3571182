package utils

import "time"

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// MarketSession is the NSE cash/F&O session phase at a point in time.
type MarketSession string

const (
	SessionClosed  MarketSession = "CLOSED"
	SessionPreOpen MarketSession = "PRE_OPEN"
	SessionOpen    MarketSession = "OPEN"
	// SessionSquareOff is the last stretch before intraday positions are
	// squared off by the broker.
	SessionSquareOff MarketSession = "SQUARE_OFF"
)

// SessionAt returns the session phase at t.
func SessionAt(t time.Time) MarketSession {
	now := t.In(IndiaLocation)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return SessionClosed
	}

	minutes := now.Hour()*60 + now.Minute()
	switch {
	case minutes >= 9*60 && minutes < 9*60+15:
		return SessionPreOpen
	case minutes >= 15*60 && minutes < 15*60+30:
		return SessionSquareOff
	case minutes >= 9*60+15 && minutes < 15*60:
		return SessionOpen
	default:
		return SessionClosed
	}
}

// CurrentSession returns the session phase now.
func CurrentSession() MarketSession {
	return SessionAt(time.Now())
}
