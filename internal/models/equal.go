package models

import "math"

// FloatTolerance is the absolute tolerance used when comparing prices and P&L.
const FloatTolerance = 1e-9

func floatEq(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= FloatTolerance
}

func floatPtrEq(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return floatEq(*a, *b)
}

func intPtrEq(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// keyedEqual compares two slices as multisets keyed by key, using eq for
// elements sharing a key. Element order is ignored.
func keyedEqual[T any](a, b []T, key func(T) string, eq func(T, T) bool) bool {
	if len(a) != len(b) {
		return false
	}
	index := make(map[string][]T, len(a))
	for _, v := range a {
		k := key(v)
		index[k] = append(index[k], v)
	}
	for _, v := range b {
		k := key(v)
		candidates := index[k]
		matched := -1
		for i, c := range candidates {
			if eq(c, v) {
				matched = i
				break
			}
		}
		if matched < 0 {
			return false
		}
		index[k] = append(candidates[:matched], candidates[matched+1:]...)
	}
	return true
}

// Equal reports whether two legs carry the same values.
func (l OrderLeg) Equal(o OrderLeg) bool {
	return l.OrderID == o.OrderID &&
		l.TradingSymbol == o.TradingSymbol &&
		l.OptionType == o.OptionType &&
		l.Quantity == o.Quantity &&
		floatPtrEq(l.EntryPrice, o.EntryPrice) &&
		floatPtrEq(l.ExitPrice, o.ExitPrice) &&
		floatPtrEq(l.RealizedPnl, o.RealizedPnl) &&
		intPtrEq(l.ExitTime, o.ExitTime)
}

// Equal reports whether two executions carry the same values. Legs are
// ordered, since the leg order is meaningful to the server.
func (s StrategyPosition) Equal(o StrategyPosition) bool {
	if s.ExecutionID != o.ExecutionID ||
		s.StrategyType != o.StrategyType ||
		s.InstrumentType != o.InstrumentType ||
		s.Expiry != o.Expiry ||
		s.Status != o.Status ||
		s.Message != o.Message ||
		s.Timestamp != o.Timestamp ||
		!floatPtrEq(s.EntryPrice, o.EntryPrice) ||
		!floatPtrEq(s.CurrentPrice, o.CurrentPrice) ||
		!floatPtrEq(s.ProfitLoss, o.ProfitLoss) ||
		!intPtrEq(s.EntryTime, o.EntryTime) ||
		!intPtrEq(s.ExitTime, o.ExitTime) ||
		len(s.OrderLegs) != len(o.OrderLegs) {
		return false
	}
	for i := range s.OrderLegs {
		if !s.OrderLegs[i].Equal(o.OrderLegs[i]) {
			return false
		}
	}
	return true
}

// StrategiesEqual compares two strategy snapshots ignoring order.
func StrategiesEqual(a, b []StrategyPosition) bool {
	return keyedEqual(a, b,
		func(s StrategyPosition) string { return s.ExecutionID },
		StrategyPosition.Equal)
}

// Equal reports whether two orders carry the same values.
func (o Order) Equal(x Order) bool {
	return o.OrderID == x.OrderID &&
		o.Status == x.Status &&
		o.TradingSymbol == x.TradingSymbol &&
		o.Exchange == x.Exchange &&
		o.TransactionType == x.TransactionType &&
		o.OrderType == x.OrderType &&
		o.Product == x.Product &&
		o.Quantity == x.Quantity &&
		o.FilledQuantity == x.FilledQuantity &&
		o.OrderTimestamp == x.OrderTimestamp &&
		floatEq(o.AveragePrice, x.AveragePrice)
}

// OrdersEqual compares two order snapshots ignoring order.
func OrdersEqual(a, b []Order) bool {
	return keyedEqual(a, b, func(o Order) string { return o.OrderID }, Order.Equal)
}

// Equal reports whether two positions carry the same values.
func (p Position) Equal(o Position) bool {
	return p.Key() == o.Key() &&
		p.NetQuantity == o.NetQuantity &&
		floatEq(p.AveragePrice, o.AveragePrice) &&
		floatEq(p.LastPrice, o.LastPrice) &&
		floatEq(p.PnL, o.PnL) &&
		floatEq(p.BuyValue, o.BuyValue) &&
		floatEq(p.SellValue, o.SellValue)
}

// PositionsEqual compares two position snapshots ignoring order.
func PositionsEqual(a, b []Position) bool {
	return keyedEqual(a, b, Position.Key, Position.Equal)
}

// Equal reports whether two charge details carry the same values.
func (c ChargeDetail) Equal(o ChargeDetail) bool {
	return floatEq(c.TransactionTax, o.TransactionTax) &&
		c.TransactionTaxType == o.TransactionTaxType &&
		floatEq(c.ExchangeTurnoverCharge, o.ExchangeTurnoverCharge) &&
		floatEq(c.SEBITurnoverCharge, o.SEBITurnoverCharge) &&
		floatEq(c.Brokerage, o.Brokerage) &&
		floatEq(c.StampDuty, o.StampDuty) &&
		floatEq(c.GSTTotal(), o.GSTTotal()) &&
		floatPtrEq(c.Total, o.Total)
}

// Equal reports whether two charge records carry the same values.
func (c OrderCharge) Equal(o OrderCharge) bool {
	if c.TransactionType != o.TransactionType ||
		c.TradingSymbol != o.TradingSymbol ||
		c.Exchange != o.Exchange ||
		c.Variety != o.Variety ||
		c.Product != o.Product ||
		c.OrderType != o.OrderType ||
		c.Quantity != o.Quantity ||
		!floatEq(c.Price, o.Price) {
		return false
	}
	if c.Charges == nil || o.Charges == nil {
		return c.Charges == nil && o.Charges == nil
	}
	return c.Charges.Equal(*o.Charges)
}

func chargeKey(c OrderCharge) string {
	return string(c.TransactionType) + ":" + c.TradingSymbol + ":" + string(c.Product)
}

// ChargesEqual compares two charge snapshots ignoring order.
func ChargesEqual(a, b []OrderCharge) bool {
	return keyedEqual(a, b, chargeKey, OrderCharge.Equal)
}

// Equal reports whether two breakdowns match within tolerance.
func (c ChargesBreakdown) Equal(o ChargesBreakdown) bool {
	return floatEq(c.Brokerage, o.Brokerage) &&
		floatEq(c.STT, o.STT) &&
		floatEq(c.Exchange, o.Exchange) &&
		floatEq(c.SEBI, o.SEBI) &&
		floatEq(c.StampDuty, o.StampDuty) &&
		floatEq(c.GST, o.GST) &&
		floatEq(c.Total, o.Total)
}

// MonitoringEqual compares two optional monitoring statuses.
func MonitoringEqual(a, b *MonitoringStatus) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// PriceEqual compares two prices within tolerance.
func PriceEqual(a, b float64) bool {
	return floatEq(a, b)
}
