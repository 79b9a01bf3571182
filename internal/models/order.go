package models

// OrderStatus is the broker lifecycle state of an order.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "OPEN"
	OrderPending   OrderStatus = "PENDING"
	OrderComplete  OrderStatus = "COMPLETE"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRejected  OrderStatus = "REJECTED"
)

// Order represents one broker order record.
type Order struct {
	OrderID         string      `json:"orderId"`
	Status          OrderStatus `json:"status"`
	TradingSymbol   string      `json:"tradingSymbol"`
	Exchange        Exchange    `json:"exchange"`
	TransactionType OrderSide   `json:"transactionType"`
	OrderType       string      `json:"orderType"`
	Product         ProductType `json:"product"`
	Quantity        int         `json:"quantity"`
	AveragePrice    float64     `json:"averagePrice"`
	FilledQuantity  int         `json:"filledQuantity"`
	OrderTimestamp  string      `json:"orderTimestamp"`
}

// Position represents one net position per symbol and product.
type Position struct {
	TradingSymbol string      `json:"tradingSymbol"`
	Exchange      Exchange    `json:"exchange"`
	Product       ProductType `json:"product"`
	NetQuantity   int         `json:"netQuantity"`
	AveragePrice  float64     `json:"averagePrice"`
	LastPrice     float64     `json:"lastPrice"`
	PnL           float64     `json:"pnl"`
	BuyValue      float64     `json:"buyValue"`
	SellValue     float64     `json:"sellValue"`
}

// Key identifies a position within a snapshot.
func (p Position) Key() string {
	return string(p.Exchange) + ":" + p.TradingSymbol + ":" + string(p.Product)
}

// PositionBook is the positions payload split into net and day lists.
type PositionBook struct {
	Net []Position `json:"net"`
	Day []Position `json:"day"`
}

// Preferred returns the day positions when present, otherwise net.
// Day includes squared-off positions; paper mode may only populate net.
func (b PositionBook) Preferred() []Position {
	if len(b.Day) > 0 {
		return b.Day
	}
	if b.Net == nil {
		return []Position{}
	}
	return b.Net
}

// GSTCharge is the GST component of an order charge.
type GSTCharge struct {
	IGST  float64 `json:"igst"`
	CGST  float64 `json:"cgst"`
	SGST  float64 `json:"sgst"`
	Total float64 `json:"total"`
}

// ChargeDetail is the per-order charge breakdown.
type ChargeDetail struct {
	TransactionTax         float64    `json:"transactionTax"`
	TransactionTaxType     string     `json:"transactionTaxType"`
	ExchangeTurnoverCharge float64    `json:"exchangeTurnoverCharge"`
	SEBITurnoverCharge     float64    `json:"sebiTurnoverCharge"`
	Brokerage              float64    `json:"brokerage"`
	StampDuty              float64    `json:"stampDuty"`
	GST                    *GSTCharge `json:"gst"`
	Total                  *float64   `json:"total"`
}

// GSTTotal returns the GST total, zero when absent.
func (c ChargeDetail) GSTTotal() float64 {
	if c.GST == nil {
		return 0
	}
	return c.GST.Total
}

// OrderCharge is the charge record for one order.
type OrderCharge struct {
	TransactionType OrderSide     `json:"transactionType"`
	TradingSymbol   string        `json:"tradingsymbol"`
	Exchange        Exchange      `json:"exchange"`
	Variety         string        `json:"variety"`
	Product         ProductType   `json:"product"`
	OrderType       string        `json:"orderType"`
	Quantity        int           `json:"quantity"`
	Price           float64       `json:"price"`
	Charges         *ChargeDetail `json:"charges"`
}

// ChargesBreakdown is the aggregate of all order charges for the session.
type ChargesBreakdown struct {
	Brokerage float64 `json:"brokerage"`
	STT       float64 `json:"stt"`
	Exchange  float64 `json:"exchange"`
	SEBI      float64 `json:"sebi"`
	StampDuty float64 `json:"stampDuty"`
	GST       float64 `json:"gst"`
	Total     float64 `json:"total"`
}
