package eod

// tradeLine mirrors the per-order line the tradelog writes.
type tradeLine struct {
	Time    string
	Symbol  string
	Side    string
	OrderID string
	Reason  string
	Qty     int
	Price   float64
}

// aggRow is the per-symbol accumulation for the daily CSV.
type aggRow struct {
	Symbol      string
	BuyQty      int
	BuyValue    float64
	SellQty     int
	SellValue   float64
	RealizedPnL float64
}
