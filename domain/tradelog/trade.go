package tradelog

import "fmt"

// Trade records one fill between an incoming (aggressor) order and a
// resting order. The price is always the resting order's price, so the
// aggressor keeps any price improvement. Immutable once created.
type Trade struct {
	AggressorID string `json:"aggressor_id"`
	RestingID   string `json:"resting_id"`
	Price       int64  `json:"price"`
	Qty         int64  `json:"qty"`
}

func (t Trade) String() string {
	return fmt.Sprintf("trade %s,%s,%d,%d", t.AggressorID, t.RestingID, t.Price, t.Qty)
}
