// Package inventory re-checks live stock for cart lines at commit time.
package inventory

import (
	"errors"

	"github.com/noah-isme/toko-checkout/internal/obs"
)

// ErrCartEmptied is returned when applying shortfalls removes every line.
var ErrCartEmptied = errors.New("inventory: no items left in stock")

// Line is the stock-relevant view of a cart line.
type Line struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Shortfall records a line whose requested quantity exceeds live stock.
type Shortfall struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// Removed reports whether the line will be dropped rather than clamped.
func (s Shortfall) Removed() bool { return s.Available <= 0 }

// Merge folds lines for the same product into one, keeping first-seen order.
// Non-positive quantities are ignored.
func Merge(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}

// Check compares the requested total per product to stock. Products missing
// from stock count as zero available.
func Check(lines []Line, stock map[string]int) []Shortfall {
	var out []Shortfall
	for _, l := range Merge(lines) {
		avail := stock[l.ProductID]
		if avail < 0 {
			avail = 0
		}
		if avail < l.Quantity {
			out = append(out, Shortfall{ProductID: l.ProductID, Requested: l.Quantity, Available: avail})
		}
	}
	return out
}

// Apply merges lines per product, clamps short products to what is available
// and drops those with none. The input is not modified. ErrCartEmptied is
// returned, along with the empty result, when nothing remains.
func Apply(lines []Line, shortfalls []Shortfall) ([]Line, error) {
	byID := make(map[string]Shortfall, len(shortfalls))
	for _, s := range shortfalls {
		byID[s.ProductID] = s
	}
	merged := Merge(lines)
	out := make([]Line, 0, len(merged))
	for _, l := range merged {
		s, short := byID[l.ProductID]
		switch {
		case !short:
			out = append(out, l)
		case s.Removed():
			obs.InventoryAdjustmentsTotal.WithLabelValues("removed").Inc()
		default:
			obs.InventoryAdjustmentsTotal.WithLabelValues("clamped").Inc()
			out = append(out, Line{ProductID: l.ProductID, Quantity: s.Available})
		}
	}
	if len(out) == 0 {
		return out, ErrCartEmptied
	}
	return out, nil
}
