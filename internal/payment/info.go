package payment

import (
	"strings"
)

// Method names accepted at the payment step.
const (
	MethodCard = "card"
	MethodUPI  = "upi"
)

// Info is the raw payment input captured from the shopper. It never reaches
// storage; Mask produces the persisted Summary.
type Info struct {
	Method     string `json:"method"`
	CardNumber string `json:"cardNumber,omitempty"`
	CVV        string `json:"cvv,omitempty"`
	Expiry     string `json:"expiry,omitempty"`
	UPIID      string `json:"upiId,omitempty"`
}

// Details holds the masked payment data stored with an order.
type Details struct {
	CardType string `json:"cardType,omitempty" bson:"cardType,omitempty"`
	LastFour string `json:"lastFour,omitempty" bson:"lastFour,omitempty"`
	UPIID    string `json:"upiId,omitempty" bson:"upiId,omitempty"`
}

// Summary is the order's payment block.
type Summary struct {
	Method  string  `json:"method" bson:"method"`
	Details Details `json:"details" bson:"details"`
}

// Complete reports whether the fields for the chosen method are present.
// Format is not checked.
func (i Info) Complete() bool {
	switch i.Method {
	case MethodCard:
		return digits(i.CardNumber) != "" && strings.TrimSpace(i.CVV) != "" && strings.TrimSpace(i.Expiry) != ""
	case MethodUPI:
		return strings.TrimSpace(i.UPIID) != ""
	default:
		return false
	}
}

// Brand infers the card scheme from its leading digits for display.
func Brand(number string) string {
	n := digits(number)
	switch {
	case strings.HasPrefix(n, "34"), strings.HasPrefix(n, "37"):
		return "Amex"
	case strings.HasPrefix(n, "4"):
		return "Visa"
	case len(n) >= 2 && n[0] == '5' && n[1] >= '1' && n[1] <= '5':
		return "MasterCard"
	case strings.HasPrefix(n, "6"):
		return "RuPay"
	default:
		return "Card"
	}
}

// Mask reduces Info to what may be stored: card type and last four digits,
// or the UPI id with its local part hidden after the first two characters.
func Mask(info Info) Summary {
	switch info.Method {
	case MethodCard:
		n := digits(info.CardNumber)
		last := n
		if len(n) > 4 {
			last = n[len(n)-4:]
		}
		return Summary{Method: MethodCard, Details: Details{CardType: Brand(n), LastFour: last}}
	case MethodUPI:
		return Summary{Method: MethodUPI, Details: Details{UPIID: maskUPI(strings.TrimSpace(info.UPIID))}}
	default:
		return Summary{Method: info.Method}
	}
}

func maskUPI(id string) string {
	local, domain, found := strings.Cut(id, "@")
	visible := local
	if len(local) > 2 {
		visible = local[:2]
	}
	masked := visible + strings.Repeat("*", len(local)-len(visible))
	if !found {
		return masked
	}
	return masked + "@" + domain
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
