// Package notify sends order confirmation email.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/payment"
	"github.com/noah-isme/toko-checkout/internal/resilience"
)

// ErrNoRecipient is returned when the order has nobody to notify.
var ErrNoRecipient = errors.New("notify: recipient is required")

var orderPlacedTmpl = template.Must(template.New("order_placed").Funcs(template.FuncMap{
	"money": func(currency string, v decimal.Decimal) string {
		return strings.TrimSpace(currency + " " + v.StringFixed(2))
	},
	"paidWith": paidWith,
}).Parse(`<p>Hi {{.Order.Shipping.Address.Name}},</p>
<p>Thanks for your order <strong>{{.Order.ID}}</strong>. We will let you know when it ships.</p>
<table>
{{- range .Order.Items}}
<tr><td>{{.Name}}</td><td>x{{.Quantity}}</td><td>{{money $.Order.Currency .Price}}</td></tr>
{{- end}}
</table>
<p>Subtotal: {{money .Order.Currency .Order.Subtotal}}<br>
Tax: {{money .Order.Currency .Order.Tax}}<br>
Shipping: {{money .Order.Currency .Order.Shipping.Cost}}<br>
{{- if .Order.ImportDuty.IsPositive}}
Import duty: {{money .Order.Currency .Order.ImportDuty}}<br>
{{- end}}
{{- if .Order.Discount.IsPositive}}
Discount: -{{money .Order.Currency .Order.Discount}}<br>
{{- end}}
<strong>Total: {{money .Order.Currency .Order.TotalAmount}}</strong></p>
<p>Paid with {{paidWith .Order.Payment}}. Estimated delivery {{.Order.Shipping.EstimatedDelivery.Format "2 Jan 2006"}}.</p>
`))

// Confirmation renders and sends the order placed email.
type Confirmation struct {
	Mail    common.EmailSender
	Breaker *resilience.Breaker
	Retry   resilience.Policy
	Logger  zerolog.Logger
}

// OrderPlaced mails recipient a summary of order.
func (c Confirmation) OrderPlaced(ctx context.Context, order catalog.Order, recipient string) error {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return ErrNoRecipient
	}
	if c.Mail == nil {
		return nil
	}
	var body bytes.Buffer
	if err := orderPlacedTmpl.Execute(&body, struct{ Order catalog.Order }{order}); err != nil {
		return fmt.Errorf("notify: render: %w", err)
	}
	subject := fmt.Sprintf("Order %s confirmed", order.ID)

	send := func(context.Context) error { return c.Mail.Send(recipient, subject, body.String()) }
	if c.Breaker != nil {
		guarded := send
		send = func(ctx context.Context) error { return c.Breaker.Do(ctx, guarded) }
	}
	if err := resilience.Retry(ctx, c.Retry, send); err != nil {
		return fmt.Errorf("notify: send confirmation: %w", err)
	}
	c.Logger.Debug().Str("order_id", order.ID).Msg("confirmation email sent")
	return nil
}

func paidWith(s payment.Summary) string {
	switch s.Method {
	case payment.MethodCard:
		return fmt.Sprintf("%s ending %s", s.Details.CardType, s.Details.LastFour)
	case payment.MethodUPI:
		return "UPI " + s.Details.UPIID
	default:
		return s.Method
	}
}
