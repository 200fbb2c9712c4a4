package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/common"
)

type stubCarts struct{ state cart.State }

func (s stubCarts) Get(context.Context, string) (cart.State, error) { return s.state, nil }

const checkoutBody = `{
  "address": {"name":"Asha Rao","phone":"9876543210","house":"12B","line1":"MG Road","city":"Bengaluru","state":"Karnataka","country":"India","postalCode":"560001"},
  "shippingMethod": "standard",
  "payment": {"method":"card","cardNumber":"4242424242424242","cvv":"123","expiry":"12/29"}
}`

func serve(h *Handler, body string, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	if userID != "" {
		req = req.WithContext(common.WithUserID(req.Context(), userID))
	}
	rr := httptest.NewRecorder()
	h.Checkout(rr, req)
	return rr
}

func TestHandlerCheckout(t *testing.T) {
	proc := &stubProcessor{}
	h := &Handler{Carts: stubCarts{state: cart.State{Lines: []cart.Line{{ProductID: "p1", Quantity: 2}}}}, Processor: proc}

	rr := serve(h, checkoutBody, "u1")
	require.Equal(t, http.StatusCreated, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, true, body["success"])
	require.Equal(t, "ord-1", body["orderId"])
	require.Equal(t, "pay_1", body["paymentId"])
	require.Len(t, proc.calls, 1)
	require.Equal(t, 2, proc.calls[0].Lines[0].Quantity)
}

func TestHandlerCheckoutErrors(t *testing.T) {
	full := stubCarts{state: cart.State{Lines: []cart.Line{{ProductID: "p1", Quantity: 1}}}}

	rr := serve(&Handler{Carts: full, Processor: &stubProcessor{}}, checkoutBody, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = serve(&Handler{Carts: stubCarts{}, Processor: &stubProcessor{}}, checkoutBody, "u1")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	badPhone := strings.Replace(checkoutBody, "9876543210", "98-76", 1)
	rr = serve(&Handler{Carts: full, Processor: &stubProcessor{}}, badPhone, "u1")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), `"phone"`)

	dup := &stubProcessor{err: newError(KindDuplicate, "dedupe", "you have already purchased every item in your cart", nil)}
	rr = serve(&Handler{Carts: full, Processor: dup}, checkoutBody, "u1")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "DUPLICATE_PURCHASE")

	pay := &stubProcessor{err: newError(KindPayment, "payment", "your payment was declined", nil)}
	rr = serve(&Handler{Carts: full, Processor: pay}, checkoutBody, "u1")
	require.Equal(t, http.StatusPaymentRequired, rr.Code)

	rr = serve(&Handler{Carts: full, Processor: &stubProcessor{}}, `{"unknown":true}`, "u1")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
