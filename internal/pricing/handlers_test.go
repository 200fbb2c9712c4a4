package pricing_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/pricing"
)

func TestQuoteHandler(t *testing.T) {
	h := &pricing.Handler{Calc: pricing.NewCalculator(pricing.DefaultConfig())}

	body := `{"subtotal":"1000","country":"United States","shippingMethod":"standard","discountAmount":"0"}`
	rr := httptest.NewRecorder()
	h.Quote(rr, httptest.NewRequest(http.MethodPost, "/api/v1/pricing/quote", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data pricing.Breakdown `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "690", resp.Data.ImportDuty.String())
	require.Equal(t, "500", resp.Data.ShippingCost.String())
}

func TestQuoteHandlerRejectsUnknownMethod(t *testing.T) {
	h := &pricing.Handler{Calc: pricing.NewCalculator(pricing.DefaultConfig())}
	rr := httptest.NewRecorder()
	h.Quote(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"subtotal":10,"country":"India","shippingMethod":"drone"}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}
