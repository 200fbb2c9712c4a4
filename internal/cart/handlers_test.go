package cart_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/common"
)

func cartRouter(h *cart.Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/cart", h.Get)
	r.Delete("/cart", h.Clear)
	r.Post("/cart/items", h.AddItem)
	r.Patch("/cart/items/{productId}", h.UpdateItem)
	r.Delete("/cart/items/{productId}", h.RemoveItem)
	r.Post("/cart/coupon", h.ApplyCoupon)
	r.Delete("/cart/coupon", h.RemoveCoupon)
	return r
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req = req.WithContext(common.WithUserID(req.Context(), "u1"))
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	return rr
}

func TestCartHandlersLifecycle(t *testing.T) {
	f := newFixture(t)
	srv := cartRouter(&cart.Handler{Svc: f.svc})

	rr := do(t, srv, http.MethodPost, "/cart/items", `{"productId":"A","quantity":2}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(t, srv, http.MethodPost, "/cart/items", `{"productId":"B","quantity":1}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(t, srv, http.MethodPatch, "/cart/items/B", `{"quantity":3}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, srv, http.MethodPost, "/cart/coupon", `{"code":"alpha10"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"valid":true`)

	rr = do(t, srv, http.MethodGet, "/cart", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "ALPHA10")

	rr = do(t, srv, http.MethodDelete, "/cart/items/A", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotContains(t, rr.Body.String(), "ALPHA10", "removing the covered product drops the coupon")

	rr = do(t, srv, http.MethodDelete, "/cart", "")
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestCartHandlersRejectInput(t *testing.T) {
	f := newFixture(t)
	srv := cartRouter(&cart.Handler{Svc: f.svc})

	rr := do(t, srv, http.MethodPost, "/cart/items", `{"quantity":1}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, srv, http.MethodPost, "/cart/items", `{"productId":"ghost","quantity":1}`)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, srv, http.MethodPost, "/cart/coupon", `{"code":"ALPHA10"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, "empty cart")

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cart", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
