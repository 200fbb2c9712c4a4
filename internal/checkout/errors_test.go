package checkout

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:  http.StatusUnprocessableEntity,
		KindInventory:   http.StatusConflict,
		KindDuplicate:   http.StatusConflict,
		KindPayment:     http.StatusPaymentRequired,
		KindPersistence: http.StatusServiceUnavailable,
	}
	for kind, status := range cases {
		e := newError(kind, "step", "msg", nil)
		require.True(t, e.Fatal())
		require.Equal(t, status, e.HTTPStatus())
		app := e.AppError()
		require.Equal(t, status, app.HTTPStatus)
		require.Equal(t, map[string]any{"step": "step"}, app.Details)
	}
	require.False(t, newError(KindNonFatal, "email", "msg", nil).Fatal())
}

func TestErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	var err error = newError(KindPersistence, "persist", "could not save", cause)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "persist: could not save: disk full", err.Error())

	ce, ok := AsError(errors.Join(errors.New("other"), err))
	require.True(t, ok)
	require.Equal(t, KindPersistence, ce.Kind)
}
