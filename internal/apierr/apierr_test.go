package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/timelock/internal/custody"
	"github.com/congo-pay/timelock/internal/ledger"
)

func TestFromMapsClasses(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{custody.ErrInvalidCliff, http.StatusBadRequest},
		{fmt.Errorf("create: %w", custody.ErrAmountNotDivisible), http.StatusBadRequest},
		{custody.ErrUnauthorized, http.StatusForbidden},
		{custody.ErrStreamNotFound, http.StatusNotFound},
		{custody.ErrLinkExpired, http.StatusConflict},
		{custody.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{ledger.ErrDuplicateTransaction, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
		{fiber.NewError(http.StatusTeapot, "tea"), http.StatusTeapot},
	}
	for _, tc := range cases {
		var fe *fiber.Error
		if !errors.As(From(tc.err), &fe) {
			t.Fatalf("%v: expected *fiber.Error", tc.err)
		}
		if fe.Code != tc.code {
			t.Fatalf("%v: expected status %d got %d", tc.err, tc.code, fe.Code)
		}
	}
	if From(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
