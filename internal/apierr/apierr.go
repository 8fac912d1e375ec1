// Package apierr translates escrow engine errors into HTTP errors.
package apierr

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/timelock/internal/custody"
	"github.com/congo-pay/timelock/internal/ledger"
)

// From maps err to a *fiber.Error carrying the matching status code.
func From(err error) error {
	if err == nil {
		return nil
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, ledger.ErrDuplicateTransaction) {
		return fiber.NewError(http.StatusConflict, "duplicate transaction")
	}
	return fiber.NewError(Status(custody.Classify(err)), err.Error())
}

// Status returns the HTTP status code used for an error class.
func Status(class custody.Class) int {
	switch class {
	case custody.ClassValidation:
		return http.StatusBadRequest
	case custody.ClassAuthorization:
		return http.StatusForbidden
	case custody.ClassNotFound:
		return http.StatusNotFound
	case custody.ClassState:
		return http.StatusConflict
	case custody.ClassFunds:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// BadRequest wraps a malformed request body or parameter.
func BadRequest(err error) error {
	return fiber.NewError(http.StatusBadRequest, err.Error())
}
