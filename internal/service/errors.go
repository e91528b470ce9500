package service

import (
	"errors"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/mmynk/groupledger/internal/models"
)

// toConnectError maps a domain error to a Connect error. Unclassified
// errors are logged and returned as Internal without their cause.
func toConnectError(procedure string, err error) error {
	var code connect.Code
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		code = connect.CodeInvalidArgument
	case errors.Is(err, models.ErrSplitMismatch),
		errors.Is(err, models.ErrInsufficientCredits):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, models.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, models.ErrForbidden):
		code = connect.CodePermissionDenied
	case errors.Is(err, models.ErrConflict):
		code = connect.CodeAlreadyExists
	default:
		slog.Error("RPC internal error", "procedure", procedure, "error", err)
		return connect.NewError(connect.CodeInternal, errors.New("internal server error"))
	}
	return connect.NewError(code, err)
}
