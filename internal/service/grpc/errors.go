package grpcsvc

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alebrije/pos/internal/client"
	"github.com/alebrije/pos/internal/domain"
	"github.com/alebrije/pos/internal/qr"
)

// toStatus переводит доменную ошибку в gRPC status. Ошибки QR отдаются
// кодом вида QR_EXPIRED, чтобы клиент мог показать своё сообщение.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var apiErr *client.APIError
	switch {
	case qr.IsQRError(err):
		return status.Error(codes.FailedPrecondition, qr.Kind(err))
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, client.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, client.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case domain.IsNotFound(err), errors.Is(err, client.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrDraftBusy):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, domain.ErrDraftNotOpen):
		return status.Error(codes.FailedPrecondition, err.Error())
	case domain.IsLimitReached(err):
		return status.Error(codes.ResourceExhausted, err.Error())
	case domain.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.As(err, &apiErr):
		if apiErr.Status >= http.StatusInternalServerError {
			return status.Error(codes.Unavailable, apiErr.Error())
		}
		return status.Error(codes.FailedPrecondition, apiErr.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
