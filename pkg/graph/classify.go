package graph

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/openfroyo/pathq/pkg/errdefs"
)

// ClassifyGRPC converts an error returned by a gRPC-backed graph into a
// transport error. Errors that are already classified pass through.
func ClassifyGRPC(err error) error {
	if err == nil {
		return nil
	}
	var classified *errdefs.Error
	if errors.As(err, &classified) {
		return err
	}

	st, ok := status.FromError(err)
	if !ok {
		return errdefs.NewTransportError(errdefs.KindOther, "remote call failed", err)
	}

	var kind errdefs.TransportKind
	switch st.Code() {
	case codes.ResourceExhausted:
		kind = errdefs.KindRateLimit
	case codes.Unavailable:
		kind = errdefs.KindServiceUnavailable
	case codes.Internal, codes.Unknown, codes.DataLoss:
		kind = errdefs.KindServerError
	default:
		kind = errdefs.KindOther
	}
	return errdefs.NewTransportError(kind, fmt.Sprintf("remote call failed with %s", st.Code()), err).
		WithDetail("grpc_code", st.Code().String())
}

// ClassifyHTTP converts an HTTP status code into a transport error.
// It returns nil for 2xx and 3xx codes.
func ClassifyHTTP(code int, err error) error {
	if code < http.StatusBadRequest {
		return nil
	}

	var kind errdefs.TransportKind
	switch {
	case code == http.StatusTooManyRequests:
		kind = errdefs.KindRateLimit
	case code == http.StatusServiceUnavailable:
		kind = errdefs.KindServiceUnavailable
	case code >= http.StatusInternalServerError:
		kind = errdefs.KindServerError
	default:
		kind = errdefs.KindOther
	}
	return errdefs.NewTransportError(kind, fmt.Sprintf("remote call failed with HTTP %d", code), err).
		WithDetail("http_status", code)
}
