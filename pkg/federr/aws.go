package federr

import (
	"context"
	"errors"
	"net"

	"github.com/aws/smithy-go"
)

// WrapAWS classifies an AWS SDK error. Timeouts, cancellations and
// connection failures become transport errors; anything the service itself
// rejected becomes fallbackClass with the provider's error code in the
// message.
func WrapAWS(fallbackClass, step string, err error) *Error {
	if isTransport(err) {
		return Transport(step, "request did not complete", err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return New(fallbackClass, step, apiErr.ErrorCode(), err)
	}

	return New(fallbackClass, step, "request failed", err)
}

func isTransport(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// A smithy operation error without an API error code means the request
	// never produced a service response.
	var apiErr smithy.APIError
	var opErr *smithy.OperationError
	if errors.As(err, &opErr) && !errors.As(err, &apiErr) {
		return true
	}

	return false
}
