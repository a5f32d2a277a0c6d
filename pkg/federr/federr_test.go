package federr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := Transport("token-exchange", "request did not complete", cause)

	assert.Equal(t, "transport: token-exchange: request did not complete: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)

	bare := Configuration("startup", "REDIRECT_URI or TTI settings required")
	assert.Equal(t, "configuration: startup: REDIRECT_URI or TTI settings required", bare.Error())
}

func TestClassPredicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		class     string
		retryable bool
	}{
		{name: "configuration", err: Configuration("startup", "missing key"), class: ClassConfiguration},
		{name: "assertion decode", err: AssertionDecode("decode", "bad payload", nil), class: ClassAssertionDecode},
		{name: "authentication", err: Authentication("cognito-auth", "rejected", nil), class: ClassAuthentication},
		{name: "authorization", err: Authorization("assume-role", "denied", nil), class: ClassAuthorization},
		{name: "transport", err: Transport("assume-role", "timeout", nil), class: ClassTransport, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.class, ClassOf(tt.err))
			assert.True(t, Is(tt.err, tt.class))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestClassOfWrapped(t *testing.T) {
	t.Parallel()

	inner := Authorization("assume-role-scoped", "denied", nil)
	wrapped := fmt.Errorf("login failed: %w", inner)

	assert.Equal(t, ClassAuthorization, ClassOf(wrapped))
	assert.False(t, IsRetryable(wrapped))
	assert.Equal(t, "", ClassOf(errors.New("plain")))
}

type fakeAPIError struct {
	code string
}

func (f *fakeAPIError) Error() string               { return f.code }
func (f *fakeAPIError) ErrorCode() string           { return f.code }
func (f *fakeAPIError) ErrorMessage() string        { return f.code }
func (f *fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "dial tcp: i/o timeout" }
func (fakeNetError) Timeout() bool   { return true }
func (fakeNetError) Temporary() bool { return true }

func TestWrapAWS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantClass string
		wantMsg   string
	}{
		{
			name:      "deadline exceeded is transport",
			err:       fmt.Errorf("call: %w", context.DeadlineExceeded),
			wantClass: ClassTransport,
		},
		{
			name:      "net error is transport",
			err:       &net.OpError{Op: "dial", Err: fakeNetError{}},
			wantClass: ClassTransport,
		},
		{
			name: "operation error without response is transport",
			err: &smithy.OperationError{
				ServiceID:     "STS",
				OperationName: "AssumeRole",
				Err:           errors.New("connection reset"),
			},
			wantClass: ClassTransport,
		},
		{
			name:      "api error keeps fallback class and code",
			err:       &fakeAPIError{code: "AccessDenied"},
			wantClass: ClassAuthorization,
			wantMsg:   "AccessDenied",
		},
		{
			name:      "plain error keeps fallback class",
			err:       errors.New("something else"),
			wantClass: ClassAuthorization,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			wrapped := WrapAWS(ClassAuthorization, "assume-role", tt.err)
			require.NotNil(t, wrapped)
			assert.Equal(t, tt.wantClass, wrapped.Class)
			assert.Equal(t, "assume-role", wrapped.Step)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, wrapped.Message)
			}
			assert.ErrorIs(t, wrapped, tt.err)
		})
	}
}
