package httpclient

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestRetryableError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *RetryableError
		want []string
	}{
		{
			name: "with retry after",
			err: &RetryableError{
				StatusCode: 429,
				Message:    "rate limited",
				RetryAfter: 5 * time.Second,
			},
			want: []string{"HTTP 429", "rate limited", "retry after 5s"},
		},
		{
			name: "without retry after",
			err: &RetryableError{
				StatusCode: 503,
				Message:    "unavailable",
			},
			want: []string{"HTTP 503", "unavailable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, fragment := range tt.want {
				if !strings.Contains(msg, fragment) {
					t.Errorf("Error() = %q, missing %q", msg, fragment)
				}
			}
		})
	}
}

func TestRetryableError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("HTTP 500")
	err := &RetryableError{StatusCode: 500, Message: "boom", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is() should find the wrapped cause")
	}

	var re *RetryableError
	if !errors.As(error(err), &re) {
		t.Error("errors.As() should match *RetryableError")
	}
	if !re.IsRetryable() {
		t.Error("IsRetryable() = false, want true")
	}
}
