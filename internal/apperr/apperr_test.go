package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfWrappedErrors(t *testing.T) {
	cases := []struct {
		err    error
		kind   Kind
		status int
	}{
		{fmt.Errorf("%w: session expired", ErrUnauthenticated), KindUnauthenticated, http.StatusUnauthorized},
		{fmt.Errorf("%w: missing permission", ErrForbidden), KindForbidden, http.StatusForbidden},
		{fmt.Errorf("course: %w", ErrNotFound), KindNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: email is required", ErrInvalidInput), KindInvalidInput, http.StatusBadRequest},
		{ErrConflict, KindConflict, http.StatusConflict},
		{ErrRateLimited, KindRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("%w: maintenance", ErrUnavailable), KindUnavailable, http.StatusServiceUnavailable},
		{errors.New("connection reset"), KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		kind := KindOf(tc.err)
		if kind != tc.kind {
			t.Fatalf("KindOf(%v) = %s, want %s", tc.err, kind, tc.kind)
		}
		if got := HTTPStatus(kind); got != tc.status {
			t.Fatalf("HTTPStatus(%s) = %d, want %d", kind, got, tc.status)
		}
	}
	if KindOf(nil) != "" {
		t.Fatalf("expected empty kind for nil error")
	}
}
