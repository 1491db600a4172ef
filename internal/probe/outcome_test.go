package probe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	const requested = "https://x.test/1-item-1"
	errBoom := errors.New("connection reset")

	tests := []struct {
		name       string
		resp       Response
		err        error
		wantKind   Kind
		wantStatus int
	}{
		{"ok at requested url", Response{StatusCode: 200, FinalURL: requested}, nil, KindFound, 200},
		{"ok elsewhere", Response{StatusCode: 200, FinalURL: "https://x.test/login"}, nil, KindRejected, 200},
		{"redirect", Response{StatusCode: 302, FinalURL: requested}, nil, KindRejected, 302},
		{"no content", Response{StatusCode: 204, FinalURL: requested}, nil, KindRejected, 204},
		{"not found", Response{StatusCode: 404, FinalURL: requested}, nil, KindRejected, 404},
		{"server error", Response{StatusCode: 500, FinalURL: requested}, nil, KindRejected, 500},
		{"too many requests", Response{StatusCode: 429, FinalURL: requested}, nil, KindRateLimited, 429},
		{"transport error", Response{StatusCode: 200, FinalURL: requested}, errBoom, KindTransientError, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Classify(requested, tt.resp, tt.err)
			require.Equal(t, tt.wantKind, out.Kind)
			require.Equal(t, tt.wantStatus, out.StatusCode)
			require.Equal(t, requested, out.URL)
			if tt.err != nil {
				require.ErrorIs(t, out.Err, tt.err)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	require.Equal(t, "found", KindFound.String())
	require.Equal(t, "rejected", KindRejected.String())
	require.Equal(t, "rate_limited", KindRateLimited.String())
	require.Equal(t, "transient_error", KindTransientError.String())
	require.Equal(t, "cancelled", KindCancelled.String())
	require.Equal(t, "unknown", Kind(42).String())
}
