package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapErrorfKeepsSentinel(t *testing.T) {
	err := WrapErrorf(ErrHTTPStatus, "search returned %d", 503)
	assert.ErrorIs(t, err, ErrHTTPStatus)
	assert.Contains(t, err.Error(), "503")
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "None"},
		{"session init", WrapErrorf(ErrSessionInit, "init page: %v", errors.New("eof")), "Session_Init"},
		{"http 404", WrapErrorf(ErrHTTPStatus, "detail returned %d", 404), "HTTP_404"},
		{"http 5xx", WrapErrorf(ErrHTTPStatus, "search returned %d", 502), "HTTP_5xx"},
		{"detail link", WrapErrorf(ErrDetailLink, "id %s", "70790226"), "Content_DetailLinkMissing"},
		{"short body", WrapErrorf(ErrDetailTooShort, "%d bytes", 120), "Content_DetailTooShort"},
		{"thin parse", WrapErrorf(ErrParseIncomplete, "%d fields", 1), "Content_ParseIncomplete"},
		{"canceled", fmt.Errorf("fetch: %w", context.Canceled), "System_ContextCanceled"},
		{"dns", errors.New("dial tcp: lookup findbiz.nat.gov.tw: no such host"), "Network_DNSLookup"},
		{"unknown", errors.New("something odd"), "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategorizeError(tt.err))
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "detail_page", SanitizeFilename("detail_page"))
	assert.Equal(t, "a_b", SanitizeFilename(`a/\b`))
	assert.Equal(t, "unnamed", SanitizeFilename("///"))
}
