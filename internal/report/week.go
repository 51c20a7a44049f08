package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
	coreerrors "github.com/lueurxax/artist-pulse/internal/core/errors"
)

// ParseWeekEnd normalizes a week marker to YYYY-MM-DD. An empty marker stays
// empty and means "most recent week".
func ParseWeekEnd(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}

	if t, err := time.Parse(domain.DateLayout, s); err == nil {
		return t.Format(domain.DateLayout), nil
	}

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return "", fmt.Errorf("week %q: %w", s, coreerrors.ErrInvalidWeek)
	}

	return t.Format(domain.DateLayout), nil
}

// formatDate renders a stored date that may carry a time part.
func formatDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= len(domain.DateLayout) {
		if _, err := time.Parse(domain.DateLayout, s[:len(domain.DateLayout)]); err == nil {
			return s[:len(domain.DateLayout)]
		}
	}

	return s
}
