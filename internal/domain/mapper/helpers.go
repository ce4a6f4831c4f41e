package mapper

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var parentNumberRe = regexp.MustCompile(`/(?:issues|pulls)/(\d+)(?:$|[/?#])`)

// ParseParentNumber extracts the issue or pull number from an API or web URL.
func ParseParentNumber(u string) (int, bool) {
	m := parentNumberRe.FindStringSubmatch(u)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstTime(vals ...*time.Time) *time.Time {
	for _, v := range vals {
		if v != nil && !v.IsZero() {
			return v
		}
	}
	return nil
}

// nonBlank treats whitespace-only profile text as absent.
func nonBlank(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

func idOf(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
