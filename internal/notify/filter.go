package notify

import "strings"

// Filter selects notifications the way the notification center does. Zero
// values match everything.
type Filter struct {
	// Server matches the given fleet member plus notifications addressed to
	// every member. Empty or "all" disables the check.
	Server string `json:"server,omitempty"`
	// Severity is an exact match. Empty or "all" disables the check.
	Severity Severity `json:"severity,omitempty"`
	// Query is a case-insensitive substring of title, message or category.
	Query string `json:"q,omitempty"`
	// Category is a case-insensitive exact match.
	Category   string `json:"category,omitempty"`
	UnreadOnly bool   `json:"unread_only,omitempty"`
}

// Match reports whether n passes the filter.
func (f Filter) Match(n Notification) bool {
	if f.Server != "" && f.Server != AllServers && n.Server != f.Server && n.Server != AllServers {
		return false
	}
	if f.Severity != "" && f.Severity != SeverityAll && n.Severity != f.Severity {
		return false
	}
	if f.Category != "" && !strings.EqualFold(n.Category, f.Category) {
		return false
	}
	if f.UnreadOnly && n.Read {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(n.Title), q) &&
			!strings.Contains(strings.ToLower(n.Message), q) &&
			!strings.Contains(strings.ToLower(n.Category), q) {
			return false
		}
	}
	return true
}

// Apply returns the matching notifications, preserving order.
func (f Filter) Apply(in []Notification) []Notification {
	out := make([]Notification, 0, len(in))
	for _, n := range in {
		if f.Match(n) {
			out = append(out, n)
		}
	}
	return out
}

// Summary counts notifications by read state and severity.
type Summary struct {
	Total    int `json:"total"`
	Unread   int `json:"unread"`
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
	Success  int `json:"success"`
}

// Summarize builds a Summary over the given notifications.
func Summarize(in []Notification) Summary {
	sum := Summary{Total: len(in)}
	for _, n := range in {
		if !n.Read {
			sum.Unread++
		}
		switch n.Severity {
		case SeverityCritical:
			sum.Critical++
		case SeverityWarning:
			sum.Warning++
		case SeverityInfo:
			sum.Info++
		case SeveritySuccess:
			sum.Success++
		}
	}
	return sum
}
