package notify

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AllServers is the server sentinel meaning the notification applies to every
// fleet member.
const AllServers = "all"

// Severity classifies a notification. There is no ranking beyond display.
type Severity string

// Supported severities.
const (
	SeverityInfo     Severity = "info"
	SeveritySuccess  Severity = "success"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"

	// SeverityAll is the filter sentinel matching every severity. It is not a
	// valid notification severity.
	SeverityAll Severity = "all"
)

// ErrInvalidSeverity is returned by ParseSeverity for unknown values.
var ErrInvalidSeverity = errors.New("invalid severity")

// ParseSeverity validates a severity string (case-insensitive).
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityInfo, SeveritySuccess, SeverityWarning, SeverityCritical:
		return sev, nil
	default:
		return "", fmt.Errorf("%w %q", ErrInvalidSeverity, s)
	}
}

// Notification is a single alert record describing a fleet condition.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
	Server    string    `json:"server"`
	Severity  Severity  `json:"severity"`
	Category  string    `json:"category"`
	// Link is an advisory deep-link for presenters; it is never resolved here.
	Link string `json:"link,omitempty"`
}

// Draft carries the caller-supplied fields of a new notification.
type Draft struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Server   string   `json:"server"`
	Severity Severity `json:"severity"`
	Category string   `json:"category"`
	Link     string   `json:"link,omitempty"`
}

// Validate performs coarse validation on drafts coming from outside the process.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return errors.New("title is required")
	}
	if _, err := ParseSeverity(string(d.Severity)); err != nil {
		return err
	}
	return nil
}

func (d Draft) build(id string, ts time.Time) Notification {
	server := d.Server
	if server == "" {
		server = AllServers
	}
	return Notification{
		ID:        id,
		Title:     d.Title,
		Message:   d.Message,
		Timestamp: ts,
		Server:    server,
		Severity:  d.Severity,
		Category:  d.Category,
		Link:      d.Link,
	}
}
