package generator

import "github.com/JakeFAU/fleetwatch/internal/notify"

// StartupSet is the fixed set of notifications seeded at startup, in seeding
// order. The store is newest-first, so the last entry ends up on top.
func StartupSet() []notify.Draft {
	return []notify.Draft{
		{
			Title:    "CPU Usage Alert",
			Message:  "CPU usage on validator-01 exceeds 90%",
			Server:   "validator-01",
			Severity: notify.SeverityCritical,
			Category: "performance",
			Link:     "/dashboard/monitoring/hardware?server=validator-01",
		},
		{
			Title:    "Security Update Available",
			Message:  "Critical security updates available for all servers",
			Server:   notify.AllServers,
			Severity: notify.SeverityWarning,
			Category: "security",
			Link:     "/dashboard/security/updates",
		},
		{
			Title:    "Disk Space Warning",
			Message:  "Disk space on web-01 is below 10% free",
			Server:   "web-01",
			Severity: notify.SeverityWarning,
			Category: "storage",
			Link:     "/dashboard/monitoring/hardware?server=web-01",
		},
	}
}

// Indexes into Catalogue, exported so tests can force a selection.
const (
	EventServiceRestarted = iota
	EventFailedLogin
	EventBackupCompleted
	EventNetworkLatency
)

// Catalogue is the set of canned events a tick draws from.
func Catalogue() []notify.Draft {
	return []notify.Draft{
		EventServiceRestarted: {
			Title:    "Service Restarted",
			Message:  "Nginx service automatically restarted on web-01",
			Server:   "web-01",
			Severity: notify.SeverityInfo,
			Category: "services",
			Link:     "/dashboard/monitoring/services?server=web-01",
		},
		EventFailedLogin: {
			Title:    "Failed Login Attempt",
			Message:  "Multiple failed login attempts detected on db-01",
			Server:   "db-01",
			Severity: notify.SeverityWarning,
			Category: "security",
			Link:     "/dashboard/audit/logs?server=db-01",
		},
		EventBackupCompleted: {
			Title:    "Backup Completed",
			Message:  "Scheduled backup completed successfully on all servers",
			Server:   notify.AllServers,
			Severity: notify.SeveritySuccess,
			Category: "backup",
		},
		EventNetworkLatency: {
			Title:    "Network Latency Spike",
			Message:  "Network latency spike detected on cache-01",
			Server:   "cache-01",
			Severity: notify.SeverityWarning,
			Category: "network",
			Link:     "/dashboard/monitoring/network?server=cache-01",
		},
	}
}
