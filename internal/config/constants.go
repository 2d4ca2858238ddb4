package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Push delivery retry policy
const (
	PushMaxAttempts    = 3
	PushBaseDelay      = 1000 * time.Millisecond
	PushMaxDelay       = 5000 * time.Millisecond
	PushAttemptTimeout = 10 * time.Second
)

// Session reaper thresholds
const (
	ReaperMissedGrace   = 15 * time.Minute
	ReaperActiveCeiling = 2 * time.Hour
	PairingPurgeGrace   = 10 * time.Minute
)

// Background job timeouts
const (
	DispatchJobTimeout = 2 * time.Minute
	ReaperJobTimeout   = 30 * time.Second
)

// Heartbeat job names
const (
	JobCallDispatch  = "call_dispatch"
	JobSessionReaper = "session_reaper"
)

// Telephony provider request timeout
const TelephonyRequestTimeout = 15 * time.Second

// Default rate limiting for inbound status callbacks
const DefaultCallbackRateLimitPerMin = 120
