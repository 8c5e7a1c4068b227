package constants

import "time"

// Server defaults
const (
	DefaultServerPort          = 8082
	DefaultGracefulShutdownSec = 30
	ServerErrorChannelSize     = 1
	DefaultReadTimeoutSec      = 15
	DefaultWriteTimeoutSec     = 15
	DefaultIdleTimeoutSec      = 60
)

// Database defaults
const (
	DefaultDatabaseRetryAttempts = 5
	DefaultMaxEventLogLength     = 500
)

// Outbound gateway defaults
const (
	// DefaultProtectionIntervalSec is the minimum spacing between outbound
	// sends, shared process-wide across all groups.
	DefaultProtectionIntervalSec = 5
	DefaultGatewayTimeoutSec     = 30
)

// Dispatcher defaults
const (
	DefaultDispatcherWorkers   = 4
	DefaultDispatcherQueueSize = 256
	DefaultRetryMaxAttempts    = 5
	DefaultInitialBackoffMs    = 500
	DefaultMaxBackoffMs        = 60000
)

// Reconciliation defaults
const (
	DefaultReconcileIntervalHours = 1
	// SyncStaleAfter is how long a group's or user's metadata stays fresh
	// before a reconciliation sweep re-enqueues its sync.
	SyncStaleAfter = 24 * time.Hour
)

// Agent defaults
const (
	DefaultAgentModel    = "openrouter/pony-alpha"
	DefaultMaxToolRounds = 10
	// Typing indicator ping spacing: first ping immediate, then a jittered
	// interval in [TypingPingMinInterval, TypingPingMaxInterval).
	TypingPingMinInterval = 1 * time.Second
	TypingPingMaxInterval = 2500 * time.Millisecond
	// MaxToolPageSize bounds the limit argument of message-loading tools.
	MaxToolPageSize = 50
	DefaultToolPageSize = 10
)
