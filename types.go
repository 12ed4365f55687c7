package authgate

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/selcaux/authgate/internal/audit"
	internalmetrics "github.com/selcaux/authgate/internal/metrics"
)

// Identity is the immutable snapshot of an authenticated caller, taken at
// authentication time and scoped to a single request.
type Identity struct {
	UserID      string
	Username    string
	Email       string
	IsActive    bool
	IsSuperuser bool
}

// UserRecord is the account view authgate consumes. User persistence and CRUD
// live behind the [UserProvider]; authgate only reads.
type UserRecord struct {
	UserID       string
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	IsSuperuser  bool
}

// Identity converts the record into a request identity snapshot.
func (u UserRecord) Identity() Identity {
	return Identity{
		UserID:      u.UserID,
		Username:    u.Username,
		Email:       u.Email,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
	}
}

// UserProvider is the interface callers implement to integrate authgate with
// their user database. Absent users are reported with [ErrUserNotFound];
// transport failures with an error wrapping [ErrStorageUnavailable].
type UserProvider interface {
	GetUserByIdentifier(ctx context.Context, identifier string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
}

// DeviceInfo describes the device a refresh session is bound to.
type DeviceInfo struct {
	Type  string // "web", "mobile", "desktop"
	Label string
}

// TokenPair is returned by [Engine.Login] and, when rotation is enabled, by
// [Engine.Refresh]. RefreshToken is empty on a non-rotating refresh.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	SessionID        string
}

// SessionInfo is the external summary of one refresh session, as returned by
// [Engine.ListSessions].
type SessionInfo struct {
	SessionID   string
	UserID      string
	DeviceType  string
	DeviceLabel string
	ClientIP    string
	UserAgent   string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer], one object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a specific counter in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess        = internalmetrics.MetricLoginSuccess
	MetricLoginFailure        = internalmetrics.MetricLoginFailure
	MetricVerifySuccess       = internalmetrics.MetricVerifySuccess
	MetricVerifyRevoked       = internalmetrics.MetricVerifyRevoked
	MetricVerifyFailure       = internalmetrics.MetricVerifyFailure
	MetricRefreshSuccess      = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure      = internalmetrics.MetricRefreshFailure
	MetricSessionCreated      = internalmetrics.MetricSessionCreated
	MetricSessionRevoked      = internalmetrics.MetricSessionRevoked
	MetricLogout              = internalmetrics.MetricLogout
	MetricLogoutAll           = internalmetrics.MetricLogoutAll
	MetricPermCacheHit        = internalmetrics.MetricPermCacheHit
	MetricPermCacheMiss       = internalmetrics.MetricPermCacheMiss
	MetricPermCacheInvalidate = internalmetrics.MetricPermCacheInvalidate
	MetricPermissionDenied    = internalmetrics.MetricPermissionDenied
)

// Metrics holds the engine's atomic counters.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot
