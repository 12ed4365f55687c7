package authgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	internalaudit "github.com/selcaux/authgate/internal/audit"
	internalmetrics "github.com/selcaux/authgate/internal/metrics"
	"github.com/selcaux/authgate/password"
	"github.com/selcaux/authgate/permission"
	"github.com/selcaux/authgate/session"
	"github.com/selcaux/authgate/token"
)

// Engine is the authentication and authorization core. Construct it with
// [Builder.Build]; the zero value is not usable. All methods are safe for
// concurrent use.
type Engine struct {
	config   Config
	codec    *token.Codec
	sessions *session.Store
	resolver *permission.Resolver
	hasher   *password.Argon2
	users    UserProvider
	audit    *internalaudit.Dispatcher
	metrics  *internalmetrics.Metrics
	now      func() time.Time
}

func (e *Engine) ready() error {
	if e == nil || e.codec == nil {
		return ErrEngineNotReady
	}
	return nil
}

// mapTokenErr lifts codec failures into the engine's error taxonomy.
func mapTokenErr(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, token.ErrSignatureInvalid):
		return ErrTokenSignatureInvalid
	default:
		return ErrTokenMalformed
	}
}

// mapStoreErr lifts session store failures. Transport failures stay
// distinguishable from verification rejections so callers can retry them.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, session.ErrRedisUnavailable):
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	default:
		return err
	}
}

func mapUserErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUserNotFound):
		return ErrUserNotFound
	default:
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
}

func (e *Engine) emit(ctx context.Context, eventType, userID, sessionID string, success bool, cause error) {
	if e.audit == nil {
		return
	}
	event := internalaudit.Event{
		Timestamp: e.now(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	e.audit.Emit(ctx, event)
}

// Login authenticates identifier/password, mints an access and a refresh
// credential, and persists the refresh session bound to device. Absent users
// and wrong passwords are both [ErrInvalidCredentials]; disabled accounts are
// [ErrUserInactive].
func (e *Engine) Login(ctx context.Context, identifier, plaintext string, device DeviceInfo) (TokenPair, error) {
	if err := e.ready(); err != nil {
		return TokenPair{}, err
	}

	user, err := e.users.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metrics.Inc(internalmetrics.MetricLoginFailure)
			e.emit(ctx, "login", "", "", false, ErrInvalidCredentials)
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, mapUserErr(err)
	}

	if err := e.hasher.Verify(plaintext, user.PasswordHash); err != nil {
		e.metrics.Inc(internalmetrics.MetricLoginFailure)
		e.emit(ctx, "login", user.UserID, "", false, ErrInvalidCredentials)
		return TokenPair{}, ErrInvalidCredentials
	}

	if !user.IsActive {
		e.metrics.Inc(internalmetrics.MetricLoginFailure)
		e.emit(ctx, "login", user.UserID, "", false, ErrUserInactive)
		return TokenPair{}, ErrUserInactive
	}

	now := e.now()
	pair, err := e.issue(ctx, user.UserID, device, now)
	if err != nil {
		e.metrics.Inc(internalmetrics.MetricLoginFailure)
		return TokenPair{}, err
	}

	e.metrics.Inc(internalmetrics.MetricLoginSuccess)
	e.emit(ctx, "login", user.UserID, pair.SessionID, true, nil)
	return pair, nil
}

// issue mints both credentials and persists the refresh session.
func (e *Engine) issue(ctx context.Context, userID string, device DeviceInfo, now time.Time) (TokenPair, error) {
	access, accessExp, err := e.codec.SignAccess(userID, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := e.codec.SignRefresh(userID, now)
	if err != nil {
		return TokenPair{}, err
	}

	sess := &session.Session{
		SessionID:   uuid.NewString(),
		UserID:      userID,
		TokenHash:   session.HashToken(refresh),
		DeviceType:  device.Type,
		DeviceLabel: device.Label,
		ClientIP:    clientIPFromContext(ctx),
		UserAgent:   userAgentFromContext(ctx),
		IssuedAt:    now.Unix(),
		ExpiresAt:   refreshExp.Unix(),
	}
	if err := e.sessions.Save(ctx, sess, now); err != nil {
		return TokenPair{}, mapStoreErr(err)
	}
	e.metrics.Inc(internalmetrics.MetricSessionCreated)

	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		SessionID:        sess.SessionID,
	}, nil
}

// VerifyAccess validates an access credential and returns the caller's
// identity snapshot. Order: signature and claims, then the revocation
// blacklist, then the user record. The identity is read once here and not
// refreshed for the remainder of the request.
func (e *Engine) VerifyAccess(ctx context.Context, credential string) (Identity, error) {
	if err := e.ready(); err != nil {
		return Identity{}, err
	}
	if credential == "" {
		e.metrics.Inc(internalmetrics.MetricVerifyFailure)
		return Identity{}, ErrCredentialMissing
	}

	now := e.now()
	claims, err := e.codec.Verify(credential, token.KindAccess, now)
	if err != nil {
		e.metrics.Inc(internalmetrics.MetricVerifyFailure)
		return Identity{}, mapTokenErr(err)
	}

	revoked, err := e.sessions.IsRevoked(ctx, session.HashToken(credential))
	if err != nil {
		return Identity{}, mapStoreErr(err)
	}
	if revoked {
		e.metrics.Inc(internalmetrics.MetricVerifyRevoked)
		e.emit(ctx, "token_revoked_rejected", claims.UserID(), "", false, ErrTokenRevoked)
		return Identity{}, ErrTokenRevoked
	}

	user, err := e.users.GetUserByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metrics.Inc(internalmetrics.MetricVerifyFailure)
			return Identity{}, ErrUserNotFound
		}
		return Identity{}, mapUserErr(err)
	}

	if e.config.Security.RecheckActiveOnVerify && !user.IsActive {
		e.metrics.Inc(internalmetrics.MetricVerifyFailure)
		return Identity{}, ErrUserInactive
	}

	e.metrics.Inc(internalmetrics.MetricVerifySuccess)
	return user.Identity(), nil
}

// Refresh exchanges a refresh credential for a new access credential. The
// session must exist and be active; revoked and expired sessions are
// distinct, terminal rejections. With rotation enabled a replacement refresh
// credential is issued and the presented session is revoked.
func (e *Engine) Refresh(ctx context.Context, refreshCredential string) (TokenPair, error) {
	if err := e.ready(); err != nil {
		return TokenPair{}, err
	}
	if refreshCredential == "" {
		e.metrics.Inc(internalmetrics.MetricRefreshFailure)
		return TokenPair{}, ErrCredentialMissing
	}

	now := e.now()
	claims, err := e.codec.Verify(refreshCredential, token.KindRefresh, now)
	if err != nil {
		e.metrics.Inc(internalmetrics.MetricRefreshFailure)
		return TokenPair{}, mapTokenErr(err)
	}

	sess, err := e.sessions.GetByHash(ctx, session.HashToken(refreshCredential))
	if err != nil {
		e.metrics.Inc(internalmetrics.MetricRefreshFailure)
		return TokenPair{}, mapStoreErr(err)
	}
	if sess.Revoked() {
		e.metrics.Inc(internalmetrics.MetricRefreshFailure)
		e.emit(ctx, "refresh", claims.UserID(), sess.SessionID, false, ErrSessionRevoked)
		return TokenPair{}, ErrSessionRevoked
	}
	if sess.Expired(now) {
		e.metrics.Inc(internalmetrics.MetricRefreshFailure)
		return TokenPair{}, ErrSessionExpired
	}

	user, err := e.users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return TokenPair{}, mapUserErr(err)
	}
	if !user.IsActive {
		e.metrics.Inc(internalmetrics.MetricRefreshFailure)
		return TokenPair{}, ErrUserInactive
	}

	if e.config.Security.RefreshRotationEnabled {
		device := DeviceInfo{Type: sess.DeviceType, Label: sess.DeviceLabel}
		pair, err := e.issue(ctx, sess.UserID, device, now)
		if err != nil {
			e.metrics.Inc(internalmetrics.MetricRefreshFailure)
			return TokenPair{}, err
		}
		if _, err := e.sessions.RevokeByHash(ctx, sess.TokenHash, now); err != nil && !errors.Is(err, session.ErrNotFound) {
			return TokenPair{}, mapStoreErr(err)
		}
		e.metrics.Inc(internalmetrics.MetricRefreshSuccess)
		e.emit(ctx, "refresh", sess.UserID, pair.SessionID, true, nil)
		return pair, nil
	}

	access, accessExp, err := e.codec.SignAccess(sess.UserID, now)
	if err != nil {
		return TokenPair{}, err
	}

	e.metrics.Inc(internalmetrics.MetricRefreshSuccess)
	e.emit(ctx, "refresh", sess.UserID, sess.SessionID, true, nil)
	return TokenPair{
		AccessToken:     access,
		AccessExpiresAt: accessExp,
		SessionID:       sess.SessionID,
	}, nil
}

// Logout revokes the refresh session and, when a live access credential is
// presented alongside, blacklists it for its remaining lifetime. Idempotent:
// logging out an already-dead session is not an error.
func (e *Engine) Logout(ctx context.Context, refreshCredential, accessCredential string) error {
	if err := e.ready(); err != nil {
		return err
	}

	now := e.now()
	userID := ""
	if claims, err := e.codec.Verify(refreshCredential, token.KindRefresh, now); err == nil {
		userID = claims.UserID()
	}

	revokedNow := false
	alreadyRevoked, err := e.sessions.RevokeByHash(ctx, session.HashToken(refreshCredential), now)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return mapStoreErr(err)
	}
	if err == nil && !alreadyRevoked {
		revokedNow = true
		e.metrics.Inc(internalmetrics.MetricSessionRevoked)
	}

	blacklisted := false
	if accessCredential != "" {
		if claims, err := e.codec.Verify(accessCredential, token.KindAccess, now); err == nil {
			hash := session.HashToken(accessCredential)
			if err := e.sessions.AddRevoked(ctx, hash, claims.ExpiresAt.Time, now); err != nil {
				return mapStoreErr(err)
			}
			blacklisted = true
			if userID == "" {
				userID = claims.UserID()
			}
		}
	}

	// A logout that touched nothing is a replay or garbage; the result is
	// still success, but it is not counted or audited as a logout.
	if revokedNow || blacklisted {
		e.metrics.Inc(internalmetrics.MetricLogout)
		e.emit(ctx, "logout", userID, "", true, nil)
	}
	return nil
}

// RevokeSession revokes a single session by id, for "log out that device".
// Revoking an already-revoked session is a no-op; an unknown or expired
// session is [ErrSessionNotFound].
func (e *Engine) RevokeSession(ctx context.Context, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	alreadyRevoked, err := e.sessions.Revoke(ctx, sessionID, e.now())
	if err != nil {
		return mapStoreErr(err)
	}
	if !alreadyRevoked {
		e.metrics.Inc(internalmetrics.MetricSessionRevoked)
		e.emit(ctx, "session_revoked", "", sessionID, true, nil)
	}
	return nil
}

// RevokeAllSessions revokes every live session of the user and invalidates
// the user's permission cache entry. Returns how many sessions were revoked.
// Used for logout-all-devices and as the companion to privilege downgrades.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}

	count, err := e.sessions.RevokeAllForUser(ctx, userID, e.now())
	if err != nil {
		return 0, mapStoreErr(err)
	}
	e.resolver.Invalidate(userID)

	e.metrics.Inc(internalmetrics.MetricLogoutAll)
	e.emit(ctx, "logout_all", userID, "", true, nil)
	return count, nil
}

// ListSessions returns the user's live sessions, newest first.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	sessions, err := e.sessions.ListActiveForUser(ctx, userID, e.now())
	if err != nil {
		return nil, mapStoreErr(err)
	}

	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionInfo{
			SessionID:   s.SessionID,
			UserID:      s.UserID,
			DeviceType:  s.DeviceType,
			DeviceLabel: s.DeviceLabel,
			ClientIP:    s.ClientIP,
			UserAgent:   s.UserAgent,
			IssuedAt:    time.Unix(s.IssuedAt, 0),
			ExpiresAt:   time.Unix(s.ExpiresAt, 0),
		})
	}
	return out, nil
}

// SweepExpired trims the user's session index of records that expired away.
// Housekeeping only; lookups already treat expired records as absent.
func (e *Engine) SweepExpired(ctx context.Context, userID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	removed, err := e.sessions.SweepUser(ctx, userID)
	if err != nil {
		return removed, mapStoreErr(err)
	}
	return removed, nil
}

// CheckPermission reports whether the identity holds the required
// "resource:action" permission. Superusers hold everything.
func (e *Engine) CheckPermission(ctx context.Context, identity Identity, required string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}

	allowed, err := e.resolver.Check(ctx, identity.UserID, identity.IsSuperuser, required)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if !allowed {
		e.metrics.Inc(internalmetrics.MetricPermissionDenied)
		e.emit(ctx, "permission_denied", identity.UserID, "", false, ErrInsufficientPermission)
	}
	return allowed, nil
}

// HasRole reports whether the identity holds the named role. Superusers
// bypass. Uncached; role checks see assignment changes immediately.
func (e *Engine) HasRole(ctx context.Context, identity Identity, roleName string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}

	ok, err := e.resolver.HasRole(ctx, identity.UserID, identity.IsSuperuser, roleName)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if !ok {
		e.metrics.Inc(internalmetrics.MetricPermissionDenied)
		e.emit(ctx, "permission_denied", identity.UserID, "", false, ErrInsufficientRole)
	}
	return ok, nil
}

// InvalidatePermissions drops the user's cached permission set. Call after
// role assignment or active-flag changes.
func (e *Engine) InvalidatePermissions(ctx context.Context, userID string) {
	if e == nil || e.resolver == nil {
		return
	}
	e.resolver.Invalidate(userID)
	e.emit(ctx, "cache_invalidated", userID, "", true, nil)
}

// InvalidatePermissionsForRole drops the cached permission set of every user
// holding the role. Call when the role's permission list changes.
func (e *Engine) InvalidatePermissionsForRole(ctx context.Context, roleID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.resolver.InvalidateForRole(ctx, roleID); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Resolver exposes the permission resolver for direct use.
func (e *Engine) Resolver() *permission.Resolver {
	if e == nil {
		return nil
	}
	return e.resolver
}

// Config returns a copy of the engine's effective configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Close drains the audit dispatcher and drops cached permission state. The
// engine must not be used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
	if e.resolver != nil {
		e.resolver.Clear()
	}
}
