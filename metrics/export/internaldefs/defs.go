// Package internaldefs maps engine counter IDs to stable exported metric
// names shared by the Prometheus and OTel exporters.
package internaldefs

import (
	authgate "github.com/selcaux/authgate"
)

// CounterDef binds one counter ID to its exported name and help text.
type CounterDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order. Names are
// append-only: dashboards key on them.
var CounterDefs = []CounterDef{
	{ID: authgate.MetricLoginSuccess, Name: "authgate_login_success_total", Help: "Successful login attempts."},
	{ID: authgate.MetricLoginFailure, Name: "authgate_login_failure_total", Help: "Failed login attempts."},
	{ID: authgate.MetricVerifySuccess, Name: "authgate_verify_success_total", Help: "Access credentials that verified successfully."},
	{ID: authgate.MetricVerifyRevoked, Name: "authgate_verify_revoked_total", Help: "Access credentials rejected as revoked."},
	{ID: authgate.MetricVerifyFailure, Name: "authgate_verify_failure_total", Help: "Access credentials rejected as malformed, forged, or expired."},
	{ID: authgate.MetricRefreshSuccess, Name: "authgate_refresh_success_total", Help: "Successful refresh operations."},
	{ID: authgate.MetricRefreshFailure, Name: "authgate_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: authgate.MetricSessionCreated, Name: "authgate_session_created_total", Help: "Created refresh sessions."},
	{ID: authgate.MetricSessionRevoked, Name: "authgate_session_revoked_total", Help: "Revoked refresh sessions."},
	{ID: authgate.MetricLogout, Name: "authgate_logout_total", Help: "Single-session logout operations."},
	{ID: authgate.MetricLogoutAll, Name: "authgate_logout_all_total", Help: "Logout-all operations."},
	{ID: authgate.MetricPermCacheHit, Name: "authgate_perm_cache_hit_total", Help: "Permission resolutions served from cache."},
	{ID: authgate.MetricPermCacheMiss, Name: "authgate_perm_cache_miss_total", Help: "Permission resolutions that queried the role source."},
	{ID: authgate.MetricPermCacheInvalidate, Name: "authgate_perm_cache_invalidate_total", Help: "Permission cache invalidations."},
	{ID: authgate.MetricPermissionDenied, Name: "authgate_permission_denied_total", Help: "Permission checks that denied access."},
}
