// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helper functions for JSON encoding/decoding, the error
// envelope every endpoint returns, parameter parsing, and common HTTP
// middleware.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteSuccess(w, data)
//	httputil.WriteCreated(w, resource)
//
// Error responses use the standard envelope {"status": "error", "message": ...}:
//
//	httputil.WriteUnauthorized(w, "Token expired")
//	httputil.WriteForbidden(w, "You don't have permission to perform this action")
//	httputil.WriteErrorWithSuggestion(w, http.StatusForbidden,
//		"This endpoint requires super admin privileges",
//		"SUPER_ADMIN_REQUIRED",
//		httputil.Suggestion{RedirectTo: "/admin/members"})
//
// # Request Parsing
//
// JSON parsing:
//
//	var req SelectTenantRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// Path parameters:
//
//	projectID, ok := httputil.ParsePathUUIDOrError(w, r, "projectID")
//
// Query parameters:
//
//	limit, err := httputil.ParseQueryInt(r, "limit", 20)
//	since, err := httputil.ParseQueryTime(r, "since")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(log),
//		httputil.RecoveryMiddleware(log),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: Authentication, authorization, and tenant isolation middleware
package httputil
