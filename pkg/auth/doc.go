// Package auth issues and verifies HS256 access tokens and extracts the
// authenticated identity from requests.
//
// Tokens carry identity claims only. Role and permission data is never read
// from the token; the permission resolver fetches it fresh on every request
// so a revoked role takes effect without waiting for token expiry.
package auth
