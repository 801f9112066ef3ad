// Package sso verifies logins against an upstream OpenID Connect provider
// and issues Fieldline access tokens for matched users. Accounts are never
// provisioned from SSO claims, and the issued token carries no roles; the
// permission resolver reads those from the store on every request.
package sso
