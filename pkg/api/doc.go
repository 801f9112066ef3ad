// Package api assembles the Fieldline HTTP server. It wires the stores,
// the access chain and the audit trail together from configuration and
// mounts every route explicitly against a named policy from the policy
// file. Routes are never bound to permissions by annotation or naming
// convention; the binding lives in one table that can be reviewed and
// hot reloaded.
package api
