// Package projects stores construction projects, the primary tenant-owned
// resource. Every read and write is keyed by (tenant, project); a project
// in another tenant and a project that does not exist produce the same
// ErrProjectNotFound, which the middleware surfaces as the same 404.
package projects
