// Package authz implements the Authorization Policy: a fixed table of
// role-to-category permissions plus a per-(user, host) override table that
// can widen a non-admin role's access on a specific host or explicitly deny
// it, but can never narrow an admin's global access.
//
// Grounded on pkg/storage's bucket-per-entity pattern for reading
// HostPermission overrides; the decision table itself is plain in-memory
// logic, matching the data model's description of a "fixed table" rather
// than a rule engine.
package authz
