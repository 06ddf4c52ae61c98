// Package wizard implements the Wizard Engine: a generic, resumable,
// storage-backed state machine whose only built-in kind is "ssh_host", the
// guided SSH host onboarding flow from connection details through a
// confirmed Host record.
//
// Grounded on warren's resumable, storage-backed instance idiom: a
// WizardInstance is created once and every subsequent call replaces its
// state blob wholesale rather than patching it, so a reader never observes
// a half-applied step (pkg/storage's whole-record put already gives this
// for free). Per-step server-side validation and the supplemented preview
// probe are new to this repo; everything else follows spec section 4.12.
package wizard
