// Package audit records and lists who changed what in the irrigation
// system: manual pump commands, auto-mode changes, commands issued by auto
// control, status rebuilds and account or device provisioning.
//
// Writes are best effort. A failed audit insert is logged and never fails
// the operation being audited.
package audit
