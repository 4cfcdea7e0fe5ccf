package audit

import "time"

// Actions recorded in audit_logs.action.
const (
	ActionCommand   = "command"
	ActionAutoMode  = "auto_mode"
	ActionRebuild   = "rebuild"
	ActionCreate    = "create"
	ActionRotateKey = "rotate_key"
	ActionLogin     = "login"
)

// Entity types recorded in audit_logs.entity_type.
const (
	EntityDevice = "device"
	EntityUser   = "user"
)

// Sources recorded in audit_logs.source.
const (
	SourceAPI    = "api"
	SourceMQTT   = "mqtt"
	SourceAuto   = "auto"
	SourceCLI    = "cli"
	SourceSystem = "system"
)

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter controls which audit logs to return.
type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	UserID     string
	Limit      int // default 50, max 200
	Offset     int
}

// ListResult contains the paginated audit log results.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}
