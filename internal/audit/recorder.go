package audit

import (
	"context"

	"github.com/Yogesh-MG/Iotfarming/internal/irrigation"
)

// Logger defines the logging interface used by the Recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder writes audit entries without failing the caller.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder creates a recorder over repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger used to report failed inserts.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Record inserts entry, logging instead of returning a failure.
func (r *Recorder) Record(ctx context.Context, entry *AuditLog) {
	if err := r.repo.Create(ctx, entry); err != nil {
		r.logger.Warn("audit insert failed",
			"action", entry.Action,
			"entity_id", entry.EntityID,
			"error", err,
		)
	}
}

// Notify implements irrigation.Notifier. It records commands issued by auto
// control; manual commands are recorded by the handler that knows the user.
func (r *Recorder) Notify(ctx context.Context, ev irrigation.Event) {
	if ev.Kind != irrigation.EventCommand || ev.Command == nil || ev.Command.TriggeredBy != irrigation.TriggerAuto {
		return
	}
	r.Record(ctx, &AuditLog{
		Action:     ActionCommand,
		EntityType: EntityDevice,
		EntityID:   ev.DeviceID,
		Source:     SourceAuto,
		Details: map[string]any{
			"command_id":   ev.Command.ID,
			"action":       string(ev.Command.Action),
			"triggered_by": string(ev.Command.TriggeredBy),
		},
	})
}
