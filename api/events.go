package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event identifies a lifecycle transition or failure.
type Event string

const (
	EventVaultLocked       Event = "vault_locked"
	EventVaultLockFailed   Event = "vault_lock_failed"
	EventVaultUnlocked     Event = "vault_unlocked"
	EventVaultUnlockFailed Event = "vault_unlock_failed"
	EventMountPointChanged Event = "vault_mount_point_changed"
	EventDataDirChanged    Event = "vault_data_dir_changed"
	EventRelocateFailed    Event = "vault_relocate_failed"
)

// eventLogger records lifecycle events to slog, the failure metrics and the
// optional webhook.
type eventLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
	webhook *eventWebhook
}

func newEventLogger(logger *slog.Logger) *eventLogger {
	return &eventLogger{
		logger: logger.With("component", "lifecycle"),
	}
}

func (el *eventLogger) log(ctx context.Context, event Event, vaultID int64, err error, attrs ...slog.Attr) {
	now := time.Now().UTC()
	id := uuid.NewString()
	base := []slog.Attr{
		slog.String("event_id", id),
		slog.String("event", string(event)),
		slog.Int64("vault_id", vaultID),
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
		base = append(base, slog.String("error", err.Error()))
	}
	base = append(base, attrs...)
	el.logger.LogAttrs(ctx, level, "lifecycle", base...)

	el.metrics.recordEvent(event)

	if el.webhook != nil {
		evt := webhookEvent{
			ID:        id,
			Event:     string(event),
			VaultID:   vaultID,
			Timestamp: now.Format(time.RFC3339),
		}
		if err != nil {
			evt.Error = err.Error()
		}
		if len(attrs) > 0 {
			evt.Attrs = make(map[string]string, len(attrs))
			for _, a := range attrs {
				evt.Attrs[a.Key] = a.Value.String()
			}
		}
		el.webhook.enqueue(evt)
	}
}
