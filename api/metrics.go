package api

import (
	"fmt"
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertUnlockFailureSpike AlertType = "unlock_failure_spike"
	AlertLockFailureSpike   AlertType = "lock_failure_spike"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is called when a failure rate crosses its threshold.
type AlertFunc func(AlertEvent)

const (
	defaultUnlockFailureWindow    = 10 * time.Minute
	defaultUnlockFailureThreshold = 5
	defaultLockFailureWindow      = 10 * time.Minute
	defaultLockFailureThreshold   = 3
)

type failureWindow struct {
	alert     AlertType
	what      string
	times     []time.Time
	window    time.Duration
	threshold int
}

// metricsCollector counts lifecycle failures in sliding windows. A nil
// collector records nothing.
type metricsCollector struct {
	mu      sync.Mutex
	unlock  failureWindow
	lock    failureWindow
	alertFn AlertFunc
	now     func() time.Time
}

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		unlock: failureWindow{
			alert:     AlertUnlockFailureSpike,
			what:      "unlock",
			window:    defaultUnlockFailureWindow,
			threshold: defaultUnlockFailureThreshold,
		},
		lock: failureWindow{
			alert:     AlertLockFailureSpike,
			what:      "lock",
			window:    defaultLockFailureWindow,
			threshold: defaultLockFailureThreshold,
		},
		alertFn: alertFn,
		now:     time.Now,
	}
}

func (m *metricsCollector) recordEvent(event Event) {
	if m == nil || m.alertFn == nil {
		return
	}
	switch event {
	case EventVaultUnlockFailed, EventRelocateFailed:
		m.record(&m.unlock)
	case EventVaultLockFailed:
		m.record(&m.lock)
	}
}

func (m *metricsCollector) record(fw *failureWindow) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	fw.times = append(fw.times, now)
	fw.times = trimWindow(fw.times, now, fw.window)

	if len(fw.times) >= fw.threshold {
		m.alertFn(AlertEvent{
			Type:      fw.alert,
			Message:   fmt.Sprintf("vault %s failure rate exceeds threshold", fw.what),
			Count:     len(fw.times),
			Threshold: fw.threshold,
			Timestamp: now,
		})
		// One alert per spike.
		fw.times = fw.times[:0]
	}
}

// trimWindow drops entries older than now-window from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
