package client

import (
	"sync"
	"time"
)

// Op names a front-end operation reported through a Notifier.
type Op string

const (
	OpCreate           Op = "create"
	OpRename           Op = "rename"
	OpDelete           Op = "delete"
	OpLock             Op = "lock"
	OpUnlock           Op = "unlock"
	OpChangeMountPoint Op = "change_mount_point"
	OpChangeDataDir    Op = "change_data_dir"
)

// Notification is the outcome of one Manager operation.
type Notification struct {
	Op      Op
	VaultID int64
	Err     error
	At      time.Time
}

// Notifier delivers notifications without blocking. It sends to the primary
// channel, usually a window that may go away, and falls back to the parent
// channel when the primary is full or closed. Undeliverable notifications
// are dropped.
type Notifier struct {
	mu      sync.Mutex
	primary chan Notification
	parent  chan<- Notification
	closed  bool
}

// NewNotifier returns a Notifier over primary and parent. Either may be nil.
func NewNotifier(primary chan Notification, parent chan<- Notification) *Notifier {
	return &Notifier{primary: primary, parent: parent}
}

// ClosePrimary closes the primary channel. Later notifications go to the
// parent only.
func (n *Notifier) ClosePrimary() {
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed || n.primary == nil {
		n.closed = true
		return
	}
	n.closed = true
	close(n.primary)
}

// Notify reports whether the notification was delivered to either channel.
func (n *Notifier) Notify(note Notification) bool {
	if n == nil {
		return false
	}
	if note.At.IsZero() {
		note.At = time.Now()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.closed && n.primary != nil {
		select {
		case n.primary <- note:
			return true
		default:
		}
	}
	if n.parent != nil {
		select {
		case n.parent <- note:
			return true
		default:
		}
	}
	return false
}
