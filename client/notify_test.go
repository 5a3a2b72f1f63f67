package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierPrefersPrimary(t *testing.T) {
	primary := make(chan Notification, 1)
	parent := make(chan Notification, 1)
	n := NewNotifier(primary, parent)

	require.True(t, n.Notify(Notification{Op: OpLock, VaultID: 1}))
	got := <-primary
	assert.Equal(t, OpLock, got.Op)
	assert.False(t, got.At.IsZero())
	assert.Empty(t, parent)
}

func TestNotifierFallsBackWhenFull(t *testing.T) {
	primary := make(chan Notification)
	parent := make(chan Notification, 1)
	n := NewNotifier(primary, parent)

	require.True(t, n.Notify(Notification{Op: OpUnlock, VaultID: 2}))
	assert.Equal(t, int64(2), (<-parent).VaultID)
}

func TestNotifierFallsBackWhenClosed(t *testing.T) {
	primary := make(chan Notification, 4)
	parent := make(chan Notification, 1)
	n := NewNotifier(primary, parent)

	n.ClosePrimary()
	n.ClosePrimary()
	require.True(t, n.Notify(Notification{Op: OpDelete, VaultID: 3}))
	assert.Equal(t, OpDelete, (<-parent).Op)

	_, open := <-primary
	assert.False(t, open)
}

func TestNotifierDropsWithoutBlocking(t *testing.T) {
	n := NewNotifier(make(chan Notification), make(chan Notification))
	assert.False(t, n.Notify(Notification{Op: OpLock}))

	var none *Notifier
	assert.False(t, none.Notify(Notification{Op: OpLock}))
	none.ClosePrimary()
}
