package session

import (
	"sync"

	"github.com/cenkalti/flux/internal/alertpipeline"
)

// notificationLog keeps the most recent notifications. It is written by the worker
// and read by RPC handlers.
type notificationLog struct {
	m     sync.Mutex
	size  int
	items []alertpipeline.Notification
}

func newNotificationLog(size int) *notificationLog {
	if size <= 0 {
		size = 1
	}
	return &notificationLog{size: size}
}

func (l *notificationLog) Add(n alertpipeline.Notification) {
	l.m.Lock()
	defer l.m.Unlock()
	if len(l.items) == l.size {
		copy(l.items, l.items[1:])
		l.items = l.items[:l.size-1]
	}
	l.items = append(l.items, n)
}

func (l *notificationLog) List() []alertpipeline.Notification {
	l.m.Lock()
	defer l.m.Unlock()
	return append([]alertpipeline.Notification(nil), l.items...)
}
