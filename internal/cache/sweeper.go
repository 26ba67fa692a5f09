package cache

import (
	"sync"
	"time"
)

// sweeper runs Manager.Cleanup on a fixed interval until stopped.
type sweeper struct {
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func startSweeper(m *Manager, interval time.Duration) *sweeper {
	s := &sweeper{
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run(m, interval)
	return s
}

func (s *sweeper) run(m *Manager, interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			m.Cleanup()
		}
	}
}

// stop signals the goroutine and blocks until it has exited.
func (s *sweeper) stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
}
