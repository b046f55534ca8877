package storage

import (
	"context"
	"time"

	"github.com/dgellow/oauth-demo/internal/log"
)

// CleanupManager periodically removes expired pending flows
type CleanupManager struct {
	store    FlowStore
	interval time.Duration
	onSweep  func(removed int)
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewCleanupManager creates a new cleanup manager. onSweep, if non-nil, is
// called with the number of flows removed by each successful sweep.
func NewCleanupManager(store FlowStore, interval time.Duration, onSweep func(removed int)) *CleanupManager {
	return &CleanupManager{
		store:    store,
		interval: interval,
		onSweep:  onSweep,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the cleanup loop in a goroutine
func (cm *CleanupManager) Start(ctx context.Context) {
	log.LogInfoWithFields("cleanup", "Starting flow cleanup manager", map[string]any{
		"interval": cm.interval.String(),
	})

	go cm.run(ctx)
}

// Stop stops the cleanup loop and waits for it to exit
func (cm *CleanupManager) Stop() {
	close(cm.stopChan)
	<-cm.doneChan
	log.Logf("Flow cleanup manager stopped")
}

// Done is closed once the loop has exited
func (cm *CleanupManager) Done() <-chan struct{} {
	return cm.doneChan
}

func (cm *CleanupManager) run(ctx context.Context) {
	defer close(cm.doneChan)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.cleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.cleanup(ctx)
		case <-cm.stopChan:
			cm.cleanup(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cm *CleanupManager) cleanup(ctx context.Context) {
	count, err := cm.store.CleanupExpired(ctx)
	if err != nil {
		log.LogErrorWithFields("cleanup", "Failed to cleanup expired flows", map[string]any{
			"error": err.Error(),
		})
		return
	}

	if cm.onSweep != nil {
		cm.onSweep(count)
	}
	if count > 0 {
		log.LogInfoWithFields("cleanup", "Cleaned up expired flows", map[string]any{
			"count": count,
		})
	}
}
