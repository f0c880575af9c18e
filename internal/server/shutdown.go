package server

import (
	"sync/atomic"
	"time"
)

// ShutdownCoordinator flips the server into draining mode before http.Server.Shutdown
// so that late deliveries are bounced back to the message bus instead of being cut off
// mid-fetch.
type ShutdownCoordinator struct {
	draining    atomic.Bool
	gracePeriod time.Duration
}

// NewShutdownCoordinator creates a coordinator that waits gracePeriod after draining
// begins, giving load balancers time to stop routing to this instance.
func NewShutdownCoordinator(gracePeriod time.Duration) *ShutdownCoordinator {
	return &ShutdownCoordinator{gracePeriod: gracePeriod}
}

func (sc *ShutdownCoordinator) Draining() bool {
	return sc.draining.Load()
}

// InitiateShutdown marks the server as draining and blocks for the grace period.
func (sc *ShutdownCoordinator) InitiateShutdown() {
	sc.draining.Store(true)
	time.Sleep(sc.gracePeriod)
}
