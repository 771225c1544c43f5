// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"sync/atomic"
	"time"
)

// keepaliveTicker is a rescheduable one-shot timer, like a wind-up clock:
// each call to Reschedule arms exactly one future tick on C.
type keepaliveTicker struct {
	c chan time.Time
	C <-chan time.Time

	stopped uint32
}

// newKeepaliveTicker creates a ticker that must be armed with Reschedule.
func newKeepaliveTicker() *keepaliveTicker {
	c := make(chan time.Time)
	return &keepaliveTicker{c: c, C: c}
}

// Reschedule arms a tick after delay.
func (t *keepaliveTicker) Reschedule(delay time.Duration) {
	if atomic.LoadUint32(&t.stopped) != 0 {
		return
	}

	go func() {
		time.Sleep(delay)
		if atomic.LoadUint32(&t.stopped) == 0 {
			t.c <- time.Now()
		}
	}()
}

// Stop disarms this ticker permanently.
func (t *keepaliveTicker) Stop() {
	atomic.StoreUint32(&t.stopped, 1)
}
