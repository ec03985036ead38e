// Package clock supplies authority time to the control plane. All services
// read time through Now so that tests can freeze it deterministically.
package clock

import "time"

// NowFunc returns the current time in UTC. Override in tests for determinism.
var NowFunc = func() time.Time { return time.Now().UTC() }

// Now is a thin wrapper around NowFunc.
func Now() time.Time { return NowFunc() }
