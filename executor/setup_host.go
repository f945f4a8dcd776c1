//go:build !embedded

package executor

import "time"

// defaultSetupBuffer is the grace period between Run and the first clock
// firing on a host build, giving timers, sockets, and the tuner link time
// to come up before the plan starts ticking.
const defaultSetupBuffer = time.Second
