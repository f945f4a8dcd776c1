//go:build embedded

package executor

import "time"

// defaultSetupBuffer is zero on embedded builds: there is no dashboard
// process racing to connect, and boot time is already at a premium.
const defaultSetupBuffer = time.Duration(0)
