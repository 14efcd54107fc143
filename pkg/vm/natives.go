package vm

import (
	"time"

	"github.com/kristofer/loxvm/pkg/value"
)

// processStart anchors clock()'s "seconds since process start" to when
// this package was loaded rather than per-VM construction, so clock()
// readings are comparable across multiple VM instances created in the
// same process (e.g. a test harness that builds one VM per test case).
var processStart = time.Now()

// nativeClock ignores whatever arguments it's called with: the VM checks
// arity at call time only for closures (callClosure), and a native
// receives whatever arguments the call site passed.
func nativeClock(args []value.Value) (value.Value, error) {
	return value.Number(time.Since(processStart).Seconds()), nil
}
