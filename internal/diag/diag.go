// Package diag provides panic-path diagnostics for the frame table's
// "memory and swap full" condition: there is no recovery path, so the
// last thing to do before panicking is print a stack trace.
package diag

import (
	"fmt"
	"runtime"
)

// Dump prints msg followed by the call stack of its caller, starting at
// the frame right above Dump itself.
func Dump(msg string) {
	fmt.Printf("vm panic: %s\n", msg)
	for i := 1; ; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fmt.Printf("\t<-%s:%d\n", file, line)
	}
}
