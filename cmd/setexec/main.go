// Command setexec runs a set operation over literal or CSV operands and
// prints the result rows followed by a summary of the spill metrics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"setexec/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	_ = logging.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
