// Command godoxctl controls Godox LED lights over Bluetooth Low Energy.
//
// Usage:
//
//	godoxctl scan
//	godoxctl on [--fixture key] [--brightness 128]
//	godoxctl off
//	godoxctl brightness 255 --mac A4:C1:38:00:B6:0D
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
