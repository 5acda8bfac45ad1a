package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wolfhowl/bioacoustics/cmd"
	"github.com/wolfhowl/bioacoustics/internal/buildinfo"
	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/logger"
	"github.com/wolfhowl/bioacoustics/internal/observability"
)

// Set by the linker: -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   string
	buildDate string
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := observability.NewMetrics()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating metrics: %v\n", err)
		return 1
	}

	settings := &conf.Settings{}
	rootCmd := cmd.RootCommand(settings, m, buildinfo.NewContext(version, buildDate))
	err = rootCmd.ExecuteContext(ctx)
	_ = logger.Global().Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
