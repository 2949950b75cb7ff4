// Package main runs the in-memory stub backend, useful for developing
// and demonstrating the client without the real processing server.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/pixelperm/pixelperm/internal/config"
	"github.com/pixelperm/pixelperm/internal/platform/logger"
	"github.com/pixelperm/pixelperm/internal/stub"
)

func main() {
	var (
		addr      string
		stepDelay time.Duration
		logLevel  string
	)
	pflag.StringVar(&addr, "addr", ":5000", "listen address")
	pflag.DurationVar(&stepDelay, "step-delay", 2*time.Second, "simulated time per pipeline stage")
	pflag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pflag.Parse()

	log, err := logger.Setup(config.LogConfig{Level: logLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "stubserver: %v\n", err)
		os.Exit(1)
	}

	backend := stub.New(log, stub.WithStepDelay(stepDelay))

	log.Info("stub backend listening", "addr", addr, "step_delay", stepDelay.String())
	if err := http.ListenAndServe(addr, backend.Router()); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
