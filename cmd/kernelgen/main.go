// Command kernelgen writes the CUTLASS depthwise conv2d + bias + activation
// kernels and their per-activation dispatch wrappers into one CUDA source.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/23skdu/longbow-kernelgen/internal/config"
	"github.com/23skdu/longbow-kernelgen/internal/generator"
	"github.com/23skdu/longbow-kernelgen/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// run parses args, executes one generation and returns the exit status.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("kernelgen", flag.ContinueOnError)
	fs.SetOutput(stderr)

	def := config.Default()
	out := fs.String("out", def.Output, "Path of the generated CUDA source")
	acts := fs.String("act", "", "Comma separated activations (identity,relu,sigmoid,silu); empty means all")
	axesPath := fs.String("axes", "", "YAML file overriding the variant axes")
	jobs := fs.Int("jobs", def.Jobs, "Kernel bodies rendered concurrently")
	manifestPath := fs.String("manifest", "", "Also write an Arrow IPC dispatch manifest to this path")
	registryAddr := fs.String("registry", "", "Publish the manifest to this Arrow Flight registry (host:port)")
	metricsPath := fs.String("metrics-textfile", "", "Write Prometheus metrics to this textfile")
	verify := fs.Bool("verify", false, "Regenerate in memory and fail if the artifact on disk differs")
	logLevel := fs.String("log-level", def.LogLevel, "Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", def.LogFormat, "Log format (console, json)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "Error: unexpected arguments %v\n", fs.Args())
		fs.Usage()
		return 2
	}

	logger.Setup(*logLevel, *logFormat)

	cfg := def
	cfg.Output = *out
	cfg.Activations = config.ParseList(*acts)
	cfg.Jobs = *jobs
	cfg.ManifestPath = *manifestPath
	cfg.RegistryAddr = *registryAddr
	cfg.MetricsTextfile = *metricsPath
	cfg.LogLevel = *logLevel
	cfg.LogFormat = *logFormat
	if *axesPath != "" {
		axes, err := config.LoadAxes(*axesPath)
		if err != nil {
			logger.Log.Error("failed to load axes", err, "path", *axesPath)
			return 1
		}
		cfg.Axes = axes
	}

	g, err := generator.New(cfg)
	if err != nil {
		logger.Log.Error("invalid configuration", err)
		return 1
	}

	if *verify {
		res, err := g.Verify(ctx)
		if err != nil {
			logger.Log.Error("verification failed", err, "path", cfg.Output)
			return 1
		}
		logger.Log.Info("artifact up to date", "path", cfg.Output, "digest", res.Digest)
		return 0
	}

	if _, err := g.Run(ctx); err != nil {
		logger.Log.Error("generation failed", err)
		return 1
	}
	return 0
}
