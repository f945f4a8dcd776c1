// Command bdexec compiles a graph description, plans it, and runs it in
// real time, optionally streaming telemetry to and accepting tuning from
// a broker over TCP. Flag parsing uses the standard library's flag
// package: cobra shows up in _examples/zoobzio-pipz/cmd/main.go but is
// absent from pipz's own go.mod, a retrieval-artifact inconsistency, not
// a dependency this module's own teacher actually carries (DESIGN.md).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/bdexec/bdexec/executor"
	_ "github.com/bdexec/bdexec/internal/blocks"
	"github.com/bdexec/bdexec/planner"
	"github.com/bdexec/bdexec/telemetry"
)

// Exit codes per spec.md §6.
const (
	exitNormal  = 0
	exitPlan    = 1
	exitRuntime = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("bdexec", flag.ContinueOnError)
	maxTime := fs.Float64("max-time", 0, "stop after this many seconds of simulation time (0 = unbounded)")
	tunerHost := fs.String("tuner-host", "", "host:port of the telemetry/tuning broker (empty disables the link)")
	graphPath := fs.String("graph", "", "path to a JSON graph description (required)")
	if err := fs.Parse(args); err != nil {
		return exitPlan
	}

	if *graphPath == "" {
		fmt.Fprintln(os.Stderr, "bdexec: -graph is required")
		return exitPlan
	}

	g, err := loadGraphFile(*graphPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bdexec: %v\n", err)
		return exitPlan
	}

	plans, err := planner.New().Plan(context.Background(), g)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bdexec: %v\n", err)
		return exitPlan
	}

	cfg := executor.Config{}
	if *maxTime > 0 {
		cfg.MaxTime = maxTime
	}

	var link *telemetry.Link
	if *tunerHost != "" {
		link = telemetry.New(tcpDialer(*tunerHost), telemetry.BuildNodeDef(g))
		cfg.Tuner = link
	}

	ex := executor.New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if link != nil {
		go func() {
			if err := link.Run(ctx); err != nil && ctx.Err() == nil {
				fmt.Fprintf(os.Stderr, "bdexec: telemetry link: %v\n", err)
			}
		}()
	}

	if err := ex.Run(ctx, g, plans); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "bdexec: %v\n", err)
		return exitRuntime
	}
	return exitNormal
}

// tcpDialer returns a telemetry.Dialer that opens a fresh TCP connection
// to addr on every call, the host-side half of spec.md §4.4's "a single
// ordered byte stream" abstraction.
func tcpDialer(addr string) telemetry.Dialer {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		d := net.Dialer{}
		return d.DialContext(ctx, "tcp", addr)
	}
}
