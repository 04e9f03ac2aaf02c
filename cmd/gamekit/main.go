package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/aws/aws-gamekit-unity-sub001/config"
	"github.com/aws/aws-gamekit-unity-sub001/marshal"
	"github.com/aws/aws-gamekit-unity-sub001/native"
	"github.com/aws/aws-gamekit-unity-sub001/testbed"
	"github.com/aws/aws-gamekit-unity-sub001/threader"
)

type argList []string

func (a *argList) String() string     { return strings.Join(*a, ",") }
func (a *argList) Set(v string) error { *a = append(*a, v); return nil }

type options struct {
	configFile  string
	library     string
	dir         string
	call        string
	args        argList
	list        bool
	useTestbed  bool
	interactive bool
}

func main() {
	var o options
	flag.StringVar(&o.configFile, "config", "", "Path to gamekit.yaml (optional)")
	flag.StringVar(&o.library, "lib", "", "Native library identifier, e.g. aws-gamekit-identity")
	flag.StringVar(&o.dir, "dir", "", "Library directory (overrides native.library_dir)")
	flag.StringVar(&o.call, "call", "", "Entry point to call")
	flag.Var(&o.args, "arg", "Argument for -call (repeatable)")
	flag.BoolVar(&o.list, "list", false, "List exported entry points and exit")
	flag.BoolVar(&o.useTestbed, "testbed", false, "Attach the in-process fake libraries")
	flag.BoolVar(&o.interactive, "i", false, "Interactive mode with TUI")
	flag.Parse()

	if o.library == "" {
		fmt.Fprintln(os.Stderr, "Usage: gamekit -lib <id> [-config gamekit.yaml] -list")
		fmt.Fprintln(os.Stderr, "       gamekit -lib <id> -call Name [-arg v ...]")
		fmt.Fprintln(os.Stderr, "       gamekit -lib <id> -i  (interactive mode)")
		os.Exit(1)
	}

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// session is everything a command needs: the runtime with the library
// loaded and a dispatcher to run calls on.
type session struct {
	cfg      *config.Config
	log      *zap.Logger
	rt       *native.Runtime
	lib      *native.Library
	d        *threader.Dispatcher
	shutdown func(context.Context) error
}

func run(o options) error {
	ctx := context.Background()

	if o.interactive && !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal")
	}

	s, err := open(ctx, o)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	switch {
	case o.interactive:
		return runInteractive(s)
	case o.list || o.call == "":
		fmt.Printf("Library: %s\n\nEntry points:\n", s.lib.ID())
		for _, sig := range s.lib.Signatures() {
			fmt.Printf("  %s\n", sig)
		}
		return nil
	default:
		return callOnce(ctx, s, o.call, o.args)
	}
}

func open(ctx context.Context, o options) (*session, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}

	log := zap.NewNop()
	if !o.interactive {
		if log, err = newLogger(cfg.Log); err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
	}
	native.SetLogger(log.Named("native"))
	marshal.SetLogger(log.Named("marshal"))

	mp, shutdown, err := newMeterProvider(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	rt, err := native.NewRuntime(ctx, native.Config{
		LibraryDir:       cfg.Native.LibraryDir,
		MemoryLimitPages: cfg.Native.MemoryLimitPages,
	})
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	if o.useTestbed {
		if err := testbed.New().Attach(ctx, rt); err != nil {
			_ = rt.Close(ctx)
			_ = shutdown(ctx)
			return nil, err
		}
	}

	lib, err := rt.Load(ctx, o.dir, o.library)
	if err != nil {
		_ = rt.Close(ctx)
		_ = shutdown(ctx)
		return nil, err
	}

	d := threader.New(
		threader.WithLogger(log.Named("threader")),
		threader.WithMeterProvider(mp),
		threader.WithMaxWorkers(cfg.Dispatcher.MaxWorkers),
	)

	return &session{cfg: cfg, log: log, rt: rt, lib: lib, d: d, shutdown: shutdown}, nil
}

func (s *session) close(ctx context.Context) {
	drain, cancel := context.WithTimeout(ctx, s.cfg.Dispatcher.DrainTimeout)
	defer cancel()
	if err := s.d.Shutdown(drain); err != nil {
		s.log.Warn("dispatcher did not drain", zap.Error(err))
	}
	_ = s.rt.Close(ctx)
	_ = s.shutdown(ctx)
	_ = s.log.Sync()
}

func newLogger(c config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// newMeterProvider returns a stdout-exporting provider when telemetry is
// enabled and a no-op one otherwise.
func newMeterProvider(c config.TelemetryConfig) (metric.MeterProvider, func(context.Context) error, error) {
	if !c.Enabled {
		return noop.NewMeterProvider(), func(context.Context) error { return nil }, nil
	}
	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(c.ExportInterval))),
	)
	otel.SetMeterProvider(mp)
	return mp, mp.Shutdown, nil
}

// callOnce runs one entry point on the dispatcher, drains it and replays
// the result through Update.
func callOnce(ctx context.Context, s *session, name string, values []string) error {
	sig, ok := findSignature(s.lib, name)
	if !ok {
		return fmt.Errorf("%s does not export %s", s.lib.ID(), name)
	}

	var out outcome
	threader.Call(s.d, func(ctx context.Context) outcome {
		return invoke(ctx, s.lib, sig, values)
	}, func(r outcome) { out = r })

	drain, cancel := context.WithTimeout(ctx, s.cfg.Dispatcher.DrainTimeout)
	defer cancel()
	if err := s.d.WaitForThreadedWork(drain); err != nil {
		return err
	}
	if err := s.d.Update(); err != nil {
		return err
	}

	fmt.Printf("Calling %s\n", sig)
	if out.err != nil {
		return out.err
	}
	fmt.Printf("Result: %s\n", out)
	return nil
}
