// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relaycmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/bytebridge/bridge"
	"github.com/bureau-foundation/bytebridge/channel"
	"github.com/bureau-foundation/bytebridge/lib/config"
	"github.com/bureau-foundation/bytebridge/lib/version"
	"github.com/bureau-foundation/bytebridge/transport"
)

// Command describes one bytebridge binary.
type Command struct {
	// Name is the binary name used in help and version output.
	Name string

	// Summary is the one-line description shown in help.
	Summary string

	// MediumArgs names the positional medium arguments in order, e.g.
	// {"host", "port"}.
	MediumArgs []string

	// ArgumentHelp describes the medium arguments, one per line, in the
	// help's ARGUMENTS section.
	ArgumentHelp string

	// Examples is shown at the end of help.
	Examples string

	// AddFlags registers medium-specific flags. May be nil.
	AddFlags func(*pflag.FlagSet)

	// NewTransport builds the unopened transport from the medium
	// arguments. An error is a usage error.
	NewTransport func(medium []string, cfg *config.Config, logger *slog.Logger) (transport.Transport, error)

	// NewEndpoint overrides the channel endpoint factory. Nil means
	// NewEndpoint.
	NewEndpoint EndpointFactory
}

// Invocation is a parsed command line.
type Invocation struct {
	ConfigPath string
	Middleware string
	Verbose    bool
	Version    bool
	Help       bool

	// Medium holds the medium arguments, len(Command.MediumArgs) of them.
	Medium []string

	MiddlewareHost string
	Name           string
	Filter         channel.Filter
}

func (c *Command) flagSet(invocation *Invocation) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(c.Name, pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&invocation.ConfigPath, "config", "", "path to bytebridge.yaml (default: $BYTEBRIDGE_CONFIG, then built-in defaults)")
	flagSet.StringVar(&invocation.Middleware, "middleware", "", "channel middleware: mqtt, redis, or postgres (overrides middleware.kind)")
	flagSet.BoolVarP(&invocation.Verbose, "verbose", "v", false, "log every message at debug level")
	flagSet.BoolVar(&invocation.Version, "version", false, "print version information and exit")
	flagSet.BoolVarP(&invocation.Help, "help", "h", false, "show help")
	if c.AddFlags != nil {
		c.AddFlags(flagSet)
	}
	return flagSet
}

// Parse parses args, which exclude the program name. The positional
// arguments are the medium arguments, the middleware host, the bridge
// name, and an optional "source/channel" filter.
func (c *Command) Parse(args []string) (*Invocation, *pflag.FlagSet, error) {
	invocation := &Invocation{}
	flagSet := c.flagSet(invocation)

	if err := flagSet.Parse(args); err != nil {
		return nil, flagSet, err
	}
	if invocation.Help || invocation.Version {
		return invocation, flagSet, nil
	}

	positional := flagSet.Args()
	required := len(c.MediumArgs) + 2
	if len(positional) < required || len(positional) > required+1 {
		return nil, flagSet, fmt.Errorf("expected %d or %d arguments, got %d", required, required+1, len(positional))
	}

	invocation.Medium = positional[:len(c.MediumArgs)]
	invocation.MiddlewareHost = positional[len(c.MediumArgs)]
	invocation.Name = positional[len(c.MediumArgs)+1]
	if err := validateName(invocation.Name); err != nil {
		return nil, flagSet, err
	}

	pattern := ""
	if len(positional) > required {
		pattern = positional[required]
	}
	filter, err := channel.ParseFilter(pattern)
	if err != nil {
		return nil, flagSet, err
	}
	invocation.Filter = filter

	return invocation, flagSet, nil
}

// validateName rejects names that cannot form a two-segment topic.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("bridge name must not be empty")
	}
	if strings.ContainsAny(name, "/*+#") {
		return fmt.Errorf("bridge name %q must not contain '/', '*', '+', or '#'", name)
	}
	return nil
}

// Run executes the command with args (excluding the program name). It
// returns nil after --help, --version, or a clean stop, and an
// *ExitError otherwise. SIGINT and SIGTERM cancel the run, which closes
// the bridge.
func (c *Command) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	invocation, flagSet, err := c.Parse(args)
	if err != nil {
		return c.usageError(stderr, err)
	}
	if invocation.Version {
		version.Fprint(stdout, c.Name)
		return nil
	}
	if invocation.Help {
		c.printHelp(stdout, flagSet)
		return nil
	}

	cfg, err := loadConfig(invocation.ConfigPath)
	if err != nil {
		return failure(stderr, ExitUsage, fmt.Errorf("loading config: %w", err))
	}
	if invocation.Middleware != "" {
		cfg.Middleware.Kind = invocation.Middleware
	}
	if err := cfg.Validate(); err != nil {
		return failure(stderr, ExitUsage, fmt.Errorf("invalid config: %w", err))
	}

	logger, err := NewLogger(stderr, cfg.Log, invocation.Verbose)
	if err != nil {
		return failure(stderr, ExitUsage, err)
	}
	logger = logger.With("command", c.Name)

	medium, err := c.NewTransport(invocation.Medium, cfg, logger)
	if err != nil {
		return c.usageError(stderr, err)
	}
	newEndpoint := c.NewEndpoint
	if newEndpoint == nil {
		newEndpoint = NewEndpoint
	}
	endpoint, err := newEndpoint(invocation.MiddlewareHost, invocation.Name, cfg, logger)
	if err != nil {
		return c.usageError(stderr, err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := bridge.Open(ctx, bridge.Config{
		Name:         invocation.Name,
		Filter:       invocation.Filter,
		FetchTimeout: cfg.Bridge.FetchTimeout,
		PollInterval: cfg.Bridge.PollInterval,
		DrainTimeout: cfg.Bridge.DrainTimeout,
		Logger:       logger,
	}, medium, endpoint)
	if err != nil {
		logger.Error("bridge open failed", "error", err)
		return &ExitError{Code: ExitOpen, Err: err}
	}

	err = b.Run(ctx)
	if code := runExitCode(err); code != 0 {
		logger.Error("bridge failed", "error", err, "exit_code", code)
		return &ExitError{Code: code, Err: err}
	}
	logger.Info("bridge stopped")
	return nil
}

// loadConfig resolves configuration: an explicit path, then
// BYTEBRIDGE_CONFIG, then the defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv(config.EnvironmentVariable) != "" {
		return config.Load()
	}
	cfg := config.Default()
	cfg.ExpandVariables()
	return cfg, nil
}

func failure(stderr io.Writer, code int, err error) error {
	fmt.Fprintf(stderr, "error: %v\n", err)
	return &ExitError{Code: code, Err: err}
}

func (c *Command) usageError(stderr io.Writer, err error) error {
	fmt.Fprintf(stderr, "error: %v\n\nUsage: %s\nRun '%s --help' for details.\n", err, c.usageLine(), c.Name)
	return &ExitError{Code: ExitUsage, Err: err}
}

func (c *Command) usageLine() string {
	var builder strings.Builder
	builder.WriteString(c.Name)
	builder.WriteString(" [flags]")
	for _, name := range c.MediumArgs {
		builder.WriteString(" <" + name + ">")
	}
	builder.WriteString(" <middleware-host> <name> [<source>/<channel>]")
	return builder.String()
}

func (c *Command) printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `%s - %s

USAGE
    %s

ARGUMENTS
%s    middleware-host    Middleware server as host or host:port
    name               Bridge name; publishes to <name>Source/<name>Channel
    source/channel     Subscription filter, "*" matches any segment (default: */*)

FLAGS
%s
EXIT STATUS
    0    Clean stop (signal or peer hang-up)
    1    A bridge loop failed
    2    The transport or middleware could not be opened
    3    Invalid arguments or configuration
    4    Cleanup failed after a clean stop
`, c.Name, c.Summary, c.usageLine(), c.ArgumentHelp, flagSet.FlagUsages())

	if c.Examples != "" {
		fmt.Fprintf(w, "\nEXAMPLES\n%s", c.Examples)
	}
}
