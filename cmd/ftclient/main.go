// Command ftclient lists a file-transfer server's directory or fetches a
// file from it.
//
// Usage:
//
//	ftclient [flags] <host> <port> -l <data_port>
//	ftclient [flags] <host> <port> -g <filename> <data_port>
//
// Fetched files are never overwritten: if the name is taken, the first free
// name of the form <filename>1, <filename>2, ... is used.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/gonzalop/ftclient"
	"github.com/gonzalop/ftclient/internal/config"
	"github.com/gonzalop/ftclient/internal/logging"
)

const usageLine = "usage: ftclient [flags] <server_host> <server_port> <-l|-g> [filename] <data_port>"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one invocation and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	err := runClient(ctx, args, stdout, stderr)
	if err == nil {
		return 0
	}
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}

	fmt.Fprintf(stderr, "error: %v\n", err)
	var ue *ftclient.UsageError
	if errors.As(err, &ue) {
		fmt.Fprintln(stderr, usageLine)
	}
	return 1
}

// invocation is the parsed positional part of the command line.
type invocation struct {
	host     string
	port     int
	command  ftclient.Command
	filename string
	dataPort int
}

func runClient(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("ftclient", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	// "-l" and "-g" are positional; stop flag parsing at the host.
	flags.SetInterspersed(false)
	flags.Usage = func() {
		fmt.Fprintln(stderr, usageLine)
		flags.PrintDefaults()
	}

	configPath := flags.String("config", "", "path to a TOML config file")
	timeout := flags.Duration("timeout", 0, "control connection timeout (0 waits forever)")
	acceptTimeout := flags.Duration("accept-timeout", 0, "how long to wait for the server to connect back (0 waits forever)")
	readTimeout := flags.Duration("read-timeout", 0, "per-read timeout on the data connection (0 waits forever)")
	clientAddress := flags.String("client-address", "", "IP address announced to the server (default: auto-detect)")
	bandwidth := flags.Int64("bandwidth-limit", 0, "receive rate limit in bytes per second (0 is unlimited)")
	outputDir := flags.String("output-dir", "", "directory fetched files are written to")
	logLevel := flags.String("log-level", "", "log level (debug, info, warn, error)")
	logFile := flags.String("log-file", "", "write logs to a rotated file instead of stderr")
	logFormat := flags.String("log-format", "", "log format (auto, console, json)")

	if err := flags.Parse(args); err != nil {
		return err
	}

	inv, err := parseArgs(flags.Args())
	if err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	overrides := map[string]func(){
		"timeout":         func() { cfg.Timeout.Duration = *timeout },
		"accept-timeout":  func() { cfg.AcceptTimeout.Duration = *acceptTimeout },
		"read-timeout":    func() { cfg.ReadTimeout.Duration = *readTimeout },
		"client-address":  func() { cfg.ClientAddress = *clientAddress },
		"bandwidth-limit": func() { cfg.BandwidthLimit = *bandwidth },
		"output-dir":      func() { cfg.OutputDir = *outputDir },
		"log-level":       func() { cfg.LogLevel = *logLevel },
		"log-file":        func() { cfg.LogFile = *logFile },
		"log-format":      func() { cfg.LogFormat = *logFormat },
	}
	flags.Visit(func(f *pflag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	}, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	fsys, err := outputFs(cfg.OutputDir)
	if err != nil {
		return err
	}

	opts := append(cfg.Options(),
		ftclient.WithLogger(logger),
		ftclient.WithOutput(stdout),
		ftclient.WithStatus(stdout),
		ftclient.WithFs(fsys),
	)
	client, err := ftclient.New(opts...)
	if err != nil {
		return err
	}

	session, err := ftclient.NewSession(inv.host, inv.port, inv.command, inv.filename, inv.dataPort)
	if err != nil {
		return err
	}
	logger.Debug("starting session", zap.String("session", session.ID))

	res, err := client.Run(ctx, session)
	if err != nil {
		return err
	}

	if res.Action.Kind == ftclient.Persist {
		fmt.Fprintf(stdout, "File transfer complete. Saved as %s\n", filepath.Join(cfg.OutputDir, res.Path))
	}
	return nil
}

// parseArgs interprets host, port, command, optional filename and data port.
func parseArgs(args []string) (*invocation, error) {
	if len(args) != 4 && len(args) != 5 {
		return nil, &ftclient.UsageError{Reason: fmt.Sprintf("expected 4 or 5 arguments, got %d", len(args))}
	}

	port, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, &ftclient.UsageError{Reason: fmt.Sprintf("server port %q is not a number", args[1])}
	}
	cmd, err := ftclient.ParseCommand(args[2])
	if err != nil {
		return nil, err
	}

	switch {
	case cmd == ftclient.Get && len(args) != 5:
		return nil, &ftclient.UsageError{Reason: "-g requires a filename"}
	case cmd == ftclient.List && len(args) != 4:
		return nil, &ftclient.UsageError{Reason: "-l takes no filename"}
	}

	inv := &invocation{host: args[0], port: port, command: cmd}
	dataArg := args[3]
	if len(args) == 5 {
		inv.filename = args[3]
		dataArg = args[4]
	}
	inv.dataPort, err = strconv.Atoi(dataArg)
	if err != nil {
		return nil, &ftclient.UsageError{Reason: fmt.Sprintf("data port %q is not a number", dataArg)}
	}
	return inv, nil
}

// outputFs returns the filesystem fetched files are written to.
func outputFs(dir string) (afero.Fs, error) {
	osFs := afero.NewOsFs()
	if dir == "" {
		return osFs, nil
	}
	if err := osFs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create output directory: %w", err)
	}
	return afero.NewBasePathFs(osFs, dir), nil
}
