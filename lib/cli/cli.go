// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/apronwatch/apronwatch/lib/config"
	"github.com/apronwatch/apronwatch/lib/logging"
	"github.com/apronwatch/apronwatch/lib/version"
)

// Common holds the flags every binary accepts.
type Common struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	ShowVersion bool

	// Stdout receives --version and --help output. Nil means
	// os.Stdout.
	Stdout io.Writer

	// Stderr is the log destination. Nil means os.Stderr.
	Stderr io.Writer
}

// Env is the result of a successful Start.
type Env struct {
	Config *config.Config
	Logger *slog.Logger
}

// AddFlags registers the common flags on flagSet.
func (c *Common) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&c.ConfigPath, "config", "c", "", "configuration file (default: $"+config.EnvConfig+")")
	flagSet.StringVar(&c.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.StringVar(&c.LogFormat, "log-format", string(logging.FormatAuto), "log format: auto, text, json")
	flagSet.BoolVar(&c.ShowVersion, "version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")
}

// Start parses args, handles --help and --version, builds the logger,
// and loads the configuration. The caller applies its own flag
// overrides and then calls Validate on the returned configuration. A
// nil Env with a nil error means the binary should exit successfully.
func (c *Common) Start(binary string, flagSet *pflag.FlagSet, args []string) (*Env, error) {
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			c.printHelp(binary, flagSet)
			return nil, nil
		}
		return nil, err
	}
	if help, _ := flagSet.GetBool("help"); help {
		c.printHelp(binary, flagSet)
		return nil, nil
	}
	if c.ShowVersion {
		version.Print(c.stdout(), binary)
		return nil, nil
	}
	if flagSet.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}

	logger, err := logging.New(logging.Options{
		Level:  c.LogLevel,
		Format: logging.Format(c.LogFormat),
		Output: c.Stderr,
	})
	if err != nil {
		return nil, err
	}
	logger = logger.With("binary", binary)

	cfg, err := config.Load(c.ConfigPath)
	if err != nil {
		return nil, err
	}
	return &Env{Config: cfg, Logger: logger}, nil
}

func (c *Common) printHelp(binary string, flagSet *pflag.FlagSet) {
	fmt.Fprintf(c.stdout(), "Usage: %s [flags]\n\nFlags:\n%s", binary, flagSet.FlagUsages())
}

func (c *Common) stdout() io.Writer {
	if c.Stdout == nil {
		return os.Stdout
	}
	return c.Stdout
}
