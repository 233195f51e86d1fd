package config

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parseArgs applies the command line:
//
//	dropzone [port] [--no-tls] [--flat]
//
// Flags may come before or after the port. Arguments are split into
// flags and positionals first because the flag package stops at the first
// non-flag argument.
func parseArgs(cfg *Config, args []string) error {
	var flagArgs, positional []string
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			flagArgs = append(flagArgs, a)
		} else {
			positional = append(positional, a)
		}
	}

	fs := flag.NewFlagSet("dropzone", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	noTLS := fs.Bool("no-tls", false, "serve plain HTTP even if certificates are configured")
	fs.BoolVar(&cfg.Flat, "flat", cfg.Flat, "store uploads in the working directory")

	if err := fs.Parse(flagArgs); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	if *noTLS {
		cfg.TLSEnabled = false
	}

	switch len(positional) {
	case 0:
	case 1:
		port, err := strconv.Atoi(positional[0])
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidPort, positional[0])
		}
		cfg.Port = port
	default:
		return fmt.Errorf("%w: unexpected arguments %q", ErrInvalidValue, positional[1:])
	}
	return nil
}
