package main

import (
	"github.com/jessevdk/go-flags"
)

// cliOptions are the command-line flags accepted by kongd, grounded on the
// teacher's cmd/txgen config.go (a flat go-flags struct, parsed once at
// startup).
type cliOptions struct {
	ConfigFile string `long:"config" description:"Path to a YAML config file" default:""`
	RPCListen  string `long:"rpc-listen" description:"Admin RPC listen address, overrides config"`
	LogLevel   string `long:"log-level" description:"Log level for all subsystems (trace, debug, info, warn, error)"`
}

func parseCLI() (*cliOptions, error) {
	opts := &cliOptions{}
	parser := flags.NewParser(opts, flags.PrintErrors|flags.HelpFlag)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}
	return opts, nil
}
