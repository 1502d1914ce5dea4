// Package config handles statecell.toml / statecell.json configuration.
//
// The configuration file lives at the project root and sets defaults for
// the statecell CLI: logging, the scheduler that drives debounced
// selectors, store metrics and the devtools server.
//
// # File Format
//
//	name = "counter-demo"
//
//	[log]
//	level = "debug"
//	format = "json"
//
//	[scheduler]
//	mode = "loop"
//
//	[metrics]
//	enabled = true
//	namespace = "statecell"
//
//	[devtools]
//	host = "localhost"
//	port = 7070
//	allow_patch = true
//
// statecell.json accepts the same settings with camelCase keys. When both
// files exist the TOML file wins.
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    return err
//	}
//	logger := cfg.Logger(os.Stderr)
package config
