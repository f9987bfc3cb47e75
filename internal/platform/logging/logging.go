// Package logging builds the process logger.
package logging

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// Config selects verbosity and output format.
type Config struct {
	Name   string
	Level  string
	JSON   bool
	Output io.Writer
}

// New returns an hclog logger. Unknown levels fall back to info.
func New(cfg Config) hclog.Logger {
	level := hclog.LevelFromString(cfg.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	name := cfg.Name
	if name == "" {
		name = "farmvault"
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      level,
		JSONFormat: cfg.JSON,
		Output:     out,
	})
}
