// Package logging constructs the loggers used across the client.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures logger construction.
type Options struct {
	// File is the log file path. Empty means stderr only.
	File string
	// MaxSizeMB caps the log file before rotation. Zero means 10.
	MaxSizeMB int
	// MaxBackups is how many rotated files to keep. Zero means 3.
	MaxBackups int
}

var output io.Writer = os.Stderr

// Setup routes all subsequent New calls to the configured destination. When a
// file is set, writes go through lumberjack for size-capped rotation.
func Setup(opts Options) {
	if opts.File == "" {
		output = os.Stderr
		return
	}
	if opts.MaxSizeMB == 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 3
	}
	output = &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
}

// New returns a logger with the given bracketed prefix, e.g. "[engine] ".
func New(prefix string) *log.Logger {
	return log.New(output, prefix, log.LstdFlags)
}
