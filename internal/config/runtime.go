package config

import (
	"github.com/l3aro/codeflow/internal/log"
	"github.com/l3aro/codeflow/pkg/flowchart"
	"github.com/l3aro/codeflow/pkg/mermaid"
)

// ConverterOptions maps the graph, diagram and cache settings onto
// flowchart options.
func (c *Config) ConverterOptions(logger log.Logger) flowchart.Options {
	return flowchart.Options{
		Dedup:          c.Dedup,
		MaxDepth:       c.MaxDepth,
		IOCalls:        append([]string(nil), c.IOCalls...),
		MaxLabelLength: c.MaxLabelLength,
		Mermaid: mermaid.Options{
			Header:    c.Header,
			Direction: c.Direction,
		},
		CacheSize: c.CacheSize,
		Logger:    logger,
	}
}

// NewLogger builds the process logger from the logging settings. verbose
// forces debug level.
func (c *Config) NewLogger(verbose bool) (*log.DefaultLogger, error) {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = log.DebugLevel
	}
	return log.New(log.LoggerConfig{Level: level, JSONOutput: c.LogJSON}), nil
}
