package main

import (
	"strand/internal/config"
	"strand/internal/trace"
)

// tracerFromConfig builds the tracer described by the [trace] config table.
func tracerFromConfig(cfg config.TraceConfig) (trace.Tracer, error) {
	level, err := trace.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if level == trace.LevelOff {
		return trace.Nop, nil
	}
	mode, err := trace.ParseStorageMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	format, err := trace.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	return trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		Format:     format,
		OutputPath: cfg.Output,
		RingSize:   cfg.RingSize,
	})
}
