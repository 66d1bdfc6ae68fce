package main

import (
	"github.com/spf13/cobra"
)

// setupOneShot loads config and wires the app for a command that runs once and exits.
func setupOneShot(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg, true)
	if err != nil {
		return nil, err
	}
	a, err := buildApp(cmd.Context(), cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	a.closers = append([]func(){func() { _ = logger.Sync() }}, a.closers...)
	return a, nil
}
