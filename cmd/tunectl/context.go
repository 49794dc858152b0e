package main

import (
	"context"
	"os"
	"strings"
	"sync"

	"tunehub/internal/app"
)

type commandContext struct {
	configFlag *string
	logLevel   *string

	once    sync.Once
	runtime *app.Runtime
	config  app.Config
	err     error
}

func newCommandContext(configFlag, logLevel *string) *commandContext {
	return &commandContext{configFlag: configFlag, logLevel: logLevel}
}

// ensureRuntime loads configuration once and wires the core. Diagnostics go
// to stderr so stdout stays machine readable.
func (c *commandContext) ensureRuntime(ctx context.Context) (*app.Runtime, app.Config, error) {
	c.once.Do(func() {
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			_ = os.Setenv(app.ConfigFileEnv, path)
		}
		cfg, err := app.LoadConfig()
		if err != nil {
			c.err = err
			return
		}
		logger := app.NewLogger(os.Stderr, *c.logLevel, "text")
		rt, err := app.NewRuntime(ctx, cfg, logger)
		if err != nil {
			c.err = err
			return
		}
		c.runtime = rt
		c.config = cfg
	})
	return c.runtime, c.config, c.err
}

func (c *commandContext) close() {
	if c.runtime != nil {
		_ = c.runtime.Close()
	}
}
