package main

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"storyart/internal/config"
	"storyart/internal/kv"
	"storyart/internal/logging"
	"storyart/internal/session"
	"storyart/internal/textutil"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() *slog.Logger {
	cfg, err := c.ensureConfig()
	if err != nil || cfg == nil {
		return logging.NewNop()
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

// withSessionStore opens the sqlite-backed session store for the duration of
// one command invocation.
func (c *commandContext) withSessionStore(fn func(*session.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	backend, err := kv.Open(filepath.Join(cfg.Paths.DataDir, "sessions.db"))
	if err != nil {
		return err
	}
	defer backend.Close()

	ttl := time.Duration(cfg.Store.SessionTTLDays) * 24 * time.Hour
	store := session.NewStore(backend, cfg.Store.Namespace, ttl, c.logger())
	return fn(store)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	return textutil.Ternary(value, "yes", "no")
}
