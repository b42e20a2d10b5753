package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.ProjectsRoot) == "" {
		return errors.New("paths.projects_root must be set")
	}
	if strings.TrimSpace(c.Paths.RenderOutputDir) == "" {
		return errors.New("paths.render_output_dir must be set")
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validateRender() error {
	parsed, err := url.Parse(c.Render.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("render.base_url is not a valid URL: %q", c.Render.BaseURL)
	}
	if c.Render.ExtendedTimeoutSeconds < c.Render.TimeoutSeconds {
		return errors.New("render.extended_timeout_seconds must be at least render.timeout_seconds")
	}
	if c.Render.RetryMaxDelayMS < c.Render.RetryBaseDelayMS {
		return errors.New("render.retry_max_delay_ms must be at least render.retry_base_delay_ms")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.GroupSize > 16 {
		return errors.New("pipeline.group_size above 16 would overload the render service")
	}
	for _, format := range c.Pipeline.Formats {
		switch format {
		case "LongForm", "ShortForm":
		default:
			return fmt.Errorf("pipeline.formats contains unknown format %q (expected LongForm or ShortForm)", format)
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	if strings.ContainsAny(c.Store.Namespace, ": \t") {
		return fmt.Errorf("store.namespace must not contain colons or whitespace: %q", c.Store.Namespace)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if strings.TrimSpace(c.Notifications.NtfyTopic) == "" {
		return nil
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}
