package config

import (
	"fmt"
	"os"
	"strings"

	"storyart/internal/textutil"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRender()
	c.normalizePipeline()
	c.normalizeStore()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.ProjectsRoot, err = expandPath(c.Paths.ProjectsRoot); err != nil {
		return fmt.Errorf("paths.projects_root: %w", err)
	}
	if c.Paths.RenderOutputDir, err = expandPath(c.Paths.RenderOutputDir); err != nil {
		return fmt.Errorf("paths.render_output_dir: %w", err)
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeRender() {
	c.Render.BaseURL = strings.TrimSpace(c.Render.BaseURL)
	if c.Render.BaseURL == "" {
		if value, ok := os.LookupEnv("STORYART_RENDER_URL"); ok {
			c.Render.BaseURL = strings.TrimSpace(value)
		}
	}
	if c.Render.BaseURL == "" {
		c.Render.BaseURL = defaultRenderBaseURL
	}
	c.Render.BaseURL = strings.TrimRight(c.Render.BaseURL, "/")
	if c.Render.TimeoutSeconds <= 0 {
		c.Render.TimeoutSeconds = defaultRenderTimeoutSeconds
	}
	if c.Render.ExtendedTimeoutSeconds <= 0 {
		c.Render.ExtendedTimeoutSeconds = c.Render.TimeoutSeconds * 2
	}
	if c.Render.RetryMaxAttempts <= 0 {
		c.Render.RetryMaxAttempts = defaultRetryMaxAttempts
	}
	if c.Render.RetryBaseDelayMS <= 0 {
		c.Render.RetryBaseDelayMS = defaultRetryBaseDelayMS
	}
	if c.Render.RetryMaxDelayMS <= 0 {
		c.Render.RetryMaxDelayMS = defaultRetryMaxDelayMS
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.GroupSize <= 0 {
		c.Pipeline.GroupSize = defaultGroupSize
	}
	if c.Pipeline.ImagesPerPrompt <= 0 {
		c.Pipeline.ImagesPerPrompt = defaultImagesPerPrompt
	}
	if len(c.Pipeline.Formats) == 0 {
		c.Pipeline.Formats = []string{"LongForm", "ShortForm"}
	}
}

func (c *Config) normalizeStore() {
	// keys embed the namespace, so it must stay a clean slug
	c.Store.Namespace = textutil.SanitizeSlug(c.Store.Namespace, 64)
	if c.Store.Namespace == "" {
		c.Store.Namespace = defaultStoreNamespace
	}
	if c.Store.SessionTTLDays <= 0 {
		c.Store.SessionTTLDays = defaultSessionTTLDays
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
