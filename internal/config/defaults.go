package config

const (
	defaultProjectsRoot          = "~/Projects"
	defaultRenderOutputDir       = "~/.local/share/storyart/render-output"
	defaultDataDir               = "~/.local/share/storyart"
	defaultLogDir                = "~/.local/share/storyart/logs"
	defaultRenderBaseURL         = "http://127.0.0.1:7860"
	defaultRenderTimeoutSeconds  = 300
	defaultRenderExtendedSeconds = 600
	defaultRetryMaxAttempts      = 4
	defaultRetryBaseDelayMS      = 1000
	defaultRetryMaxDelayMS       = 30000
	defaultGroupSize             = 4
	defaultImagesPerPrompt       = 1
	defaultStoreNamespace        = "storyart"
	defaultSessionTTLDays        = 7
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultNotifyRequestTimeout  = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ProjectsRoot:    defaultProjectsRoot,
			RenderOutputDir: defaultRenderOutputDir,
			DataDir:         defaultDataDir,
			LogDir:          defaultLogDir,
		},
		Render: Render{
			BaseURL:                defaultRenderBaseURL,
			TimeoutSeconds:         defaultRenderTimeoutSeconds,
			ExtendedTimeoutSeconds: defaultRenderExtendedSeconds,
			RetryMaxAttempts:       defaultRetryMaxAttempts,
			RetryBaseDelayMS:       defaultRetryBaseDelayMS,
			RetryMaxDelayMS:        defaultRetryMaxDelayMS,
		},
		Pipeline: Pipeline{
			GroupSize:       defaultGroupSize,
			ImagesPerPrompt: defaultImagesPerPrompt,
			Formats:         []string{"LongForm", "ShortForm"},
		},
		Store: Store{
			Namespace:      defaultStoreNamespace,
			SessionTTLDays: defaultSessionTTLDays,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completion:     true,
			Errors:         true,
		},
	}
}
