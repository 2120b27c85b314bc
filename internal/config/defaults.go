package config

const (
	defaultDownloadRoot       = "~/.local/share/hoist/downloads"
	defaultLogDir             = "~/.local/share/hoist/logs"
	defaultAPIBind            = "127.0.0.1:7587"
	defaultFetchBinary        = "yt-dlp"
	defaultFFmpegBinary       = "ffmpeg"
	defaultMaxConcurrent      = 1
	defaultToolTimeout        = 0 // no hard timeout; the tool runs to completion
	defaultRequestTimeout     = 30
	defaultMinPercentStep     = 10.0
	defaultTranscodeWorkers   = 1
	defaultQueuePollInterval  = 2
	defaultErrorRetryInterval = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

func defaultTranscodeExtensions() []string {
	return []string{".webm", ".mkv", ".mov", ".avi", ".flv", ".ts", ".m4v"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadRoot: defaultDownloadRoot,
			LogDir:       defaultLogDir,
			APIBind:      defaultAPIBind,
		},
		Fetch: Fetch{
			Binary:                 defaultFetchBinary,
			MaxConcurrentDownloads: defaultMaxConcurrent,
			ToolTimeout:            defaultToolTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultRequestTimeout,
			MinPercentStep: defaultMinPercentStep,
		},
		Transcode: Transcode{
			Enabled:    false,
			Binary:     defaultFFmpegBinary,
			Workers:    defaultTranscodeWorkers,
			Extensions: defaultTranscodeExtensions(),
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
