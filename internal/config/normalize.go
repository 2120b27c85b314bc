package config

import (
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFetch()
	c.normalizeNotifications()
	c.normalizeTranscode()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	root, err := expandPath(c.Paths.DownloadRoot)
	if err != nil {
		return err
	}
	c.Paths.DownloadRoot = root

	logDir, err := expandPath(c.Paths.LogDir)
	if err != nil {
		return err
	}
	c.Paths.LogDir = logDir

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeFetch() {
	c.Fetch.Binary = strings.TrimSpace(c.Fetch.Binary)
	if c.Fetch.Binary == "" {
		c.Fetch.Binary = defaultFetchBinary
	}
	if c.Fetch.MaxConcurrentDownloads == 0 {
		c.Fetch.MaxConcurrentDownloads = defaultMaxConcurrent
	}
	domains := c.Fetch.AllowedSourceDomains[:0]
	for _, domain := range c.Fetch.AllowedSourceDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		domains = append(domains, domain)
	}
	c.Fetch.AllowedSourceDomains = domains
}

func (c *Config) normalizeNotifications() {
	c.Notifications.TelegramBotToken = strings.TrimSpace(c.Notifications.TelegramBotToken)
	c.Notifications.WebhookSecret = strings.TrimSpace(c.Notifications.WebhookSecret)
	c.Notifications.BaseExternalURL = strings.TrimRight(strings.TrimSpace(c.Notifications.BaseExternalURL), "/")
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultRequestTimeout
	}
	if c.Notifications.MinPercentStep <= 0 {
		c.Notifications.MinPercentStep = defaultMinPercentStep
	}
}

func (c *Config) normalizeTranscode() {
	c.Transcode.Binary = strings.TrimSpace(c.Transcode.Binary)
	if c.Transcode.Binary == "" {
		c.Transcode.Binary = defaultFFmpegBinary
	}
	if c.Transcode.Workers == 0 {
		c.Transcode.Workers = defaultTranscodeWorkers
	}
	if len(c.Transcode.Extensions) == 0 {
		c.Transcode.Extensions = defaultTranscodeExtensions()
		return
	}
	extensions := c.Transcode.Extensions[:0]
	for _, ext := range c.Transcode.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions = append(extensions, ext)
	}
	c.Transcode.Extensions = extensions
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
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
