package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration values for internal consistency.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.DownloadRoot) == "" {
		return errors.New("paths.download_root must not be empty")
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	return c.validateWorkflow()
}

func (c *Config) validateFetch() error {
	if c.Fetch.MaxConcurrentDownloads < 1 || c.Fetch.MaxConcurrentDownloads > 10 {
		return fmt.Errorf("fetch.max_concurrent_downloads must be between 1 and 10, got %d", c.Fetch.MaxConcurrentDownloads)
	}
	if c.Fetch.ToolTimeout < 0 {
		return fmt.Errorf("fetch.tool_timeout must not be negative, got %d", c.Fetch.ToolTimeout)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.MinPercentStep <= 0 || c.Notifications.MinPercentStep > 100 {
		return fmt.Errorf("notifications.min_percent_step must be in (0, 100], got %g", c.Notifications.MinPercentStep)
	}
	if c.Notifications.RequestTimeout <= 0 {
		return fmt.Errorf("notifications.request_timeout must be positive, got %d", c.Notifications.RequestTimeout)
	}
	return nil
}

func (c *Config) validateTranscode() error {
	if c.Transcode.Workers < 1 || c.Transcode.Workers > 4 {
		return fmt.Errorf("transcode.workers must be between 1 and 4, got %d", c.Transcode.Workers)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	for name, value := range map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
	} {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, value)
		}
	}
	return nil
}
