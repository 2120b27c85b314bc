package ytdlp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"hoist/internal/services"
)

var commandContext = exec.CommandContext

// progressPrefix tags the stdout lines carrying byte counts. Everything
// else the tool prints is ignored.
const progressPrefix = "hoist-progress:"

// ProgressUpdate captures one raw progress event from the media tool.
// Values are not guaranteed monotonic; multi-file downloads may report
// combined progress that regresses between files.
type ProgressUpdate struct {
	Percent float64
}

// Result is the typed outcome of one tool invocation.
type Result struct {
	Title       string
	Description string
	Metadata    map[string]any
	Files       []string // names relative to the working directory
}

// Client defines media fetch behaviour.
type Client interface {
	Fetch(ctx context.Context, sourceURL, workDir string, progress func(ProgressUpdate)) (*Result, error)
	DomainAllowed(sourceURL string) bool
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithAllowedDomains restricts fetches to URLs whose host matches one of
// the given domain suffixes. An empty list allows everything.
func WithAllowedDomains(domains []string) Option {
	return func(c *CLI) {
		c.allowedDomains = append([]string(nil), domains...)
	}
}

// CLI wraps the yt-dlp command-line tool.
type CLI struct {
	binary         string
	allowedDomains []string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "yt-dlp"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// DomainAllowed reports whether the URL's host passes the allow-list.
// Matching is by suffix, so "youtube.com" also admits "www.youtube.com".
func (c *CLI) DomainAllowed(sourceURL string) bool {
	if len(c.allowedDomains) == 0 {
		return true
	}
	parsed, err := url.Parse(strings.TrimSpace(sourceURL))
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}
	for _, domain := range c.allowedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// Fetch launches the media tool for one job. The tool writes all produced
// files (media, subtitles, thumbnails, description, info JSON) into workDir;
// progress is reported through the callback as raw percent values computed
// from the tool's byte counters.
func (c *CLI) Fetch(ctx context.Context, sourceURL, workDir string, progress func(ProgressUpdate)) (*Result, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return nil, services.Wrap(services.ErrValidation, "fetch", "source url required", nil)
	}
	if workDir == "" {
		return nil, services.Wrap(services.ErrValidation, "fetch", "working directory required", nil)
	}
	if !c.DomainAllowed(sourceURL) {
		return nil, services.Wrap(services.ErrDomainRejected, "fetch",
			fmt.Sprintf("domain of %s is not in the allow-list", sourceURL), nil)
	}

	args := []string{
		"--newline",
		"--no-playlist",
		"--write-description",
		"--write-subs",
		"--write-auto-subs",
		"--write-thumbnail",
		"--write-all-thumbnails",
		"--write-info-json",
		"--progress-template", "download:" + progressPrefix + "%(progress.downloaded_bytes)s/%(progress.total_bytes,progress.total_bytes_estimate)s",
		"--paths", workDir,
		"--output", "%(title).200B_%(id)s.%(ext)s",
		sourceURL,
	}

	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrExtraction, "fetch", "start media tool", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		percent, ok := parseProgressLine(scanner.Text())
		if !ok {
			continue
		}
		if progress != nil {
			progress(ProgressUpdate{Percent: percent})
		}
	}
	if err := scanner.Err(); err != nil {
		_ = cmd.Wait()
		return nil, services.Wrap(services.ErrExtraction, "fetch", "read tool output", err)
	}

	if err := cmd.Wait(); err != nil {
		return nil, services.Wrap(services.ErrExtraction, "fetch", "media tool failed", err)
	}

	return collectResult(workDir)
}

func parseProgressLine(line string) (float64, bool) {
	idx := strings.Index(line, progressPrefix)
	if idx < 0 {
		return 0, false
	}
	payload := strings.TrimSpace(line[idx+len(progressPrefix):])
	downloadedRaw, totalRaw, ok := strings.Cut(payload, "/")
	if !ok {
		return 0, false
	}
	downloaded, err := strconv.ParseFloat(strings.TrimSpace(downloadedRaw), 64)
	if err != nil {
		return 0, false
	}
	total, err := strconv.ParseFloat(strings.TrimSpace(totalRaw), 64)
	if err != nil || total <= 0 {
		return 0, false
	}
	percent := downloaded / total * 100
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return percent, true
}

// collectResult reads the tool's info JSON and produced files out of the
// working directory. The info JSON itself is consumed here and removed;
// the artifact manager writes the canonical metadata side-file instead.
func collectResult(workDir string) (*Result, error) {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "fetch", "read working directory", err)
	}

	result := &Result{}
	var infoPath string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".info.json") {
			infoPath = filepath.Join(workDir, name)
			continue
		}
		result.Files = append(result.Files, name)
	}

	if infoPath == "" {
		return nil, services.Wrap(services.ErrExtraction, "fetch", "media tool produced no info JSON", nil)
	}

	raw, err := os.ReadFile(infoPath)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "fetch", "read info JSON", err)
	}
	metadata := make(map[string]any)
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, services.Wrap(services.ErrExtraction, "fetch", "decode info JSON", err)
	}
	if err := os.Remove(infoPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, services.Wrap(services.ErrStorage, "fetch", "remove info JSON", err)
	}

	result.Metadata = metadata
	if title, ok := metadata["title"].(string); ok {
		result.Title = strings.TrimSpace(title)
	}
	if description, ok := metadata["description"].(string); ok {
		result.Description = description
	}
	return result, nil
}

var _ Client = (*CLI)(nil)
