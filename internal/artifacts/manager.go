package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hoist/internal/logging"
	"hoist/internal/services"
	"hoist/internal/services/ytdlp"
)

const (
	metadataFilename    = "metadata.json"
	descriptionFilename = "description.txt"
	renameAttempts      = 20
)

// Manager owns the filesystem lifecycle of job output under the download root.
type Manager struct {
	root   string
	logger *slog.Logger
}

// NewManager constructs a Manager rooted at the download directory.
func NewManager(root string, logger *slog.Logger) *Manager {
	return &Manager{
		root:   root,
		logger: logging.NewComponentLogger(logger, "artifacts"),
	}
}

// Root returns the download root directory.
func (m *Manager) Root() string { return m.root }

// FinalizeResult describes the on-disk layout of a completed job. All paths
// are relative to the download root.
type FinalizeResult struct {
	OutputDir       string
	MetadataPath    string
	DescriptionPath string
	Manifest        []string
}

// Prepare creates a fresh working directory for a job. A leftover directory
// from an interrupted run is removed first; the job id makes the path
// collision-free across concurrent jobs.
func (m *Manager) Prepare(jobID string) (string, error) {
	workDir := filepath.Join(m.root, jobID)
	if err := os.RemoveAll(workDir); err != nil {
		return "", services.Wrap(services.ErrStorage, "prepare", "clear working directory", err)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrStorage, "prepare", "create working directory", err)
	}
	return workDir, nil
}

// Finalize turns a finished working directory into the job's published
// output: thumbnails are deduplicated by content, metadata and description
// side-files are written, the directory is renamed to a slug of the title,
// and the file manifest is assembled.
//
// A failed rename is not a job failure: the download itself succeeded, so
// the original directory name is kept and reported instead.
func (m *Manager) Finalize(workDir, jobID string, res *ytdlp.Result) (*FinalizeResult, error) {
	if res == nil {
		return nil, services.Wrap(services.ErrStorage, "finalize", "missing tool result", nil)
	}

	if _, err := dedupeThumbnailFiles(workDir, res.Files); err != nil {
		return nil, services.Wrap(services.ErrStorage, "finalize", "dedupe thumbnails", err)
	}

	dedupeMetadataThumbnails(res.Metadata)
	metadataJSON, err := json.MarshalIndent(res.Metadata, "", "  ")
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "finalize", "encode metadata", err)
	}
	if err := os.WriteFile(filepath.Join(workDir, metadataFilename), metadataJSON, 0o644); err != nil {
		return nil, services.Wrap(services.ErrStorage, "finalize", "write metadata", err)
	}

	hasDescription := strings.TrimSpace(res.Description) != ""
	descriptionPath := filepath.Join(workDir, descriptionFilename)
	if hasDescription {
		if err := os.WriteFile(descriptionPath, []byte(res.Description), 0o644); err != nil {
			return nil, services.Wrap(services.ErrStorage, "finalize", "write description", err)
		}
	} else if err := os.Remove(descriptionPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, services.Wrap(services.ErrStorage, "finalize", "remove stale description", err)
	}

	finalDir := m.renameToSlug(workDir, res.Title, jobID)

	manifest, err := m.buildManifest(finalDir)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "finalize", "build manifest", err)
	}

	relDir, err := filepath.Rel(m.root, finalDir)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "finalize", "relativize output dir", err)
	}

	result := &FinalizeResult{
		OutputDir: relDir,
		Manifest:  manifest,
	}
	result.MetadataPath = filepath.Join(relDir, metadataFilename)
	if hasDescription {
		result.DescriptionPath = filepath.Join(relDir, descriptionFilename)
	}
	return result, nil
}

// renameToSlug attempts to rename the working directory to a sanitized form
// of the title, disambiguating with job-id suffixes on collision. Any
// failure degrades to keeping the original directory.
func (m *Manager) renameToSlug(workDir, title, jobID string) string {
	safeName := Slug(title)
	if safeName == "" {
		return workDir
	}
	parent := filepath.Dir(workDir)

	idTag := jobID
	if len(idTag) > 6 {
		idTag = idTag[:6]
	}
	candidateName := func(attempt int) string {
		switch attempt {
		case 0:
			return safeName
		case 1:
			return safeName + "-" + idTag
		default:
			return fmt.Sprintf("%s-%s-%d", safeName, idTag, attempt-1)
		}
	}

	for attempt := 0; attempt < renameAttempts; attempt++ {
		candidate := filepath.Join(parent, candidateName(attempt))
		if candidate == workDir {
			return workDir
		}
		if _, err := os.Stat(candidate); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("stat rename candidate failed, keeping working directory name",
				logging.String("candidate", candidate), logging.Error(err))
			return workDir
		}
		if err := os.Rename(workDir, candidate); err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			m.logger.Warn("rename failed, keeping working directory name",
				logging.String("candidate", candidate), logging.Error(err))
			return workDir
		}
		return candidate
	}

	m.logger.Warn("no unique directory name found, keeping working directory name",
		logging.String("dir", workDir))
	return workDir
}

// buildManifest lists every file under dir as a path relative to the
// download root, in stable sorted order.
func (m *Manager) buildManifest(dir string) ([]string, error) {
	var manifest []string
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(m.root, path)
		if err != nil {
			return err
		}
		manifest = append(manifest, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(manifest)
	return manifest, nil
}

// RemoveJobFiles deletes a removed job's output directory and any manifest
// entries that live outside it. Paths that resolve outside the download
// root are refused rather than deleted.
func (m *Manager) RemoveJobFiles(outputDir string, manifest []string) error {
	var outputPrefix string
	if outputDir != "" {
		resolved, ok := m.resolveWithinRoot(outputDir)
		if ok {
			if err := os.RemoveAll(resolved); err != nil {
				return services.Wrap(services.ErrStorage, "remove job files", "delete output directory", err)
			}
		}
		outputPrefix = strings.TrimRight(outputDir, "/") + "/"
	}

	for _, rel := range manifest {
		if rel == "" {
			continue
		}
		if outputPrefix != "" && strings.HasPrefix(rel, outputPrefix) {
			continue // removed with the directory above
		}
		resolved, ok := m.resolveWithinRoot(rel)
		if !ok {
			continue
		}
		if err := os.Remove(resolved); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrStorage, "remove job files", "delete manifest entry", err)
		}
	}
	return nil
}

func (m *Manager) resolveWithinRoot(rel string) (string, bool) {
	rel = strings.TrimLeft(strings.TrimSpace(rel), "/\\")
	if rel == "" {
		return "", false
	}
	candidate := filepath.Clean(filepath.Join(m.root, rel))
	if candidate != m.root && !strings.HasPrefix(candidate, m.root+string(filepath.Separator)) {
		m.logger.Warn("refusing to touch path outside download root",
			logging.String("path", candidate))
		return "", false
	}
	return candidate, true
}
