package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var thumbnailExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
	".gif":  {},
}

func isThumbnail(name string) bool {
	_, ok := thumbnailExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// dedupeThumbnailFiles removes on-disk thumbnail duplicates inside dir,
// keyed by file content rather than filename: the tool may emit the same
// image under several names. The lexically first name per content hash is
// kept; the rest are deleted. Returns the surviving thumbnail names.
func dedupeThumbnailFiles(dir string, names []string) ([]string, error) {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	seen := make(map[string]struct{})
	var kept []string
	for _, name := range sorted {
		if !isThumbnail(name) {
			kept = append(kept, name)
			continue
		}
		digest, err := hashFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if _, dup := seen[digest]; dup {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				return nil, err
			}
			continue
		}
		seen[digest] = struct{}{}
		kept = append(kept, name)
	}
	return kept, nil
}

// dedupeMetadataThumbnails removes duplicate thumbnail entries in-place
// throughout the tool metadata, keyed by (id, url). The tool reports the
// same logical image at several resolutions and in nested entries.
func dedupeMetadataThumbnails(node any) {
	switch value := node.(type) {
	case map[string]any:
		if thumbs, ok := value["thumbnails"].([]any); ok {
			value["thumbnails"] = dedupeThumbnailEntries(thumbs)
		}
		for _, child := range value {
			dedupeMetadataThumbnails(child)
		}
	case []any:
		for _, child := range value {
			dedupeMetadataThumbnails(child)
		}
	}
}

func dedupeThumbnailEntries(entries []any) []any {
	type key struct {
		id  string
		url string
	}
	seen := make(map[key]struct{}, len(entries))
	deduped := make([]any, 0, len(entries))
	for _, entry := range entries {
		var k key
		if item, ok := entry.(map[string]any); ok {
			k.id, _ = item["id"].(string)
			k.url, _ = item["url"].(string)
		} else {
			k.url, _ = entry.(string)
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		deduped = append(deduped, entry)
	}
	return deduped
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
