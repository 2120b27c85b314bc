package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"hoist/internal/logging"
	"hoist/internal/services/ytdlp"
	"hoist/internal/testsupport"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(t.TempDir(), logging.NewNop())
}

func TestSlug(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Plain Title", "Plain_Title"},
		{"  padded  ", "padded"},
		{"slash/colon: pipe|", "slash_colon__pipe"},
		{"keep (parens) and-dash.ext", "keep_(parens)_and-dash.ext"},
		{"Ｆｕｌｌｗｉｄｔｈ", "Fullwidth"},
		{"Привет мир", "Привет_мир"},
		{"日本語のタイトル", "日本語のタイトル"},
		{"Épisode 1 — finale", "Épisode_1___finale"},
		{"...", ""},
		{"", ""},
		{"///", ""},
	}
	for _, tc := range cases {
		if got := Slug(tc.in); got != tc.want {
			t.Errorf("Slug(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSlugTruncatesLongTitles(t *testing.T) {
	long := ""
	for i := 0; i < 40; i++ {
		long += "abcdefgh "
	}
	slug := Slug(long)
	if len(slug) == 0 || len(slug) > maxSlugLength {
		t.Fatalf("len(slug) = %d, want 1..%d", len(slug), maxSlugLength)
	}
}

func TestSlugTruncationKeepsRuneBoundaries(t *testing.T) {
	slug := Slug(strings.Repeat("日本語のタイトル", 40))
	if len(slug) == 0 || len(slug) > maxSlugLength {
		t.Fatalf("len(slug) = %d, want 1..%d", len(slug), maxSlugLength)
	}
	if !utf8.ValidString(slug) {
		t.Fatalf("slug splits a rune: %q", slug)
	}
}

func TestDedupeThumbnailFilesByContent(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "b.jpg"), []byte("same"))
	testsupport.WriteFile(t, filepath.Join(dir, "a.jpg"), []byte("same"))
	testsupport.WriteFile(t, filepath.Join(dir, "c.png"), []byte("other"))
	testsupport.WriteFile(t, filepath.Join(dir, "video.mkv"), []byte("not a thumbnail"))

	kept, err := dedupeThumbnailFiles(dir, []string{"b.jpg", "a.jpg", "c.png", "video.mkv"})
	if err != nil {
		t.Fatalf("dedupeThumbnailFiles: %v", err)
	}
	want := []string{"a.jpg", "c.png", "video.mkv"}
	if !reflect.DeepEqual(kept, want) {
		t.Fatalf("kept = %v, want %v", kept, want)
	}
	if _, err := os.Stat(filepath.Join(dir, "b.jpg")); !os.IsNotExist(err) {
		t.Fatal("duplicate b.jpg should be deleted")
	}
	if _, err := os.Stat(filepath.Join(dir, "a.jpg")); err != nil {
		t.Fatalf("survivor a.jpg missing: %v", err)
	}
}

func TestDedupeMetadataThumbnails(t *testing.T) {
	metadata := map[string]any{
		"thumbnails": []any{
			map[string]any{"id": "0", "url": "https://example.com/t0"},
			map[string]any{"id": "0", "url": "https://example.com/t0"},
			map[string]any{"id": "1", "url": "https://example.com/t1"},
		},
		"entries": []any{
			map[string]any{
				"thumbnails": []any{"https://example.com/t2", "https://example.com/t2"},
			},
		},
	}

	dedupeMetadataThumbnails(metadata)

	top := metadata["thumbnails"].([]any)
	if len(top) != 2 {
		t.Fatalf("top-level thumbnails = %d, want 2", len(top))
	}
	nested := metadata["entries"].([]any)[0].(map[string]any)["thumbnails"].([]any)
	if len(nested) != 1 {
		t.Fatalf("nested thumbnails = %d, want 1", len(nested))
	}
}

func TestPrepareClearsLeftoverDirectory(t *testing.T) {
	manager := newManager(t)

	stale := filepath.Join(manager.Root(), "job1", "partial.mkv")
	testsupport.WriteFile(t, stale, []byte("leftover"))

	workDir, err := manager.Prepare("job1")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if workDir != filepath.Join(manager.Root(), "job1") {
		t.Fatalf("workDir = %s", workDir)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("leftover file should be removed")
	}
}

func TestFinalizePublishesOutput(t *testing.T) {
	manager := newManager(t)

	workDir, err := manager.Prepare("abcdef123456")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	testsupport.WriteFile(t, filepath.Join(workDir, "video.mkv"), []byte("video"))
	testsupport.WriteFile(t, filepath.Join(workDir, "thumb.jpg"), []byte("thumb"))

	res := &ytdlp.Result{
		Title:       "My Clip: Part 1",
		Description: "A description.",
		Metadata:    map[string]any{"id": "clip1", "title": "My Clip: Part 1"},
		Files:       []string{"video.mkv", "thumb.jpg"},
	}

	final, err := manager.Finalize(workDir, "abcdef123456", res)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if final.OutputDir != "My_Clip__Part_1" {
		t.Fatalf("output dir = %s", final.OutputDir)
	}
	if final.MetadataPath != filepath.Join(final.OutputDir, "metadata.json") {
		t.Fatalf("metadata path = %s", final.MetadataPath)
	}
	if final.DescriptionPath != filepath.Join(final.OutputDir, "description.txt") {
		t.Fatalf("description path = %s", final.DescriptionPath)
	}

	want := []string{
		filepath.Join(final.OutputDir, "description.txt"),
		filepath.Join(final.OutputDir, "metadata.json"),
		filepath.Join(final.OutputDir, "thumb.jpg"),
		filepath.Join(final.OutputDir, "video.mkv"),
	}
	if !reflect.DeepEqual(final.Manifest, want) {
		t.Fatalf("manifest = %v, want %v", final.Manifest, want)
	}

	raw, err := os.ReadFile(filepath.Join(manager.Root(), final.MetadataPath))
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if decoded["id"] != "clip1" {
		t.Fatalf("metadata id = %v", decoded["id"])
	}
}

func TestFinalizeOmitsEmptyDescription(t *testing.T) {
	manager := newManager(t)

	workDir, err := manager.Prepare("job2")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	testsupport.WriteFile(t, filepath.Join(workDir, "video.mkv"), []byte("video"))

	final, err := manager.Finalize(workDir, "job2", &ytdlp.Result{
		Title:       "Quiet",
		Description: "  \n ",
		Metadata:    map[string]any{"id": "q"},
		Files:       []string{"video.mkv"},
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if final.DescriptionPath != "" {
		t.Fatalf("description path = %s, want empty", final.DescriptionPath)
	}
	if _, err := os.Stat(filepath.Join(manager.Root(), final.OutputDir, "description.txt")); !os.IsNotExist(err) {
		t.Fatal("description.txt should not exist")
	}
}

func TestFinalizeDisambiguatesSlugCollisions(t *testing.T) {
	manager := newManager(t)

	if err := os.MkdirAll(filepath.Join(manager.Root(), "Clip"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	workDir, err := manager.Prepare("abcdef999")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	final, err := manager.Finalize(workDir, "abcdef999", &ytdlp.Result{
		Title:    "Clip",
		Metadata: map[string]any{},
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if final.OutputDir != "Clip-abcdef" {
		t.Fatalf("output dir = %s, want Clip-abcdef", final.OutputDir)
	}
}

func TestFinalizeKeepsWorkDirWhenTitleUnusable(t *testing.T) {
	manager := newManager(t)

	workDir, err := manager.Prepare("fallbackjob")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	final, err := manager.Finalize(workDir, "fallbackjob", &ytdlp.Result{
		Title:    "///",
		Metadata: map[string]any{},
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if final.OutputDir != "fallbackjob" {
		t.Fatalf("output dir = %s, want fallbackjob", final.OutputDir)
	}
}

func TestRemoveJobFiles(t *testing.T) {
	manager := newManager(t)

	testsupport.WriteFile(t, filepath.Join(manager.Root(), "Clip", "video.mp4"), []byte("v"))
	testsupport.WriteFile(t, filepath.Join(manager.Root(), "stray.txt"), []byte("s"))
	testsupport.WriteFile(t, filepath.Join(manager.Root(), "other", "keep.txt"), []byte("k"))

	err := manager.RemoveJobFiles("Clip", []string{
		"Clip/video.mp4",
		"stray.txt",
		"../escape.txt",
	})
	if err != nil {
		t.Fatalf("RemoveJobFiles: %v", err)
	}

	if _, err := os.Stat(filepath.Join(manager.Root(), "Clip")); !os.IsNotExist(err) {
		t.Fatal("output directory should be removed")
	}
	if _, err := os.Stat(filepath.Join(manager.Root(), "stray.txt")); !os.IsNotExist(err) {
		t.Fatal("stray manifest entry should be removed")
	}
	if _, err := os.Stat(filepath.Join(manager.Root(), "other", "keep.txt")); err != nil {
		t.Fatalf("unrelated file should survive: %v", err)
	}
}

func TestRemoveJobFilesRefusesEscapingOutputDir(t *testing.T) {
	manager := newManager(t)

	outside := filepath.Join(filepath.Dir(manager.Root()), "outside")
	testsupport.WriteFile(t, filepath.Join(outside, "victim.txt"), []byte("v"))

	if err := manager.RemoveJobFiles("../outside", nil); err != nil {
		t.Fatalf("RemoveJobFiles: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outside, "victim.txt")); err != nil {
		t.Fatalf("path outside root must not be deleted: %v", err)
	}
}
