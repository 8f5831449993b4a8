// Package workspace persists model-generated files into a single directory,
// recording each save in the store. Filenames are reduced to their base name
// so a save request can never escape the workspace.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"clawbot/pkg/logx"
)

// FileLog records saved files durably; satisfied by the store.
type FileLog interface {
	LogFile(ctx context.Context, filename, description string) error
}

type FileInfo struct {
	Name     string
	Size     int64
	Modified time.Time
}

type Workspace struct {
	path string
	flog FileLog
	log  logx.Logger
}

func New(path string, flog FileLog, log logx.Logger) (*Workspace, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}
	return &Workspace{path: path, flog: flog, log: log}, nil
}

// Save writes content under the sanitized base name, renaming to name_N.ext
// on collision so existing files are never overwritten. Returns the final path.
func (w *Workspace) Save(ctx context.Context, filename, content string) (string, error) {
	safeName := filepath.Base(strings.TrimSpace(filename))
	if safeName == "" || safeName == "." || safeName == string(filepath.Separator) {
		safeName = "untitled.txt"
	}

	target := filepath.Join(w.path, safeName)
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(safeName)
		stem := strings.TrimSuffix(safeName, ext)
		for counter := 1; ; counter++ {
			candidate := filepath.Join(w.path, fmt.Sprintf("%s_%d%s", stem, counter, ext))
			if _, err := os.Stat(candidate); os.IsNotExist(err) {
				target = candidate
				break
			}
		}
	}

	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", target, err)
	}

	finalName := filepath.Base(target)
	if w.flog != nil {
		if err := w.flog.LogFile(ctx, finalName, "Generated file: "+safeName); err != nil {
			w.log.Warn("failed to record workspace file", logx.String("file", finalName), logx.Err(err))
		}
	}

	w.log.Info("saved file", logx.String("path", target))
	return target, nil
}

// List returns the workspace's regular files sorted by name.
func (w *Workspace) List() []FileInfo {
	entries, err := os.ReadDir(w.path)
	if err != nil {
		return nil
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{Name: e.Name(), Size: fi.Size(), Modified: fi.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files
}

// Read returns a workspace file's content by base name.
func (w *Workspace) Read(filename string) (string, bool) {
	safeName := filepath.Base(filename)
	b, err := os.ReadFile(filepath.Join(w.path, safeName))
	if err != nil {
		return "", false
	}
	return string(b), true
}

func (w *Workspace) Path() string { return w.path }
