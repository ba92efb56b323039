// Package notebook repairs the widget metadata of Jupyter notebooks so that
// renderers which require a "state" key on every widget accept them.
package notebook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"
)

// BackupLayout is the UTC timestamp appended to backup file names.
const BackupLayout = "20060102T150405Z"

// Status is the outcome of processing one notebook.
type Status string

const (
	StatusChanged   Status = "changed"
	StatusUnchanged Status = "unchanged"
	StatusNoWidgets Status = "no_widgets"
	StatusFailed    Status = "failed"
)

// widgetKeys mark a JSON object as a widget entry.
var widgetKeys = []string{"model_module", "model_name", "model_module_version", "_model_name", "_model_module"}

// Result reports what happened to one notebook.
type Result struct {
	Path   string
	Backup string
	Status Status
	Err    error
}

// Fixer processes notebooks in place.
type Fixer struct {
	// Remove deletes metadata.widgets instead of adding missing state keys.
	Remove bool

	clock  clockwork.Clock
	logger *slog.Logger
}

// NewFixer creates a fixer.
func NewFixer(remove bool, clock clockwork.Clock, logger *slog.Logger) *Fixer {
	return &Fixer{Remove: remove, clock: clock, logger: logger}
}

// ProcessAll processes every path and reports whether all of them succeeded.
func (f *Fixer) ProcessAll(paths []string) ([]Result, bool) {
	results := make([]Result, 0, len(paths))
	ok := true
	for _, p := range paths {
		r := f.Process(p)
		if r.Status == StatusFailed {
			ok = false
		}
		results = append(results, r)
	}
	return results, ok
}

// Process backs up path and then rewrites it when its widget metadata changes.
func (f *Fixer) Process(path string) Result {
	res := Result{Path: path}
	fail := func(err error) Result {
		res.Status = StatusFailed
		res.Err = err
		f.logger.Error("notebook failed", "path", path, "error", err)
		return res
	}

	info, err := os.Stat(path)
	if err != nil {
		return fail(fmt.Errorf("notebook: %w", err))
	}

	backup, err := f.backup(path, info)
	if err != nil {
		return fail(err)
	}
	res.Backup = backup
	f.logger.Info("backup written", "path", path, "backup", backup)

	data, err := os.ReadFile(path)
	if err != nil {
		return fail(fmt.Errorf("notebook: read %s: %w", path, err))
	}
	nb, err := decode(data)
	if err != nil {
		return fail(fmt.Errorf("notebook: parse %s: %w", path, err))
	}

	changed, present := Fix(nb, f.Remove)
	switch {
	case !present:
		res.Status = StatusNoWidgets
		f.logger.Info("metadata.widgets not present, nothing to change", "path", path)
		return res
	case !changed:
		res.Status = StatusUnchanged
		f.logger.Info("no missing state entries found", "path", path)
		return res
	}

	out, err := Encode(nb)
	if err != nil {
		return fail(fmt.Errorf("notebook: encode %s: %w", path, err))
	}
	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return fail(fmt.Errorf("notebook: write %s: %w", path, err))
	}
	res.Status = StatusChanged
	if f.Remove {
		f.logger.Info("metadata.widgets removed", "path", path)
	} else {
		f.logger.Info("added missing state entries", "path", path)
	}
	return res
}

// Fix edits nb in place. present is false when nb has no metadata.widgets.
func Fix(nb map[string]any, remove bool) (changed, present bool) {
	meta, ok := nb["metadata"].(map[string]any)
	if !ok {
		return false, false
	}
	widgets, ok := meta["widgets"]
	if !ok {
		return false, false
	}
	if remove {
		delete(meta, "widgets")
		return true, true
	}
	return ensureState(widgets), true
}

// ensureState adds "state": {} to every nested widget object lacking one.
func ensureState(v any) bool {
	changed := false
	switch t := v.(type) {
	case map[string]any:
		if _, has := t["state"]; !has && isWidget(t) {
			t["state"] = map[string]any{}
			changed = true
		}
		for _, child := range t {
			if ensureState(child) {
				changed = true
			}
		}
	case []any:
		for _, child := range t {
			if ensureState(child) {
				changed = true
			}
		}
	}
	return changed
}

func isWidget(obj map[string]any) bool {
	for _, k := range widgetKeys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

func decode(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var nb map[string]any
	if err := dec.Decode(&nb); err != nil {
		return nil, err
	}
	if nb == nil {
		return nil, fmt.Errorf("not a JSON object")
	}
	return nb, nil
}

// Encode renders a notebook with sorted keys, a one-space indent, unescaped
// HTML characters and a trailing newline.
func Encode(nb map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", " ")
	if err := enc.Encode(nb); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// backup copies path to "<path>.backup.<UTC timestamp>" keeping its mode and
// modification time.
func (f *Fixer) backup(path string, info os.FileInfo) (string, error) {
	dest := path + ".backup." + f.clock.Now().UTC().Format(BackupLayout)

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("notebook: backup %s: %w", path, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return "", fmt.Errorf("notebook: backup %s: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("notebook: backup %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("notebook: backup %s: %w", path, err)
	}
	if err := os.Chmod(dest, info.Mode().Perm()); err != nil {
		return "", fmt.Errorf("notebook: backup %s: %w", path, err)
	}
	if err := os.Chtimes(dest, info.ModTime(), info.ModTime()); err != nil {
		return "", fmt.Errorf("notebook: backup %s: %w", path, err)
	}
	return dest, nil
}
