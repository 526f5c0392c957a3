package export

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/derickschaefer/sonarboard/internal/model"
)

// writeFunc materialises content at path.
type writeFunc func(path string, content []byte) error

// Write paths tried by Download, in order.
var (
	primaryWrite   writeFunc = writeViaTemp
	alternateWrite writeFunc = writeDirect
)

// Download writes a into dir under a.Name and returns the final path.
// The primary path stages the content in a temporary file that is always
// closed and removed afterwards; if it fails, a direct write is tried before
// the error is returned.
func Download(a *model.Artifact, dir string) (string, error) {
	if a == nil {
		return "", ErrNoSnapshot
	}
	name := filepath.Base(a.Name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "", fmt.Errorf("download: invalid file name %q", a.Name)
	}
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, name)

	err := primaryWrite(path, a.Content)
	if err == nil {
		return path, nil
	}
	slog.Debug("primary download path failed, trying direct write", "path", path, "error", err)

	if altErr := alternateWrite(path, a.Content); altErr != nil {
		return "", fmt.Errorf("download %s: %w", name, errors.Join(err, altErr))
	}
	return path, nil
}

// writeViaTemp writes to a temp file beside path and renames it into place.
func writeViaTemp(path string, content []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".sonarboard-*.part")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	closed := false
	defer func() {
		if !closed {
			_ = tmp.Close()
		}
		// After a successful rename there is nothing left to remove.
		if rmErr := os.Remove(tmpName); rmErr != nil && !os.IsNotExist(rmErr) {
			slog.Debug("removing temp file", "path", tmpName, "error", rmErr)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	closed = true
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

func writeDirect(path string, content []byte) error {
	return os.WriteFile(path, content, 0644)
}
