// Package persist implements the write-temp-then-rename atomic file
// persistence pattern used across the core's on-disk state:
// mileage.json, vehicle_headings.json, and any other full-file JSON
// snapshot. Temp names include the process PID and a process-wide
// monotonic counter so multiple writers in the same process never
// collide, and every configured data directory receives the write.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var tmpCounter int64

func nextTmpSuffix() string {
	n := atomic.AddInt64(&tmpCounter, 1)
	return fmt.Sprintf(".%d.%d.tmp", os.Getpid(), n)
}

// WriteJSONAll marshals v and writes it to name under every dir in dirs,
// using write-temp-then-rename in each directory. A failure in one
// directory is logged and does not abort the write to the others.
func WriteJSONAll(dirs []string, name string, v interface{}, log zerolog.Logger) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: marshal %s: %w", name, err)
	}

	var lastErr error
	wrote := 0
	for _, dir := range dirs {
		if err := writeOne(dir, name, body); err != nil {
			log.Error().Err(err).Str("dir", dir).Str("file", name).Msg("atomic write failed for one data directory")
			lastErr = err
			continue
		}
		wrote++
	}
	if wrote == 0 {
		return fmt.Errorf("persist: failed to write %s to any of %d data directories: %w", name, len(dirs), lastErr)
	}
	return nil
}

func writeOne(dir, name string, body []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	target := filepath.Join(dir, name)
	tmp := target + nextTmpSuffix()

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, target)
}

// ReadJSONFirst reads name from the first directory in dirs where it is
// present and parses it into v. Returns false if no directory has the file.
func ReadJSONFirst(dirs []string, name string, v interface{}) (found bool, err error) {
	for _, dir := range dirs {
		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return false, err
		}
		if err := json.Unmarshal(body, v); err != nil {
			return false, fmt.Errorf("persist: parsing %s in %s: %w", name, dir, err)
		}
		return true, nil
	}
	return false, nil
}
