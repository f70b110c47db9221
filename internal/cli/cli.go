// Package cli holds the pieces shared by the cfimport and cfindex commands:
// config resolution, console output, confirmation prompts and host-local locks.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/climateseal/carbonmatch/internal/config"
)

// LoadConfig reads path when set, otherwise config/<ENV>.yaml.
func LoadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load(config.GetEnv())
}

// Confirm asks a yes/no question on out and reads the answer from in.
// Only "y" and "yes" (any case) confirm; EOF counts as no.
func Confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// LockPath returns the lock file guarding imports into index. dir defaults to the OS temp dir.
func LockPath(dir, index string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "cfimport-"+index+".lock")
}

// AcquireLock takes an exclusive file lock at path, polling until timeout.
// The returned func releases it and is safe to call when acquisition failed.
func AcquireLock(path string, timeout time.Duration) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return func() {}, fmt.Errorf("create lock dir: %w", err)
	}
	l := flock.New(path)
	deadline := time.Now().Add(timeout)
	for {
		locked, err := l.TryLock()
		if err != nil {
			return func() {}, fmt.Errorf("cannot acquire import lock: %w", err)
		}
		if locked {
			return func() { _ = l.Unlock() }, nil
		}
		if time.Now().After(deadline) {
			return func() {}, fmt.Errorf("another import into this index is in progress (lock: %s)", path)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
