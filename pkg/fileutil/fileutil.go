// Package fileutil implements file utilities.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mesh-lab/mesh-runner/pkg/randutil"
)

// WriteTempFile writes data to a temporary file.
func WriteTempFile(d []byte) (path string, err error) {
	var f *os.File
	f, err = os.CreateTemp(os.TempDir(), fmt.Sprintf("%X", time.Now().UnixNano()))
	if err != nil {
		return "", err
	}
	path = f.Name()
	_, err = f.Write(d)
	f.Close()
	return path, err
}

// GetTempFilePath creates a file path to a temporary file that does not exist yet.
func GetTempFilePath() (path string) {
	f, err := os.CreateTemp(os.TempDir(), fmt.Sprintf("%x", time.Now().UnixNano()))
	if err != nil {
		return filepath.Join(os.TempDir(), fmt.Sprintf("%x%s", time.Now().UnixNano(), randutil.String(5)))
	}
	path = f.Name()
	f.Close()
	os.RemoveAll(path)
	return path
}

// Exist returns true if a file or directory exists.
func Exist(name string) bool {
	if name == "" {
		return false
	}
	_, err := os.Stat(name)
	return err == nil
}

// IsDirWriteable checks if dir is writable by writing and removing a file.
func IsDirWriteable(dir string) error {
	f := filepath.Join(dir, ".touch")
	if err := os.WriteFile(f, []byte(""), 0600); err != nil {
		return err
	}
	return os.RemoveAll(f)
}

// EnsureExecutable sets executable file mode bits.
func EnsureExecutable(p string) error {
	s, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("error doing stat on %q (%v)", p, err)
	}
	m := s.Mode()
	if m&(0111) == 0 {
		if err := os.Chmod(p, m|0111); err != nil {
			return fmt.Errorf("error changing mode for %q (%v)", p, err)
		}
	}
	return nil
}
