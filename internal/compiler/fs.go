package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/media"
)

// MediumDir returns the directory name of medium m, e.g. "MEDIUM_001".
func MediumDir(m arinc665.MediumNumber) string {
	return fmt.Sprintf("MEDIUM_%s", m)
}

func mediumPath(root string, m arinc665.MediumNumber, path string) string {
	return filepath.Join(root, MediumDir(m), filepath.FromSlash(strings.TrimPrefix(path, "/")))
}

// DirSink writes media below Root. Regular files, and load headers or batch
// files that are not generated, are copied from SourceDir using their media
// set path.
type DirSink struct {
	Root      string
	SourceDir string
}

func (s *DirSink) CreateMedium(m arinc665.MediumNumber) error {
	dir := filepath.Join(s.Root, MediumDir(m))
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("%s already exists", dir)
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *DirSink) CreateDirectory(m arinc665.MediumNumber, path string) error {
	return os.MkdirAll(mediumPath(s.Root, m, path), 0o755)
}

func (s *DirSink) sourcePath(f media.File) string {
	return filepath.Join(s.SourceDir, filepath.FromSlash(strings.TrimPrefix(f.Path(), "/")))
}

func (s *DirSink) FileExists(f media.File) bool {
	st, err := os.Stat(s.sourcePath(f))
	return err == nil && st.Mode().IsRegular()
}

func (s *DirSink) CopyFile(f media.File) error {
	b, err := os.ReadFile(s.sourcePath(f))
	if err != nil {
		return err
	}
	return s.WriteFile(f.Medium(), f.Path(), b)
}

func (s *DirSink) WriteFile(m arinc665.MediumNumber, path string, data []byte) error {
	p := mediumPath(s.Root, m, path)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func (s *DirSink) ReadFile(m arinc665.MediumNumber, path string) ([]byte, error) {
	return os.ReadFile(mediumPath(s.Root, m, path))
}

// DirSource reads media laid out by DirSink.
type DirSource struct {
	Root string
}

func (s *DirSource) FileSize(m arinc665.MediumNumber, path string) (int64, error) {
	st, err := os.Stat(mediumPath(s.Root, m, path))
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

func (s *DirSource) ReadFile(m arinc665.MediumNumber, path string) ([]byte, error) {
	return os.ReadFile(mediumPath(s.Root, m, path))
}

// Media lists the medium numbers that have a directory below Root.
func (s *DirSource) Media() ([]arinc665.MediumNumber, error) {
	ents, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, err
	}
	var out []arinc665.MediumNumber
	for _, e := range ents {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "MEDIUM_") {
			continue
		}
		n, err := arinc665.ParseMediumNumber(strings.TrimPrefix(e.Name(), "MEDIUM_"))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}
