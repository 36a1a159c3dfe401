package compiler

import (
	"fmt"
	"os"
	"sort"

	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/media"
)

// Memory keeps media in memory. It is both a Sink and a Source; Sources maps
// media set paths to the contents CopyFile places on the media.
type Memory struct {
	Sources map[string][]byte
	media   map[arinc665.MediumNumber]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{Sources: map[string][]byte{}, media: map[arinc665.MediumNumber]map[string][]byte{}}
}

func (m *Memory) CreateMedium(n arinc665.MediumNumber) error {
	if _, ok := m.media[n]; ok {
		return fmt.Errorf("medium %s already exists", n)
	}
	m.media[n] = map[string][]byte{}
	return nil
}

func (m *Memory) CreateDirectory(n arinc665.MediumNumber, path string) error {
	if _, ok := m.media[n]; !ok {
		return fmt.Errorf("medium %s: %w", n, os.ErrNotExist)
	}
	return nil
}

func (m *Memory) FileExists(f media.File) bool {
	_, ok := m.Sources[f.Path()]
	return ok
}

func (m *Memory) CopyFile(f media.File) error {
	b, ok := m.Sources[f.Path()]
	if !ok {
		return fmt.Errorf("%s: %w", f.Path(), os.ErrNotExist)
	}
	return m.WriteFile(f.Medium(), f.Path(), b)
}

func (m *Memory) WriteFile(n arinc665.MediumNumber, path string, data []byte) error {
	files, ok := m.media[n]
	if !ok {
		files = map[string][]byte{}
		m.media[n] = files
	}
	files[path] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) ReadFile(n arinc665.MediumNumber, path string) ([]byte, error) {
	b, ok := m.media[n][path]
	if !ok {
		return nil, fmt.Errorf("medium %s %s: %w", n, path, os.ErrNotExist)
	}
	return b, nil
}

func (m *Memory) FileSize(n arinc665.MediumNumber, path string) (int64, error) {
	b, err := m.ReadFile(n, path)
	return int64(len(b)), err
}

// Paths lists the files stored on medium n in sorted order.
func (m *Memory) Paths(n arinc665.MediumNumber) []string {
	var out []string
	for p := range m.media[n] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
