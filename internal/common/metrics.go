package common

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"example.com/arinc665/internal/arinc665"
)

// Check names the validation step a failure is counted against.
type Check int

const (
	CheckRead Check = iota
	CheckFormat
	CheckCrc
	CheckValue
	CheckLength
	CheckReference
	numChecks
)

func (c Check) String() string {
	switch c {
	case CheckRead:
		return "read"
	case CheckFormat:
		return "format"
	case CheckCrc:
		return "crc"
	case CheckValue:
		return "checkValue"
	case CheckLength:
		return "length"
	case CheckReference:
		return "reference"
	}
	return "unknown"
}

// Checks lists every check in report order.
func Checks() []Check {
	return []Check{CheckRead, CheckFormat, CheckCrc, CheckValue, CheckLength, CheckReference}
}

// MediumProgress counts the files of one medium a validation pass has seen.
type MediumProgress struct {
	Medium arinc665.MediumNumber
	Files  int64
	Bytes  int64
	Failed int64
}

// Metrics tracks a validation run across all media. It is safe for use by
// the progress printer while the validator updates it.
type Metrics struct {
	mu         sync.Mutex
	start      time.Time
	end        time.Time
	totalBytes int64
	failures   [numChecks]int64
	media      map[arinc665.MediumNumber]*MediumProgress
}

func NewMetrics() *Metrics {
	return &Metrics{media: map[arinc665.MediumNumber]*MediumProgress{}}
}

func (m *Metrics) Start() {
	m.mu.Lock()
	if m.start.IsZero() {
		m.start = time.Now()
		m.end = time.Time{}
	}
	m.mu.Unlock()
}

func (m *Metrics) Stop() {
	m.mu.Lock()
	if !m.start.IsZero() && m.end.IsZero() {
		m.end = time.Now()
	}
	m.mu.Unlock()
}

func (m *Metrics) mediumLocked(n arinc665.MediumNumber) *MediumProgress {
	p, ok := m.media[n]
	if !ok {
		p = &MediumProgress{Medium: n}
		m.media[n] = p
	}
	return p
}

// AddFile records one file of size bytes read from medium n.
func (m *Metrics) AddFile(n arinc665.MediumNumber, size int64) {
	m.mu.Lock()
	p := m.mediumLocked(n)
	p.Files++
	if size > 0 {
		p.Bytes += size
	}
	m.mu.Unlock()
}

// Fail counts a failed check on medium n. Medium 0 is used for findings that
// span the whole media set.
func (m *Metrics) Fail(n arinc665.MediumNumber, c Check) {
	if c < 0 || c >= numChecks {
		c = CheckFormat
	}
	m.mu.Lock()
	m.failures[c]++
	if n.Valid() {
		m.mediumLocked(n).Failed++
	}
	m.mu.Unlock()
}

func (m *Metrics) SetTotalBytes(total int64) {
	if total < 0 {
		total = 0
	}
	m.mu.Lock()
	m.totalBytes = total
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := MetricsSnapshot{
		Duration:   m.elapsedLocked(),
		TotalBytes: m.totalBytes,
		Failures:   map[Check]int64{},
	}
	for c, n := range m.failures {
		if n > 0 {
			s.Failures[Check(c)] = n
		}
	}
	for _, p := range m.media {
		s.Media = append(s.Media, *p)
		s.Files += p.Files
		s.Bytes += p.Bytes
	}
	sort.Slice(s.Media, func(i, j int) bool { return s.Media[i].Medium < s.Media[j].Medium })
	return s
}

func (m *Metrics) elapsedLocked() time.Duration {
	if m.start.IsZero() {
		return 0
	}
	if !m.end.IsZero() {
		return m.end.Sub(m.start)
	}
	return time.Since(m.start)
}

type MetricsSnapshot struct {
	Duration   time.Duration
	Bytes      int64
	TotalBytes int64
	Files      int64
	Failures   map[Check]int64
	// Media is sorted by medium number.
	Media []MediumProgress
}

func (s MetricsSnapshot) TotalFailures() int64 {
	var n int64
	for _, v := range s.Failures {
		n += v
	}
	return n
}

func (s MetricsSnapshot) ThroughputBytesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Bytes) / s.Duration.Seconds()
}

// Completion is the share of TotalBytes read so far, clamped to [0, 1].
func (s MetricsSnapshot) Completion() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}
	return min(max(float64(s.Bytes)/float64(s.TotalBytes), 0), 1)
}

// FailureSummary renders the non-zero failure counters, e.g. "crc=1 format=2".
func (s MetricsSnapshot) FailureSummary() string {
	var parts []string
	for _, c := range Checks() {
		if n := s.Failures[c]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", c, n))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div := float64(unit)
	exp := 0
	for n := float64(b) / div; n >= unit && exp < 6; n /= unit {
		div *= unit
		exp++
	}
	prefixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	return fmt.Sprintf("%.2f %s", float64(b)/div, prefixes[exp])
}

// formatProgressLine shows overall completion and the medium read last.
func formatProgressLine(s MetricsSnapshot) string {
	var b strings.Builder
	if s.TotalBytes > 0 {
		fmt.Fprintf(&b, "Validating: %6.2f%% (%s / %s)", s.Completion()*100, FormatBytes(s.Bytes), FormatBytes(s.TotalBytes))
	} else {
		fmt.Fprintf(&b, "Validating: %s", FormatBytes(s.Bytes))
	}
	if n := len(s.Media); n > 0 {
		p := s.Media[n-1]
		fmt.Fprintf(&b, " medium %s: %d files", p.Medium, p.Files)
	}
	fmt.Fprintf(&b, ", %d files, %d failed", s.Files, s.TotalFailures())
	return b.String()
}

// WriteMediaSummary prints one line per medium followed by the failure
// counters.
func WriteMediaSummary(w io.Writer, s MetricsSnapshot) {
	for _, p := range s.Media {
		fmt.Fprintf(w, "Medium %s: %d files, %s, %d failed\n", p.Medium, p.Files, FormatBytes(p.Bytes), p.Failed)
	}
	fmt.Fprintf(w, "Failures: %s\n", s.FailureSummary())
}

func StartProgressPrinter(w io.Writer, m *Metrics, interval time.Duration) func() {
	if m == nil || w == nil {
		return func() {}
	}
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastLen := 0
		for {
			select {
			case <-ticker.C:
				line := formatProgressLine(m.Snapshot())
				if pad := lastLen - len(line); pad > 0 {
					line += strings.Repeat(" ", pad)
				}
				fmt.Fprintf(w, "\r%s", line)
				lastLen = len(line)
			case <-done:
				if lastLen > 0 {
					fmt.Fprintf(w, "\r%s\r\n", strings.Repeat(" ", lastLen))
				}
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
