package validate

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"example.com/arinc665/internal/arinc665"
)

type Severity string

const (
	ERROR Severity = "ERROR"
	WARN  Severity = "WARN"
	INFO  Severity = "INFO"
)

type Diagnostic struct {
	Ts       time.Time `json:"ts"`
	Medium   int       `json:"medium,omitempty"`
	File     string    `json:"file"`
	FileKind string    `json:"fileKind"`
	Check    string    `json:"check"`
	Failure  string    `json:"failure,omitempty"`
	ErrKind  string    `json:"errKind,omitempty"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
}

// MediaSetInfo identifies the validated media set in an acceptance report.
type MediaSetInfo struct {
	PartNumber string `json:"partNumber"`
	Media      int    `json:"media"`
	Version    string `json:"version,omitempty"`
}

type AcceptanceReport struct {
	MediaSet *MediaSetInfo `json:"mediaSet,omitempty"`
	Summary  struct {
		Total             int  `json:"total"`
		Errors            int  `json:"errors"`
		Warnings          int  `json:"warnings"`
		ChecksumFailures  int  `json:"checksumFailures"`
		IntegrityFailures int  `json:"integrityFailures"`
		Pass              bool `json:"pass"`
	} `json:"summary"`
	GateMatrix []map[string]any `json:"gateMatrix"`
	Findings   []Diagnostic     `json:"findings,omitempty"`
}

// Collector turns FileResults into diagnostics. Its Add method can be passed
// to Validate as the InformationFunc.
type Collector struct {
	mu          sync.Mutex
	diagnostics []Diagnostic
	mediaSet    *MediaSetInfo
	now         func() time.Time
}

// SetMediaSet records the media set the collected results belong to.
func (c *Collector) SetMediaSet(info MediaSetInfo) {
	c.mu.Lock()
	c.mediaSet = &info
	c.mu.Unlock()
}

func NewCollector() *Collector {
	return &Collector{now: func() time.Time { return time.Now().UTC() }}
}

func (c *Collector) Add(r FileResult) {
	d := Diagnostic{
		Ts:       c.now(),
		Medium:   r.Medium.Int(),
		File:     r.Path,
		FileKind: r.FileKind.String(),
		Check:    r.Kind.String(),
		Severity: INFO,
		Message:  "ok",
	}
	if !r.Passed {
		d.Severity = ERROR
		d.Failure = CheckOf(r.Err).String()
		if r.Err != nil {
			d.Message = r.Err.Error()
			if k := arinc665.KindOf(r.Err); k != arinc665.KindUnknown {
				d.ErrKind = k.String()
			}
		} else {
			d.Message = "failed"
		}
	}
	c.mu.Lock()
	c.diagnostics = append(c.diagnostics, d)
	c.mu.Unlock()
}

func (c *Collector) Diagnostics() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Diagnostic(nil), c.diagnostics...)
}

func (c *Collector) WriteDiagnosticsNDJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, d := range c.Diagnostics() {
		b, err := json.Marshal(d)
		if err != nil {
			return err
		}
		w.Write(b)
		w.WriteString("\n")
	}
	return w.Flush()
}

// MakeAcceptance summarizes the collected diagnostics. The gate matrix has
// one row per check with its pass/fail counts.
func (c *Collector) MakeAcceptance() AcceptanceReport {
	var rep AcceptanceReport
	if c.mediaSet != nil {
		info := *c.mediaSet
		rep.MediaSet = &info
	}
	diags := c.Diagnostics()
	type gate struct{ passed, failed int }
	gates := map[string]*gate{}
	order := []string{}
	var errs, warns int
	for _, d := range diags {
		g, ok := gates[d.Check]
		if !ok {
			g = &gate{}
			gates[d.Check] = g
			order = append(order, d.Check)
		}
		switch d.Severity {
		case ERROR:
			errs++
			g.failed++
			if d.Check == IntegrityFinding.String() {
				rep.Summary.IntegrityFailures++
			} else {
				rep.Summary.ChecksumFailures++
			}
		case WARN:
			warns++
		default:
			g.passed++
		}
	}
	for _, name := range order {
		g := gates[name]
		rep.GateMatrix = append(rep.GateMatrix, map[string]any{
			"check":  name,
			"passed": g.passed,
			"failed": g.failed,
			"pass":   g.failed == 0,
		})
	}
	rep.Summary.Total = len(diags)
	rep.Summary.Errors = errs
	rep.Summary.Warnings = warns
	rep.Summary.Pass = errs == 0
	rep.Findings = diags
	return rep
}
