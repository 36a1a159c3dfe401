package compiler

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/checkvalue"
	"example.com/arinc665/internal/common"
	"example.com/arinc665/internal/media"
	"example.com/arinc665/internal/validate"
)

var sources = map[string][]byte{
	"/LOAD/APP1.BIN": []byte("application image one"),
	"/LOAD/APP2.BIN": []byte("cfg"),
}

// newMediaSet builds two media with a load on medium 1 (data file on medium 1,
// support file on medium 2) and a batch on medium 2.
func newMediaSet(t *testing.T, pn string) *media.MediaSet {
	t.Helper()
	ms := media.New(pn)
	if _, err := ms.AddMedium(); err != nil {
		t.Fatalf("AddMedium: %v", err)
	}
	dir, err := ms.AddDirectory(ms.Root(), "LOAD")
	if err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}
	app1, err := ms.AddFile(dir, "APP1.BIN", 1)
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	app2, err := ms.AddFile(dir, "APP2.BIN", 2)
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	load, err := ms.AddLoad(ms.Root(), "APP.LUH", 1)
	if err != nil {
		t.Fatalf("AddLoad: %v", err)
	}
	load.SetPartNumber("PN127ABCDEFGH")
	if err := load.AddTargetHardwareID("ABCD1234"); err != nil {
		t.Fatalf("AddTargetHardwareID: %v", err)
	}
	if err := load.AddDataFile(app1, "APP1-PN"); err != nil {
		t.Fatalf("AddDataFile: %v", err)
	}
	if err := load.AddSupportFile(app2, "APP2-PN"); err != nil {
		t.Fatalf("AddSupportFile: %v", err)
	}
	batch, err := ms.AddBatch(ms.Root(), "BATCH.LUB", 2)
	if err != nil {
		t.Fatalf("AddBatch: %v", err)
	}
	batch.SetPartNumber("BATCH-PN")
	batch.SetComment("all loads")
	if err := batch.AddTarget("ABCD1234", load); err != nil {
		t.Fatalf("AddTarget: %v", err)
	}
	ms.SetFilesCheckValueType(checkvalue.Sha256)
	ms.SetListOfFilesCheckValueType(checkvalue.Crc32)
	ms.SetLoadsCheckValueType(checkvalue.Crc32)
	return ms
}

func newMemory() *Memory {
	m := NewMemory()
	for p, b := range sources {
		m.Sources[p] = b
	}
	return m
}

func compile(t *testing.T, c *Compiler, ms *media.MediaSet, sink Sink) {
	t.Helper()
	if err := c.Compile(context.Background(), ms, sink); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func describe(ms *media.MediaSet) []string {
	var out []string
	for _, f := range ms.Files() {
		out = append(out, f.Medium().String()+f.Path()+":"+f.Kind().String()+":"+f.PartNumber())
	}
	return out
}

func TestCompileDecompileRoundTrip(t *testing.T) {
	for _, v := range []arinc665.SupportedVersion{arinc665.Supplement2, arinc665.Supplement345} {
		t.Run(v.String(), func(t *testing.T) {
			ms := newMediaSet(t, "MEDIASET-01")
			mem := newMemory()
			c := NewCompiler()
			c.Version = v
			compile(t, c, ms, mem)

			want1 := []string{"/APP.LUH", "/BATCHES.LUM", "/FILES.LUM", "/LOAD/APP1.BIN", "/LOADS.LUM"}
			if got := mem.Paths(1); !reflect.DeepEqual(got, want1) {
				t.Fatalf("medium 1 = %v, want %v", got, want1)
			}
			want2 := []string{"/BATCH.LUB", "/BATCHES.LUM", "/FILES.LUM", "/LOAD/APP2.BIN", "/LOADS.LUM"}
			if got := mem.Paths(2); !reflect.DeepEqual(got, want2) {
				t.Fatalf("medium 2 = %v, want %v", got, want2)
			}

			d := &Decompiler{CheckFileIntegrity: true}
			got, cvs, err := d.Decompile(context.Background(), mem)
			if err != nil {
				t.Fatalf("Decompile: %v", err)
			}
			if got.PartNumber() != "MEDIASET-01" || got.NumberOfMedia() != 2 {
				t.Fatalf("decompiled %s with %d media", got.PartNumber(), got.NumberOfMedia())
			}
			if a, b := describe(got), describe(ms); !reflect.DeepEqual(a, b) {
				t.Fatalf("files = %v, want %v", a, b)
			}

			loads := got.Loads()
			if len(loads) != 1 {
				t.Fatalf("len(loads) = %d, want 1", len(loads))
			}
			l := loads[0]
			if ids := l.TargetHardwareIDs(); !reflect.DeepEqual(ids, []string{"ABCD1234"}) {
				t.Fatalf("THW IDs = %v", ids)
			}
			if df := l.DataFiles(); len(df) != 1 || df[0].File.Path() != "/LOAD/APP1.BIN" || df[0].PartNumber != "APP1-PN" {
				t.Fatalf("data files = %+v", df)
			}
			if sf := l.SupportFiles(); len(sf) != 1 || sf[0].File.Path() != "/LOAD/APP2.BIN" || sf[0].PartNumber != "APP2-PN" {
				t.Fatalf("support files = %+v", sf)
			}
			b := got.Batches()[0]
			if b.Comment() != "all loads" {
				t.Fatalf("comment = %q", b.Comment())
			}
			if target, ok := b.Target("ABCD1234"); !ok || len(target) != 1 || target[0].Name() != "APP.LUH" {
				t.Fatalf("batch target = %v, %v", target, ok)
			}

			wantCvs := 1
			if v == arinc665.Supplement345 {
				wantCvs = 2
				if l.LoadCheckValueType() != checkvalue.Crc32 {
					t.Fatalf("load check value type = %s, want CRC32", l.LoadCheckValueType())
				}
			}
			if n := len(cvs["/LOAD/APP1.BIN"]); n != wantCvs {
				t.Fatalf("check values for APP1.BIN = %v, want %d", cvs["/LOAD/APP1.BIN"], wantCvs)
			}

			res, err := (&validate.Validator{}).Validate(context.Background(), got, mem.ReadFile, nil)
			if err != nil || !res.Passed {
				t.Fatalf("Validate = %+v, %v", res, err)
			}
		})
	}
}

func TestCompileRecordsChecksums(t *testing.T) {
	ms := newMediaSet(t, "MEDIASET-01")
	mem := newMemory()
	compile(t, NewCompiler(), ms, mem)
	f, ok := ms.FileByPath("/LOAD/APP1.BIN")
	if !ok {
		t.Fatalf("APP1.BIN missing")
	}
	crc, ok := f.Crc()
	if want := checkvalue.ComputeCrc16(sources["/LOAD/APP1.BIN"]); !ok || crc != want {
		t.Fatalf("Crc() = %04X, %v, want %04X", crc, ok, want)
	}
	if cv := f.CheckValue(); cv.Type != checkvalue.Sha256 {
		t.Fatalf("CheckValue() = %s, want SHA256", cv)
	}
}

func TestFileCreationPolicies(t *testing.T) {
	ms := newMediaSet(t, "MEDIASET-01")
	ref := newMemory()
	compile(t, NewCompiler(), ms, ref)
	header, _ := ref.ReadFile(1, "/APP.LUH")
	batch, _ := ref.ReadFile(2, "/BATCH.LUB")

	t.Run("none copies", func(t *testing.T) {
		mem := newMemory()
		mem.Sources["/APP.LUH"] = []byte("stale header")
		mem.Sources["/BATCH.LUB"] = batch
		c := NewCompiler()
		c.CreateLoadHeaders, c.CreateBatchFiles = PolicyNone, PolicyNone
		compile(t, c, newMediaSet(t, "MEDIASET-01"), mem)
		if got, _ := mem.ReadFile(1, "/APP.LUH"); string(got) != "stale header" {
			t.Fatalf("APP.LUH = %q, want copied source", got)
		}
	})
	t.Run("none existing generates missing", func(t *testing.T) {
		mem := newMemory()
		mem.Sources["/BATCH.LUB"] = []byte("copied batch")
		c := NewCompiler()
		c.CreateLoadHeaders, c.CreateBatchFiles = PolicyNoneExisting, PolicyNoneExisting
		compile(t, c, newMediaSet(t, "MEDIASET-01"), mem)
		if got, _ := mem.ReadFile(1, "/APP.LUH"); !bytes.Equal(got, header) {
			t.Fatalf("generated APP.LUH differs from reference")
		}
		if got, _ := mem.ReadFile(2, "/BATCH.LUB"); string(got) != "copied batch" {
			t.Fatalf("BATCH.LUB = %q, want copied source", got)
		}
	})
	t.Run("none without source fails", func(t *testing.T) {
		c := NewCompiler()
		c.CreateLoadHeaders = PolicyNone
		err := c.Compile(context.Background(), newMediaSet(t, "MEDIASET-01"), newMemory())
		if !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("err = %v, want not exist", err)
		}
	})
}

func TestParseFileCreationPolicy(t *testing.T) {
	tests := []struct {
		in   string
		want FileCreationPolicy
	}{
		{"none", PolicyNone},
		{"noneExisting", PolicyNoneExisting},
		{"ALL", PolicyAll},
		{"", PolicyAll},
	}
	for _, tt := range tests {
		got, err := ParseFileCreationPolicy(tt.in)
		if err != nil || got != tt.want {
			t.Fatalf("ParseFileCreationPolicy(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseFileCreationPolicy("sometimes"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecompileDetectsTampering(t *testing.T) {
	ms := newMediaSet(t, "MEDIASET-01")
	mem := newMemory()
	compile(t, NewCompiler(), ms, mem)
	raw, _ := mem.ReadFile(2, "/LOAD/APP2.BIN")
	tampered := append([]byte(nil), raw...)
	tampered[0] ^= 0xFF
	mem.WriteFile(2, "/LOAD/APP2.BIN", tampered)

	if _, _, err := (&Decompiler{CheckFileIntegrity: true}).Decompile(context.Background(), mem); !errors.Is(err, arinc665.ErrIntegrity) {
		t.Fatalf("err = %v, want integrity error", err)
	}
	if _, _, err := (&Decompiler{}).Decompile(context.Background(), mem); err != nil {
		t.Fatalf("Decompile without integrity check: %v", err)
	}
}

func TestDecompileRejectsForeignMedium(t *testing.T) {
	a, b := newMemory(), newMemory()
	compile(t, NewCompiler(), newMediaSet(t, "SET-A"), a)
	compile(t, NewCompiler(), newMediaSet(t, "SET-B"), b)
	foreign, _ := b.ReadFile(2, "/FILES.LUM")
	a.WriteFile(2, "/FILES.LUM", foreign)
	_, _, err := (&Decompiler{}).Decompile(context.Background(), a)
	if !errors.Is(err, arinc665.ErrFormat) {
		t.Fatalf("err = %v, want format error", err)
	}
}

func TestDirSinkAndSource(t *testing.T) {
	src := t.TempDir()
	for p, b := range sources {
		full := filepath.Join(src, filepath.FromSlash(p[1:]))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, b, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	out := t.TempDir()
	audit := common.NewAuditLog(filepath.Join(out, "compile.jsonl"))
	c := NewCompiler()
	c.Audit = audit
	compile(t, c, newMediaSet(t, "MEDIASET-01"), &DirSink{Root: out, SourceDir: src})

	if _, err := os.Stat(filepath.Join(out, "MEDIUM_002", "LOAD", "APP2.BIN")); err != nil {
		t.Fatalf("APP2.BIN not on medium 2: %v", err)
	}
	source := &DirSource{Root: out}
	nums, err := source.Media()
	if err != nil || !reflect.DeepEqual(nums, []arinc665.MediumNumber{1, 2}) {
		t.Fatalf("Media() = %v, %v", nums, err)
	}
	ms, _, err := (&Decompiler{CheckFileIntegrity: true}).Decompile(context.Background(), source)
	if err != nil {
		t.Fatalf("Decompile: %v", err)
	}
	if len(ms.Files()) != 4 {
		t.Fatalf("len(Files()) = %d, want 4", len(ms.Files()))
	}
	entries, err := common.ReadAuditLog(audit.Path())
	if err != nil {
		t.Fatalf("ReadAuditLog: %v", err)
	}
	// 2 copies, header, batch, 2x LOADS.LUM, 2x BATCHES.LUM, 2x FILES.LUM
	if len(entries) != 10 {
		t.Fatalf("len(audit) = %d, want 10", len(entries))
	}
}

func TestLenientDecompileKeepsBrokenLoad(t *testing.T) {
	mem := newMemory()
	compile(t, NewCompiler(), newMediaSet(t, "MEDIASET-01"), mem)
	raw, _ := mem.ReadFile(1, "/APP.LUH")
	tampered := append([]byte(nil), raw...)
	tampered[10] ^= 0x01
	mem.WriteFile(1, "/APP.LUH", tampered)

	if _, _, err := (&Decompiler{}).Decompile(context.Background(), mem); err == nil {
		t.Fatalf("strict Decompile accepted a broken load header")
	}

	var skipped []string
	d := &Decompiler{Lenient: true, OnSkip: func(path string, err error) {
		skipped = append(skipped, path)
	}}
	ms, _, err := d.Decompile(context.Background(), mem)
	if err != nil {
		t.Fatalf("lenient Decompile: %v", err)
	}
	if !reflect.DeepEqual(skipped, []string{"/APP.LUH"}) {
		t.Fatalf("skipped = %v, want [/APP.LUH]", skipped)
	}
	loads := ms.Loads()
	if len(loads) != 1 || loads[0].PartNumber() != "PN127ABCDEFGH" {
		t.Fatalf("loads = %v", describe(ms))
	}

	var failed []string
	res, err := (&validate.Validator{}).Validate(context.Background(), ms, mem.ReadFile, func(r validate.FileResult) {
		if !r.Passed {
			failed = append(failed, r.Path)
		}
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Passed || len(failed) == 0 || failed[0] != "/APP.LUH" {
		t.Fatalf("Validate = %+v, failed %v", res, failed)
	}
}
