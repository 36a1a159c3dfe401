package media

import (
	"errors"
	"reflect"
	"testing"

	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/files"
)

type fixture struct {
	ms    *MediaSet
	dir   Directory
	app1  File
	app2  File
	load  Load
	batch Batch
}

// newFixture builds two media, a load with two data files declaring THW
// ABCD1234 and a batch targeting it.
func newFixture(t *testing.T) fixture {
	t.Helper()
	ms := New("MEDIASET-01")
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
	if err := load.AddDataFile(app1, "APP1-PN"); err != nil {
		t.Fatalf("AddDataFile: %v", err)
	}
	if err := load.AddDataFile(app2, "APP2-PN"); err != nil {
		t.Fatalf("AddDataFile: %v", err)
	}
	if err := load.AddTargetHardwareID("ABCD1234"); err != nil {
		t.Fatalf("AddTargetHardwareID: %v", err)
	}
	batch, err := ms.AddBatch(ms.Root(), "BATCH.LUB", 2)
	if err != nil {
		t.Fatalf("AddBatch: %v", err)
	}
	batch.SetPartNumber("BATCH-PN")
	if err := batch.AddTarget("ABCD1234", load); err != nil {
		t.Fatalf("AddTarget: %v", err)
	}
	if err := ms.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	return fixture{ms: ms, dir: dir, app1: app1, app2: app2, load: load, batch: batch}
}

func TestPathsAndLookup(t *testing.T) {
	f := newFixture(t)
	if got := f.ms.Root().Path(); got != "/" {
		t.Fatalf("root path = %q, want /", got)
	}
	if got := f.app1.Path(); got != "/LOAD/APP1.BIN" {
		t.Fatalf("Path() = %q, want /LOAD/APP1.BIN", got)
	}
	parent, ok := f.app1.Parent()
	if !ok || parent != f.dir {
		t.Fatalf("Parent() = %v, %v, want LOAD", parent, ok)
	}
	if f.app1.MediaSet() != f.ms {
		t.Fatalf("MediaSet() back reference broken")
	}
	got, ok := f.ms.FileByPath("/LOAD/APP2.BIN")
	if !ok || got != f.app2 {
		t.Fatalf("FileByPath = %v, %v", got, ok)
	}
	if _, ok := f.ms.FileByPath("/LOAD"); ok {
		t.Fatalf("FileByPath on directory succeeded")
	}
	if e, ok := f.ms.Lookup("/APP.LUH"); !ok || e.Kind() != KindLoad {
		t.Fatalf("Lookup(/APP.LUH) = %v, %v", e, ok)
	}
}

func TestAddErrors(t *testing.T) {
	f := newFixture(t)
	other := New("OTHER")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"duplicate", func() error { _, err := f.ms.AddFile(f.dir, "APP1.BIN", 1); return err }(), arinc665.ErrNameConflict},
		{"duplicate directory", func() error { _, err := f.ms.AddDirectory(f.ms.Root(), "LOAD"); return err }(), arinc665.ErrNameConflict},
		{"unknown medium", func() error { _, err := f.ms.AddFile(f.dir, "X.BIN", 3); return err }(), arinc665.ErrInvalidReference},
		{"foreign parent", func() error { _, err := f.ms.AddFile(other.Root(), "X.BIN", 1); return err }(), arinc665.ErrInvalidReference},
		{"bad name", func() error { _, err := f.ms.AddFile(f.dir, "A/B", 1); return err }(), arinc665.ErrInvalidReference},
		{"reserved name", func() error { _, err := f.ms.AddFile(f.ms.Root(), "FILES.LUM", 1); return err }(), arinc665.ErrInvalidReference},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if !errors.Is(tc.err, tc.want) {
				t.Fatalf("error = %v, want %v", tc.err, tc.want)
			}
		})
	}
	if n := len(f.dir.Children()); n != 2 {
		t.Fatalf("failed adds changed the tree: %d children", n)
	}
}

func TestLoadReferences(t *testing.T) {
	f := newFixture(t)
	other := New("OTHER")
	foreign, err := other.AddFile(other.Root(), "F.BIN", 1)
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := f.load.AddDataFile(foreign, "X"); !errors.Is(err, arinc665.ErrInvalidReference) {
		t.Fatalf("AddDataFile foreign error = %v, want ErrInvalidReference", err)
	}
	if err := f.load.AddSupportFile(f.batch.File, "X"); !errors.Is(err, arinc665.ErrInvalidReference) {
		t.Fatalf("AddSupportFile batch error = %v, want ErrInvalidReference", err)
	}
	if got := len(f.load.DataFiles()); got != 2 {
		t.Fatalf("DataFiles() = %d entries, want 2", got)
	}
	if got := f.ms.LoadsWithFile(f.app2); len(got) != 1 || got[0] != f.load {
		t.Fatalf("LoadsWithFile = %v", got)
	}

	if err := f.load.AddTargetHardwareID("ABCD1234", "L"); err != nil {
		t.Fatalf("AddTargetHardwareID: %v", err)
	}
	if err := f.load.AddTargetHardwareID("ABCD1234", "R", "L"); err != nil {
		t.Fatalf("AddTargetHardwareID: %v", err)
	}
	want := []files.TargetHardwareIDPositions{{TargetHardwareID: "ABCD1234", Positions: []string{"L", "R"}}}
	if got := f.load.TargetHardwareIDPositions(); !reflect.DeepEqual(got, want) {
		t.Fatalf("TargetHardwareIDPositions = %v, want %v", got, want)
	}
	if got := f.load.TargetHardwareIDs(); !reflect.DeepEqual(got, []string{"ABCD1234"}) {
		t.Fatalf("TargetHardwareIDs = %v", got)
	}
}

func TestRemoveReferencedFile(t *testing.T) {
	f := newFixture(t)
	if err := f.ms.Remove(f.app1, false); !errors.Is(err, arinc665.ErrReferentialIntegrity) {
		t.Fatalf("Remove referenced file error = %v, want ErrReferentialIntegrity", err)
	}
	if !f.app1.Valid() || len(f.load.DataFiles()) != 2 {
		t.Fatalf("failed Remove mutated the media set")
	}
	if err := f.ms.Remove(f.app1, true); err != nil {
		t.Fatalf("cascading Remove: %v", err)
	}
	if f.app1.Valid() {
		t.Fatalf("removed file still valid")
	}
	if got := f.load.DataFiles(); len(got) != 1 || got[0].File != f.app2 {
		t.Fatalf("DataFiles after cascade = %v", got)
	}
	if err := f.ms.Check(); err != nil {
		t.Fatalf("Check after cascade: %v", err)
	}
}

func TestRemoveDirectorySubtree(t *testing.T) {
	f := newFixture(t)
	if err := f.ms.Remove(f.dir, false); !errors.Is(err, arinc665.ErrReferentialIntegrity) {
		t.Fatalf("Remove directory error = %v, want ErrReferentialIntegrity", err)
	}
	if err := f.ms.Remove(f.dir, true); err != nil {
		t.Fatalf("cascading Remove: %v", err)
	}
	if _, ok := f.ms.Lookup("/LOAD/APP2.BIN"); ok {
		t.Fatalf("subtree still reachable")
	}
	if len(f.load.DataFiles()) != 0 {
		t.Fatalf("load still references removed files")
	}
	if err := f.ms.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	// the name is free again
	if _, err := f.ms.AddDirectory(f.ms.Root(), "LOAD"); err != nil {
		t.Fatalf("AddDirectory after remove: %v", err)
	}
}

func TestRemoveLoadInBatch(t *testing.T) {
	f := newFixture(t)
	if err := f.ms.Remove(f.load, false); !errors.Is(err, arinc665.ErrReferentialIntegrity) {
		t.Fatalf("Remove load error = %v, want ErrReferentialIntegrity", err)
	}
	if err := f.ms.Remove(f.load, true); err != nil {
		t.Fatalf("cascading Remove: %v", err)
	}
	if got := f.batch.Targets(); len(got) != 0 {
		t.Fatalf("empty target kept: %v", got)
	}
	// files of a removed load are unreferenced now
	if err := f.ms.Remove(f.app1, false); err != nil {
		t.Fatalf("Remove unreferenced file: %v", err)
	}
}

func TestBatchTargets(t *testing.T) {
	f := newFixture(t)
	second, err := f.ms.AddLoad(f.ms.Root(), "CFG.LUH", 2)
	if err != nil {
		t.Fatalf("AddLoad: %v", err)
	}
	if err := f.batch.AddTarget("ABCD1234", second); err != nil {
		t.Fatalf("AddTarget: %v", err)
	}
	loads, ok := f.batch.Target("ABCD1234")
	if !ok || len(loads) != 2 || loads[0] != f.load || loads[1] != second {
		t.Fatalf("Target after merge = %v, %v", loads, ok)
	}
	if err := f.batch.SetTarget("ABCD1234", second); err != nil {
		t.Fatalf("SetTarget: %v", err)
	}
	if loads, _ := f.batch.Target("ABCD1234"); len(loads) != 1 {
		t.Fatalf("SetTarget did not replace: %v", loads)
	}
	if err := f.batch.AddTarget("X", Load{f.app1}); !errors.Is(err, arinc665.ErrInvalidReference) {
		t.Fatalf("AddTarget with regular file error = %v, want ErrInvalidReference", err)
	}
	if got := f.ms.BatchesWithLoad(second); len(got) != 1 {
		t.Fatalf("BatchesWithLoad = %v", got)
	}
}

func TestNumberOfMedia(t *testing.T) {
	f := newFixture(t)
	if err := f.ms.SetNumberOfMedia(1, false); !errors.Is(err, arinc665.ErrReferentialIntegrity) {
		t.Fatalf("shrink error = %v, want ErrReferentialIntegrity", err)
	}
	if f.ms.NumberOfMedia() != 2 {
		t.Fatalf("failed shrink changed media count")
	}
	if err := f.ms.SetNumberOfMedia(1, true); err != nil {
		t.Fatalf("shrink with renumber: %v", err)
	}
	if f.app2.Medium() != 1 || f.batch.Medium() != 1 {
		t.Fatalf("files not moved: %s %s", f.app2.Medium(), f.batch.Medium())
	}
	if err := f.ms.SetNumberOfMedia(0, true); !errors.Is(err, arinc665.ErrInvalidReference) {
		t.Fatalf("SetNumberOfMedia(0) error = %v", err)
	}
	if err := f.app1.SetMedium(2); !errors.Is(err, arinc665.ErrInvalidReference) {
		t.Fatalf("SetMedium(2) error = %v", err)
	}
	if err := f.ms.SetNumberOfMedia(255, false); err != nil {
		t.Fatalf("grow: %v", err)
	}
	if _, err := f.ms.AddMedium(); !errors.Is(err, arinc665.ErrInvalidReference) {
		t.Fatalf("AddMedium past 255 error = %v", err)
	}
	if err := f.ms.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestFilesOrder(t *testing.T) {
	f := newFixture(t)
	var got []string
	for _, file := range f.ms.Files() {
		got = append(got, file.Medium().String()+":"+file.Path())
	}
	want := []string{"001:/APP.LUH", "001:/LOAD/APP1.BIN", "002:/BATCH.LUB", "002:/LOAD/APP2.BIN"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Files() = %v, want %v", got, want)
	}
	m2, _ := f.ms.Medium(2)
	dirs := m2.Directories()
	if len(dirs) != 1 || dirs[0] != f.dir {
		t.Fatalf("medium 2 directories = %v", dirs)
	}
}

func TestEndToEndListFiles(t *testing.T) {
	f := newFixture(t)

	rawLoads, err := f.ms.LoadList(arinc665.Supplement345, 1).Encode()
	if err != nil {
		t.Fatalf("LoadList.Encode: %v", err)
	}
	loads, err := files.DecodeLoadListFile(rawLoads)
	if err != nil {
		t.Fatalf("DecodeLoadListFile: %v", err)
	}
	if len(loads.Loads) != 1 || !reflect.DeepEqual(loads.Loads[0].TargetHardwareIDs, []string{"ABCD1234"}) {
		t.Fatalf("decoded loads = %+v", loads.Loads)
	}
	if loads.MediaSet.NumberOfMediaSetMembers != 2 {
		t.Fatalf("NumberOfMediaSetMembers = %s, want 002", loads.MediaSet.NumberOfMediaSetMembers)
	}

	rawBatches, err := f.ms.BatchList(arinc665.Supplement345, 2).Encode()
	if err != nil {
		t.Fatalf("BatchList.Encode: %v", err)
	}
	batches, err := files.DecodeBatchListFile(rawBatches)
	if err != nil {
		t.Fatalf("DecodeBatchListFile: %v", err)
	}
	if len(batches.Batches) != 1 {
		t.Fatalf("decoded batches = %+v", batches.Batches)
	}
	if !batches.Batches[0].Matches(files.FileInfo{Filename: "BATCH.LUB", PathName: "\\", MemberSequenceNumber: 2}) {
		t.Fatalf("BatchInfo %+v does not match the batch file", batches.Batches[0])
	}

	rawBatch, err := f.batch.BatchFile(arinc665.Supplement345).Encode()
	if err != nil {
		t.Fatalf("BatchFile.Encode: %v", err)
	}
	batch, err := files.DecodeBatchFile(rawBatch)
	if err != nil {
		t.Fatalf("DecodeBatchFile: %v", err)
	}
	if len(batch.Targets) != 1 || batch.Targets[0].TargetHardwareIDPosition != "ABCD1234" {
		t.Fatalf("decoded targets = %+v", batch.Targets)
	}
	ref := batch.Targets[0].Loads[0]
	if ref.HeaderFilename != loads.Loads[0].HeaderFilename || ref.PartNumber != loads.Loads[0].PartNumber {
		t.Fatalf("batch load %+v does not resolve to %+v", ref, loads.Loads[0])
	}
	if !loads.Loads[0].Matches(files.FileInfo{Filename: "APP.LUH", PathName: "\\", MemberSequenceNumber: 1}) {
		t.Fatalf("LoadInfo does not match the load header")
	}
}

// checkInvariants asserts what every sequence of mutations must preserve:
// Check passes, every file is reachable by path and sits on an existing
// medium, and loads and batches only reference live nodes.
func checkInvariants(t *testing.T, ms *MediaSet) {
	t.Helper()
	if err := ms.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	for _, f := range ms.Files() {
		if f.Medium().Int() > ms.NumberOfMedia() {
			t.Fatalf("%s on medium %s of %d", f.Path(), f.Medium(), ms.NumberOfMedia())
		}
		e, ok := ms.Lookup(f.Path())
		if !ok || e.ID() != f.ID() {
			t.Fatalf("Lookup(%s) = %v, %v", f.Path(), e, ok)
		}
	}
	for _, l := range ms.Loads() {
		for _, ref := range append(l.DataFiles(), l.SupportFiles()...) {
			if !ref.File.Valid() {
				t.Fatalf("load %s references a removed file", l.Path())
			}
		}
	}
	for _, b := range ms.Batches() {
		for _, tgt := range b.Targets() {
			if len(tgt.Loads) == 0 {
				t.Fatalf("batch %s keeps empty target %s", b.Path(), tgt.Position)
			}
			for _, l := range tgt.Loads {
				if !l.Valid() {
					t.Fatalf("batch %s target %s references a removed load", b.Path(), tgt.Position)
				}
			}
		}
	}
}

func TestMutationSequences(t *testing.T) {
	type step struct {
		name string
		do   func(f *fixture) error
		want arinc665.Kind
	}
	tests := []struct {
		name  string
		steps []step
		check func(t *testing.T, f *fixture)
	}{
		{
			name: "cascade file then shrink",
			steps: []step{
				{"remove referenced file", func(f *fixture) error { return f.ms.Remove(f.app1, false) }, arinc665.KindReferentialIntegrity},
				{"cascade remove file", func(f *fixture) error { return f.ms.Remove(f.app1, true) }, arinc665.KindUnknown},
				{"shrink without renumber", func(f *fixture) error { return f.ms.SetNumberOfMedia(1, false) }, arinc665.KindReferentialIntegrity},
				{"shrink with renumber", func(f *fixture) error { return f.ms.SetNumberOfMedia(1, true) }, arinc665.KindUnknown},
				{"add file on removed medium", func(f *fixture) error {
					_, err := f.ms.AddFile(f.dir, "NEW.BIN", 2)
					return err
				}, arinc665.KindInvalidReference},
			},
			check: func(t *testing.T, f *fixture) {
				if got := f.load.DataFiles(); len(got) != 1 || got[0].File != f.app2 || f.app2.Medium() != 1 {
					t.Fatalf("DataFiles = %v", got)
				}
			},
		},
		{
			name: "remove load and add it again",
			steps: []step{
				{"cascade remove load", func(f *fixture) error { return f.ms.Remove(f.load, true) }, arinc665.KindUnknown},
				{"target removed load", func(f *fixture) error { return f.batch.AddTarget("ABCD1234", f.load) }, arinc665.KindInvalidReference},
				{"add load with the same name", func(f *fixture) error {
					l, err := f.ms.AddLoad(f.ms.Root(), "APP.LUH", 2)
					f.load = l
					return err
				}, arinc665.KindUnknown},
				{"link file", func(f *fixture) error { return f.load.AddDataFile(f.app1, "APP1-PN") }, arinc665.KindUnknown},
				{"target new load", func(f *fixture) error { return f.batch.AddTarget("ABCD1234", f.load) }, arinc665.KindUnknown},
			},
			check: func(t *testing.T, f *fixture) {
				if got := f.ms.BatchesWithLoad(f.load); len(got) != 1 {
					t.Fatalf("BatchesWithLoad = %v", got)
				}
				if got := f.ms.LoadsWithFile(f.app2); len(got) != 0 {
					t.Fatalf("LoadsWithFile(APP2) = %v", got)
				}
			},
		},
		{
			name: "grow then drop directory",
			steps: []step{
				{"grow", func(f *fixture) error { return f.ms.SetNumberOfMedia(3, false) }, arinc665.KindUnknown},
				{"add file on medium 3", func(f *fixture) error {
					app3, err := f.ms.AddFile(f.dir, "APP3.BIN", 3)
					if err != nil {
						return err
					}
					return f.load.AddSupportFile(app3, "APP3-PN")
				}, arinc665.KindUnknown},
				{"remove directory", func(f *fixture) error { return f.ms.Remove(f.dir, false) }, arinc665.KindReferentialIntegrity},
				{"cascade remove directory", func(f *fixture) error { return f.ms.Remove(f.dir, true) }, arinc665.KindUnknown},
				{"shrink to one", func(f *fixture) error { return f.ms.SetNumberOfMedia(1, false) }, arinc665.KindReferentialIntegrity},
				{"shrink to one renumbered", func(f *fixture) error { return f.ms.SetNumberOfMedia(1, true) }, arinc665.KindUnknown},
			},
			check: func(t *testing.T, f *fixture) {
				if len(f.load.DataFiles())+len(f.load.SupportFiles()) != 0 {
					t.Fatalf("load still lists files")
				}
				if got := len(f.ms.Files()); got != 2 {
					t.Fatalf("len(Files()) = %d, want 2", got)
				}
			},
		},
		{
			name: "name conflicts",
			steps: []step{
				{"file named like the load", func(f *fixture) error {
					_, err := f.ms.AddFile(f.ms.Root(), "APP.LUH", 1)
					return err
				}, arinc665.KindNameConflict},
				{"reserved list name", func(f *fixture) error {
					_, err := f.ms.AddFile(f.ms.Root(), "FILES.LUM", 1)
					return err
				}, arinc665.KindInvalidReference},
				{"remove unreferenced batch", func(f *fixture) error { return f.ms.Remove(f.batch, false) }, arinc665.KindUnknown},
				{"reuse batch name", func(f *fixture) error {
					b, err := f.ms.AddBatch(f.ms.Root(), "BATCH.LUB", 1)
					f.batch = b
					return err
				}, arinc665.KindUnknown},
			},
			check: func(t *testing.T, f *fixture) {
				if got := f.ms.BatchesWithLoad(f.load); len(got) != 0 {
					t.Fatalf("BatchesWithLoad = %v", got)
				}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			for _, s := range tc.steps {
				err := s.do(&f)
				if s.want == arinc665.KindUnknown && err != nil {
					t.Fatalf("%s: %v", s.name, err)
				}
				if got := arinc665.KindOf(err); got != s.want {
					t.Fatalf("%s: error %v has kind %v, want %v", s.name, err, got, s.want)
				}
				checkInvariants(t, f.ms)
			}
			tc.check(t, &f)
		})
	}
}
