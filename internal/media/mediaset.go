// Package media holds the in-memory media set: a directory tree shared by all
// media whose files, loads and batches are each placed on one medium. Nodes
// live in an arena owned by the MediaSet; handles and cross references are
// arena indices, so a reference can never keep a removed node alive.
package media

import (
	"sort"
	"strings"

	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/checkvalue"
	"example.com/arinc665/internal/files"
)

// NodeID indexes the arena of a MediaSet. IDs are never reused.
type NodeID int32

const rootID NodeID = 0

// Kind tags the variants of a media set node.
type Kind int

const (
	KindDirectory Kind = iota + 1
	KindFile
	KindLoad
	KindBatch
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindFile:
		return "file"
	case KindLoad:
		return "load"
	case KindBatch:
		return "batch"
	default:
		return "invalid"
	}
}

// Entry is implemented by Directory, File, Load and Batch.
type Entry interface {
	ID() NodeID
	Kind() Kind
	Name() string
	Path() string
	Parent() (Directory, bool)
	MediaSet() *MediaSet
}

type entry struct {
	kind     Kind
	name     string
	parent   NodeID
	children []NodeID
	live     bool

	medium     arinc665.MediumNumber
	partNumber string
	crc        uint16
	hasCrc     bool
	checkValue checkvalue.CheckValue

	load  *loadEntry
	batch *batchEntry
}

// MediaSet is the root of the object graph and the owner of every node.
type MediaSet struct {
	partNumber    string
	nodes         []*entry
	numberOfMedia int

	filesCheckValueType       checkvalue.Type
	listOfFilesCheckValueType checkvalue.Type
	loadsCheckValueType       checkvalue.Type

	filesUserDefinedData   []byte
	loadsUserDefinedData   []byte
	batchesUserDefinedData []byte
}

// New creates a media set with one medium and an empty root directory.
func New(partNumber string) *MediaSet {
	return &MediaSet{
		partNumber:    partNumber,
		nodes:         []*entry{{kind: KindDirectory, parent: -1, live: true}},
		numberOfMedia: 1,
	}
}

func (ms *MediaSet) PartNumber() string {
	return ms.partNumber
}

func (ms *MediaSet) SetPartNumber(pn string) {
	ms.partNumber = pn
}

// Root returns the root directory shared by all media.
func (ms *MediaSet) Root() Directory {
	return Directory{ms: ms, id: rootID}
}

func (ms *MediaSet) entry(id NodeID) *entry {
	if ms == nil || id < 0 || int(id) >= len(ms.nodes) {
		return nil
	}
	return ms.nodes[id]
}

func (ms *MediaSet) liveEntry(id NodeID) *entry {
	e := ms.entry(id)
	if e == nil || !e.live {
		return nil
	}
	return e
}

// Medium is a view of the files placed on one medium.
type Medium struct {
	ms     *MediaSet
	number arinc665.MediumNumber
}

func (m Medium) Number() arinc665.MediumNumber {
	return m.number
}

func (m Medium) MediaSet() *MediaSet {
	return m.ms
}

// Files returns the files, loads and batches on the medium ordered by path.
func (m Medium) Files() []File {
	var out []File
	for _, f := range m.ms.Files() {
		if f.Medium() == m.number {
			out = append(out, f)
		}
	}
	return out
}

// Directories returns the directories that contain at least one file on the
// medium, parents before children.
func (m Medium) Directories() []Directory {
	seen := map[NodeID]bool{}
	var out []Directory
	for _, f := range m.Files() {
		var chain []NodeID
		for id := m.ms.nodes[f.id].parent; id > rootID; id = m.ms.nodes[id].parent {
			chain = append(chain, id)
		}
		for i := len(chain) - 1; i >= 0; i-- {
			if !seen[chain[i]] {
				seen[chain[i]] = true
				out = append(out, Directory{ms: m.ms, id: chain[i]})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path() < out[j].Path() })
	return out
}

func (ms *MediaSet) NumberOfMedia() int {
	return ms.numberOfMedia
}

func (ms *MediaSet) Medium(n arinc665.MediumNumber) (Medium, bool) {
	if !n.Valid() || int(n) > ms.numberOfMedia {
		return Medium{}, false
	}
	return Medium{ms: ms, number: n}, true
}

func (ms *MediaSet) Media() []Medium {
	out := make([]Medium, 0, ms.numberOfMedia)
	for i := 1; i <= ms.numberOfMedia; i++ {
		out = append(out, Medium{ms: ms, number: arinc665.MediumNumber(i)})
	}
	return out
}

// AddMedium appends a medium numbered after the current last one.
func (ms *MediaSet) AddMedium() (Medium, error) {
	n, err := arinc665.NewMediumNumber(ms.numberOfMedia + 1)
	if err != nil {
		return Medium{}, arinc665.InvalidReferenceErrorf("add medium: %v", err)
	}
	ms.numberOfMedia = n.Int()
	return Medium{ms: ms, number: n}, nil
}

// SetNumberOfMedia resizes the media set. Shrinking fails with a referential
// integrity error when files live on a removed medium, unless renumber is set,
// in which case those files move to the new last medium.
func (ms *MediaSet) SetNumberOfMedia(n int, renumber bool) error {
	last, err := arinc665.NewMediumNumber(n)
	if err != nil {
		return arinc665.InvalidReferenceErrorf("number of media: %v", err)
	}
	var orphans []*entry
	for _, e := range ms.nodes {
		if e.live && e.kind != KindDirectory && e.medium > last {
			orphans = append(orphans, e)
		}
	}
	if len(orphans) > 0 && !renumber {
		return arinc665.ReferentialIntegrityErrorf("%d files placed on media beyond %s", len(orphans), last)
	}
	for _, e := range orphans {
		e.medium = last
	}
	ms.numberOfMedia = n
	return nil
}

// FilesCheckValueType is the default check value type for FILES.LUM entries
// and load file entries.
func (ms *MediaSet) FilesCheckValueType() checkvalue.Type {
	return ms.filesCheckValueType
}

func (ms *MediaSet) SetFilesCheckValueType(t checkvalue.Type) {
	ms.filesCheckValueType = t
}

// ListOfFilesCheckValueType is the check value type over FILES.LUM itself.
func (ms *MediaSet) ListOfFilesCheckValueType() checkvalue.Type {
	return ms.listOfFilesCheckValueType
}

func (ms *MediaSet) SetListOfFilesCheckValueType(t checkvalue.Type) {
	ms.listOfFilesCheckValueType = t
}

// LoadsCheckValueType is the default load check value type.
func (ms *MediaSet) LoadsCheckValueType() checkvalue.Type {
	return ms.loadsCheckValueType
}

func (ms *MediaSet) SetLoadsCheckValueType(t checkvalue.Type) {
	ms.loadsCheckValueType = t
}

func (ms *MediaSet) FilesUserDefinedData() []byte   { return ms.filesUserDefinedData }
func (ms *MediaSet) LoadsUserDefinedData() []byte   { return ms.loadsUserDefinedData }
func (ms *MediaSet) BatchesUserDefinedData() []byte { return ms.batchesUserDefinedData }

// SetFilesUserDefinedData and its siblings pad odd input with a zero byte.
func (ms *MediaSet) SetFilesUserDefinedData(b []byte)   { ms.filesUserDefinedData = padEven(b) }
func (ms *MediaSet) SetLoadsUserDefinedData(b []byte)   { ms.loadsUserDefinedData = padEven(b) }
func (ms *MediaSet) SetBatchesUserDefinedData(b []byte) { ms.batchesUserDefinedData = padEven(b) }

func padEven(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := append([]byte(nil), b...)
	if len(out)%2 != 0 {
		out = append(out, 0)
	}
	return out
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\") {
		return arinc665.InvalidReferenceErrorf("invalid name %q", name)
	}
	return nil
}

func (ms *MediaSet) checkDirectory(parent Directory) (*entry, error) {
	if parent.ms != ms {
		return nil, arinc665.InvalidReferenceErrorf("directory belongs to another media set")
	}
	e := ms.liveEntry(parent.id)
	if e == nil || e.kind != KindDirectory {
		return nil, arinc665.InvalidReferenceErrorf("directory %d does not exist", parent.id)
	}
	return e, nil
}

func (ms *MediaSet) addNode(parent Directory, name string, kind Kind, medium arinc665.MediumNumber) (NodeID, error) {
	pe, err := ms.checkDirectory(parent)
	if err != nil {
		return 0, err
	}
	if err := validName(name); err != nil {
		return 0, err
	}
	if kind != KindDirectory {
		if !medium.Valid() || medium.Int() > ms.numberOfMedia {
			return 0, arinc665.InvalidReferenceErrorf("%s: medium %s does not exist", name, medium)
		}
		if t := arinc665.FileTypeOf(name); t == arinc665.FileTypeFileList || t == arinc665.FileTypeLoadList || t == arinc665.FileTypeBatchList {
			return 0, arinc665.InvalidReferenceErrorf("%s is reserved for the %s", name, t)
		}
	}
	if _, ok := parent.Lookup(name); ok {
		return 0, arinc665.NameConflictErrorf("%s already exists in %s", name, parent.Path())
	}
	id := NodeID(len(ms.nodes))
	e := &entry{kind: kind, name: name, parent: parent.id, live: true, medium: medium}
	switch kind {
	case KindLoad:
		e.load = newLoadEntry()
	case KindBatch:
		e.batch = &batchEntry{}
	}
	ms.nodes = append(ms.nodes, e)
	pe.children = append(pe.children, id)
	return id, nil
}

func (ms *MediaSet) AddDirectory(parent Directory, name string) (Directory, error) {
	id, err := ms.addNode(parent, name, KindDirectory, 0)
	if err != nil {
		return Directory{}, err
	}
	return Directory{ms: ms, id: id}, nil
}

// AddFile adds a regular file placed on medium.
func (ms *MediaSet) AddFile(parent Directory, name string, medium arinc665.MediumNumber) (File, error) {
	id, err := ms.addNode(parent, name, KindFile, medium)
	if err != nil {
		return File{}, err
	}
	return File{ms: ms, id: id}, nil
}

// AddLoad adds a load; name is the load header filename.
func (ms *MediaSet) AddLoad(parent Directory, name string, medium arinc665.MediumNumber) (Load, error) {
	id, err := ms.addNode(parent, name, KindLoad, medium)
	if err != nil {
		return Load{}, err
	}
	return Load{File{ms: ms, id: id}}, nil
}

// AddBatch adds a batch; name is the batch filename.
func (ms *MediaSet) AddBatch(parent Directory, name string, medium arinc665.MediumNumber) (Batch, error) {
	id, err := ms.addNode(parent, name, KindBatch, medium)
	if err != nil {
		return Batch{}, err
	}
	return Batch{File{ms: ms, id: id}}, nil
}

func (ms *MediaSet) handle(id NodeID) Entry {
	e := ms.liveEntry(id)
	if e == nil {
		return nil
	}
	switch e.kind {
	case KindDirectory:
		return Directory{ms: ms, id: id}
	case KindLoad:
		return Load{File{ms: ms, id: id}}
	case KindBatch:
		return Batch{File{ms: ms, id: id}}
	default:
		return File{ms: ms, id: id}
	}
}

func (ms *MediaSet) path(id NodeID) string {
	var parts []string
	for e := ms.entry(id); e != nil && id != rootID; e = ms.entry(id) {
		parts = append(parts, e.name)
		id = e.parent
	}
	if len(parts) == 0 {
		return "/"
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(parts[i])
	}
	return b.String()
}

// collect returns the live file nodes of the given kinds sorted by medium
// and path.
func (ms *MediaSet) collect(kinds ...Kind) []File {
	type item struct {
		f    File
		path string
	}
	var items []item
	for i, e := range ms.nodes {
		if !e.live || e.kind == KindDirectory {
			continue
		}
		match := len(kinds) == 0
		for _, k := range kinds {
			match = match || e.kind == k
		}
		if match {
			items = append(items, item{f: File{ms: ms, id: NodeID(i)}, path: ms.path(NodeID(i))})
		}
	}
	sort.Slice(items, func(i, j int) bool {
		mi, mj := ms.nodes[items[i].f.id].medium, ms.nodes[items[j].f.id].medium
		if mi != mj {
			return mi < mj
		}
		return items[i].path < items[j].path
	})
	out := make([]File, len(items))
	for i, it := range items {
		out[i] = it.f
	}
	return out
}

// Files returns all regular files, loads and batches ordered by medium, then
// path.
func (ms *MediaSet) Files() []File {
	return ms.collect()
}

func (ms *MediaSet) RegularFiles() []File {
	return ms.collect(KindFile)
}

func (ms *MediaSet) Loads() []Load {
	var out []Load
	for _, f := range ms.collect(KindLoad) {
		out = append(out, Load{f})
	}
	return out
}

func (ms *MediaSet) Batches() []Batch {
	var out []Batch
	for _, f := range ms.collect(KindBatch) {
		out = append(out, Batch{f})
	}
	return out
}

// Lookup resolves an absolute path such as "/DIR/APP.BIN".
func (ms *MediaSet) Lookup(p string) (Entry, bool) {
	d := ms.Root()
	parts := strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })
	if len(parts) == 0 {
		return d, true
	}
	for i, name := range parts {
		e, ok := d.Lookup(name)
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return e, true
		}
		if d, ok = e.(Directory); !ok {
			return nil, false
		}
	}
	return nil, false
}

// FileByPath resolves p to a file, load or batch.
func (ms *MediaSet) FileByPath(p string) (File, bool) {
	e, ok := ms.Lookup(p)
	if !ok {
		return File{}, false
	}
	return asFile(e)
}

func asFile(e Entry) (File, bool) {
	switch v := e.(type) {
	case File:
		return v, true
	case Load:
		return v.File, true
	case Batch:
		return v.File, true
	}
	return File{}, false
}

// LoadsWithFile returns the loads listing f as data or support file.
func (ms *MediaSet) LoadsWithFile(f File) []Load {
	var out []Load
	for _, l := range ms.Loads() {
		if l.references(f.id) {
			out = append(out, l)
		}
	}
	return out
}

// BatchesWithLoad returns the batches targeting l.
func (ms *MediaSet) BatchesWithLoad(l Load) []Batch {
	var out []Batch
	for _, b := range ms.Batches() {
		if b.references(l.id) {
			out = append(out, b)
		}
	}
	return out
}

// Remove deletes e. Directories are removed with their subtree. Nodes still
// referenced from outside the removed set make Remove fail with a referential
// integrity error unless cascade is set, which drops the referencing load
// file entries and batch target loads instead.
func (ms *MediaSet) Remove(e Entry, cascade bool) error {
	if e == nil || e.MediaSet() != ms || ms.liveEntry(e.ID()) == nil {
		return arinc665.InvalidReferenceErrorf("remove: entry does not belong to media set %s", ms.partNumber)
	}
	if e.ID() == rootID {
		return arinc665.InvalidReferenceErrorf("remove: root directory")
	}
	doomed := map[NodeID]bool{}
	ms.walk(e.ID(), func(id NodeID) { doomed[id] = true })

	var referrers []NodeID
	for i, n := range ms.nodes {
		id := NodeID(i)
		if !n.live || doomed[id] {
			continue
		}
		if n.load != nil && n.load.referencesAny(doomed) || n.batch != nil && n.batch.referencesAny(doomed) {
			referrers = append(referrers, id)
		}
	}
	if len(referrers) > 0 && !cascade {
		return arinc665.ReferentialIntegrityErrorf("%s is referenced by %s", e.Path(), ms.path(referrers[0]))
	}
	for _, id := range referrers {
		n := ms.nodes[id]
		if n.load != nil {
			n.load.drop(doomed)
		}
		if n.batch != nil {
			n.batch.drop(doomed)
		}
	}

	parent := ms.nodes[ms.nodes[e.ID()].parent]
	for i, c := range parent.children {
		if c == e.ID() {
			parent.children = append(parent.children[:i:i], parent.children[i+1:]...)
			break
		}
	}
	for id := range doomed {
		ms.nodes[id].live = false
		ms.nodes[id].children = nil
	}
	return nil
}

func (ms *MediaSet) walk(id NodeID, fn func(NodeID)) {
	fn(id)
	for _, c := range ms.nodes[id].children {
		ms.walk(c, fn)
	}
}

// Check verifies the invariants of the object graph: unique sibling names,
// consistent parent links, placements within the current media and resolvable
// load and batch references.
func (ms *MediaSet) Check() error {
	for i, e := range ms.nodes {
		id := NodeID(i)
		if !e.live {
			continue
		}
		switch e.kind {
		case KindDirectory:
			names := map[string]bool{}
			for _, c := range e.children {
				ce := ms.liveEntry(c)
				if ce == nil || ce.parent != id {
					return arinc665.ReferentialIntegrityErrorf("%s: child %d is not linked", ms.path(id), c)
				}
				if names[ce.name] {
					return arinc665.NameConflictErrorf("%s: duplicate name %s", ms.path(id), ce.name)
				}
				names[ce.name] = true
			}
		default:
			if !e.medium.Valid() || e.medium.Int() > ms.numberOfMedia {
				return arinc665.InvalidReferenceErrorf("%s: medium %s outside of %d media", ms.path(id), e.medium, ms.numberOfMedia)
			}
		}
		if e.load != nil {
			for _, ref := range append(append([]loadFileRef(nil), e.load.dataFiles...), e.load.supportFiles...) {
				if t := ms.liveEntry(ref.file); t == nil || t.kind != KindFile {
					return arinc665.ReferentialIntegrityErrorf("load %s: file %d does not resolve", ms.path(id), ref.file)
				}
			}
		}
		if e.batch != nil {
			for _, tgt := range e.batch.targets {
				for _, l := range tgt.loads {
					if t := ms.liveEntry(l); t == nil || t.kind != KindLoad {
						return arinc665.ReferentialIntegrityErrorf("batch %s: target %s load %d does not resolve", ms.path(id), tgt.position, l)
					}
				}
			}
		}
	}
	return nil
}

// LoadType is the optional load type of a Supplement 3/4/5 load header.
type LoadType = files.LoadType
