package media

import "example.com/arinc665/internal/arinc665"

type batchTarget struct {
	position string
	loads    []NodeID
}

type batchEntry struct {
	comment string
	targets []batchTarget
}

func (b *batchEntry) referencesAny(ids map[NodeID]bool) bool {
	for _, t := range b.targets {
		for _, l := range t.loads {
			if ids[l] {
				return true
			}
		}
	}
	return false
}

// drop removes the given loads and any target left without loads.
func (b *batchEntry) drop(ids map[NodeID]bool) {
	targets := b.targets[:0]
	for _, t := range b.targets {
		loads := t.loads[:0]
		for _, l := range t.loads {
			if !ids[l] {
				loads = append(loads, l)
			}
		}
		if len(loads) > 0 {
			t.loads = loads
			targets = append(targets, t)
		}
	}
	b.targets = targets
}

// Batch is a handle to a batch node; the node name is the batch filename.
type Batch struct {
	File
}

// BatchTarget lists the loads of a batch for one THW ID position.
type BatchTarget struct {
	Position string
	Loads    []Load
}

func (b Batch) data() *batchEntry {
	if e := b.ms.entry(b.id); e != nil && e.batch != nil {
		return e.batch
	}
	return nil
}

func (b Batch) references(id NodeID) bool {
	d := b.data()
	return d != nil && d.referencesAny(map[NodeID]bool{id: true})
}

func (b Batch) Comment() string {
	if d := b.data(); d != nil {
		return d.comment
	}
	return ""
}

func (b Batch) SetComment(c string) {
	if d := b.data(); d != nil {
		d.comment = c
	}
}

// Targets returns the targets in insertion order.
func (b Batch) Targets() []BatchTarget {
	d := b.data()
	if d == nil {
		return nil
	}
	out := make([]BatchTarget, 0, len(d.targets))
	for _, t := range d.targets {
		bt := BatchTarget{Position: t.position}
		for _, l := range t.loads {
			bt.Loads = append(bt.Loads, Load{File{ms: b.ms, id: l}})
		}
		out = append(out, bt)
	}
	return out
}

// Target returns the loads for one position.
func (b Batch) Target(position string) ([]Load, bool) {
	for _, t := range b.Targets() {
		if t.Position == position {
			return t.Loads, true
		}
	}
	return nil, false
}

func (b Batch) checkLoads(loads []Load) (*batchEntry, []NodeID, error) {
	e := b.ms.liveEntry(b.id)
	if e == nil || e.batch == nil {
		return nil, nil, arinc665.InvalidReferenceErrorf("batch %d does not exist", b.id)
	}
	ids := make([]NodeID, 0, len(loads))
	for _, l := range loads {
		if l.ms != b.ms {
			return nil, nil, arinc665.InvalidReferenceErrorf("batch %s: load %s belongs to another media set", e.name, l.Name())
		}
		le := b.ms.liveEntry(l.id)
		if le == nil || le.kind != KindLoad {
			return nil, nil, arinc665.InvalidReferenceErrorf("batch %s: load %d does not exist", e.name, l.id)
		}
		ids = append(ids, l.id)
	}
	return e.batch, ids, nil
}

// SetTarget replaces the loads of position.
func (b Batch) SetTarget(position string, loads ...Load) error {
	d, ids, err := b.checkLoads(loads)
	if err != nil {
		return err
	}
	for i := range d.targets {
		if d.targets[i].position == position {
			d.targets[i].loads = ids
			return nil
		}
	}
	d.targets = append(d.targets, batchTarget{position: position, loads: ids})
	return nil
}

// AddTarget appends load to position, merging with an existing entry for the
// same position.
func (b Batch) AddTarget(position string, load Load) error {
	d, ids, err := b.checkLoads([]Load{load})
	if err != nil {
		return err
	}
	for i := range d.targets {
		if d.targets[i].position == position {
			d.targets[i].loads = append(d.targets[i].loads, ids...)
			return nil
		}
	}
	d.targets = append(d.targets, batchTarget{position: position, loads: ids})
	return nil
}

func (b Batch) RemoveTarget(position string) bool {
	d := b.data()
	if d == nil {
		return false
	}
	for i, t := range d.targets {
		if t.position == position {
			d.targets = append(d.targets[:i:i], d.targets[i+1:]...)
			return true
		}
	}
	return false
}
