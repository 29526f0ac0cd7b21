package datastore

import (
	"slices"
	"sort"

	"ledgerlens/pkg/contracts/domain"
)

// IndexKind names the structure behind an index
type IndexKind string

const (
	RangeIndex       IndexKind = "range"
	CategoricalIndex IndexKind = "categorical"
)

// IndexKindFor returns the index structure used for a column type
func IndexKindFor(t domain.DataType) IndexKind {
	if t == domain.TypeString {
		return CategoricalIndex
	}
	return RangeIndex
}

type idSet map[domain.RowID]struct{}

func (s idSet) sorted() []domain.RowID {
	out := make([]domain.RowID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (s idSet) addAll(o idSet) {
	for id := range o {
		s[id] = struct{}{}
	}
}

// intersect returns the members of every set. Sets are visited smallest
// first so the working set only shrinks.
func intersect(sets []idSet) idSet {
	if len(sets) == 0 {
		return nil
	}
	sort.SliceStable(sets, func(i, j int) bool { return len(sets[i]) < len(sets[j]) })
	out := make(idSet, len(sets[0]))
	out.addAll(sets[0])
	for _, s := range sets[1:] {
		if len(out) == 0 {
			break
		}
		for id := range out {
			if _, ok := s[id]; !ok {
				delete(out, id)
			}
		}
	}
	return out
}

// index maps column values to row IDs. Implementations are not safe for
// concurrent use; the owning dataset's lock covers them.
type index interface {
	Kind() IndexKind
	add(id domain.RowID, v domain.Value)
	remove(id domain.RowID, v domain.Value)
	// candidates returns the IDs whose value satisfies p
	candidates(p predicate) idSet
	// visit calls fn for every bucket, including the missing bucket
	visit(fn func(key domain.Value, missing bool, ids idSet))
	keys() int
}

func newIndex(kind IndexKind) index {
	if kind == CategoricalIndex {
		return &categoricalIndex{buckets: make(map[string]*bucket), missing: make(idSet)}
	}
	return &rangeIndex{missing: make(idSet)}
}

type bucket struct {
	key domain.Value
	ids idSet
}

// rangeIndex keeps distinct keys sorted for binary search
type rangeIndex struct {
	entries []*bucket
	missing idSet
}

func (ix *rangeIndex) Kind() IndexKind { return RangeIndex }

func (ix *rangeIndex) keys() int { return len(ix.entries) }

// lowerBound returns the position of the first key >= v
func (ix *rangeIndex) lowerBound(v domain.Value) int {
	return sort.Search(len(ix.entries), func(i int) bool { return ix.entries[i].key.Compare(v) >= 0 })
}

// upperBound returns the position of the first key > v
func (ix *rangeIndex) upperBound(v domain.Value) int {
	return sort.Search(len(ix.entries), func(i int) bool { return ix.entries[i].key.Compare(v) > 0 })
}

func (ix *rangeIndex) add(id domain.RowID, v domain.Value) {
	if !v.Valid() {
		ix.missing[id] = struct{}{}
		return
	}
	i := ix.lowerBound(v)
	if i < len(ix.entries) && ix.entries[i].key.Equal(v) {
		ix.entries[i].ids[id] = struct{}{}
		return
	}
	ix.entries = slices.Insert(ix.entries, i, &bucket{key: v, ids: idSet{id: {}}})
}

func (ix *rangeIndex) remove(id domain.RowID, v domain.Value) {
	if !v.Valid() {
		delete(ix.missing, id)
		return
	}
	i := ix.lowerBound(v)
	if i >= len(ix.entries) || !ix.entries[i].key.Equal(v) {
		return
	}
	delete(ix.entries[i].ids, id)
	if len(ix.entries[i].ids) == 0 {
		ix.entries = slices.Delete(ix.entries, i, i+1)
	}
}

func (ix *rangeIndex) span(from, to int) idSet {
	out := make(idSet)
	for _, e := range ix.entries[from:to] {
		out.addAll(e.ids)
	}
	return out
}

func (ix *rangeIndex) candidates(p predicate) idSet {
	switch p.op {
	case OpEq:
		return ix.span(ix.lowerBound(p.value), ix.upperBound(p.value))
	case OpGt:
		return ix.span(ix.upperBound(p.value), len(ix.entries))
	case OpLt:
		return ix.span(0, ix.lowerBound(p.value))
	case OpBetween:
		from, to := ix.lowerBound(p.lo), ix.upperBound(p.hi)
		if from >= to {
			return make(idSet)
		}
		return ix.span(from, to)
	case OpIn:
		out := make(idSet)
		for _, v := range p.set {
			out.addAll(ix.span(ix.lowerBound(v), ix.upperBound(v)))
		}
		return out
	}
	out := make(idSet)
	for _, e := range ix.entries {
		if p.match(e.key) {
			out.addAll(e.ids)
		}
	}
	return out
}

func (ix *rangeIndex) visit(fn func(domain.Value, bool, idSet)) {
	for _, e := range ix.entries {
		fn(e.key, false, e.ids)
	}
	fn(domain.NullValue(), true, ix.missing)
}

// categoricalIndex is an exact-match map over distinct values
type categoricalIndex struct {
	buckets map[string]*bucket
	missing idSet
}

func (ix *categoricalIndex) Kind() IndexKind { return CategoricalIndex }

func (ix *categoricalIndex) keys() int { return len(ix.buckets) }

func (ix *categoricalIndex) add(id domain.RowID, v domain.Value) {
	if !v.Valid() {
		ix.missing[id] = struct{}{}
		return
	}
	b, ok := ix.buckets[v.Key()]
	if !ok {
		b = &bucket{key: v, ids: make(idSet)}
		ix.buckets[v.Key()] = b
	}
	b.ids[id] = struct{}{}
}

func (ix *categoricalIndex) remove(id domain.RowID, v domain.Value) {
	if !v.Valid() {
		delete(ix.missing, id)
		return
	}
	b, ok := ix.buckets[v.Key()]
	if !ok {
		return
	}
	delete(b.ids, id)
	if len(b.ids) == 0 {
		delete(ix.buckets, v.Key())
	}
}

func (ix *categoricalIndex) candidates(p predicate) idSet {
	out := make(idSet)
	switch p.op {
	case OpEq:
		if b, ok := ix.buckets[p.value.Key()]; ok {
			out.addAll(b.ids)
		}
		return out
	case OpIn:
		for key := range p.set {
			if b, ok := ix.buckets[key]; ok {
				out.addAll(b.ids)
			}
		}
		return out
	}
	for _, b := range ix.buckets {
		if p.match(b.key) {
			out.addAll(b.ids)
		}
	}
	return out
}

func (ix *categoricalIndex) visit(fn func(domain.Value, bool, idSet)) {
	for _, b := range ix.buckets {
		fn(b.key, false, b.ids)
	}
	fn(domain.NullValue(), true, ix.missing)
}
