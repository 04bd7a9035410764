package stripe

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/meshstream/meshstream/geometry"
)

var (
	// ErrPartitionFailed is returned when the geometry cannot be partitioned
	// within the limits of the transport. No stripes are returned in that case.
	ErrPartitionFailed = errors.New("partition failed")
	// ErrInvalidGeometry is returned for inconsistent input arrays
	ErrInvalidGeometry = errors.New("invalid geometry")
)

// Split partitions g into stripes of at most EffectiveLimit(g.Kind, limit)
// local vertices. The relative order of vertices and indices is preserved.
func Split(g Geometry, limit int) (stripes []Stripe, err error) {
	defer func() {
		// Out of memory is fatal and never gets here. This only turns
		// indexing bugs into an error instead of a crash of the server.
		if r := recover(); r != nil {
			stripes = nil
			err = errors.Wrapf(ErrPartitionFailed, "%v", r)
		}
	}()

	if err := validate(&g); err != nil {
		return nil, err
	}
	if limit > 0 && limit < g.Kind.Arity() {
		return nil, errors.Wrapf(ErrPartitionFailed,
			"limit %d cannot hold a single %s", limit, g.Kind)
	}
	limit = EffectiveLimit(g.Kind, limit)
	if n := minStripes(&g, limit); n > MaxStripes {
		return nil, errors.Wrapf(ErrPartitionFailed,
			"at least %d stripes of %d vertices needed, maximum is %d", n, limit, MaxStripes)
	}

	switch {
	case g.VertexCount() <= limit:
		stripes = single(&g)
	case len(g.Indices) == 0:
		stripes = sequential(&g, nil, limit)
	case g.Kind == geometry.Point:
		stripes = sequential(&g, g.Indices, limit)
	default:
		stripes = indexed(&g, limit)
	}
	if len(stripes) > MaxStripes {
		// Decoration duplicates and greedy packing can exceed the estimate
		return nil, errors.Wrapf(ErrPartitionFailed,
			"%d stripes, maximum is %d", len(stripes), MaxStripes)
	}
	return stripes, nil
}

// minStripes is a lower bound of the number of stripes Split produces
func minStripes(g *Geometry, limit int) int {
	return (g.VertexCount() + limit - 1) / limit
}

func validate(g *Geometry) error {
	if !g.Kind.Valid() {
		return errors.Wrapf(ErrInvalidGeometry, "kind %d", g.Kind)
	}
	if len(g.Vertices)%3 != 0 {
		return errors.Wrap(ErrInvalidGeometry, "vertex array length not a multiple of 3")
	}
	if len(g.Normals) > 0 && len(g.Normals) != len(g.Vertices) {
		return errors.Wrap(ErrInvalidGeometry, "normal count does not match vertex count")
	}
	if len(g.Colors) > 0 && len(g.Colors) != len(g.Vertices) {
		return errors.Wrap(ErrInvalidGeometry, "color count does not match vertex count")
	}
	if len(g.Indices)%g.Kind.Arity() != 0 {
		return errors.Wrapf(ErrInvalidGeometry, "index count not a multiple of %d", g.Kind.Arity())
	}
	if len(g.LineIndices)%2 != 0 {
		return errors.Wrap(ErrInvalidGeometry, "odd line index count")
	}
	n := int32(g.VertexCount())
	for name, list := range map[string][]int32{
		"indices":       g.Indices,
		"point indices": g.PointIndices,
		"line indices":  g.LineIndices,
	} {
		for i, idx := range list {
			if idx-g.Bias < 0 || idx-g.Bias >= n {
				return errors.Wrapf(ErrInvalidGeometry, "%s[%d] = %d out of range", name, i, idx)
			}
		}
	}
	return nil
}

// single returns one stripe that aliases the primitive arrays
func single(g *Geometry) []Stripe {
	s := Stripe{
		Ownership:    Shared,
		Vertices:     g.Vertices,
		Normals:      g.Normals,
		Colors:       g.Colors,
		Indices:      narrow(g.Indices, g.Bias),
		PointIndices: narrow(g.PointIndices, g.Bias),
		LineIndices:  narrow(g.LineIndices, g.Bias),
	}
	s.DecorationStart = s.VertexCount()
	return []Stripe{s}
}

func narrow(list []int32, bias int32) []uint16 {
	if len(list) == 0 {
		return nil
	}
	out := make([]uint16, len(list))
	for i, idx := range list {
		out[i] = uint16(idx - bias)
	}
	return out
}

// sequential cuts the vertex list into contiguous chunks without local
// indices. If order is set, it is an indexed point set: the chunks are runs
// of order, a repeated index reuses its local vertex, and vertices that no
// index references are appended afterwards.
func sequential(g *Geometry, order []int32, limit int) []Stripe {
	n := g.VertexCount()
	if order != nil {
		n = len(order)
	}
	chunk := limit - limit%g.Kind.Arity()

	var works []*work
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		w := newWork(end - start)
		for i := start; i < end; i++ {
			v := int32(i)
			if order != nil {
				v = order[i] - g.Bias
			}
			local := w.add(v)
			if order != nil {
				w.indices = append(w.indices, local)
			}
		}
		works = append(works, w)
	}

	b := builder{g: g, limit: limit, works: works}
	if order != nil {
		b.addUnreferenced()
	}
	b.assignPoints()
	b.assignLines()
	return b.materialize()
}

// indexed packs whole index groups greedily into stripes, starting a new
// stripe when the next group would push the number of distinct vertices
// above the limit.
func indexed(g *Geometry, limit int) []Stripe {
	arity := g.Kind.Arity()
	b := builder{g: g, limit: limit}
	cur := newWork(limit)
	var group [3]int32
	for i := 0; i < len(g.Indices); i += arity {
		fresh := 0
		for k := 0; k < arity; k++ {
			v := g.Indices[i+k] - g.Bias
			group[k] = v
			if _, ok := cur.slot[v]; ok {
				continue
			}
			dup := false
			for j := 0; j < k; j++ {
				if group[j] == v {
					dup = true
					break
				}
			}
			if !dup {
				fresh++
			}
		}
		if len(cur.global)+fresh > limit {
			b.works = append(b.works, cur)
			cur = newWork(limit)
		}
		for k := 0; k < arity; k++ {
			cur.indices = append(cur.indices, cur.add(group[k]))
		}
	}
	b.works = append(b.works, cur)

	b.addUnreferenced()
	b.assignPoints()
	b.assignLines()
	return b.materialize()
}

// work is a stripe under construction
type work struct {
	slot            map[int32]uint16 // primitive vertex -> local vertex
	global          []int32
	indices         []uint16
	points          []uint16
	lines           []uint16
	decorationStart int // -1 if no decoration duplicates were added
}

func newWork(sizeHint int) *work {
	if sizeHint > MaxIndexRange {
		sizeHint = MaxIndexRange
	}
	return &work{
		slot:            make(map[int32]uint16, sizeHint),
		global:          make([]int32, 0, sizeHint),
		decorationStart: -1,
	}
}

// add returns the local slot of primitive vertex v, adding it if needed
func (w *work) add(v int32) uint16 {
	if local, ok := w.slot[v]; ok {
		return local
	}
	local := uint16(len(w.global))
	w.slot[v] = local
	w.global = append(w.global, v)
	return local
}

func (w *work) has(v int32) bool {
	_, ok := w.slot[v]
	return ok
}

type builder struct {
	g     *Geometry
	limit int
	works []*work
}

// addUnreferenced adds vertices that no index references to the last
// stripe, opening new stripes when it is full, so that every primitive
// vertex is present in some stripe.
func (b *builder) addUnreferenced() {
	n := b.g.VertexCount()
	seen := make([]bool, n)
	for _, w := range b.works {
		for _, v := range w.global {
			seen[v] = true
		}
	}
	last := b.works[len(b.works)-1]
	for v := 0; v < n; v++ {
		if seen[v] {
			continue
		}
		if len(last.global) >= b.limit {
			last = newWork(b.limit)
			b.works = append(b.works, last)
		}
		last.add(int32(v))
	}
}

// assignPoints gives every point index to the first stripe holding its vertex
func (b *builder) assignPoints() {
	for _, p := range b.g.PointIndices {
		v := p - b.g.Bias
		for _, w := range b.works {
			if local, ok := w.slot[v]; ok {
				w.points = append(w.points, local)
				break
			}
		}
	}
}

// assignLines gives every line decoration pair to the first stripe holding
// both endpoints. Pairs split across stripes are resolved by duplicating
// the missing endpoints into the last stripe.
func (b *builder) assignLines() {
	lines := b.g.LineIndices
	var unresolved []int
	for i := 0; i+1 < len(lines); i += 2 {
		va, vb := lines[i]-b.g.Bias, lines[i+1]-b.g.Bias
		placed := false
		for _, w := range b.works {
			if w.has(va) && w.has(vb) {
				w.lines = append(w.lines, w.slot[va], w.slot[vb])
				placed = true
				break
			}
		}
		if !placed {
			unresolved = append(unresolved, i)
		}
	}

	for _, i := range unresolved {
		va, vb := lines[i]-b.g.Bias, lines[i+1]-b.g.Bias
		last := b.works[len(b.works)-1]
		need := 0
		if !last.has(va) {
			need++
		}
		if !last.has(vb) && vb != va {
			need++
		}
		if len(last.global)+need > b.limit {
			last = newWork(need)
			last.decorationStart = 0
			b.works = append(b.works, last)
		}
		if need > 0 && last.decorationStart < 0 {
			last.decorationStart = len(last.global)
		}
		last.lines = append(last.lines, last.add(va), last.add(vb))
	}
}

func (b *builder) materialize() []Stripe {
	g := b.g
	stripes := make([]Stripe, 0, len(b.works))
	for _, w := range b.works {
		n := len(w.global)
		s := Stripe{
			Ownership:       Owned,
			Vertices:        make([]float32, 3*n),
			Global:          w.global,
			Indices:         w.indices,
			PointIndices:    w.points,
			LineIndices:     w.lines,
			DecorationStart: n,
		}
		if w.decorationStart >= 0 {
			s.DecorationStart = w.decorationStart
		}
		if len(g.Normals) > 0 {
			s.Normals = make([]float32, 3*n)
		}
		if len(g.Colors) > 0 {
			s.Colors = make([]uint8, 3*n)
		}
		for i, v := range w.global {
			copy(s.Vertices[3*i:3*i+3], g.Vertices[3*v:3*v+3])
			if s.Normals != nil {
				copy(s.Normals[3*i:3*i+3], g.Normals[3*v:3*v+3])
			}
			if s.Colors != nil {
				copy(s.Colors[3*i:3*i+3], g.Colors[3*v:3*v+3])
			}
		}
		stripes = append(stripes, s)
	}
	return stripes
}

// Describe returns a short summary of a stripe list for log messages
func Describe(stripes []Stripe) string {
	total := 0
	dups := 0
	for i := range stripes {
		total += stripes[i].VertexCount()
		dups += stripes[i].VertexCount() - stripes[i].DecorationStart
	}
	return fmt.Sprintf("%d stripes, %d local vertices (%d decoration duplicates)",
		len(stripes), total, dups)
}
