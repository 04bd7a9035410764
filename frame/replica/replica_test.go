package replica

import (
	"fmt"
	"testing"

	"cogentcore.org/core/math32"
	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshstream/meshstream/frame"
	"github.com/meshstream/meshstream/geometry"
	"github.com/meshstream/meshstream/scene"
)

// client is a replica that receives frames from an encoder
type client struct {
	t      *testing.T
	scene  *Scene
	frames int
	ops    map[frame.Op]int // records of the last cycle
}

func newClient(t *testing.T) *client {
	return &client{t: t, scene: New()}
}

func (c *client) send(b []byte) error {
	c.frames++
	recs, err := frame.Decode(b)
	require.NoError(c.t, err)
	for _, r := range recs {
		c.ops[r.Op]++
	}
	return c.scene.ApplyFrame(b)
}

func (c *client) flush(s *scene.Snapshot, full bool, max datasize.ByteSize) {
	c.ops = make(map[frame.Op]int)
	e, err := frame.NewEncoder(max, c.send)
	require.NoError(c.t, err)
	if full {
		require.NoError(c.t, frame.WriteFull(e, s))
	} else {
		require.NoError(c.t, frame.WriteDelta(e, s))
	}
	require.NoError(c.t, c.scene.Validate())
}

// elements expands the connectivity of a stored primitive into positions
func elements(p scene.Primitive, bias int32) map[string]int {
	arity := p.Kind.Arity()
	out := make(map[string]int)
	n := len(p.Indices)
	if n == 0 {
		n = p.VertexCount()
	}
	for e := 0; e+arity <= n; e += arity {
		el := make([]geometry.Vec3, arity)
		for k := range el {
			v := e + k
			if len(p.Indices) > 0 {
				v = int(p.Indices[e+k] - bias)
			}
			el[k] = geometry.At(p.Vertices, v)
		}
		out[fmt.Sprint(el)]++
	}
	return out
}

func received(p *Primitive) map[string]int {
	out := make(map[string]int)
	for _, el := range p.Elements() {
		out[fmt.Sprint(el)]++
	}
	return out
}

func gridFields(w, h int) []scene.FieldToken {
	vertices := make([]float32, 0, 3*w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			vertices = append(vertices, float32(x), float32(y), 0)
		}
	}
	var indices, lines []uint32
	for y := 0; y+1 < h; y++ {
		for x := 0; x+1 < w; x++ {
			i := uint32(y*w + x)
			indices = append(indices, i, i+1, i+uint32(w)+1, i, i+uint32(w)+1, i+uint32(w))
			lines = append(lines, i, i+1)
		}
	}
	return []scene.FieldToken{
		scene.MustField(geometry.Triangle, geometry.RoleVertices, vertices),
		scene.MustField(geometry.Triangle, geometry.RoleIndices, indices),
		scene.MustField(geometry.Triangle, geometry.RoleLineIndices, lines),
	}
}

func newScene(t *testing.T, limit int) *scene.Context {
	ctx, err := scene.New(0, scene.DefaultCamera(), scene.WithStripeLimit(limit))
	require.NoError(t, err)
	return ctx
}

func TestFullRoundTrip(t *testing.T) {
	ctx := newScene(t, 500)
	grid, err := ctx.AddPrimitive("grid", geometry.Triangle, scene.DefaultAttrs, gridFields(40, 30))
	require.NoError(t, err)

	path, err := ctx.AddPrimitive("path", geometry.Line, scene.DefaultAttrs, []scene.FieldToken{
		scene.MustField(geometry.Line, geometry.RoleVertices, []float32{0, 0, 0, 1, 0, 0, 1, 1, 0}),
		scene.MustField(geometry.Line, geometry.RoleIndices, []int8{0, 1, 1, 2}),
		scene.MustField(geometry.Line, geometry.RoleColors, []float32{1, 0, 0, 0, 1, 0, 0, 0, 1}),
	})
	require.NoError(t, err)
	require.NoError(t, ctx.AddEndCaps(path, 0.2, []int32{2}))

	cloud := make([]float64, 3*1200)
	for i := range cloud {
		cloud[i] = float64(i)
	}
	_, err = ctx.AddPrimitive("cloud", geometry.Point, scene.DefaultAttrs|scene.AttrShowPoints, []scene.FieldToken{
		scene.MustField(geometry.Point, geometry.RoleVertices, cloud),
	})
	require.NoError(t, err)

	c := newClient(t)
	c.flush(ctx.Snapshot(), true, 8*datasize.KB)
	assert.Greater(t, c.frames, 5)
	assert.Equal(t, 1, c.ops[frame.OpInit])
	assert.Equal(t, 3, c.ops[frame.OpCreate])
	assert.Equal(t, 1, c.ops[frame.OpEndOfFrame])
	assert.Equal(t, c.frames-1, c.ops[frame.OpContinue])
	assert.Zero(t, c.ops[frame.OpEditField])

	rs := c.scene
	require.NotNil(t, rs.Init)
	assert.Equal(t, uint32(500), rs.Init.Limit)
	assert.Equal(t, scene.DefaultCamera(), rs.Init.Camera)
	assert.Equal(t, 1, rs.Cycles)
	require.Len(t, rs.Primitives, 3)

	for _, id := range ctx.IDs() {
		p, err := ctx.Get(id)
		require.NoError(t, err)
		rp := rs.Primitives[uint32(id)]
		require.NotNil(t, rp, p.Name)
		assert.Equal(t, p.Name, rp.Name)
		assert.Equal(t, p.Kind, rp.Kind)
		assert.Equal(t, p.Attrs, rp.Attrs)
		assert.Len(t, rp.Stripes, len(p.Stripes))
		assert.Equal(t, elements(p, 0), received(rp), p.Name)
		for i := range rp.Stripes {
			assert.LessOrEqual(t, rp.Stripes[i].VertexCount(), 500)
		}
	}

	g := rs.Primitives[uint32(grid)]
	assert.Greater(t, len(g.Stripes), 1)
	assert.Len(t, g.Lines(), 39*29, "every decoration line arrives once")
	for _, st := range g.Stripes {
		assert.Len(t, st.Normals, len(st.Vertices))
	}

	pr := rs.ByName("path")
	require.NotNil(t, pr)
	assert.Len(t, pr.Stripes[0].EndCapVertices, geometry.EndCapFloats)
	assert.Len(t, pr.Stripes[0].EndCapNormals, geometry.EndCapFloats)
	assert.Equal(t, []uint8{255, 0, 0, 0, 255, 0, 0, 0, 255}, pr.Stripes[0].Colors)
	assert.Equal(t, math32.Vec3(1, 1, 0), geometry.At(pr.Stripes[0].EndCapVertices, 0))
}

func TestDeltaColorsOnly(t *testing.T) {
	ctx := newScene(t, 500)
	id, err := ctx.AddPrimitive("grid", geometry.Triangle, scene.DefaultAttrs, gridFields(40, 30))
	require.NoError(t, err)
	c := newClient(t)
	c.flush(ctx.Snapshot(), true, frame.DefaultMaxFrameSize)
	stripes := len(c.scene.Primitives[uint32(id)].Stripes)
	require.Greater(t, stripes, 1)

	colors := make([]uint8, 3*40*30)
	for i := range colors {
		colors[i] = 7
	}
	require.NoError(t, ctx.UpdatePrimitive(id,
		scene.MustField(geometry.Triangle, geometry.RoleColors, colors)))

	c.flush(ctx.Snapshot(), false, frame.DefaultMaxFrameSize)
	assert.Equal(t, map[frame.Op]int{
		frame.OpEditField:  stripes,
		frame.OpEndOfFrame: 1,
	}, c.ops)
	for _, st := range c.scene.Primitives[uint32(id)].Stripes {
		require.Len(t, st.Colors, len(st.Vertices))
		assert.Equal(t, uint8(7), st.Colors[0])
	}

	// Nothing changed, nothing is sent
	framesBefore := c.frames
	c.flush(ctx.Snapshot(), false, frame.DefaultMaxFrameSize)
	assert.Equal(t, framesBefore, c.frames)
	assert.Empty(t, c.ops)
}

func TestDeltaClearAll(t *testing.T) {
	ctx := newScene(t, 0)
	for i := 0; i < 3; i++ {
		_, err := ctx.AddPrimitive(fmt.Sprintf("grid%d", i), geometry.Triangle,
			scene.DefaultAttrs, gridFields(4, 4))
		require.NoError(t, err)
	}
	c := newClient(t)
	c.flush(ctx.Snapshot(), true, frame.DefaultMaxFrameSize)
	require.Len(t, c.scene.Primitives, 3)

	require.NoError(t, ctx.RemovePrimitive(1))
	ctx.ClearAll()
	c.flush(ctx.Snapshot(), false, frame.DefaultMaxFrameSize)
	assert.Equal(t, map[frame.Op]int{
		frame.OpClearAll:   1,
		frame.OpEndOfFrame: 1,
	}, c.ops)
	assert.Empty(t, c.scene.Primitives)

	// Survivors created after the clear are sent with it
	_, err := ctx.AddPrimitive("late", geometry.Triangle, scene.DefaultAttrs, gridFields(4, 4))
	require.NoError(t, err)
	ctx.ClearAll()
	_, err = ctx.AddPrimitive("later", geometry.Triangle, scene.DefaultAttrs, gridFields(4, 4))
	require.NoError(t, err)
	c.flush(ctx.Snapshot(), false, frame.DefaultMaxFrameSize)
	assert.Equal(t, 1, c.ops[frame.OpClearAll])
	assert.Equal(t, 1, c.ops[frame.OpCreate])
	assert.Zero(t, c.ops[frame.OpDelete])
	require.NotNil(t, c.scene.ByName("later"))
}

func TestDeltaOrder(t *testing.T) {
	ctx := newScene(t, 0)
	c := newClient(t)
	c.flush(ctx.Snapshot(), true, frame.DefaultMaxFrameSize)

	// Created and edited within one cycle: a single CREATE
	id, err := ctx.AddPrimitive("quad", geometry.Triangle, scene.DefaultAttrs, gridFields(2, 2))
	require.NoError(t, err)
	require.NoError(t, ctx.UpdatePrimitive(id,
		scene.MustField(geometry.Triangle, geometry.RoleColors, make([]uint8, 12))))
	require.NoError(t, ctx.SetAttributes(id, scene.AttrVisible))
	c.flush(ctx.Snapshot(), false, frame.DefaultMaxFrameSize)
	assert.Equal(t, 1, c.ops[frame.OpCreate])
	assert.Zero(t, c.ops[frame.OpEditField])
	assert.Zero(t, c.ops[frame.OpSetAttributes])
	assert.Equal(t, scene.AttrVisible, c.scene.Primitives[uint32(id)].Attrs)

	// Attributes only
	require.NoError(t, ctx.SetAttributes(id, scene.DefaultAttrs))
	c.flush(ctx.Snapshot(), false, frame.DefaultMaxFrameSize)
	assert.Equal(t, map[frame.Op]int{
		frame.OpSetAttributes: 1,
		frame.OpEndOfFrame:    1,
	}, c.ops)

	// Removed and re-added under the same name
	require.NoError(t, ctx.RemovePrimitive(id))
	id2, err := ctx.AddPrimitive("quad", geometry.Triangle, scene.DefaultAttrs, gridFields(3, 3))
	require.NoError(t, err)
	c.flush(ctx.Snapshot(), false, frame.DefaultMaxFrameSize)
	assert.Equal(t, 1, c.ops[frame.OpDelete])
	assert.Equal(t, 1, c.ops[frame.OpCreate])
	require.Len(t, c.scene.Primitives, 1)
	assert.NotNil(t, c.scene.Primitives[uint32(id2)])
}

func TestDeltaLayout(t *testing.T) {
	ctx := newScene(t, 4)
	id, err := ctx.AddPrimitive("points", geometry.Point, scene.DefaultAttrs, []scene.FieldToken{
		scene.MustField(geometry.Point, geometry.RoleVertices, make([]float32, 3*6)),
	})
	require.NoError(t, err)
	c := newClient(t)
	c.flush(ctx.Snapshot(), true, frame.DefaultMaxFrameSize)
	require.Len(t, c.scene.Primitives[uint32(id)].Stripes, 2)

	require.NoError(t, ctx.UpdatePrimitive(id,
		scene.MustField(geometry.Point, geometry.RoleVertices, make([]float32, 3*9))))
	c.flush(ctx.Snapshot(), false, frame.DefaultMaxFrameSize)
	assert.Equal(t, 1, c.ops[frame.OpDelete])
	assert.Equal(t, 1, c.ops[frame.OpCreate])
	assert.Zero(t, c.ops[frame.OpEditField])
	assert.Len(t, c.scene.Primitives[uint32(id)].Stripes, 3)
}

func TestIndexedPointsRoundTrip(t *testing.T) {
	ctx := newScene(t, 4)
	vertices := make([]float32, 3*14)
	for i := range vertices {
		vertices[i] = float32(i)
	}
	// Vertex 5 is drawn twice, 8 to 13 are never drawn and end up in a
	// stripe without indices
	indices := []int32{5, 0, 5, 1, 2, 3, 4, 6, 7, 5}
	id, err := ctx.AddPrimitive("cloud", geometry.Point, scene.DefaultAttrs, []scene.FieldToken{
		scene.MustField(geometry.Point, geometry.RoleVertices, vertices),
		scene.MustField(geometry.Point, geometry.RoleIndices, indices),
	})
	require.NoError(t, err)

	c := newClient(t)
	c.flush(ctx.Snapshot(), true, frame.MinFrameSize)

	p := c.scene.Primitives[uint32(id)]
	require.NotNil(t, p)
	require.Len(t, p.Stripes, 4)
	assert.Empty(t, p.Stripes[3].Indices)
	assert.True(t, p.Indexed())
	sp, err := ctx.Get(id)
	require.NoError(t, err)
	assert.Equal(t, elements(sp, 0), received(p))
	assert.Len(t, p.Elements(), len(indices))

	// The unreferenced vertices are still transferred
	seen := make(map[geometry.Vec3]bool)
	for _, s := range p.Stripes {
		for i := 0; i < s.VertexCount(); i++ {
			seen[geometry.At(s.Vertices, i)] = true
		}
	}
	assert.Len(t, seen, 14)
}

func TestApplyErrors(t *testing.T) {
	rs := New()
	enc := func(write func(e *frame.Encoder) error) []byte {
		var out []byte
		e, err := frame.NewEncoder(frame.MinFrameSize, func(b []byte) error {
			out = append([]byte(nil), b...)
			return nil
		})
		require.NoError(t, err)
		require.NoError(t, write(e))
		require.NoError(t, e.EndOfFrame(1))
		return out
	}

	deleteFrame := enc(func(e *frame.Encoder) error { return e.Delete(5) })
	assert.ErrorIs(t, rs.ApplyFrame(deleteFrame), ErrNotInitialized)

	require.NoError(t, rs.ApplyFrame(enc(func(e *frame.Encoder) error {
		return e.Init(frame.Init{Version: frame.Version})
	})))
	assert.ErrorIs(t, rs.ApplyFrame(deleteFrame), ErrUnknownPrimitive)

	edit := enc(func(e *frame.Encoder) error {
		return e.Array(frame.OpEditField, 5, 0, geometry.RoleColors, []uint8{1, 2, 3})
	})
	assert.ErrorIs(t, rs.ApplyFrame(edit), ErrUnknownPrimitive)

	create := enc(func(e *frame.Encoder) error {
		return e.Create(frame.Create{ID: 5, Kind: geometry.Point, Name: "p", Stripes: 1})
	})
	require.NoError(t, rs.ApplyFrame(create))
	assert.ErrorIs(t, rs.ApplyFrame(create), ErrDuplicate)
	require.NoError(t, rs.ApplyFrame(edit))
	assert.Error(t, rs.Validate(), "colors without vertices")
}
