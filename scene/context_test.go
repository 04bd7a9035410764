package scene

import (
	"strings"
	"testing"
	"time"

	"cogentcore.org/core/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshstream/meshstream/geometry"
	"github.com/meshstream/meshstream/stripe"
)

func newTestContext(t *testing.T, bias int, opts ...Option) *Context {
	c, err := New(bias, DefaultCamera(), opts...)
	require.NoError(t, err)
	return c
}

// quad is two triangles sharing an edge, with zero-based indices
var (
	quadVertices = []float32{
		0, 0, 0,
		1, 0, 0,
		1, 1, 0,
		0, 1, 0,
	}
	quadIndices = []int32{0, 1, 2, 0, 2, 3}
)

func quadFields() []FieldToken {
	return []FieldToken{
		MustField(geometry.Triangle, geometry.RoleVertices, quadVertices),
		MustField(geometry.Triangle, geometry.RoleIndices, quadIndices),
	}
}

func TestNew(t *testing.T) {
	_, err := New(2, DefaultCamera())
	assert.ErrorIs(t, err, ErrInvalidBias)

	c := newTestContext(t, 1, WithName("test"))
	assert.Equal(t, "test", c.Name())
	assert.Equal(t, 1, c.Bias())
	assert.Equal(t, DefaultCamera(), c.Camera())
}

func TestAddPrimitive(t *testing.T) {
	c := newTestContext(t, 0)
	id, err := c.AddPrimitive("quad", geometry.Triangle, DefaultAttrs, quadFields())
	require.NoError(t, err)
	assert.Equal(t, PrimitiveID(1), id)

	p, err := c.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "quad", p.Name)
	assert.Equal(t, 4, p.VertexCount())
	require.Len(t, p.Stripes, 1)
	assert.Equal(t, stripe.Shared, p.Stripes[0].Ownership)

	// Normals were derived, all pointing up the z axis
	require.Len(t, p.Normals, 12)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 1, geometry.At(p.Normals, i).Z, 1e-6)
	}

	got, ok := c.Lookup("quad")
	assert.True(t, ok)
	assert.Equal(t, id, got)

	// Generated name
	id2, err := c.AddPrimitive("", geometry.Point, DefaultAttrs, []FieldToken{
		MustField(geometry.Point, geometry.RoleVertices, []float64{1, 2, 3}),
	})
	require.NoError(t, err)
	p2, err := c.Get(id2)
	require.NoError(t, err)
	assert.Equal(t, "primitive-2", p2.Name)
	assert.Empty(t, p2.Normals, "no normals for points")

	assert.Equal(t, []PrimitiveID{1, 2}, c.IDs())
	assert.Equal(t, Stats{Primitives: 2, Stripes: 2, Vertices: 5}, c.Stats())
}

func TestAddPrimitiveFaceNormal(t *testing.T) {
	c := newTestContext(t, 0)
	id, err := c.AddPrimitive("plane", geometry.Triangle, DefaultAttrs, quadFields(),
		WithFaceNormal(math32.Vec3(0, 0, 1)))
	require.NoError(t, err)
	p, err := c.Get(id)
	require.NoError(t, err)
	assert.Empty(t, p.Normals)
	require.NotNil(t, p.Appearance.FaceNormal)
}

func TestAddPrimitiveErrors(t *testing.T) {
	c := newTestContext(t, 0)
	_, err := c.AddPrimitive("quad", geometry.Triangle, DefaultAttrs, quadFields())
	require.NoError(t, err)

	tests := []struct {
		name   string
		kind   geometry.Kind
		fields []FieldToken
		err    error
	}{
		{
			name:   "quad",
			kind:   geometry.Triangle,
			fields: quadFields(),
			err:    ErrDuplicateName,
		},
		{
			name: "no-vertices",
			kind: geometry.Triangle,
			fields: []FieldToken{
				MustField(geometry.Triangle, geometry.RoleIndices, quadIndices),
			},
			err: ErrMissingVertices,
		},
		{
			name: "color-count",
			kind: geometry.Triangle,
			fields: append(quadFields(),
				MustField(geometry.Triangle, geometry.RoleColors, []uint8{1, 2, 3, 4, 5, 6})),
			err: ErrLengthMismatch,
		},
		{
			name: "normal-count",
			kind: geometry.Triangle,
			fields: append(quadFields(),
				MustField(geometry.Triangle, geometry.RoleNormals, []float32{0, 0, 1})),
			err: ErrLengthMismatch,
		},
		{
			name: "index-range",
			kind: geometry.Triangle,
			fields: []FieldToken{
				MustField(geometry.Triangle, geometry.RoleVertices, quadVertices),
				MustField(geometry.Triangle, geometry.RoleIndices, []int32{0, 1, 4}),
			},
			err: ErrIndexOutOfRange,
		},
		{
			name: "kind-mismatch",
			kind: geometry.Line,
			fields: []FieldToken{
				MustField(geometry.Triangle, geometry.RoleVertices, quadVertices),
			},
			err: ErrInvalidFieldType,
		},
		{
			name: "kind",
			kind: geometry.Kind(9),
			err:  ErrUnsupportedPrimitiveKind,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.AddPrimitive(tt.name, tt.kind, DefaultAttrs, tt.fields)
			assert.ErrorIs(t, err, tt.err)
			if tt.err != ErrDuplicateName {
				_, exists := c.Lookup(tt.name)
				assert.False(t, exists)
			}
		})
	}
	assert.Equal(t, 1, c.Stats().Primitives)
}

func TestAddPrimitiveNameLength(t *testing.T) {
	c := newTestContext(t, 0)
	_, err := c.AddPrimitive(strings.Repeat("n", MaxNameLength+1), geometry.Triangle, DefaultAttrs, quadFields())
	assert.ErrorIs(t, err, ErrNameTooLong)
	assert.Empty(t, c.IDs())

	_, err = c.AddPrimitive(strings.Repeat("n", MaxNameLength), geometry.Triangle, DefaultAttrs, quadFields())
	assert.NoError(t, err)
}

func TestBias(t *testing.T) {
	c := newTestContext(t, 1)
	_, err := c.AddPrimitive("zero", geometry.Triangle, DefaultAttrs, quadFields())
	assert.ErrorIs(t, err, ErrIndexOutOfRange, "index 0 is invalid with bias 1")

	id, err := c.AddPrimitive("quad", geometry.Triangle, DefaultAttrs, []FieldToken{
		MustField(geometry.Triangle, geometry.RoleVertices, quadVertices),
		MustField(geometry.Triangle, geometry.RoleIndices, []uint16{1, 2, 3, 1, 3, 4}),
	})
	require.NoError(t, err)
	p, err := c.Get(id)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, 1, 3, 4}, p.Indices, "stored as given")
	assert.Equal(t, []uint16{0, 1, 2, 0, 2, 3}, p.Stripes[0].Indices)
	assert.InDelta(t, 1, geometry.At(p.Normals, 3).Z, 1e-6)
}

func TestUpdateDirtyMinimality(t *testing.T) {
	c := newTestContext(t, 0, WithStripeLimit(3))
	id, err := c.AddPrimitive("quad", geometry.Triangle, DefaultAttrs, quadFields())
	require.NoError(t, err)

	s := c.Snapshot()
	require.Len(t, s.Primitives, 1)
	assert.True(t, s.Primitives[0].Created())
	stripesBefore := s.Primitives[0].Stripes
	require.Len(t, stripesBefore, 2)

	assert.False(t, c.Snapshot().Changed(), "flags were reset")

	colors := make([]float32, 12)
	for i := range colors {
		colors[i] = 0.5
	}
	tok, err := SetPrimitiveField(geometry.Triangle, geometry.RoleColors, colors, len(colors))
	require.NoError(t, err)
	require.NoError(t, c.UpdatePrimitive(id, tok))

	s = c.Snapshot()
	require.True(t, s.Changed())
	ps := s.Primitives[0]
	assert.Equal(t, DirtyColors, ps.Dirty)
	assert.Equal(t, []geometry.Role{geometry.RoleColors}, ps.DirtyRoles())
	assert.True(t, stripe.SameLayout(stripesBefore, ps.Stripes))
	for _, st := range ps.Stripes {
		assert.Len(t, st.Colors, 3*st.VertexCount())
		assert.Equal(t, uint8(128), st.Colors[0])
	}
	// The previous snapshot still sees the old arrays
	assert.Empty(t, stripesBefore[0].Colors)
}

func TestUpdateVertices(t *testing.T) {
	c := newTestContext(t, 0)
	id, err := c.AddPrimitive("quad", geometry.Triangle, DefaultAttrs, quadFields())
	require.NoError(t, err)
	c.Snapshot()

	// Tilt the quad, derived normals follow
	tilted := []float32{
		0, 0, 0,
		1, 0, 0,
		1, 1, 1,
		0, 1, 1,
	}
	require.NoError(t, c.UpdatePrimitive(id,
		MustField(geometry.Triangle, geometry.RoleVertices, tilted)))
	s := c.Snapshot()
	ps := s.Primitives[0]
	assert.Equal(t, DirtyVertices|DirtyNormals, ps.Dirty)
	n := geometry.At(ps.Normals, 0)
	assert.InDelta(t, 0, n.X, 1e-6)
	assert.Less(t, n.Y, float32(0))
	assert.Greater(t, n.Z, float32(0))

	// Vertex count change without matching indices fails atomically
	err = c.UpdatePrimitive(id,
		MustField(geometry.Triangle, geometry.RoleVertices, []float32{0, 0, 0, 1, 1, 1, 2, 2, 2}))
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	p, err := c.Get(id)
	require.NoError(t, err)
	assert.Equal(t, tilted, p.Vertices)
	assert.False(t, c.Snapshot().Changed())

	err = c.UpdatePrimitive(PrimitiveID(42))
	assert.ErrorIs(t, err, ErrUnknownPrimitive)
}

func TestUpdateStagesUnlocked(t *testing.T) {
	c := newTestContext(t, 0)
	id, err := c.AddPrimitive("quad", geometry.Triangle, DefaultAttrs, quadFields())
	require.NoError(t, err)
	c.Snapshot()

	stages := 0
	c.beforeStage = func() {
		stages++
		done := make(chan *Snapshot, 1)
		go func() { done <- c.Snapshot() }()
		select {
		case s := <-done:
			assert.False(t, s.Changed())
		case <-time.After(5 * time.Second):
			t.Error("snapshot blocked by a staging update")
		}
	}
	require.NoError(t, c.UpdatePrimitive(id,
		MustField(geometry.Triangle, geometry.RoleVertices, make([]float32, 12))))
	assert.Equal(t, 1, stages)

	s := c.Snapshot()
	require.Len(t, s.Primitives, 1)
	assert.True(t, s.Primitives[0].Dirty.Has(DirtyVertices))
}

func TestUpdateConcurrentMutation(t *testing.T) {
	c := newTestContext(t, 0)
	id, err := c.AddPrimitive("quad", geometry.Triangle, DefaultAttrs, quadFields())
	require.NoError(t, err)
	c.Snapshot()

	// The attributes change while the first staging runs, the update is
	// staged again and must not revert them.
	stages := 0
	c.beforeStage = func() {
		stages++
		if stages == 1 {
			require.NoError(t, c.SetAttributes(id, AttrVisible|AttrTransparent))
		}
	}
	tilted := []float32{0, 0, 0, 1, 0, 0, 1, 1, 1, 0, 1, 1}
	require.NoError(t, c.UpdatePrimitive(id,
		MustField(geometry.Triangle, geometry.RoleVertices, tilted)))
	assert.Equal(t, 2, stages)

	p, err := c.Get(id)
	require.NoError(t, err)
	assert.Equal(t, AttrVisible|AttrTransparent, p.Attrs)
	assert.Equal(t, tilted, p.Vertices)
	ps := c.Snapshot().Primitives[0]
	assert.True(t, ps.Dirty.Has(DirtyAttributes|DirtyVertices))

	// A primitive that keeps changing is staged under the lock in the end
	stages = 0
	c.beforeStage = func() {
		stages++
		require.NoError(t, c.SetAppearance(id, Appearance{}))
	}
	require.NoError(t, c.UpdatePrimitive(id,
		MustField(geometry.Triangle, geometry.RoleVertices, quadVertices)))
	assert.Equal(t, maxStageAttempts-1, stages)
	p, err = c.Get(id)
	require.NoError(t, err)
	assert.Equal(t, quadVertices, p.Vertices)

	// Removal during staging
	c.beforeStage = func() {
		require.NoError(t, c.RemovePrimitive(id))
	}
	err = c.UpdatePrimitive(id, MustField(geometry.Triangle, geometry.RoleVertices, tilted))
	assert.ErrorIs(t, err, ErrUnknownPrimitive)
}

func TestUpdateLayout(t *testing.T) {
	c := newTestContext(t, 0, WithStripeLimit(4))
	id, err := c.AddPrimitive("points", geometry.Point, DefaultAttrs, []FieldToken{
		MustField(geometry.Point, geometry.RoleVertices, make([]float32, 3*6)),
	})
	require.NoError(t, err)
	c.Snapshot()

	require.NoError(t, c.UpdatePrimitive(id,
		MustField(geometry.Point, geometry.RoleVertices, make([]float32, 3*9))))
	ps := c.Snapshot().Primitives[0]
	assert.True(t, ps.Dirty.Has(DirtyLayout))
	assert.Len(t, ps.Stripes, 3)
}

func TestUniformColor(t *testing.T) {
	c := newTestContext(t, 0)
	id, err := c.AddPrimitive("line", geometry.Line, DefaultAttrs, []FieldToken{
		MustField(geometry.Line, geometry.RoleVertices, []float32{0, 0, 0, 1, 0, 0}),
		MustField(geometry.Line, geometry.RoleColors, []float64{1, 0, 0}),
	})
	require.NoError(t, err)
	p, err := c.Get(id)
	require.NoError(t, err)
	assert.Empty(t, p.Colors)
	assert.Equal(t, Color{255, 0, 0}, p.Appearance.LineColor)
	c.Snapshot()

	require.NoError(t, c.UpdatePrimitive(id,
		MustField(geometry.Line, geometry.RoleColors, []uint8{0, 0, 255})))
	ps := c.Snapshot().Primitives[0]
	assert.Equal(t, DirtyColors|DirtyAttributes, ps.Dirty)
	assert.Equal(t, Color{0, 0, 255}, ps.Appearance.LineColor)
}

func TestAttributes(t *testing.T) {
	c := newTestContext(t, 0)
	id, err := c.AddPrimitive("quad", geometry.Triangle, DefaultAttrs, quadFields())
	require.NoError(t, err)
	c.Snapshot()

	require.NoError(t, c.SetAttributes(id, DefaultAttrs))
	assert.False(t, c.Snapshot().Changed(), "unchanged attributes")

	require.NoError(t, c.SetAttributes(id, AttrVisible|AttrTransparent))
	ps := c.Snapshot().Primitives[0]
	assert.Equal(t, DirtyAttributes, ps.Dirty)
	assert.Equal(t, "visible,transparent", ps.Attrs.String())

	a := DefaultAppearance()
	a.PointSize = 4
	require.NoError(t, c.SetAppearance(id, a))
	ps = c.Snapshot().Primitives[0]
	assert.Equal(t, DirtyAttributes, ps.Dirty)
	assert.Equal(t, float32(4), ps.Appearance.PointSize)

	assert.ErrorIs(t, c.SetAttributes(99, 0), ErrUnknownPrimitive)
	assert.ErrorIs(t, c.SetAppearance(99, a), ErrUnknownPrimitive)
	assert.Equal(t, "none", Attr(0).String())
}

func TestRemovePrimitive(t *testing.T) {
	c := newTestContext(t, 0)
	a, err := c.AddPrimitive("a", geometry.Triangle, DefaultAttrs, quadFields())
	require.NoError(t, err)
	c.Snapshot()
	b, err := c.AddPrimitive("b", geometry.Triangle, DefaultAttrs, quadFields())
	require.NoError(t, err)

	require.NoError(t, c.RemovePrimitive(a))
	require.NoError(t, c.RemovePrimitive(b))
	assert.ErrorIs(t, c.RemovePrimitive(a), ErrUnknownPrimitive)

	s := c.Snapshot()
	assert.False(t, s.Cleared)
	assert.Equal(t, []PrimitiveID{a}, s.Deleted, "b was never flushed")
	assert.Empty(t, s.Primitives)

	// Name can be reused, id is not
	id, err := c.AddPrimitive("a", geometry.Triangle, DefaultAttrs, quadFields())
	require.NoError(t, err)
	assert.Equal(t, PrimitiveID(3), id)
}

func TestClearAll(t *testing.T) {
	c := newTestContext(t, 0)
	for _, name := range []string{"a", "b", "c"} {
		_, err := c.AddPrimitive(name, geometry.Triangle, DefaultAttrs, quadFields())
		require.NoError(t, err)
	}
	c.Snapshot()

	require.NoError(t, c.RemovePrimitive(1))
	c.ClearAll()
	id, err := c.AddPrimitive("d", geometry.Triangle, DefaultAttrs, quadFields())
	require.NoError(t, err)

	s := c.Snapshot()
	assert.True(t, s.Cleared)
	assert.Empty(t, s.Deleted)
	require.Len(t, s.Primitives, 1)
	assert.Equal(t, id, s.Primitives[0].ID)
	assert.True(t, s.Primitives[0].Created())

	s = c.Snapshot()
	assert.False(t, s.Cleared)
	assert.False(t, s.Changed())
}

func TestEndCaps(t *testing.T) {
	c := newTestContext(t, 1)
	// Three segments: 1-2, 2-3, 3-4
	id, err := c.AddPrimitive("path", geometry.Line, DefaultAttrs, []FieldToken{
		MustField(geometry.Line, geometry.RoleVertices, []float32{
			0, 0, 0,
			1, 0, 0,
			1, 1, 0,
			1, 1, 1,
		}),
		MustField(geometry.Line, geometry.RoleIndices, []int32{1, 2, 2, 3, 3, 4}),
	})
	require.NoError(t, err)
	c.Snapshot()

	assert.ErrorIs(t, c.AddEndCaps(id, 0.1, []int32{4}), ErrIndexOutOfRange)
	assert.ErrorIs(t, c.AddEndCaps(id, 0.1, []int32{0}), ErrIndexOutOfRange)
	assert.ErrorIs(t, c.AddEndCaps(id, 0.1, []int32{-4}), ErrIndexOutOfRange)
	assert.False(t, c.Snapshot().Changed(), "failed requests leave no trace")

	require.NoError(t, c.AddEndCaps(id, 0.1, []int32{1, -3}))
	ps := c.Snapshot().Primitives[0]
	assert.Equal(t, DirtyEndCaps, ps.Dirty)
	require.Len(t, ps.EndCapVertices, 2*geometry.EndCapFloats)
	require.Len(t, ps.EndCapNormals, 2*geometry.EndCapFloats)
	// First cap points at vertex 2, second at vertex 3
	assert.Equal(t, math32.Vec3(1, 0, 0), geometry.At(ps.EndCapVertices, 0))
	assert.Equal(t, math32.Vec3(1, 1, 0), geometry.At(ps.EndCapVertices, geometry.EndCapFloats/3))

	// Moving the vertices moves the caps
	require.NoError(t, c.UpdatePrimitive(id, MustField(geometry.Line, geometry.RoleVertices, []float32{
		0, 0, 0,
		2, 0, 0,
		2, 2, 0,
		2, 2, 2,
	})))
	ps = c.Snapshot().Primitives[0]
	assert.Equal(t, DirtyVertices|DirtyEndCaps, ps.Dirty)
	assert.Equal(t, math32.Vec3(2, 0, 0), geometry.At(ps.EndCapVertices, 0))

	// Normals are not allowed with end caps
	err = c.UpdatePrimitive(id, MustField(geometry.Line, geometry.RoleNormals, make([]float32, 12)))
	assert.ErrorIs(t, err, ErrUnsupportedPrimitiveKind)
}

func TestEndCapsUnsupported(t *testing.T) {
	c := newTestContext(t, 0)
	tri, err := c.AddPrimitive("quad", geometry.Triangle, DefaultAttrs, quadFields())
	require.NoError(t, err)
	assert.ErrorIs(t, c.AddEndCaps(tri, 1, []int32{1}), ErrUnsupportedPrimitiveKind)

	line, err := c.AddPrimitive("normals", geometry.Line, DefaultAttrs, []FieldToken{
		MustField(geometry.Line, geometry.RoleVertices, []float32{0, 0, 0, 1, 0, 0}),
		MustField(geometry.Line, geometry.RoleNormals, []float32{0, 0, 1, 0, 0, 1}),
	})
	require.NoError(t, err)
	assert.ErrorIs(t, c.AddEndCaps(line, 1, []int32{1}), ErrUnsupportedPrimitiveKind)
	assert.ErrorIs(t, c.AddEndCaps(99, 1, []int32{1}), ErrUnknownPrimitive)
}

func TestMetadata(t *testing.T) {
	c := newTestContext(t, 0)
	in := map[string]string{"material": "steel"}
	c.SetMetadata("quad", in)
	in["material"] = "changed"

	md := c.Metadata()
	assert.Equal(t, map[string]map[string]string{
		"quad": {"material": "steel"},
	}, md)

	c.SetMetadata("quad", nil)
	assert.Empty(t, c.Metadata())
}
