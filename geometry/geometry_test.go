package geometry

import (
	"encoding/binary"
	"math"
	"testing"

	"cogentcore.org/core/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertVecInDelta(t *testing.T, exp, got Vec3, msgAndArgs ...interface{}) {
	t.Helper()
	assert.InDelta(t, exp.X, got.X, 1e-5, msgAndArgs...)
	assert.InDelta(t, exp.Y, got.Y, 1e-5, msgAndArgs...)
	assert.InDelta(t, exp.Z, got.Z, 1e-5, msgAndArgs...)
}

var tetraVertices = []float32{
	0, 0, 0,
	1, 0, 0,
	0, 1, 0,
	0, 0, 1,
}

var tetraIndices = []int32{
	0, 2, 1,
	0, 1, 3,
	0, 3, 2,
	1, 2, 3,
}

func TestFacetNormal(t *testing.T) {
	n := FacetNormal(math32.Vec3(0, 0, 0), math32.Vec3(1, 0, 0), math32.Vec3(0, 1, 0))
	assertVecInDelta(t, math32.Vec3(0, 0, 1), n)

	// Degenerate
	n = FacetNormal(math32.Vec3(1, 1, 1), math32.Vec3(2, 2, 2), math32.Vec3(3, 3, 3))
	assert.Equal(t, Vec3{}, n)
}

func TestUnindexedNormals(t *testing.T) {
	vertices := []float32{
		0, 0, 0,
		0, 0, 2,
		2, 0, 0,
	}
	normals := UnindexedNormals(vertices)
	require.Len(t, normals, 9)
	exp := FacetNormal(At(vertices, 0), At(vertices, 1), At(vertices, 2))
	assertVecInDelta(t, math32.Vec3(0, 1, 0), exp)
	for i := 0; i < 3; i++ {
		assert.Equal(t, exp, At(normals, i))
	}
}

func TestIndexedNormals_Tetrahedron(t *testing.T) {
	normals := IndexedNormals(tetraVertices, tetraIndices)
	require.Len(t, normals, 12)

	facets := make([]Vec3, 4)
	for f := 0; f < 4; f++ {
		facets[f] = FacetNormal(
			At(tetraVertices, int(tetraIndices[3*f])),
			At(tetraVertices, int(tetraIndices[3*f+1])),
			At(tetraVertices, int(tetraIndices[3*f+2])))
	}
	// Every facet points away from the centroid
	centroid := math32.Vec3(0.25, 0.25, 0.25)
	for f := 0; f < 4; f++ {
		p := At(tetraVertices, int(tetraIndices[3*f]))
		assert.Greater(t, facets[f].Dot(p.Sub(centroid)), float32(0), "facet %d", f)
	}

	for v := 0; v < 4; v++ {
		var sum Vec3
		for f := 0; f < 4; f++ {
			for k := 0; k < 3; k++ {
				if int(tetraIndices[3*f+k]) == v {
					sum = sum.Add(facets[f])
				}
			}
		}
		got := At(normals, v)
		assertVecInDelta(t, sum.Normal(), got, "vertex %d", v)
		assert.InDelta(t, 1.0, got.Length(), 1e-5)
	}
	s := float32(1 / math.Sqrt(3))
	assertVecInDelta(t, math32.Vec3(-s, -s, -s), At(normals, 0))
}

func TestIndexedNormals_SingleUse(t *testing.T) {
	vertices := []float32{
		0, 0, 0,
		2, 0, 0,
		0, 2, 0,
		9, 9, 9, // never referenced
	}
	normals := IndexedNormals(vertices, []int32{0, 1, 2})
	for i := 0; i < 3; i++ {
		assertVecInDelta(t, math32.Vec3(0, 0, 1), At(normals, i))
	}
	assert.Equal(t, Vec3{}, At(normals, 3))
}

func TestEndCap(t *testing.T) {
	tail := math32.Vec3(0, 0, 0)
	head := math32.Vec3(0, 0, 10)
	vertices, normals := EndCap(tail, head, 2)
	require.Len(t, vertices, EndCapFloats)
	require.Len(t, normals, EndCapFloats)

	for tri := 0; tri < EndCapTriangles; tri++ {
		// Fanned from the head vertex
		assert.Equal(t, head, At(vertices, 3*tri))
		for k := 1; k < 3; k++ {
			p := At(vertices, 3*tri+k)
			assert.InDelta(t, 8, p.Z, 1e-5, "base plane")
			assert.InDelta(t, 0.5, math32.Vec3(p.X, p.Y, 0).Length(), 1e-5, "spread")
		}
		n := At(normals, 3*tri)
		assert.InDelta(t, 1.0, n.Length(), 1e-5)
		assert.Equal(t, n, At(normals, 3*tri+1))
		assert.Equal(t, n, At(normals, 3*tri+2))
		// Faces outwards and forwards
		assert.Greater(t, n.Z, float32(0))
	}
}

func TestPerpendiculars(t *testing.T) {
	for _, dir := range []Vec3{math32.Vec3(1, 0, 0), math32.Vec3(0, 1, 0), math32.Vec3(0, 0, 1), math32.Vec3(1, 2, 3).Normal()} {
		u, v := perpendiculars(dir)
		assert.InDelta(t, 0, u.Dot(dir), 1e-5)
		assert.InDelta(t, 0, v.Dot(dir), 1e-5)
		assert.InDelta(t, 0, u.Dot(v), 1e-5)
		assert.InDelta(t, 1, u.Length(), 1e-5)
		assert.InDelta(t, 1, v.Length(), 1e-5)
	}
}

func TestConvert(t *testing.T) {
	f, err := ToFloat32([]float64{1.5, -2, 3, 4}, 3)
	assert.NoError(t, err)
	assert.Equal(t, []float32{1.5, -2, 3}, f)

	_, err = ToFloat32([]int16{1}, 2)
	assert.ErrorIs(t, err, ErrShortBuffer)

	idx, err := ToInt32([]uint16{0, 1, 65535}, 3)
	assert.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 65535}, idx)

	_, err = ToInt32([]float32{0, 1}, 2)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = ToInt32([]uint32{math.MaxUint32}, 1)
	assert.Error(t, err)

	c, err := ToColor([]float32{0, 0.5, 1, 2, -1, float32(math.NaN())}, 6)
	assert.NoError(t, err)
	assert.Equal(t, []uint8{0, 128, 255, 255, 0, 0}, c)

	c, err = ToColor([]int32{-5, 100, 300}, 3)
	assert.NoError(t, err)
	assert.Equal(t, []uint8{0, 100, 255}, c)
}

func TestDecodeRaw(t *testing.T) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b, math.Float32bits(1.25))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(-3))
	v, err := DecodeRaw(Float32, b, 2)
	assert.NoError(t, err)
	assert.Equal(t, []float32{1.25, -3}, v)

	v, err = DecodeRaw(Int16, []byte{0xff, 0xff, 0x02, 0x00}, 2)
	assert.NoError(t, err)
	assert.Equal(t, []int16{-1, 2}, v)

	_, err = DecodeRaw(Float64, b, 2)
	assert.ErrorIs(t, err, ErrShortBuffer)

	_, err = DecodeRaw(NumType(99), b, 1)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	typ, err := TypeOf(v)
	assert.NoError(t, err)
	assert.Equal(t, Int16, typ)
	assert.True(t, typ.IsInteger())
	assert.False(t, Float32.IsInteger())
}
