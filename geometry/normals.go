package geometry

import (
	"cogentcore.org/core/math32"
)

// Vec3 is a 3-component float32 vector
type Vec3 = math32.Vector3

// At returns vertex i of a flat xyz array
func At(v []float32, i int) Vec3 {
	return math32.Vec3(v[3*i], v[3*i+1], v[3*i+2])
}

// Put stores vector a as vertex i of a flat xyz array
func Put(v []float32, i int, a Vec3) {
	v[3*i] = a.X
	v[3*i+1] = a.Y
	v[3*i+2] = a.Z
}

// FacetNormal returns the unit normal of triangle (a, b, c) following the
// counter-clockwise winding rule. Degenerate triangles yield the zero vector.
func FacetNormal(a, b, c Vec3) Vec3 {
	return math32.Normal(a, b, c)
}

// UnindexedNormals treats every run of 3 vertices as one triangle and
// assigns its facet normal to all 3 vertices. Trailing vertices that do not
// form a full triangle get a zero normal.
func UnindexedNormals(vertices []float32) []float32 {
	n := len(vertices) / 3
	out := make([]float32, 3*n)
	for t := 0; t+2 < n; t += 3 {
		fn := FacetNormal(At(vertices, t), At(vertices, t+1), At(vertices, t+2))
		Put(out, t, fn)
		Put(out, t+1, fn)
		Put(out, t+2, fn)
	}
	return out
}

// IndexedNormals computes per-vertex normals for an indexed triangle list.
// Indices are zero-based. Every facet normal is accumulated into the
// vertices it references; vertices shared by more than one triangle are
// renormalized from the sum, the others keep the raw facet normal.
func IndexedNormals(vertices []float32, indices []int32) []float32 {
	n := len(vertices) / 3
	out := make([]float32, 3*n)
	counts := make([]int32, n)
	for t := 0; t+2 < len(indices); t += 3 {
		i0, i1, i2 := indices[t], indices[t+1], indices[t+2]
		fn := FacetNormal(At(vertices, int(i0)), At(vertices, int(i1)), At(vertices, int(i2)))
		for _, idx := range [3]int32{i0, i1, i2} {
			Put(out, int(idx), At(out, int(idx)).Add(fn))
			counts[idx]++
		}
	}
	for i, c := range counts {
		if c > 1 {
			// Normal returns the zero vector for opposing facets that cancel out
			Put(out, i, At(out, i).Normal())
		}
	}
	return out
}
