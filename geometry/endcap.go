package geometry

import (
	"cogentcore.org/core/math32"
)

const (
	// EndCapSpread is the distance of the cap base corners from the cap axis,
	// as a fraction of the cap size.
	EndCapSpread = 0.25

	// EndCapTriangles is the number of triangles in one cap
	EndCapTriangles = 4

	// EndCapFloats is the number of float32 values one cap adds to both the
	// vertex and the normal array.
	EndCapFloats = EndCapTriangles * 3 * 3
)

// EndCap synthesizes an arrow head at head, pointing away from tail.
// It returns 4 triangles as flat xyz vertex positions and the facet normal
// of every triangle repeated for its 3 vertices.
func EndCap(tail, head Vec3, size float32) (vertices, normals []float32) {
	dir := head.Sub(tail).Normal()
	u, v := perpendiculars(dir)

	base := head.Sub(dir.MulScalar(size))
	s := size * EndCapSpread
	corners := [4]Vec3{
		base.Add(u.MulScalar(s)),
		base.Add(v.MulScalar(s)),
		base.Sub(u.MulScalar(s)),
		base.Sub(v.MulScalar(s)),
	}

	vertices = make([]float32, EndCapFloats)
	normals = make([]float32, EndCapFloats)
	for i := 0; i < EndCapTriangles; i++ {
		a, b := corners[i], corners[(i+1)%4]
		fn := FacetNormal(head, a, b)
		for k, p := range [3]Vec3{head, a, b} {
			Put(vertices, 3*i+k, p)
			Put(normals, 3*i+k, fn)
		}
	}
	return vertices, normals
}

// perpendiculars returns two unit vectors orthogonal to dir and to each other.
// For a zero dir both are zero.
func perpendiculars(dir Vec3) (u, v Vec3) {
	// The axis along the smallest component is never parallel to dir
	ax, ay, az := math32.Abs(dir.X), math32.Abs(dir.Y), math32.Abs(dir.Z)
	var arb Vec3
	switch {
	case ax <= ay && ax <= az:
		arb = math32.Vec3(1, 0, 0)
	case ay <= az:
		arb = math32.Vec3(0, 1, 0)
	default:
		arb = math32.Vec3(0, 0, 1)
	}
	u = dir.Cross(arb).Normal()
	v = dir.Cross(u).Normal()
	return u, v
}
