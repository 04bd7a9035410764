package demo

import (
	"math/rand"

	"cogentcore.org/core/math32"

	"github.com/meshstream/meshstream/geometry"
)

// surfaceHeight is the height of the animated surface at (x, z) and time t
func surfaceHeight(x, z, t float32) float32 {
	return 0.2 * math32.Sin(3*x+t) * math32.Cos(3*z+0.7*t)
}

// gridVertices returns an n×n height field over [-1,1]² with colors by height
func gridVertices(n int, t float32) (vertices []float32, colors []uint8) {
	vertices = make([]float32, 0, 3*n*n)
	colors = make([]uint8, 0, 3*n*n)
	step := 2 / float32(n-1)
	for row := 0; row < n; row++ {
		z := -1 + float32(row)*step
		for col := 0; col < n; col++ {
			x := -1 + float32(col)*step
			y := surfaceHeight(x, z, t)
			vertices = append(vertices, x, y, z)
			colors = append(colors, heightColor(y)...)
		}
	}
	return vertices, colors
}

// heightColor maps [-0.2,0.2] from blue to red
func heightColor(y float32) []uint8 {
	f := math32.Max(0, math32.Min(1, (y+0.2)/0.4))
	return []uint8{uint8(255 * f), 64, uint8(255 * (1 - f))}
}

// gridIndices returns two triangles per grid cell
func gridIndices(n int, bias int32) []int32 {
	indices := make([]int32, 0, 6*(n-1)*(n-1))
	for row := 0; row < n-1; row++ {
		for col := 0; col < n-1; col++ {
			a := int32(row*n+col) + bias
			b := a + 1
			c := a + int32(n)
			d := c + 1
			indices = append(indices, a, c, b, b, c, d)
		}
	}
	return indices
}

// gridLines returns the wireframe along every rows-th row and column
func gridLines(n, every int, bias int32) []int32 {
	var lines []int32
	for i := 0; i < n; i += every {
		for j := 0; j < n-1; j++ {
			h := int32(i*n+j) + bias
			v := int32(j*n+i) + bias
			lines = append(lines, h, h+1, v, v+int32(n))
		}
	}
	return lines
}

// arrowVertices returns n unindexed segments pointing outwards from a
// center above the surface, rotated by angle
func arrowVertices(n int, angle float32) []float32 {
	vertices := make([]float32, 0, 6*n)
	center := math32.Vec3(0, 0.6, 0)
	for i := 0; i < n; i++ {
		a := angle + 2*math32.Pi*float32(i)/float32(n)
		tip := math32.Vec3(1.2*math32.Cos(a), 0.6, 1.2*math32.Sin(a))
		vertices = append(vertices, center.X, center.Y, center.Z, tip.X, tip.Y, tip.Z)
	}
	return vertices
}

// cloud is a fixed set of points in a spherical shell
type cloud struct {
	points []geometry.Vec3
	colors []uint8
}

func newCloud(n int, seed int64) cloud {
	rng := rand.New(rand.NewSource(seed))
	c := cloud{
		points: make([]geometry.Vec3, n),
		colors: make([]uint8, 3*n),
	}
	for i := range c.points {
		p := math32.Vec3(
			float32(rng.NormFloat64()),
			float32(rng.NormFloat64()),
			float32(rng.NormFloat64()),
		).Normal()
		r := 0.3 + 0.1*float32(rng.Float64())
		c.points[i] = p.MulScalar(r)
		c.colors[3*i] = uint8(128 + rng.Intn(128))
		c.colors[3*i+1] = uint8(128 + rng.Intn(128))
		c.colors[3*i+2] = 32
	}
	return c
}

// vertices returns the cloud rotated around the y axis and lifted above the
// surface
func (c cloud) vertices(angle float32) []float32 {
	sin, cos := math32.Sincos(angle)
	vertices := make([]float32, 0, 3*len(c.points))
	for _, p := range c.points {
		vertices = append(vertices,
			cos*p.X+sin*p.Z,
			p.Y+1,
			-sin*p.X+cos*p.Z)
	}
	return vertices
}
