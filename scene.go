package oit

import "math"

// Triangle is a world-space triangle with a straight-alpha color.
type Triangle struct {
	V     [3]Vec3
	Color RGBA
}

// Shape is a drawable provided by the scene.
type Shape interface {
	// Transparent reports whether the shape goes through the fragment store.
	Transparent() bool

	// Triangles returns the shape's world-space triangles.
	Triangles() []Triangle
}

// Scene provides the shapes of a frame.
type Scene interface {
	// PrepareDrawing is called once per frame before Shapes.
	PrepareDrawing()

	// Shapes returns the drawables in submission order.
	Shapes() []Shape
}

// Camera provides the view of a frame. It is read once per frame.
type Camera interface {
	ViewProjection() Mat4
	Eye() Vec3
}

// Mesh is a list of triangles in model space with a transform and one color.
type Mesh struct {
	Model     [][3]Vec3
	Transform Mat4
	Color     RGBA

	// Opaque routes the mesh through the depth test only.
	Opaque bool
}

// Transparent implements Shape. A mesh is transparent unless Opaque is set.
func (m *Mesh) Transparent() bool {
	return !m.Opaque
}

// Triangles implements Shape.
func (m *Mesh) Triangles() []Triangle {
	out := make([]Triangle, len(m.Model))
	xf := m.Transform
	if xf == (Mat4{}) {
		xf = Identity4()
	}
	for i, tri := range m.Model {
		for j, v := range tri {
			p := xf.TransformPoint(v)
			out[i].V[j] = Vec3{X: p.X / p.W, Y: p.Y / p.W, Z: p.Z / p.W}
		}
		out[i].Color = m.Color
	}
	return out
}

// NewQuad returns a unit square in the XY plane centered at the origin,
// placed by transform.
func NewQuad(transform Mat4, color RGBA) *Mesh {
	a, b, c, d := V3(-0.5, -0.5, 0), V3(0.5, -0.5, 0), V3(0.5, 0.5, 0), V3(-0.5, 0.5, 0)
	return &Mesh{
		Model:     [][3]Vec3{{a, b, c}, {a, c, d}},
		Transform: transform,
		Color:     color,
	}
}

// NewBox returns a unit cube centered at the origin, placed by transform.
func NewBox(transform Mat4, color RGBA) *Mesh {
	v := func(x, y, z float64) Vec3 { return V3(x-0.5, y-0.5, z-0.5) }
	corners := [8]Vec3{
		v(0, 0, 0), v(1, 0, 0), v(1, 1, 0), v(0, 1, 0),
		v(0, 0, 1), v(1, 0, 1), v(1, 1, 1), v(0, 1, 1),
	}
	faces := [6][4]int{
		{0, 3, 2, 1}, {4, 5, 6, 7},
		{0, 1, 5, 4}, {3, 7, 6, 2},
		{0, 4, 7, 3}, {1, 2, 6, 5},
	}
	m := &Mesh{Transform: transform, Color: color}
	for _, f := range faces {
		a, b, c, d := corners[f[0]], corners[f[1]], corners[f[2]], corners[f[3]]
		m.Model = append(m.Model, [3]Vec3{a, b, c}, [3]Vec3{a, c, d})
	}
	return m
}

// SceneList is a Scene backed by a slice of shapes.
type SceneList []Shape

// PrepareDrawing implements Scene.
func (SceneList) PrepareDrawing() {}

// Shapes implements Scene.
func (s SceneList) Shapes() []Shape {
	return s
}

// PerspectiveCamera is a Camera built from LookAt and Perspective.
type PerspectiveCamera struct {
	Position Vec3
	Target   Vec3
	Up       Vec3

	// FovY is the vertical field of view in radians.
	FovY      float64
	Aspect    float64
	Near, Far float64
}

// NewPerspectiveCamera returns a camera at position looking at target with a
// 60 degree field of view.
func NewPerspectiveCamera(position, target Vec3, aspect float64) *PerspectiveCamera {
	return &PerspectiveCamera{
		Position: position,
		Target:   target,
		Up:       V3(0, 1, 0),
		FovY:     math.Pi / 3,
		Aspect:   aspect,
		Near:     0.1,
		Far:      100,
	}
}

// ViewProjection implements Camera.
func (c *PerspectiveCamera) ViewProjection() Mat4 {
	return Perspective(c.FovY, c.Aspect, c.Near, c.Far).Multiply(LookAt(c.Position, c.Target, c.Up))
}

// Eye implements Camera.
func (c *PerspectiveCamera) Eye() Vec3 {
	return c.Position
}
