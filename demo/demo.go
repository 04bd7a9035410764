// Package demo generates an animated demo scene: a triangle surface with a
// wireframe decoration, a set of arrows with end caps and a rotating point
// cloud.
package demo

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/meshstream/meshstream/config"
	"github.com/meshstream/meshstream/geometry"
	"github.com/meshstream/meshstream/scene"
	"github.com/meshstream/meshstream/utils"
)

// Primitive names used by the demo
const (
	SurfaceName = "demo/surface"
	ArrowsName  = "demo/arrows"
	CloudName   = "demo/cloud"
)

const (
	cloudSeed = 42
	// Wireframe decoration on every n-th grid line
	wireframeEvery = 4
	// The surface toggles its wireframe every n steps
	toggleEvery = 10
)

// New creates a Demo for a scene. It does not add anything until Build or
// Run is called.
func New(sc *scene.Context, c config.Demo, l logrus.FieldLogger) *Demo {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &Demo{
		sc:    sc,
		c:     c,
		l:     l.WithField("scene", sc.Name()),
		cloud: newCloud(c.CloudPoints, cloudSeed),
	}
}

type Demo struct {
	sc    *scene.Context
	c     config.Demo
	l     logrus.FieldLogger
	cloud cloud

	surface, arrows, points scene.PrimitiveID
}

// Build adds the demo primitives, replacing any earlier ones with the same
// names.
func (d *Demo) Build() error {
	for _, name := range []string{SurfaceName, ArrowsName, CloudName} {
		if id, exists := d.sc.Lookup(name); exists {
			if err := d.sc.RemovePrimitive(id); err != nil {
				return err
			}
		}
	}

	n := d.c.GridSize
	if n < 2 {
		return errors.Errorf("demo grid size %d too small", n)
	}
	bias := int32(d.sc.Bias())
	vertices, colors := gridVertices(n, 0)
	var err error
	d.surface, err = d.sc.AddPrimitive(SurfaceName, geometry.Triangle,
		scene.DefaultAttrs|scene.AttrShowLines,
		[]scene.FieldToken{
			scene.MustField(geometry.Triangle, geometry.RoleVertices, vertices),
			scene.MustField(geometry.Triangle, geometry.RoleColors, colors),
			scene.MustField(geometry.Triangle, geometry.RoleIndices, gridIndices(n, bias)),
			scene.MustField(geometry.Triangle, geometry.RoleLineIndices, gridLines(n, wireframeEvery, bias)),
		})
	if err != nil {
		return errors.Wrap(err, "surface")
	}

	if d.c.LineSegments > 0 {
		d.arrows, err = d.sc.AddPrimitive(ArrowsName, geometry.Line, scene.AttrVisible,
			[]scene.FieldToken{
				scene.MustField(geometry.Line, geometry.RoleVertices, arrowVertices(d.c.LineSegments, 0)),
			})
		if err != nil {
			return errors.Wrap(err, "arrows")
		}
		segments := make([]int32, d.c.LineSegments)
		for i := range segments {
			segments[i] = int32(i + 1)
		}
		if err := d.sc.AddEndCaps(d.arrows, d.c.EndCapSize, segments); err != nil {
			return errors.Wrap(err, "arrow end caps")
		}
	}

	if d.c.CloudPoints > 0 {
		d.points, err = d.sc.AddPrimitive(CloudName, geometry.Point, scene.AttrVisible,
			[]scene.FieldToken{
				scene.MustField(geometry.Point, geometry.RoleVertices, d.cloud.vertices(0)),
				scene.MustField(geometry.Point, geometry.RoleColors, d.cloud.colors),
			})
		if err != nil {
			return errors.Wrap(err, "cloud")
		}
	}

	d.sc.SetMetadata("demo", map[string]string{
		"grid_size":     strconv.Itoa(n),
		"line_segments": strconv.Itoa(d.c.LineSegments),
		"cloud_points":  strconv.Itoa(d.c.CloudPoints),
	})
	d.l.WithFields(logrus.Fields{
		"grid_size":     n,
		"line_segments": d.c.LineSegments,
		"cloud_points":  d.c.CloudPoints,
	}).Info("Demo scene built")
	return nil
}

// Step advances the animation to the given step
func (d *Demo) Step(step int) error {
	t := float32(step) * 0.1
	vertices, colors := gridVertices(d.c.GridSize, t)
	err := d.sc.UpdatePrimitive(d.surface,
		scene.MustField(geometry.Triangle, geometry.RoleVertices, vertices),
		scene.MustField(geometry.Triangle, geometry.RoleColors, colors))
	if err != nil {
		return errors.Wrap(err, "surface")
	}
	if step%toggleEvery == 0 {
		p, err := d.sc.Get(d.surface)
		if err != nil {
			return err
		}
		if err := d.sc.SetAttributes(d.surface, p.Attrs^scene.AttrShowLines); err != nil {
			return err
		}
	}

	if d.arrows != 0 {
		err := d.sc.UpdatePrimitive(d.arrows,
			scene.MustField(geometry.Line, geometry.RoleVertices, arrowVertices(d.c.LineSegments, 0.05*t)))
		if err != nil {
			return errors.Wrap(err, "arrows")
		}
	}
	if d.points != 0 {
		err := d.sc.UpdatePrimitive(d.points,
			scene.MustField(geometry.Point, geometry.RoleVertices, d.cloud.vertices(0.3*t)))
		if err != nil {
			return errors.Wrap(err, "cloud")
		}
	}
	metricSteps.WithLabelValues(d.sc.Name()).Inc()
	return nil
}

// Run builds the scene and animates it every interval until the context is
// closed. A zero interval leaves the scene static.
func (d *Demo) Run(ctx context.Context) error {
	if err := d.Build(); err != nil {
		return err
	}
	if d.c.Interval <= 0 {
		<-ctx.Done()
		return context.Canceled
	}
	for step := 1; ; step++ {
		if err := utils.SleepContextPerturb(ctx, d.c.Interval); err != nil {
			return err
		}
		if err := d.Step(step); err != nil {
			d.l.WithError(err).Warn("Demo step failed")
		}
	}
}
