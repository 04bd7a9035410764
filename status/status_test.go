package status

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/PowerDNS/simpleblob/backends/memory"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshstream/meshstream/archive"
	"github.com/meshstream/meshstream/config"
	"github.com/meshstream/meshstream/frame"
	"github.com/meshstream/meshstream/geometry"
	"github.com/meshstream/meshstream/scene"
	"github.com/meshstream/meshstream/streamer"
)

func TestPage(t *testing.T) {
	c := config.Default()
	c.Scene.Name = "status"

	// Nothing registered yet
	rec := httptest.NewRecorder()
	(&Page{c: c}).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "no storage registered")
	assert.Contains(t, rec.Body.String(), "No clients connected")

	sc, err := scene.New(0, scene.DefaultCamera(), scene.WithName("status"))
	require.NoError(t, err)
	_, err = sc.AddPrimitive("points", geometry.Point, scene.DefaultAttrs, []scene.FieldToken{
		scene.MustField(geometry.Point, geometry.RoleVertices, []float32{0, 0, 0}),
	})
	require.NoError(t, err)
	s, err := streamer.New(sc, c.Stream, streamer.Options{Logger: logrus.New()})
	require.NoError(t, err)

	st := memory.New()
	a := archive.New(st, "status", "node-1", frame.DefaultMaxFrameSize, logrus.New())
	capture, err := a.Capture(sc.Snapshot(), nil, time.Now())
	require.NoError(t, err)
	ni, err := a.Store(context.Background(), capture)
	require.NoError(t, err)

	SetScene(sc)
	SetStreamer(s)
	SetStorage(st)
	defer func() {
		SetScene(nil)
		SetStreamer(nil)
		SetStorage(nil)
	}()

	rec = httptest.NewRecorder()
	(&Page{c: c}).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Scene status")
	assert.Contains(t, body, ni.FullName)
	assert.Contains(t, body, "node-1")

	rec = httptest.NewRecorder()
	(&Page{c: c}).ServeHTTP(rec, httptest.NewRequest("GET", "/other", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestServeMetadata(t *testing.T) {
	sc, err := scene.New(0, scene.DefaultCamera())
	require.NoError(t, err)
	sc.SetMetadata("model", map[string]string{"units": "mm"})
	SetScene(sc)
	defer SetScene(nil)

	rec := httptest.NewRecorder()
	ServeMetadata(rec, httptest.NewRequest("GET", "/metadata", nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var meta map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, "mm", meta["model"]["units"])
}
