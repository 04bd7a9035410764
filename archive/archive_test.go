package archive

import (
	"context"
	"testing"
	"time"

	"github.com/PowerDNS/simpleblob/backends/memory"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshstream/meshstream/frame"
	"github.com/meshstream/meshstream/frame/replica"
	"github.com/meshstream/meshstream/geometry"
	"github.com/meshstream/meshstream/scene"
)

func testSnapshot(t *testing.T) *scene.Snapshot {
	c, err := scene.New(0, scene.DefaultCamera(), scene.WithName("workshop"))
	require.NoError(t, err)

	cloud := make([]float32, 3*3000)
	for i := range cloud {
		cloud[i] = float32(i % 17)
	}
	_, err = c.AddPrimitive("cloud", geometry.Point, scene.DefaultAttrs, []scene.FieldToken{
		scene.MustField(geometry.Point, geometry.RoleVertices, cloud),
	})
	require.NoError(t, err)
	_, err = c.AddPrimitive("tri", geometry.Triangle, scene.DefaultAttrs, []scene.FieldToken{
		scene.MustField(geometry.Triangle, geometry.RoleVertices, []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}),
	})
	require.NoError(t, err)
	c.SetMetadata("model", map[string]string{"units": "mm", "author": "test"})
	return c.Snapshot()
}

func TestCaptureRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	a := New(st, "workshop", "node-1", frame.MinFrameSize*4, logrus.New())

	s := testSnapshot(t)
	ts := time.Date(2024, 3, 4, 5, 6, 7, 890, time.UTC)
	c, err := a.Capture(s, map[string]map[string]string{"model": {"units": "mm", "author": "test"}}, ts)
	require.NoError(t, err)
	assert.Greater(t, len(c.Frames), 1, "3000 points do not fit in one 4KB frame")

	ni, err := a.Store(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "workshop__node-1__20240304-050607-000000890.capture.gz", ni.FullName)
	assert.Greater(t, ni.Size, int64(0))

	loaded, ni2, err := Latest(ctx, st, "workshop")
	require.NoError(t, err)
	assert.Equal(t, ni.FullName, ni2.FullName)
	assert.Equal(t, CurrentFormatVersion, loaded.FormatVersion)
	assert.Equal(t, c.Meta, loaded.Meta)
	assert.Equal(t, ts, loaded.Meta.Time())
	assert.Equal(t, uint32(2), loaded.Meta.Primitives)
	assert.Equal(t, c.Metadata, loaded.Metadata)
	assert.Equal(t, c.Frames, loaded.Frames)

	// The frames rebuild the scene
	r := replica.New()
	for _, f := range loaded.Frames {
		require.NoError(t, r.ApplyFrame(f))
	}
	require.NoError(t, r.Validate())
	assert.Equal(t, 1, r.Cycles)
	assert.Equal(t, s.Seq, r.Seq)
	require.NotNil(t, r.ByName("cloud"))
	n := 0
	for _, stripe := range r.ByName("cloud").Stripes {
		n += stripe.VertexCount()
	}
	assert.Equal(t, 3000, n)
}

func TestListAndPrune(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	a := New(st, "workshop", "node-1", frame.DefaultMaxFrameSize, logrus.New())
	other := New(st, "workshop", "node-2", frame.DefaultMaxFrameSize, logrus.New())
	s := testSnapshot(t)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		c, err := a.Capture(s, nil, t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		_, err = a.Store(ctx, c)
		require.NoError(t, err)
	}
	c, err := other.Capture(s, nil, t0.Add(time.Hour))
	require.NoError(t, err)
	_, err = other.Store(ctx, c)
	require.NoError(t, err)
	require.NoError(t, st.Store(ctx, "workshop__junk.txt", []byte("x")))
	require.NoError(t, st.Store(ctx, "elsewhere__node-1__20240101-000000-000000000.capture.gz", []byte("x")))

	infos, err := a.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 5)
	assert.Equal(t, "node-2", infos[4].InstanceID, "newest last")

	all, err := List(ctx, st, "")
	require.NoError(t, err)
	assert.Len(t, all, 6)

	removed, err := a.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	infos, err = a.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, t0.Add(2*time.Minute), infos[0].Timestamp)

	_, _, err = Latest(ctx, st, "nothing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseName(t *testing.T) {
	ts := time.Date(2022, 1, 2, 3, 4, 5, 12345678, time.UTC)
	tests := []struct {
		testName string
		name     string
		want     NameInfo
		wantErr  bool
	}{
		{
			"roundtrip",
			Name("scene1", "inst1", ts),
			NameInfo{
				FullName:        "scene1__inst1__20220102-030405-012345678.capture.gz",
				Scene:           "scene1",
				InstanceID:      "inst1",
				TimestampString: "20220102-030405-012345678",
				Timestamp:       ts,
			},
			false,
		},
		{"invalid", "invalid", NameInfo{}, true},
		{"wrong-extension", "scene1__inst1__20220102-030405-012345678.pb.gz", NameInfo{}, true},
		{"missing-parts", "scene1__20220102-030405-012345678.capture.gz", NameInfo{}, true},
		{"bad-timestamp", "scene1__inst1__20220102-030405.capture.gz", NameInfo{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.testName, func(t *testing.T) {
			got, err := ParseName(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnmarshalErrors(t *testing.T) {
	c := &Capture{FormatVersion: CurrentFormatVersion + 1}
	err := new(Capture).Unmarshal(c.Marshal())
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = LoadData([]byte("not gzip"))
	assert.Error(t, err)

	// Meta sent with the wrong wire type
	e := &encoder{}
	e.uint(FieldCaptureMeta, 1)
	err = new(Capture).Unmarshal(e.b)
	assert.ErrorAs(t, err, &ErrUnexpectedWireType{})
}
