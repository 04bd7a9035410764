// Package status implements the HTTP status server with the status page,
// Prometheus metrics and the scene metadata.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/meshstream/meshstream/archive"
	"github.com/meshstream/meshstream/config"
	"github.com/meshstream/meshstream/scene"
	"github.com/meshstream/meshstream/streamer"
)

const listTimeout = 5 * time.Second

func StartHTTPServer(c config.Config) {
	if c.HTTP.Address == "" {
		logrus.Info("HTTP stats server disabled")
		return
	}
	logrus.WithField("address", c.HTTP.Address).Info("HTTP stats server enabled")
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/metadata", ServeMetadata)
	http.Handle("/", &Page{
		c: c,
	})
	go func() {
		err := http.ListenAndServe(c.HTTP.Address, nil)
		logrus.Fatalf("HTTP server error: %v", err)
	}()
}

// ServeMetadata serves the metadata map of the scene as JSON, in the same
// form that clients receive on connect.
func ServeMetadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(gi.Metadata()); err != nil {
		logrus.WithError(err).Debug("Metadata write failed")
	}
}

type Page struct {
	c config.Config
}

const statusTemplateString = `<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<title>meshstream status</title>
	<style>
		body          { font-family: sans-serif; }
		table, td, th { border: 1px solid #ccc; border-collapse: collapse; }
		td, th        { padding: 5px; text-align: left; }
		td.num        { text-align: right; }
		td.error      { background-color: #ffb8b8; }
		td.no-error   { background-color: #a6f3a6; }
		a             { text-decoration: none; color: #3c6ac5; }
	</style>
</head>
<body>
	<h1>meshstream status</h1>
	<p>
		<a href="/metrics">Prometheus metrics</a> |
		<a href="/metadata">Scene metadata</a> |
		<a href="/healthz">Health</a>
	</p>

	{{ if .HasStats }}
	<h2>Scene {{ .Config.Scene.Name }}</h2>
	<table>
		<tr><th>Primitives</th><th>Stripes</th><th>Owned stripes</th><th>Vertices</th></tr>
		<tr>
			<td class="num">{{ .Stats.Primitives }}</td>
			<td class="num">{{ .Stats.Stripes }}</td>
			<td class="num">{{ .Stats.Owned }}</td>
			<td class="num">{{ .Stats.Vertices }}</td>
		</tr>
	</table>
	{{ end }}

	<h2>Clients</h2>
	{{ if .Clients }}
	<table>
		<tr><th>ID</th><th>Connected since</th><th>Synced</th><th>Frames</th><th>Bytes</th></tr>
		{{ range .Clients }}
		<tr>
			<td>{{ .ID }}</td>
			<td>{{ .Since.Format "2006-01-02 15:04:05" }}</td>
			<td class="{{ if .Synced }}no-error{{ else }}error{{ end }}">{{ .Synced }}</td>
			<td class="num">{{ .Frames }}</td>
			<td class="num">{{ .Bytes }}</td>
		</tr>
		{{ end }}
	</table>
	{{ else }}
	<p>No clients connected</p>
	{{ end }}

	<h2>Captures</h2>
	{{ if .CapturesErr }}
	<p class="error">{{ .CapturesErr }}</p>
	{{ else }}
	<table>
		<tr><th>Name</th><th>Instance</th><th>Time</th><th>Size</th></tr>
		{{ range .Captures }}
		<tr>
			<td>{{ .FullName }}</td>
			<td>{{ .InstanceID }}</td>
			<td>{{ .Timestamp.Format "2006-01-02 15:04:05" }}</td>
			<td class="num">{{ .Size }}</td>
		</tr>
		{{ end }}
	</table>
	{{ end }}

	<h2>Config</h2>
	<pre>{{ .Config.String }}</pre>

</body>
</html>`

var statusTemplate *htmltemplate.Template

func init() {
	var err error
	statusTemplate, err = htmltemplate.New("status").Parse(statusTemplateString)
	if err != nil {
		log.Fatalf("BUG: Error in status HTML template: %v", err)
	}
}

func (p *Page) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), listTimeout)
	defer cancel()
	captures, err := gi.ListCaptures(ctx)
	stats, hasStats := gi.SceneStats()

	data := struct {
		Config      config.Config
		HasStats    bool
		Stats       scene.Stats
		Clients     []streamer.ClientInfo
		Captures    []archive.NameInfo
		CapturesErr error
	}{
		Config:      p.c,
		HasStats:    hasStats,
		Stats:       stats,
		Clients:     gi.Clients(),
		Captures:    captures,
		CapturesErr: err,
	}

	err = statusTemplate.Execute(w, data)
	if err != nil {
		w.WriteHeader(500)
		_, _ = w.Write([]byte(fmt.Sprintf("Template execution error: %v", err)))
	}
}
