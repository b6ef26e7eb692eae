package main

import (
	"bufio"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gookit/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gosuda/dm-chat/chatclient"
)

var errorStyle = color.New(color.FgRed, color.OpBold)

// terminalView prints log entries as lines. Output is buffered; scrolling
// to the latest entry means flushing, and error notices flush immediately.
type terminalView struct {
	mu   sync.Mutex
	w    *bufio.Writer
	name string
	loc  *time.Location
}

func newTerminalView(out io.Writer, name string, loc *time.Location) *terminalView {
	return &terminalView{w: bufio.NewWriter(out), name: name, loc: loc}
}

func (v *terminalView) Append(e chatclient.LogEntry) {
	line := chatclient.RenderEntry(e, v.name, v.loc)
	if e.Error {
		line = errorStyle.Render(line)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	_, _ = v.w.WriteString(line + "\n")
	if e.Error {
		_ = v.w.Flush()
	}
}

func (v *terminalView) ScrollToLatest() {
	v.mu.Lock()
	defer v.mu.Unlock()
	_ = v.w.Flush()
}

// newMetricsHandler builds the local observability router.
func newMetricsHandler(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}
