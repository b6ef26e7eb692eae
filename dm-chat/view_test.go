package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/dm-chat/chatclient"
)

func TestTerminalView_FlushesOnScroll(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	v := newTerminalView(&out, "Direct", time.UTC)
	created := time.Date(2024, 5, 1, 10, 4, 5, 0, time.UTC)

	v.Append(chatclient.LogEntry{Text: "hi", Created: created})
	req.Empty(out.String())
	v.ScrollToLatest()
	req.Equal("[10:04:05] ● Direct: hi\n", out.String())
}

func TestTerminalView_ErrorsFlushImmediately(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	v := newTerminalView(&out, "Direct", time.UTC)
	created := time.Date(2024, 5, 1, 10, 4, 5, 0, time.UTC)

	v.Append(chatclient.LogEntry{Text: "hi", Created: created})
	v.Append(chatclient.LogEntry{Text: "Publish failed: boom", Error: true, Created: created})

	lines := strings.Split(strings.TrimSuffix(color.ClearCode(out.String()), "\n"), "\n")
	req.Equal([]string{
		"[10:04:05] ● Direct: hi",
		"[10:04:05] ! Publish failed: boom",
	}, lines)
}

func TestMetricsHandler(t *testing.T) {
	req := require.New(t)
	reg := prometheus.NewRegistry()
	metrics := chatclient.NewMetrics(reg)
	metrics.Attempts.Inc()
	srv := httptest.NewServer(newMetricsHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	req.NoError(err)
	_ = resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	req.NoError(err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	req.NoError(err)
	req.Contains(string(body), "dmchat_subscribe_attempts_total 1")
}
