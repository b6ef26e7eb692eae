package chatclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket close status codes the client distinguishes.
const (
	CloseNormal    = websocket.CloseNormalClosure
	CloseGoingAway = websocket.CloseGoingAway
	CloseAbnormal  = websocket.CloseAbnormalClosure
)

const (
	readLimit = 1 << 20
	closeWait = 2 * time.Second
)

type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
)

func (k FrameKind) String() string {
	if k == FrameText {
		return "text"
	}
	return "binary"
}

// Handler receives the events of one subscription, in order: at most one
// OnOpen, any number of OnMessage, exactly one OnClose.
type Handler interface {
	OnOpen()
	OnMessage(kind FrameKind, payload []byte)
	OnClose(code int, reason string)
}

// Transport opens subscriptions. Subscribe blocks for the lifetime of one
// subscription and calls OnClose only after the underlying handle has been
// released; it returns right after OnClose. A failed dial is reported as a
// close with CloseAbnormal. Cancelling ctx closes the subscription with
// CloseGoingAway.
type Transport interface {
	Subscribe(ctx context.Context, endpoint string, h Handler)
}

// WebsocketTransport is the gorilla/websocket Transport.
type WebsocketTransport struct {
	Dialer *websocket.Dialer
	Header http.Header
}

func (t *WebsocketTransport) Subscribe(ctx context.Context, endpoint string, h Handler) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint, t.Header)
	if err != nil {
		reason := err.Error()
		if resp != nil {
			reason = fmt.Sprintf("%s (HTTP %d)", reason, resp.StatusCode)
		}
		h.OnClose(CloseAbnormal, reason)
		return
	}
	conn.SetReadLimit(readLimit)
	h.OnOpen()

	// Teardown: announce going away and give the peer closeWait to echo the
	// close frame before the read loop is cut off.
	stop := context.AfterFunc(ctx, func() {
		deadline := time.Now().Add(closeWait)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseGoingAway, "client shutdown"), deadline)
		_ = conn.SetReadDeadline(deadline)
	})

	for {
		mt, payload, err := conn.ReadMessage()
		if err != nil {
			stop()
			_ = conn.Close()
			code, reason := closeStatus(ctx, err)
			h.OnClose(code, reason)
			return
		}
		switch mt {
		case websocket.TextMessage:
			h.OnMessage(FrameText, payload)
		case websocket.BinaryMessage:
			h.OnMessage(FrameBinary, payload)
		}
	}
}

func closeStatus(ctx context.Context, err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	if ctx.Err() != nil {
		return CloseGoingAway, "client shutdown"
	}
	return CloseAbnormal, err.Error()
}
