package chatclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

var ErrEmptyMessage = errors.New("message is empty")

// OutboundMessage is what a submission publishes. It lives only until the
// publish request resolves.
type OutboundMessage struct {
	Text       string
	CSRFToken  string
	SenderID   string
	ReceiverID string
	TimeZone   string
}

// Publisher asks the server to broadcast a message. A nil error means the
// server accepted it.
type Publisher interface {
	Publish(ctx context.Context, msg OutboundMessage) error
}

// StatusError reports a response status other than the expected one.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d %s", e.Code, e.Status)
}

// HTTPPublisher posts messages as multipart form data and expects
// 202 Accepted.
type HTTPPublisher struct {
	Endpoint string
	Client   *http.Client
	Header   http.Header
}

func (p *HTTPPublisher) Publish(ctx context.Context, msg OutboundMessage) error {
	if msg.Text == "" {
		return ErrEmptyMessage
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, f := range [][2]string{
		{"message", msg.Text},
		{"csrf_token", msg.CSRFToken},
		{"senderId", msg.SenderID},
		{"receiverId", msg.ReceiverID},
		{"timezone", msg.TimeZone},
	} {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("encode %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("encode form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, &body)
	if err != nil {
		return err
	}
	for k, vs := range p.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	hc := p.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusAccepted {
		return &StatusError{Code: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}
	return nil
}
