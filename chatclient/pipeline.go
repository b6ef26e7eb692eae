package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrMissingBody = errors.New("inbound record has no body")

// InboundMessage is a decoded stream record. Only Body is required; the
// sender metadata is best effort and left zero when absent or malformed.
type InboundMessage struct {
	Body     string
	FromID   string
	ToID     string
	Sender   string
	Receiver string
	Created  time.Time
}

// DecodeInbound parses a text frame. Records without a body string are
// rejected like unparsable ones.
func DecodeInbound(payload []byte) (InboundMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return InboundMessage{}, err
	}
	var body *string
	if raw, ok := fields["body"]; ok {
		if err := json.Unmarshal(raw, &body); err != nil {
			return InboundMessage{}, fmt.Errorf("body: %w", err)
		}
	}
	if body == nil {
		return InboundMessage{}, ErrMissingBody
	}

	msg := InboundMessage{
		Body:     *body,
		FromID:   metaString(fields["from_id"]),
		ToID:     metaString(fields["to_id"]),
		Sender:   metaString(fields["sender"]),
		Receiver: metaString(fields["receiver"]),
	}
	if raw, ok := fields["created"]; ok {
		if err := json.Unmarshal(raw, &msg.Created); err != nil {
			log.Debug().Err(err).Msg("[dm-chat] ignore unparsable created timestamp")
		}
	}
	return msg, nil
}

// metaString reads an optional string field. Numbers keep their literal
// text; any other type yields "".
func metaString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return string(raw)
	}
	return ""
}

// Field is the compose input a submission reads from.
type Field interface {
	Value() string
	Clear()
}

// ComposeField is an in-memory Field.
type ComposeField struct {
	mu   sync.Mutex
	text string
}

func (f *ComposeField) Set(text string) {
	f.mu.Lock()
	f.text = text
	f.mu.Unlock()
}

func (f *ComposeField) Value() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

func (f *ComposeField) Clear() {
	f.Set("")
}

// Pipeline turns inbound frames into log entries and submissions into
// publish requests. Publish failures are reported back into the same log.
type Pipeline struct {
	page      Page
	log       *Log
	publisher Publisher
	metrics   *Metrics

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func NewPipeline(page Page, l *Log, publisher Publisher, metrics *Metrics) *Pipeline {
	return &Pipeline{page: page, log: l, publisher: publisher, metrics: metrics}
}

// Deliver appends the body of one inbound frame to the log and scrolls the
// view to it. Malformed frames are dropped with a diagnostic.
func (p *Pipeline) Deliver(payload []byte) {
	msg, err := DecodeInbound(payload)
	if err != nil {
		p.metrics.inbound("malformed")
		log.Warn().Err(err).Int("bytes", len(payload)).Msg("[dm-chat] discard malformed frame")
		return
	}
	p.metrics.inbound("delivered")
	log.Debug().Str("sender", msg.Sender).Msg("[dm-chat] message received")
	p.log.Append(SanitizeBody(msg.Body), false)
	p.log.ScrollToLatest()
}

// Submit publishes the content of field. Blank content is ignored and
// leaves the field untouched; otherwise the field is cleared before the
// request is sent and is not restored if it fails. The request runs in the
// background; Submit reports whether one was started.
func (p *Pipeline) Submit(ctx context.Context, field Field) bool {
	text := field.Value()
	if strings.TrimSpace(text) == "" {
		return false
	}
	p.mu.Lock()
	if p.stopped || ctx.Err() != nil {
		p.mu.Unlock()
		log.Debug().Msg("[dm-chat] submit ignored after shutdown")
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()
	field.Clear()

	msg := p.page.Outbound(text)
	go func() {
		defer p.wg.Done()
		if err := p.publisher.Publish(ctx, msg); err != nil {
			if ctx.Err() != nil {
				log.Debug().Err(err).Msg("[dm-chat] publish abandoned on shutdown")
				return
			}
			p.metrics.publish("failed")
			log.Warn().Err(err).Msg("[dm-chat] publish failed")
			p.log.Append("Publish failed: "+err.Error(), true)
			return
		}
		p.metrics.publish("accepted")
	}()
	return true
}

// Wait blocks until every started publish request has resolved. Submissions
// made after Wait has been called are ignored.
func (p *Pipeline) Wait() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.wg.Wait()
}
