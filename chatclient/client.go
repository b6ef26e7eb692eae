// Package chatclient is the client side of a direct-message channel: it
// keeps a websocket subscription to a conversation open across transient
// failures, renders inbound messages into an append-only log, and publishes
// outgoing messages over HTTP.
package chatclient

import (
	"context"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Config holds the collaborators of a Client. Zero values select the
// defaults: real clock, gorilla transport, HTTP publisher, no persistence.
type Config struct {
	View           View
	HTTPClient     *http.Client
	Header         http.Header
	ReconnectDelay time.Duration
	DataPath       string
	HistoryLimit   int
	Metrics        *Metrics
	Clock          clock.Clock
	Transport      Transport
	Publisher      Publisher
}

// Client wires the connection manager and the delivery pipeline of one
// conversation around a shared log.
type Client struct {
	ID       string
	Page     Page
	Log      *Log
	Conn     *ConnManager
	Pipeline *Pipeline

	transcript *Transcript
}

func New(page Page, cfg Config) (*Client, error) {
	id := uuid.NewString()
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	header := cfg.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("X-Client-Id", id)

	transcript, err := OpenTranscript(cfg.DataPath)
	if err != nil {
		return nil, err
	}
	l := NewLog(cfg.View, transcript, cfg.Clock)
	history, err := transcript.LoadRecent(cfg.HistoryLimit)
	if err != nil {
		log.Warn().Err(err).Msg("[dm-chat] load history failed")
	} else if len(history) > 0 {
		log.Info().Msgf("[dm-chat] loaded %d entries from transcript", len(history))
	}
	l.bootstrap(history)

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = &HTTPPublisher{Endpoint: page.PublishURL(), Client: hc, Header: header}
	}
	transport := cfg.Transport
	if transport == nil {
		dialer := *websocket.DefaultDialer
		dialer.Jar = hc.Jar
		transport = &WebsocketTransport{Dialer: &dialer, Header: header}
	}

	pipeline := NewPipeline(page, l, publisher, cfg.Metrics)
	opts := []ConnOption{WithMetrics(cfg.Metrics)}
	if cfg.Clock != nil {
		opts = append(opts, WithClock(cfg.Clock))
	}
	if cfg.ReconnectDelay > 0 {
		opts = append(opts, WithReconnectDelay(cfg.ReconnectDelay))
	}
	conn := NewConnManager(page.SubscribeURL(), transport, l, pipeline, opts...)

	return &Client{
		ID:         id,
		Page:       page,
		Log:        l,
		Conn:       conn,
		Pipeline:   pipeline,
		transcript: transcript,
	}, nil
}

// Run opens the subscription and blocks until ctx is cancelled, then waits
// for the subscription and in-flight publishes to wind down.
func (c *Client) Run(ctx context.Context) error {
	log.Info().Str("client_id", c.ID).Str("conversation", c.Page.TargetID).Msg("[dm-chat] starting")
	c.Conn.Start(ctx)
	<-ctx.Done()
	c.Conn.Wait()
	c.Pipeline.Wait()
	return nil
}

// Submit publishes the content of field; see Pipeline.Submit.
func (c *Client) Submit(ctx context.Context, field Field) bool {
	return c.Pipeline.Submit(ctx, field)
}

// Close releases the transcript store. Call it after Run returns.
func (c *Client) Close() error {
	return c.transcript.Close()
}
