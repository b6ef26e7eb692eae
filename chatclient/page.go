package chatclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"
)

var (
	ErrNoTarget    = errors.New("page path has no conversation segment")
	ErrNoCSRFToken = errors.New("page has no csrf_token field")
)

// csrfField is the name of the hidden input carrying the anti-forgery token.
const csrfField = "csrf_token"

// Page is the context a conversation view is opened with. It is built once
// from the page URL and handed by value to the connection manager and the
// delivery pipeline, so nothing re-reads location state per call.
type Page struct {
	URL *url.URL

	// TargetID is the last path segment; it addresses /subscribe/{id}.
	TargetID string
	// PeerID is the second path segment; it is sent as both senderId and
	// receiverId on publish.
	PeerID string

	CSRFToken string
	TimeZone  string
}

// ParsePage derives the conversation identifiers from a page URL such as
// http://host/message/42. The token is left empty; see LoadPage.
func ParsePage(raw string) (Page, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Page{}, fmt.Errorf("parse page url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return Page{}, fmt.Errorf("page url %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return Page{}, fmt.Errorf("page url %q: missing host", raw)
	}

	segs := strings.Split(u.Path, "/")
	p := Page{URL: u, TimeZone: LocalTimeZone()}
	p.TargetID = segs[len(segs)-1]
	if p.TargetID == "" {
		return Page{}, fmt.Errorf("page url %q: %w", raw, ErrNoTarget)
	}
	if len(segs) > 2 {
		p.PeerID = segs[2]
	}
	return p, nil
}

// WithCSRFToken returns a copy of p carrying token.
func (p Page) WithCSRFToken(token string) Page {
	p.CSRFToken = token
	return p
}

// WithTimeZone returns a copy of p carrying the IANA zone name tz.
func (p Page) WithTimeZone(tz string) Page {
	p.TimeZone = tz
	return p
}

// Location resolves the page time zone, falling back to UTC.
func (p Page) Location() *time.Location {
	if p.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SubscribeURL is the stream endpoint for the page's conversation. The
// websocket scheme follows the page scheme.
func (p Page) SubscribeURL() string {
	scheme := "ws"
	if p.URL.Scheme == "https" {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: p.URL.Host, Path: "/subscribe/" + p.TargetID}
	return u.String()
}

// PublishURL is the endpoint outbound messages are posted to.
func (p Page) PublishURL() string {
	u := url.URL{Scheme: p.URL.Scheme, Host: p.URL.Host, Path: "/publish"}
	return u.String()
}

// Outbound assembles the publish payload for text.
func (p Page) Outbound(text string) OutboundMessage {
	return OutboundMessage{
		Text:       text,
		CSRFToken:  p.CSRFToken,
		SenderID:   p.PeerID,
		ReceiverID: p.PeerID,
		TimeZone:   p.TimeZone,
	}
}

// LoadPage parses raw and fetches the page to read its anti-forgery token.
// hc should carry a cookie jar: the token is only valid together with the
// cookie the page response sets.
func LoadPage(ctx context.Context, hc *http.Client, raw string) (Page, error) {
	p, err := ParsePage(raw)
	if err != nil {
		return Page{}, err
	}
	if hc == nil {
		hc = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL.String(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("new page request: %w", err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("fetch page: %w", &StatusError{Code: resp.StatusCode, Status: http.StatusText(resp.StatusCode)})
	}

	token, err := findCSRFToken(resp.Body)
	if err != nil {
		return Page{}, err
	}
	return p.WithCSRFToken(token), nil
}

func findCSRFToken(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != nil && err != io.EOF {
				return "", fmt.Errorf("parse page: %w", err)
			}
			return "", ErrNoCSRFToken
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			var name, value string
			var hasValue bool
			for _, a := range tok.Attr {
				switch a.Key {
				case "name":
					name = a.Val
				case "value":
					value, hasValue = a.Val, true
				}
			}
			if name == csrfField && hasValue {
				return value, nil
			}
		}
	}
}

// LocalTimeZone reports the IANA name of the host time zone: $TZ when it
// names a loadable zone, then the /etc/localtime symlink target, then UTC.
func LocalTimeZone() string {
	if tz := strings.TrimPrefix(os.Getenv("TZ"), ":"); tz != "" {
		if _, err := time.LoadLocation(tz); err == nil {
			return tz
		}
	}
	if target, err := filepath.EvalSymlinks("/etc/localtime"); err == nil {
		if i := strings.Index(target, "zoneinfo/"); i >= 0 {
			tz := target[i+len("zoneinfo/"):]
			if _, err := time.LoadLocation(tz); err == nil {
				return tz
			}
		}
	}
	if name := time.Local.String(); name != "Local" && name != "" {
		return name
	}
	return "UTC"
}
