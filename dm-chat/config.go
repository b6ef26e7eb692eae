package main

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// secrets come from the environment, after loading .env if present.
type secrets struct {
	SessionCookie string `env:"DMCHAT_SESSION_COOKIE"`
	CSRFToken     string `env:"DMCHAT_CSRF_TOKEN"`
}

func loadSecrets() (secrets, error) {
	_ = godotenv.Load()
	var s secrets
	if err := env.Parse(&s); err != nil {
		return secrets{}, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}

// newHTTPClient returns a client whose cookie jar is shared by the page
// load, the websocket handshake and publish requests. cookie is a
// Cookie header value such as "session=abc; other=1".
func newHTTPClient(pageURL, cookie string) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if cookie != "" {
		u, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("parse page url: %w", err)
		}
		cookies, err := http.ParseCookie(cookie)
		if err != nil {
			return nil, fmt.Errorf("DMCHAT_SESSION_COOKIE: %w", err)
		}
		jar.SetCookies(&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, cookies)
	}
	return &http.Client{Jar: jar, Timeout: 15 * time.Second}, nil
}
