package main

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadSecrets(t *testing.T) {
	t.Setenv("DMCHAT_SESSION_COOKIE", "session=abc")
	t.Setenv("DMCHAT_CSRF_TOKEN", "tok")

	s, err := loadSecrets()
	require.NoError(t, err)
	require.Equal(t, secrets{SessionCookie: "session=abc", CSRFToken: "tok"}, s)
}

func TestNewHTTPClient_SeedsJar(t *testing.T) {
	req := require.New(t)
	hc, err := newHTTPClient("http://chat.test/message/42", "session=abc; theme=dark")
	req.NoError(err)

	u, _ := url.Parse("http://chat.test/publish")
	got := map[string]string{}
	for _, c := range hc.Jar.Cookies(u) {
		got[c.Name] = c.Value
	}
	req.Equal(map[string]string{"session": "abc", "theme": "dark"}, got)

	_, err = newHTTPClient("http://chat.test/message/42", "")
	req.NoError(err)
}
