package ocr

import (
	"fmt"
	"net/http"
)

// bearerTransport wraps a RoundTripper to add the Authorization header.
type bearerTransport struct {
	base  http.RoundTripper
	token string
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid side effects
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", fmt.Sprintf("Bearer %s", t.token))

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(reqClone)
}

// withBearerToken returns client with every request authenticated by token.
// An empty token leaves client unchanged.
func withBearerToken(client *http.Client, token string) *http.Client {
	if token == "" {
		return client
	}
	if client == nil {
		client = &http.Client{}
	}
	wrapped := *client
	wrapped.Transport = &bearerTransport{base: client.Transport, token: token}
	return &wrapped
}
