package dedalus

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
)

const realtimePath = "/v1/realtime"

// wsURL converts the BaseURL to a WebSocket URL and appends the path.
// https becomes wss, http becomes ws. URLs that already use ws/wss are
// left unchanged.
func (c *Client) wsURL(path string) string {
	u := c.BaseURL + path

	if strings.HasPrefix(u, "https://") {
		return "wss://" + u[len("https://"):]
	}

	if strings.HasPrefix(u, "http://") {
		return "ws://" + u[len("http://"):]
	}

	return u
}

// wsHeaders returns an http.Header with auth and custom headers applied,
// for use with WebSocket dial options.
func (c *Client) wsHeaders() http.Header {
	h := make(http.Header)

	if c.Auth.Key != "" {
		header := c.Auth.Header
		if header == "" {
			header = "Authorization"
		}

		value := c.Auth.Key
		if header == "Authorization" {
			scheme := c.Auth.Scheme
			if scheme == "" {
				scheme = "Bearer"
			}

			value = scheme + " " + value
		} else if c.Auth.Scheme != "" {
			value = c.Auth.Scheme + " " + value
		}

		h.Set(header, value)
	}

	for k, v := range c.Headers {
		h.Set(k, v)
	}

	return h
}

// DialRealtime opens a realtime session for the given model over WebSocket.
// The URL scheme is derived from BaseURL: https becomes wss, http becomes ws.
// It returns the WebSocket connection and the HTTP response from the handshake.
func (c *Client) DialRealtime(ctx context.Context, model string) (*websocket.Conn, *http.Response, error) {
	u := c.wsURL(realtimePath)
	if model != "" {
		u += "?model=" + url.QueryEscape(model)
	}

	conn, resp, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		HTTPClient: c.httpClient(),
		HTTPHeader: c.wsHeaders(),
	})
	if err != nil {
		return nil, resp, fmt.Errorf("dedalus: dial realtime: %w", err)
	}

	return conn, resp, nil
}
