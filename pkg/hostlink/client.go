// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hostlink

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/markv9401/gatepro/pkg/cover"
	"github.com/markv9401/gatepro/pkg/gatepro"
)

// Client is a host connected to a gate driver's host API.
type Client struct {
	conn *websocket.Conn
}

// DialOptions configures Dial.
type DialOptions struct {
	Header        http.Header
	SkipSSLVerify bool
}

// DialWebSocket opens a websocket connection to rawURL (ws:// or wss://).
func DialWebSocket(ctx context.Context, rawURL string, opts DialOptions) (*websocket.Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: opts.SkipSSLVerify,
		}
	}

	conn, resp, err := dialer.DialContext(ctx, rawURL, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	return conn, nil
}

// Dial connects to a host API at rawURL.
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*Client, error) {
	conn, err := DialWebSocket(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Control sends a control request.
func (c *Client) Control(call cover.Call) error {
	data, err := EncodeControl(call)
	if err != nil {
		return err
	}
	return c.send(data)
}

// SetParam sends a parameter change.
func (c *Client) SetParam(index, value int) error {
	data, err := EncodeParamSet(index, value)
	if err != nil {
		return err
	}
	return c.send(data)
}

// ReadParams asks the driver to read the parameter vector.
func (c *Client) ReadParams() error {
	data, err := EncodeParamRead()
	if err != nil {
		return err
	}
	return c.send(data)
}

// Send asks the driver to dispatch a device command.
func (c *Client) Send(cmd gatepro.Command) error {
	data, err := EncodeDeviceCommand(cmd)
	if err != nil {
		return err
	}
	return c.send(data)
}

// ReadState blocks until the next state message. A MsgError from the driver
// is returned as *RemoteError.
func (c *Client) ReadState() (cover.State, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return cover.State{}, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		msgType, payload, err := ParseMessage(data)
		if err != nil {
			return cover.State{}, err
		}
		switch msgType {
		case MsgState:
			return DecodeState(payload)
		case MsgError:
			return cover.State{}, DecodeError(payload)
		}
	}
}

// SetReadDeadline bounds the next ReadState.
func (c *Client) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Client) Close() error {
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

func (c *Client) send(data []byte) error {
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}
