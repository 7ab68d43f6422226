// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/markv9401/gatepro/pkg/hostlink"
	"go.bug.st/serial"
	"golang.org/x/term"
)

const (
	// serialReadTimeout makes serial reads return whatever bytes are available
	serialReadTimeout = 50 * time.Millisecond

	// passwordEnv holds the WebSocket basic auth password
	passwordEnv = "GATEPRO_PASSWORD"

	dialTimeout = 15 * time.Second
)

// Connection carries raw UART bytes from a serial port or a WebSocket bridge
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// ErrConnectionClosed is returned by reads once a bridge connection is gone
var ErrConnectionClosed = errors.New("websocket connection closed")

// bridgeConnection adapts a WebSocket bridge to a byte stream. Each message
// holds a chunk of UART bytes.
type bridgeConnection struct {
	conn    *websocket.Conn
	pending []byte
	closed  bool
}

func (b *bridgeConnection) Read(p []byte) (int, error) {
	for len(b.pending) == 0 {
		if b.closed {
			return 0, ErrConnectionClosed
		}

		messageType, data, err := b.conn.ReadMessage()
		if err != nil {
			b.closed = true
			return 0, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
		}
		// The bridge forwards UART text as either frame type
		if messageType == websocket.BinaryMessage || messageType == websocket.TextMessage {
			b.pending = data
		}
	}

	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

func (b *bridgeConnection) Write(p []byte) (int, error) {
	if err := b.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (b *bridgeConnection) Close() error {
	return b.conn.Close()
}

// isConnectionClosed reports read errors after which a connection is gone
func isConnectionClosed(err error) bool {
	if errors.Is(err, ErrConnectionClosed) {
		return true
	}
	var portErr *serial.PortError
	return errors.As(err, &portErr) && portErr.Code() == serial.PortClosed
}

// OpenSerialConnection opens a serial port at 8N1
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
	}
	return port, nil
}

// basicAuthHeader builds HTTP headers with Basic auth
func basicAuthHeader(username, password string) http.Header {
	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}
	return headers
}

// OpenWebSocketConnection connects to a serial-over-WebSocket bridge
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, err := hostlink.DialWebSocket(ctx, wsURL, hostlink.DialOptions{
		Header:        basicAuthHeader(username, password),
		SkipSSLVerify: skipSSLVerify,
	})
	if err != nil {
		return nil, err
	}
	return &bridgeConnection{conn: conn}, nil
}

// GetPassword returns the password from the environment, prompting without
// echo on a terminal and reading a plain line otherwise
func GetPassword() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

// webSocketPassword prompts for a password only when a username is set
func webSocketPassword() (string, error) {
	if wsUsername == "" {
		return "", nil
	}
	return GetPassword()
}

// OpenConnection opens the bridge given by --url, or else the serial port
// given by --port. The second result describes the connection.
func OpenConnection() (Connection, string, error) {
	switch {
	case wsURL != "":
		password, err := webSocketPassword()
		if err != nil {
			return nil, "", err
		}
		conn, err := OpenWebSocketConnection(wsURL, wsUsername, password, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", wsURL), nil

	case portName != "":
		conn, err := OpenSerialConnection(portName, baudRate)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}
