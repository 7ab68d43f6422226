// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hostlink

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/markv9401/gatepro/pkg/cover"
	"github.com/markv9401/gatepro/pkg/gatepro"
	log "github.com/sirupsen/logrus"
)

// Connection timing
const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	maxReadSize  = 512
)

// Target is the gate the server controls. cover.Controller implements it.
type Target interface {
	Control(call cover.Call) error
	SetParam(index, value int) error
	Send(cmd gatepro.Command) error
	State() cover.State
}

// Server is an http.Handler that upgrades to a websocket, streams state
// from the hub and dispatches host requests to the target.
type Server struct {
	target   Target
	hub      *Hub
	log      log.FieldLogger
	upgrader websocket.Upgrader
}

// NewServer creates a host API server.
func NewServer(target Target, hub *Hub, logger log.FieldLogger) *Server {
	return &Server{
		target: target,
		hub:    hub,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local use
			},
		},
	}
}

// client is one connected host
type client struct {
	conn *websocket.Conn
	log  log.FieldLogger
	mu   sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// ServeHTTP handles websocket requests
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{
		conn: conn,
		log:  s.log.WithField("remote", r.RemoteAddr),
	}
	c.log.WithField("clients", s.hub.Count()+1).Info("host connected")

	sub := s.hub.Subscribe()
	if _, ok := s.hub.Latest(); !ok {
		s.sendState(c, s.target.State())
	}

	done := make(chan struct{})
	go s.writePump(c, sub, done)
	s.readPump(c)

	close(done)
	sub.Unsubscribe()
	conn.Close()
	c.log.Info("host disconnected")
}

func (s *Server) readPump(c *client) {
	c.conn.SetReadLimit(maxReadSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("websocket read failed")
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		if err := s.dispatch(data); err != nil {
			c.log.WithError(err).Warn("host request rejected")
			if msg, encErr := EncodeError(err); encErr == nil {
				c.write(websocket.BinaryMessage, msg)
			}
		}
	}
}

func (s *Server) writePump(c *client, sub *Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case state, ok := <-sub.C():
			if !ok {
				c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.sendState(c, state); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) sendState(c *client, state cover.State) error {
	data, err := EncodeState(state)
	if err != nil {
		c.log.WithError(err).Error("encode state failed")
		return err
	}
	return c.write(websocket.BinaryMessage, data)
}

func (s *Server) dispatch(data []byte) error {
	msgType, payload, err := ParseMessage(data)
	if err != nil {
		return err
	}

	switch msgType {
	case MsgControl:
		call, err := DecodeControl(payload)
		if err != nil {
			return err
		}
		return s.target.Control(call)

	case MsgParamSet:
		index, value, err := DecodeParamSet(payload)
		if err != nil {
			return err
		}
		return s.target.SetParam(index, value)

	case MsgParamRead:
		return s.target.Send(gatepro.CmdReadParams)

	case MsgDeviceCommand:
		cmd, err := DecodeDeviceCommand(payload)
		if err != nil {
			return err
		}
		return s.target.Send(cmd)

	default:
		return fmt.Errorf("unexpected message type %s", MessageTypeName(msgType))
	}
}
