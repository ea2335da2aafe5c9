// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// Client reads events from a telemetry hub.
type Client struct {
	conn *websocket.Conn
}

// Dial connects to a hub, e.g. ws://localhost:8090/telemetry.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("telemetry dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("telemetry dial failed: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Next blocks for the next event.
func (c *Client) Next() (Envelope, any, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return Envelope{}, nil, err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		return DecodeEvent(data)
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
