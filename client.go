// Package novagrid is a thin client for the NovaGrid distributed SQL/KV
// cluster. It speaks the cluster's binary protocol over a shared TCP
// connection and exposes tables as records of named, typed fields.
package novagrid

import (
	"context"
	"log/slog"
	"time"

	"github.com/tuannm99/novagrid/internal/conn"
)

// Config carries everything needed to reach a cluster.
type Config struct {
	// Addresses lists cluster endpoints in host:port form; they are tried
	// in order.
	Addresses []string

	// DialTimeout bounds each connection attempt. Zero means no limit
	// beyond ctx.
	DialTimeout time.Duration

	// Logger receives connection and schema events. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Client is a handle to one cluster. It is safe for concurrent use; all
// tables share its connection.
type Client struct {
	conn   *conn.Conn
	tables *Tables
	log    *slog.Logger
}

// Connect dials the cluster and performs the protocol handshake.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	c, err := conn.Dial(ctx, conn.Config{
		Addresses:   cfg.Addresses,
		DialTimeout: cfg.DialTimeout,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	return &Client{conn: c, tables: newTables(c, log), log: log}, nil
}

// Tables returns the table facade.
func (c *Client) Tables() *Tables { return c.tables }

// Close tears the connection down. In-flight operations fail their
// callbacks; the client must not be used afterwards.
func (c *Client) Close() error {
	return c.conn.Close()
}
