// Package graph is the Bolt client for the Memgraph annotation store. The
// Neo4j driver speaks the same protocol, so it works against either.
package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/pkg/errors"

	"github.com/Kode-Rex/weave/pkg/tracing"
)

// Config holds the graph store connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Client exposes Cypher round-trips as plain string-keyed rows so callers
// never handle driver record types.
type Client struct {
	driver neo4j.DriverWithContext
	logger ectologger.Logger
}

// NewClient builds the Bolt driver. Auth is skipped entirely when no
// username is configured, which is the local Memgraph default.
func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(fmt.Sprintf("bolt://%s:%d", cfg.Host, cfg.Port), auth)
	if err != nil {
		return nil, errors.Wrap(err, "create graph driver")
	}

	return &Client{driver: driver, logger: logger}, nil
}

// Close closes the driver and its connection pool.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// VerifyConnectivity reports whether the graph store is reachable.
func (c *Client) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// WriteQuery runs a Cypher statement in a write transaction and returns the
// result rows keyed by their return aliases.
func (c *Client) WriteQuery(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	return c.query(ctx, "graph.Client.WriteQuery", neo4j.AccessModeWrite, cypher, params)
}

// ReadQuery runs a Cypher statement in a read transaction and returns the
// result rows keyed by their return aliases.
func (c *Client) ReadQuery(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	return c.query(ctx, "graph.Client.ReadQuery", neo4j.AccessModeRead, cypher, params)
}

func (c *Client) query(ctx context.Context, spanName string, mode neo4j.AccessMode, cypher string, params map[string]any) ([]map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, spanName)
	defer span.End()

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode})
	defer session.Close(ctx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		return collectRows(ctx, tx, cypher, params)
	}

	var result any
	var err error
	if mode == neo4j.AccessModeWrite {
		result, err = session.ExecuteWrite(ctx, work)
	} else {
		result, err = session.ExecuteRead(ctx, work)
	}
	if err != nil {
		return nil, err
	}

	return result.([]map[string]any), nil
}

func collectRows(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) ([]map[string]any, error) {
	result, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0)
	for result.Next(ctx) {
		record := result.Record()
		row := make(map[string]any, len(record.Keys))
		for _, key := range record.Keys {
			val, _ := record.Get(key)
			row[key] = flattenValue(val)
		}
		rows = append(rows, row)
	}

	return rows, result.Err()
}

// flattenValue converts neo4j nodes and relationships to plain property maps
func flattenValue(val any) any {
	switch v := val.(type) {
	case neo4j.Node:
		return v.Props
	case neo4j.Relationship:
		return v.Props
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = flattenValue(item)
		}
		return out
	default:
		return v
	}
}
