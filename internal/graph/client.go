// Package graph stores the vouch graph: who vouched for which portfolio.
package graph

import (
	"context"
	"errors"
)

// Client is the subset of a Cypher-speaking graph database the vouch graph needs
type Client interface {
	ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (Result, error)
	ExecuteRead(ctx context.Context, cypher string, params map[string]any) (Result, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

// Result holds the records returned by a query
type Result struct {
	Records []Record
}

// Record maps returned column names to values
type Record map[string]any

// String returns the string value of key, or "" when absent or not a string
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Options configures a graph client
type Options struct {
	URI            string
	Database       string
	Username       string
	Password       string
	MaxConnections int
}

// ErrMissingURI indicates the graph URI is not provided
var ErrMissingURI = errors.New("graph URI is required")
