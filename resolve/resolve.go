// Package resolve provides strategies for reconciling a locally cached
// record with a freshly fetched server record. Strategies are pure: they
// never mutate their inputs and have no side effects. They are applied by
// application code on read reconciliation; write conflicts detected by the
// sync manager always become conflict records requiring explicit dismissal.
package resolve

import "encoding/json"

// Record is a loosely typed snapshot of a domain record.
type Record map[string]any

// Strategy decides which version of a concurrently modified record wins.
type Strategy interface {
	// Name identifies the strategy, e.g. in configuration.
	Name() string

	// Resolve returns the accepted version given the client and server
	// copies of the same record.
	Resolve(client, server Record) Record
}

var (
	_ Strategy = (*ServerWins)(nil)
	_ Strategy = (*ClientWins)(nil)
	_ Strategy = (*MergeQuantity)(nil)
)

// ServerWins returns the server version unconditionally. This is the
// default strategy.
type ServerWins struct{}

func (ServerWins) Name() string { return "server-wins" }

func (ServerWins) Resolve(client, server Record) Record { return server }

// ClientWins returns the client version unconditionally.
type ClientWins struct{}

func (ClientWins) Name() string { return "client-wins" }

func (ClientWins) Resolve(client, server Record) Record { return client }

// MergeQuantity sums the numeric "quantity" field of both versions onto
// the server version's remaining fields. It exists for additive inventory
// counts, where two offline counts of the same location should accumulate
// rather than overwrite. When either version lacks a numeric quantity it
// falls back to server-wins.
type MergeQuantity struct{}

func (MergeQuantity) Name() string { return "merge-quantity" }

func (MergeQuantity) Resolve(client, server Record) Record {
	clientQty, ok := numericField(client, "quantity")
	if !ok {
		return server
	}
	serverQty, ok := numericField(server, "quantity")
	if !ok {
		return server
	}

	merged := make(Record, len(server))
	for k, v := range server {
		merged[k] = v
	}
	merged["quantity"] = clientQty + serverQty
	return merged
}

// numericField extracts a field as float64, covering the numeric types a
// decoded JSON payload or native caller may carry.
func numericField(r Record, key string) (float64, bool) {
	v, ok := r[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// ByName returns the strategy registered under the given name, or
// ServerWins when the name is unknown or empty.
func ByName(name string) Strategy {
	switch name {
	case "client-wins":
		return ClientWins{}
	case "merge-quantity":
		return MergeQuantity{}
	default:
		return ServerWins{}
	}
}
