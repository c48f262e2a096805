package tickers

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/wonny/spxlab/internal/contracts"
)

// MaxHops bounds a single resolution even when the table has no strict cycle
const MaxHops = 10

var (
	// ErrCircularReference is returned when a symbol is revisited during one resolution
	ErrCircularReference = errors.New("circular reference in ticker transitions")

	// ErrMaxHops is returned when a chain is longer than MaxHops
	ErrMaxHops = errors.New("ticker transition chain exceeds max hops")
)

type edge struct {
	next     string
	delisted bool
}

// Resolver follows rename/merger/delisting chains to a current symbol.
// The transition map is built once and never mutated, so one Resolver is
// safe to share between goroutines.
// ⭐ SSOT: 티커 변경 이력 해석은 여기서만
type Resolver struct {
	edges map[string]edge
}

// Resolution is the outcome of one resolve call
type Resolution struct {
	Symbol   string   `json:"symbol"`            // input (normalized)
	Current  string   `json:"current,omitempty"` // empty when delisted
	Delisted bool     `json:"delisted"`          // chain ended in a sink
	Chain    []string `json:"chain"`             // symbol ... current
	Hops     int      `json:"hops"`
}

// NewResolver builds the immutable map from base transitions plus overrides.
// An override for the same old symbol replaces the base edge.
func NewResolver(base []contracts.TickerTransition, overrides ...contracts.TickerTransition) *Resolver {
	edges := make(map[string]edge, len(base)+len(overrides))
	for _, set := range [][]contracts.TickerTransition{base, overrides} {
		for _, t := range set {
			old := normalize(t.Old)
			if old == "" {
				continue
			}
			next := normalize(t.New)
			edges[old] = edge{next: next, delisted: t.Delisted || next == ""}
		}
	}
	return &Resolver{edges: edges}
}

// NewDefaultResolver uses the built-in table plus overrides
func NewDefaultResolver(overrides ...contracts.TickerTransition) *Resolver {
	return NewResolver(DefaultTransitions(), overrides...)
}

// Resolve returns the current tradable symbol for symbol.
// ok is false when the chain ends at a delisting sink.
func (r *Resolver) Resolve(symbol string) (current string, ok bool, err error) {
	res, err := r.Trace(symbol)
	if err != nil {
		return "", false, err
	}
	if res.Delisted {
		return "", false, nil
	}
	return res.Current, true, nil
}

// TransitionChain returns the full path from symbol to its terminal symbol
// (the last element is the delisted symbol itself when the chain ends in a sink)
func (r *Resolver) TransitionChain(symbol string) ([]string, error) {
	res, err := r.Trace(symbol)
	if err != nil {
		return nil, err
	}
	return res.Chain, nil
}

// Trace walks the chain once and reports everything about it
func (r *Resolver) Trace(symbol string) (*Resolution, error) {
	cur := normalize(symbol)
	res := &Resolution{Symbol: cur, Chain: []string{cur}}
	visited := map[string]struct{}{cur: {}}

	for {
		e, ok := r.edges[cur]
		if !ok {
			res.Current = cur
			return res, nil
		}
		if e.delisted {
			res.Delisted = true
			return res, nil
		}

		if res.Hops >= MaxHops {
			return nil, fmt.Errorf("%s after %d hops (%s): %w", res.Symbol, res.Hops, strings.Join(res.Chain, " -> "), ErrMaxHops)
		}
		if _, seen := visited[e.next]; seen {
			return nil, fmt.Errorf("%s: %s -> %s: %w", res.Symbol, strings.Join(res.Chain, " -> "), e.next, ErrCircularReference)
		}

		visited[e.next] = struct{}{}
		res.Chain = append(res.Chain, e.next)
		res.Hops++
		cur = e.next
	}
}

// Known reports whether symbol has an outgoing transition
func (r *Resolver) Known(symbol string) bool {
	_, ok := r.edges[normalize(symbol)]
	return ok
}

// Transitions returns the effective table sorted by old symbol
func (r *Resolver) Transitions() []contracts.TickerTransition {
	out := make([]contracts.TickerTransition, 0, len(r.edges))
	for old, e := range r.edges {
		out = append(out, contracts.TickerTransition{Old: old, New: e.next, Delisted: e.delisted})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Old < out[j].Old })
	return out
}

// Validate walks every chain and returns the first structural error
func (r *Resolver) Validate() error {
	for _, t := range r.Transitions() {
		if _, err := r.Trace(t.Old); err != nil {
			return err
		}
	}
	return nil
}

func normalize(s string) string {
	return contracts.NormalizeTicker(s)
}
