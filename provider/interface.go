// Package provider defines where assistant replies come from.
//
// The session core only depends on the Source contract: given the user's
// query and the prior conversation, return one complete reply. The reply is
// then revealed gradually by the reveal package, so a Source never streams.
//
// CannedSource is the built-in implementation. It picks uniformly from a
// fixed pool of replies and ignores the query. A real retrieval or
// generation backend can replace it without touching the controller.
//
// # Usage
//
//	src := provider.NewCannedSource(provider.WithSeed(42))
//	reply, err := src.Generate(ctx, "hello", nil)
//	if err != nil {
//	    // handle error
//	}
package provider

import "context"

// Role values used in Turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one prior message of the conversation, as seen by a Source.
type Turn struct {
	Role    string
	Content string
}

// Source supplies a complete assistant reply for a query.
//
// Generate must return a non-empty reply or an error. Implementations must
// return promptly once ctx is done.
type Source interface {
	Generate(ctx context.Context, query string, history []Turn) (string, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(ctx context.Context, query string, history []Turn) (string, error)

func (f SourceFunc) Generate(ctx context.Context, query string, history []Turn) (string, error) {
	return f(ctx, query, history)
}
