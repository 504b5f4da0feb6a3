// Package invokertest provides a scripted Generator for tests.
package invokertest

import (
	"context"
	"sync"

	"github.com/Lllllllleong/legaldocumentflow/internal/invoker"
)

// Reply is one canned generator answer.
type Reply struct {
	Text string
	Err  error
	// Wait blocks the reply until the call context is done, which lets
	// tests exercise deadlines and cancellation.
	Wait bool
}

// Generator is a thread-safe scripted invoker.Generator.
//
// Replies are returned in call order. Respond, when set, takes precedence
// and is used for tests whose call order is not fixed, such as concurrent
// image analysis.
//
//	gen := &invokertest.Generator{
//	    Replies: []invokertest.Reply{
//	        {Text: `{"nieuwe_elementen": []}`},
//	        {Err: invoker.ErrBlocked},
//	    },
//	}
type Generator struct {
	mu       sync.Mutex
	Replies  []Reply
	Respond  func(req invoker.Request) Reply
	requests []invoker.Request
	next     int
}

// Generate implements invoker.Generator.
func (g *Generator) Generate(ctx context.Context, req invoker.Request) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	var reply Reply
	switch {
	case g.Respond != nil:
		reply = g.Respond(req)
	case g.next < len(g.Replies):
		reply = g.Replies[g.next]
		g.next++
	}
	g.mu.Unlock()

	if reply.Wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return reply.Text, reply.Err
}

// Requests returns a copy of every request received so far.
func (g *Generator) Requests() []invoker.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]invoker.Request, len(g.requests))
	copy(out, g.requests)
	return out
}

// CallCount returns the number of Generate calls.
func (g *Generator) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// Reset clears recorded requests and rewinds the script.
func (g *Generator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = nil
	g.next = 0
}
