package testutil

import (
	"context"
	"sync"

	"hb-go/internal/hb"
)

// StubCopier records copy requests and returns Err. If OnCopy is set it is
// called with each request before returning.
type StubCopier struct {
	mu       sync.Mutex
	Err      error
	OnCopy   func(req hb.CopyRequest)
	requests []hb.CopyRequest
}

func NewStubCopier() *StubCopier {
	return &StubCopier{}
}

func (c *StubCopier) Copy(_ context.Context, req hb.CopyRequest) error {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	onCopy, err := c.OnCopy, c.Err
	c.mu.Unlock()

	if onCopy != nil {
		onCopy(req)
	}
	return err
}

// Requests returns the copy requests received so far.
func (c *StubCopier) Requests() []hb.CopyRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]hb.CopyRequest(nil), c.requests...)
}
