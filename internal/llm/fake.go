package llm

import (
	"context"
	"errors"
	"sync"
)

// Fake is a scripted Client for tests. Responses are returned in order; once
// exhausted, Complete fails. Calls records every request for assertions.
type Fake struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Calls     []Request
}

// Complete returns the next scripted response, or Err when set.
func (f *Fake) Complete(_ context.Context, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, req)
	if f.Err != nil {
		return "", f.Err
	}
	if len(f.Calls) > len(f.Responses) {
		return "", errors.New("fake llm: no scripted response left")
	}
	return f.Responses[len(f.Calls)-1], nil
}

// CallCount returns the number of Complete invocations.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
