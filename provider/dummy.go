package provider

import (
	"context"
	"sync"
)

const dummyPlan = `{
  "title": "Untitled",
  "scenes": [
    {"description": "opening shot", "duration": 10},
    {"description": "middle shot", "duration": 10},
    {"description": "closing shot", "duration": 10}
  ],
  "lyrics": "la la la",
  "sections": ["verse", "chorus", "verse"]
}`

// DummyText is useful for local runs and tests. Respond overrides the canned
// response, which is valid input for every text step.
type DummyText struct {
	Respond func(system, prompt string) (string, error)
}

func (d *DummyText) Generate(ctx context.Context, system, prompt string) (string, error) {
	if d.Respond != nil {
		return d.Respond(system, prompt)
	}
	return dummyPlan, nil
}

// DummyMedia accepts every submission and remembers it.
type DummyMedia struct {
	mu        sync.Mutex
	Submitted []MediaRequest
	Err       error
}

func (d *DummyMedia) Submit(ctx context.Context, req MediaRequest) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return "", d.Err
	}
	d.Submitted = append(d.Submitted, req)
	return "dummy-" + req.CorrelationToken, nil
}

func (d *DummyMedia) Requests() []MediaRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]MediaRequest, len(d.Submitted))
	copy(out, d.Submitted)
	return out
}
