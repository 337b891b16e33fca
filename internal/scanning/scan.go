package scanning

import (
	"context"
	"fmt"
	"sync"
)

// State is the phase of a scan attempt.
type State int

const (
	StateIdle State = iota
	StateNormalizing
	StateExtracting
	StateParsing
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNormalizing:
		return "normalizing"
	case StateExtracting:
		return "extracting"
	case StateParsing:
		return "parsing"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Attempt is a snapshot of one user-initiated scan. The Image is
// retained once normalization succeeds, so a failed extraction can be
// retried without re-uploading, and the preview stays available
// independent of the extraction outcome.
type Attempt struct {
	ID     uint64
	State  State
	Image  NormalizedImage
	Record ContactRecord
	Err    error
}

// Orchestrator sequences normalization, extraction and parsing into one
// scan attempt at a time. Each attempt carries a monotonically
// increasing generation ID; phase results are committed only while that
// ID still matches the current attempt, so starting a new scan
// supersedes an in-flight one and the stale result is silently
// discarded. No cancellation is propagated to the superseded call.
type Orchestrator struct {
	extractor Extractor
	parse     func(string) ContactRecord

	mu      sync.Mutex
	seq     uint64
	current Attempt
}

// NewOrchestrator creates an Orchestrator using the default parser.
func NewOrchestrator(extractor Extractor) *Orchestrator {
	return NewOrchestratorWithParser(extractor, ParseContact)
}

// NewOrchestratorWithParser creates an Orchestrator with a custom parse
// function for testing.
func NewOrchestratorWithParser(extractor Extractor, parse func(string) ContactRecord) *Orchestrator {
	return &Orchestrator{
		extractor: extractor,
		parse:     parse,
	}
}

// Current returns a snapshot of the current attempt.
func (o *Orchestrator) Current() Attempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Reset clears the retained image and record, returning to idle. Any
// in-flight attempt keeps running but its result will not be applied.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.current = Attempt{State: StateIdle}
}

// Scan runs a full attempt: normalize, extract, parse. It returns the
// attempt's terminal snapshot. A decode failure ends the attempt before
// the extractor is called; an extraction failure ends it before the
// parser is invoked.
func (o *Orchestrator) Scan(ctx context.Context, raw []byte, contentType string) Attempt {
	a := o.begin(StateNormalizing, NormalizedImage{})

	img, err := Normalize(raw, contentType)
	if err != nil {
		a.State = StateFailed
		a.Err = err
		return o.commit(a)
	}

	a.Image = img
	a.State = StateExtracting
	a = o.commit(a)

	return o.run(ctx, a)
}

// Retry re-invokes extraction on the image retained by the current
// attempt, without re-uploading. It fails when nothing is retained.
func (o *Orchestrator) Retry(ctx context.Context) (Attempt, error) {
	o.mu.Lock()
	img := o.current.Image
	o.mu.Unlock()
	if len(img.Bytes()) == 0 {
		return Attempt{}, fmt.Errorf("no retained image to retry")
	}

	a := o.begin(StateExtracting, img)
	return o.run(ctx, a), nil
}

// begin starts a new attempt with the next generation ID, superseding
// whatever was current.
func (o *Orchestrator) begin(state State, img NormalizedImage) Attempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	o.current = Attempt{ID: o.seq, State: state, Image: img}
	return o.current
}

// run drives an attempt from extraction through parsing.
func (o *Orchestrator) run(ctx context.Context, a Attempt) Attempt {
	text, err := o.extractor.Extract(ctx, a.Image.Payload(), a.Image.MIMEType())
	if err != nil {
		a.State = StateFailed
		a.Err = err
		return o.commit(a)
	}

	a.State = StateParsing
	a = o.commit(a)

	// The parser is structurally total: formatting noise degrades to the
	// raw-text fallback record instead of failing the attempt.
	a.Record = o.parse(text)
	a.State = StateSuccess
	return o.commit(a)
}

// commit applies an attempt snapshot only if its generation ID still
// matches the current attempt. Superseded attempts get their own
// snapshot back but leave the orchestrator untouched.
func (o *Orchestrator) commit(a Attempt) Attempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current.ID == a.ID {
		o.current = a
	}
	return a
}
