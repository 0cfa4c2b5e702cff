// Package sseparser implements a stateful byte-stream SSE line framer
// shared by every provider's streaming transformer (spec §4.2).
package sseparser

import (
	"bytes"

	"github.com/dshills/llmgateway/internal/gwerrors"
)

// maxRepeat is the infinite-loop guard threshold: emitting the same
// payload this many consecutive times aborts the stream.
const maxRepeat = 100

// EventKind distinguishes a data payload from the terminal [DONE] sentinel.
type EventKind int

const (
	// EventData carries a payload extracted from a "data:" line, or a raw
	// JSON line for upstreams that elide the "data:" prefix.
	EventData EventKind = iota
	// EventDone is the terminal [DONE] sentinel.
	EventDone
)

// Event is one decoded SSE frame.
type Event struct {
	Kind    EventKind
	Payload string
}

// Parser is a stateful line framer fed arbitrary byte chunks that may split
// lines across call boundaries.
type Parser struct {
	buf           []byte
	lastPayload   string
	lastSet       bool
	repeatCount   int
}

// New returns a fresh Parser.
func New() *Parser {
	return &Parser{}
}

// Feed appends bytes and returns every complete event they produced.
func (p *Parser) Feed(chunk []byte) ([]Event, error) {
	p.buf = append(p.buf, chunk...)

	var events []Event
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			break
		}
		line := p.buf[:idx]
		p.buf = p.buf[idx+1:]

		ev, ok, err := p.parseLine(line)
		if err != nil {
			return events, err
		}
		if ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

// Flush parses any unterminated trailing data once, at end-of-stream.
func (p *Parser) Flush() ([]Event, error) {
	if len(p.buf) == 0 {
		return nil, nil
	}
	line := p.buf
	p.buf = nil
	ev, ok, err := p.parseLine(line)
	if err != nil || !ok {
		return nil, err
	}
	return []Event{ev}, nil
}

// parseLine implements the per-line decision tree of spec §4.2.
func (p *Parser) parseLine(line []byte) (Event, bool, error) {
	line = bytes.TrimSuffix(line, []byte("\r"))

	if len(line) == 0 {
		return Event{}, false, nil
	}
	if line[0] == ':' {
		return Event{}, false, nil
	}
	if bytes.HasPrefix(line, []byte("event:")) {
		return Event{}, false, nil
	}

	var payload string
	switch {
	case bytes.HasPrefix(line, []byte("data:")):
		rest := line[len("data:"):]
		rest = bytes.TrimPrefix(rest, []byte(" "))
		payload = string(rest)
	case line[0] == '{' || line[0] == '[':
		payload = string(line)
	default:
		return Event{}, false, nil
	}

	if payload == "[DONE]" {
		p.resetRepeatGuard()
		return Event{Kind: EventDone}, true, nil
	}

	if err := p.checkRepeatGuard(payload); err != nil {
		return Event{}, false, err
	}

	return Event{Kind: EventData, Payload: payload}, true, nil
}

func (p *Parser) checkRepeatGuard(payload string) error {
	if p.lastSet && payload == p.lastPayload {
		p.repeatCount++
		if p.repeatCount >= maxRepeat {
			return &gwerrors.StreamError{Message: "sse parser saw the same payload 100 times in a row"}
		}
		return nil
	}
	p.lastPayload = payload
	p.lastSet = true
	p.repeatCount = 1
	return nil
}

func (p *Parser) resetRepeatGuard() {
	p.lastSet = false
	p.repeatCount = 0
	p.lastPayload = ""
}
