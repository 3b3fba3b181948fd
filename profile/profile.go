// Package profile collects propagation statistics and renders them in pprof
// format; one sample per (operator, operand position) pair, weighted by the
// number of walk steps that went through it.
package profile

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/pprof/profile"
)

var (
	mu       sync.Mutex
	sessions []*Session
)

// Session accumulates walk steps between Start and Stop.
type Session struct {
	counts map[string]int64
}

// Start begins recording propagation steps into a new session.
func Start() *Session {
	s := &Session{counts: make(map[string]int64)}
	mu.Lock()
	sessions = append(sessions, s)
	mu.Unlock()
	return s
}

// Stop detaches the session; its counts stay readable.
func (s *Session) Stop() {
	mu.Lock()
	defer mu.Unlock()
	for i := range sessions {
		if sessions[i] == s {
			sessions = append(sessions[:i], sessions[i+1:]...)
			return
		}
	}
}

// RecordStep counts one propagation step through the given operator at the
// given operand position. No-op when no session is active.
func RecordStep(kind string, pos uint32) {
	mu.Lock()
	defer mu.Unlock()
	if len(sessions) == 0 {
		return
	}
	key := fmt.Sprintf("%s[%d]", kind, pos)
	for _, s := range sessions {
		s.counts[key]++
	}
}

// Steps returns the total number of recorded steps.
func (s *Session) Steps() int64 {
	mu.Lock()
	defer mu.Unlock()
	var n int64
	for _, c := range s.counts {
		n += c
	}
	return n
}

// WriteTo renders the session as a pprof protobuf.
func (s *Session) WriteTo(w io.Writer) error {
	mu.Lock()
	keys := make([]string, 0, len(s.counts))
	for k := range s.counts {
		keys = append(keys, k)
	}
	mu.Unlock()
	sort.Strings(keys)

	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "steps", Unit: "count"}},
	}
	for i, k := range keys {
		fn := &profile.Function{ID: uint64(i + 1), Name: k}
		loc := &profile.Location{ID: uint64(i + 1), Line: []profile.Line{{Function: fn}}}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{s.counts[k]},
		})
	}
	return p.Write(w)
}
