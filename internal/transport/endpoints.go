package transport

import (
	"strings"
	"sync"
)

// EndpointStrategy orders the endpoints to try for one send and learns from
// outcomes.
type EndpointStrategy interface {
	Endpoints() []string
	Report(endpoint string, err error)
}

// StickyEndpoints tries the last endpoint that worked first, then the rest in
// configured order.
type StickyEndpoints struct {
	mu        sync.Mutex
	endpoints []string
	preferred int
}

func NewStickyEndpoints(endpoints []string) *StickyEndpoints {
	out := make([]string, 0, len(endpoints))
	for _, endpoint := range endpoints {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			out = append(out, endpoint)
		}
	}
	return &StickyEndpoints{endpoints: out}
}

func (s *StickyEndpoints) Endpoints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.endpoints)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s.endpoints[(s.preferred+i)%n])
	}
	return out
}

func (s *StickyEndpoints) Report(endpoint string, err error) {
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.endpoints {
		if e == endpoint {
			s.preferred = i
			return
		}
	}
}
