package stream

import (
	"sync"
)

const defaultMaxStreams = 1000

// Reasons a stream is refused; used as metric labels.
const (
	rejectPerIP  = "per_ip_limit"
	rejectGlobal = "global_limit"
)

// slots bounds concurrent SSE streams per client IP and in total.
type slots struct {
	mu       sync.Mutex
	byIP     map[string]int
	total    int
	perIP    int
	maxTotal int
}

func newSlots(perIP, maxTotal int) *slots {
	if maxTotal <= 0 {
		maxTotal = defaultMaxStreams
	}
	return &slots{byIP: make(map[string]int), perIP: perIP, maxTotal: maxTotal}
}

// take reserves a slot for ip. On success it returns a release func that is
// safe to call more than once; on refusal it returns the reason.
func (s *slots) take(ip string) (release func(), reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.total >= s.maxTotal:
		return nil, rejectGlobal
	case s.byIP[ip] >= s.perIP:
		return nil, rejectPerIP
	}
	s.byIP[ip]++
	s.total++

	var once sync.Once
	return func() { once.Do(func() { s.give(ip) }) }, ""
}

func (s *slots) give(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total--
	if s.byIP[ip]--; s.byIP[ip] <= 0 {
		delete(s.byIP, ip)
	}
}

// held returns the slots held by ip.
func (s *slots) held(ip string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byIP[ip]
}
