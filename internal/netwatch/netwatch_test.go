package netwatch

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeTarget struct {
	mu        sync.Mutex
	reachable []bool
}

func (f *fakeTarget) SetNetworkReachability(r bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reachable = append(f.reachable, r)
}

func (f *fakeTarget) last() (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reachable) == 0 {
		return false, false
	}
	return f.reachable[len(f.reachable)-1], true
}

func TestPollerReportsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	target := &fakeTarget{}
	p := &Poller{Hosts: []string{srv.URL}, Interval: 20 * time.Millisecond, Target: target}
	p.Start()
	defer p.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if v, ok := target.last(); ok && v {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("poller never reported reachable")
}

func TestPollerReportsUnreachableWhenAllHostsFail(t *testing.T) {
	target := &fakeTarget{}
	p := &Poller{Hosts: []string{"http://127.0.0.1:1"}, Interval: 20 * time.Millisecond, Target: target}
	p.Start()
	defer p.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if v, ok := target.last(); ok && !v {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("poller never reported unreachable")
}
