package coach

import (
	"strings"
	"sync"
)

// Pool hands out one Proxy per base URL so API descriptions are fetched
// once per peer.
type Pool struct {
	opts []ProxyOption

	mu      sync.Mutex
	proxies map[string]*Proxy
}

// NewPool creates a pool whose proxies share opts.
func NewPool(opts ...ProxyOption) *Pool {
	return &Pool{opts: opts, proxies: make(map[string]*Proxy)}
}

// Get returns the proxy for baseURL, creating it on first use.
func (p *Pool) Get(baseURL string) *Proxy {
	key := strings.TrimRight(baseURL, "/")

	p.mu.Lock()
	defer p.mu.Unlock()

	if proxy, ok := p.proxies[key]; ok {
		return proxy
	}
	proxy := NewProxy(key, p.opts...)
	p.proxies[key] = proxy
	return proxy
}

// Len returns the number of proxies created so far.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}
