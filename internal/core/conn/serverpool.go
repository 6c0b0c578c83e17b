package conn

import (
	"fmt"
	"math/rand/v2"
	"net"
	"net/url"
	"strings"
)

// DefaultPort is assumed for server URLs without a port.
const DefaultPort = "4222"

// Server is one entry of a ServerPool.
type Server struct {
	URL        *url.URL
	Reconnects int
	DidConnect bool
}

// ServerPool orders the servers to try. The head is the current server;
// a failed head rotates to the back until it exhausts its reconnect
// budget. It is not safe for concurrent use.
type ServerPool struct {
	servers       []*Server
	maxReconnects int
}

// NewServerPool parses and normalizes urls, dropping duplicates. The
// order is shuffled unless noRandomize is set. A negative maxReconnects
// never removes a server.
func NewServerPool(urls []string, noRandomize bool, maxReconnects int) (*ServerPool, error) {
	p := &ServerPool{maxReconnects: maxReconnects}
	seen := make(map[string]bool, len(urls))
	for _, raw := range urls {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			u, err := ParseServerURL(part)
			if err != nil {
				return nil, err
			}
			if seen[u.String()] {
				continue
			}
			seen[u.String()] = true
			p.servers = append(p.servers, &Server{URL: u})
		}
	}
	if len(p.servers) == 0 {
		return nil, ErrNoServers
	}
	if !noRandomize {
		rand.Shuffle(len(p.servers), func(i, j int) {
			p.servers[i], p.servers[j] = p.servers[j], p.servers[i]
		})
	}
	return p, nil
}

// ParseServerURL adds the nats scheme and default port where missing.
func ParseServerURL(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "nats://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse server url %q: %w", raw, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("parse server url %q: missing host", raw)
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), DefaultPort)
	}
	return u, nil
}

// Current returns the head of the pool, or nil when it is empty.
func (p *ServerPool) Current() *Server {
	if len(p.servers) == 0 {
		return nil
	}
	return p.servers[0]
}

// MarkConnected records a successful connection to the current server.
func (p *ServerPool) MarkConnected() {
	if s := p.Current(); s != nil {
		s.DidConnect = true
		s.Reconnects = 0
	}
}

// Next records a failed attempt on the current server, moves it to the
// back (or drops it once over budget) and returns the new head.
func (p *ServerPool) Next() (*Server, error) {
	if len(p.servers) == 0 {
		return nil, ErrNoServers
	}
	head := p.servers[0]
	p.servers = p.servers[1:]
	head.Reconnects++
	if p.maxReconnects < 0 || head.Reconnects <= p.maxReconnects {
		p.servers = append(p.servers, head)
	}
	if len(p.servers) == 0 {
		return nil, ErrNoServers
	}
	return p.servers[0], nil
}

// URLs returns the pool order as URL strings.
func (p *ServerPool) URLs() []string {
	out := make([]string, len(p.servers))
	for i, s := range p.servers {
		out[i] = s.URL.String()
	}
	return out
}

// Len returns the number of servers left in the pool.
func (p *ServerPool) Len() int {
	return len(p.servers)
}
