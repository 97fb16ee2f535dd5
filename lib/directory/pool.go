/*
Copyright 2016 VMware, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package directory

import (
	"sync"

	"github.com/gravitational/trace"
)

// defaultMaxIdle is how many released clients a pool keeps around for reuse.
const defaultMaxIdle = 4

// Pool hands out directory clients for the duration of one logical
// operation. Borrow a client, run the operation's search/modify sequence,
// and release it on every exit path. Connections are never held across two
// independent operations.
type Pool struct {
	cfg ClientConfig

	mu     sync.Mutex
	idle   []*Client
	closed bool
}

// NewPool returns a pool that connects with the given config. Connections
// are established lazily on first borrow.
func NewPool(cfg ClientConfig) (*Pool, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Pool{cfg: cfg}, nil
}

// Borrow returns a connected client, reusing an idle one when available.
func (p *Pool) Borrow() (*Client, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, trace.ConnectionProblem(nil, "directory pool is closed")
	}
	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()
	c, err := NewClient(p.cfg)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return c, nil
}

// Release returns a client to the pool. Clients that observed a transport
// error should be passed to Discard instead.
func (p *Pool) Release(c *Client) {
	if c == nil {
		return
	}
	p.mu.Lock()
	if !p.closed && len(p.idle) < defaultMaxIdle {
		p.idle = append(p.idle, c)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	c.Close()
}

// Discard closes a borrowed client without returning it to the pool.
func (p *Pool) Discard(c *Client) {
	if c != nil {
		c.Close()
	}
}

// Close closes all idle connections. Borrowed clients are closed when
// released.
func (p *Pool) Close() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()
	for _, c := range idle {
		c.Close()
	}
}
