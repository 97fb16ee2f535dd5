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
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/gravitational/trace"

	"github.com/vmware-archive/lightwave-sub003"
)

// ClientConfig holds the connection parameters for a directory client.
type ClientConfig struct {
	// Addr is the directory server URL (ldap:// or ldaps://).
	Addr string
	// BindDN is the DN used for the service bind.
	BindDN string
	// Password is the service bind password.
	Password string
	// TLSConfig is used for ldaps and StartTLS connections, may be nil for
	// plain connections.
	TLSConfig *tls.Config
	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration
	// SearchTimeout bounds each search request, zero means no limit.
	SearchTimeout time.Duration
	// Logger emits connection lifecycle events.
	Logger *slog.Logger
}

// CheckAndSetDefaults validates the config and fills in defaults.
func (c *ClientConfig) CheckAndSetDefaults() error {
	if c.Addr == "" {
		return trace.BadParameter("missing Addr")
	}
	if c.BindDN == "" {
		return trace.BadParameter("missing BindDN")
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.With(lightwave.ComponentKey, lightwave.ComponentDirectory)
	}
	return nil
}

// Client is a Directory backed by a single LDAP connection. The connection
// is guarded by a mutex so a Client is safe for concurrent use, but callers
// wanting parallelism should borrow from a Pool instead.
type Client struct {
	cfg ClientConfig

	mu     sync.Mutex
	client ldap.Client
}

// NewClient connects and binds a new directory client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	c := &Client{cfg: cfg}
	if err := c.connect(); err != nil {
		return nil, trace.Wrap(err)
	}
	return c, nil
}

func (c *Client) connect() error {
	opts := []ldap.DialOpt{
		ldap.DialWithDialer(&net.Dialer{Timeout: c.cfg.DialTimeout}),
	}
	if c.cfg.TLSConfig != nil {
		opts = append(opts, ldap.DialWithTLSConfig(c.cfg.TLSConfig))
	}
	conn, err := ldap.DialURL(c.cfg.Addr, opts...)
	if err != nil {
		return trace.ConnectionProblem(err, "dialing directory at %v", c.cfg.Addr)
	}
	if err := conn.Bind(c.cfg.BindDN, c.cfg.Password); err != nil {
		conn.Close()
		if IsInvalidCredentialsError(err) {
			return trace.AccessDenied("invalid directory credentials for %q", c.cfg.BindDN)
		}
		return trace.Wrap(err, "binding as %q", c.cfg.BindDN)
	}
	c.setClient(conn)
	return nil
}

func (c *Client) setClient(client ldap.Client) {
	c.mu.Lock()
	if c.client != nil {
		c.client.Close()
	}
	c.client = client
	c.mu.Unlock()
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.mu.Lock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	c.mu.Unlock()
}

// Search implements Directory.
func (c *Client) Search(baseDN string, scope Scope, filter string, attrs []string, attrsOnly bool, limit int) ([]*ldap.Entry, error) {
	if limit < 0 {
		limit = 0 // wire convention: 0 is no size limit
	}
	timeLimit := 0
	if c.cfg.SearchTimeout > 0 {
		timeLimit = int(c.cfg.SearchTimeout / time.Second)
	}
	req := ldap.NewSearchRequest(
		baseDN,
		scope.ldapScope(),
		ldap.DerefAlways,
		limit,
		timeLimit,
		attrsOnly,
		filter,
		attrs,
		nil,
	)
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.client.Search(req)
	if err != nil {
		// A size-limited search that hits its limit still carries the
		// entries collected so far.
		if limit > 0 && ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) && res != nil {
			return res.Entries, nil
		}
		if IsNoSuchObjectError(err) {
			return nil, trace.NotFound("no directory entry under %q", baseDN)
		}
		return nil, trace.Wrap(err, "searching %q with filter %v", baseDN, filter)
	}
	return res.Entries, nil
}

// Add implements Directory.
func (c *Client) Add(dn string, attrs []Attribute) error {
	req := ldap.NewAddRequest(dn, nil)
	for _, a := range attrs {
		req.Attribute(a.Name, a.Values)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.client.Add(req); err != nil {
		return trace.Wrap(convertError(err, dn))
	}
	return nil
}

// Modify implements Directory.
func (c *Client) Modify(dn string, mods []Modification) error {
	req := ldap.NewModifyRequest(dn, nil)
	for _, m := range mods {
		switch m.Op {
		case ModAdd:
			req.Add(m.Name, m.Values)
		case ModReplace:
			req.Replace(m.Name, m.Values)
		case ModDelete:
			req.Delete(m.Name, m.Values)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.client.Modify(req); err != nil {
		return trace.Wrap(convertError(err, dn))
	}
	return nil
}

// Delete implements Directory.
func (c *Client) Delete(dn string) error {
	req := ldap.NewDelRequest(dn, nil)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.client.Del(req); err != nil {
		return trace.Wrap(convertError(err, dn))
	}
	return nil
}

// Bind implements Directory. It authenticates the given credentials on a
// dedicated connection so the service bind on the pooled connection stays
// intact.
func (c *Client) Bind(username, password string) error {
	opts := []ldap.DialOpt{
		ldap.DialWithDialer(&net.Dialer{Timeout: c.cfg.DialTimeout}),
	}
	if c.cfg.TLSConfig != nil {
		opts = append(opts, ldap.DialWithTLSConfig(c.cfg.TLSConfig))
	}
	conn, err := ldap.DialURL(c.cfg.Addr, opts...)
	if err != nil {
		return trace.ConnectionProblem(err, "dialing directory at %v", c.cfg.Addr)
	}
	defer conn.Close()
	if err := conn.Bind(username, password); err != nil {
		return trace.Wrap(err)
	}
	return nil
}

// convertError maps the LDAP result codes the identity store reacts to onto
// trace error types. Anything else passes through wrapped.
func convertError(err error, dn string) error {
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		switch ldapErr.ResultCode {
		case ldap.LDAPResultEntryAlreadyExists:
			return trace.AlreadyExists("directory entry %q already exists", dn)
		case ldap.LDAPResultConstraintViolation:
			return trace.BadParameter("constraint violation on %q: %v", dn, err)
		case ldap.LDAPResultInsufficientAccessRights:
			return trace.AccessDenied("insufficient permissions on %q", dn)
		case ldap.LDAPResultNoSuchObject:
			return trace.NotFound("directory entry %q does not exist", dn)
		}
	}
	return err
}
