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

// Package idstore implements a directory-backed identity store: principal
// lookup, search, group membership, account lifecycle and attribute
// retrieval over an LDAP directory, with transparent domain-alias
// rewriting.
package idstore

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/go-ldap/ldap/v3"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	"github.com/vmware-archive/lightwave-sub003"
	"github.com/vmware-archive/lightwave-sub003/lib/directory"
	"github.com/vmware-archive/lightwave-sub003/lib/principal"
)

// Config configures a Provider. Exactly one of Directory or Pool must be
// set: Directory is used directly, Pool is borrowed from per operation.
type Config struct {
	// Store is the identity-store descriptor.
	Store StoreConfig
	// Directory is a fixed directory connection, used when set.
	Directory directory.Directory
	// Pool supplies a scoped connection per logical operation.
	Pool *directory.Pool
	// Logger emits provider diagnostics.
	Logger *slog.Logger
	// Clock supplies the current time.
	Clock clockwork.Clock
}

// CheckAndSetDefaults validates the config and fills in defaults.
func (c *Config) CheckAndSetDefaults() error {
	if err := c.Store.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}
	if c.Directory == nil && c.Pool == nil {
		return trace.BadParameter("missing Directory or Pool")
	}
	if c.Logger == nil {
		c.Logger = slog.With(lightwave.ComponentKey, lightwave.ComponentIDStore)
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Provider resolves, searches and mutates principals in one identity
// store's directory. All fields are immutable after construction except the
// memoized domain id, so a Provider is safe for concurrent use.
type Provider struct {
	cfg     Config
	aliases *AliasTable
	logger  *slog.Logger
	clock   clockwork.Clock

	// mu guards the lazily resolved domainID only.
	mu       sync.Mutex
	domainID string
}

// NewProvider builds a provider, its alias table and validates the matcher
// attribute projections.
func NewProvider(cfg Config) (*Provider, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := validateProjections(); err != nil {
		return nil, trace.Wrap(err)
	}
	aliases, err := NewAliasTable(cfg.Store.DomainName, cfg.Store.AliasDomain, cfg.Store.AccountAliases)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &Provider{
		cfg:     cfg,
		aliases: aliases,
		logger:  cfg.Logger,
		clock:   cfg.Clock,
	}, nil
}

// Name returns the store's domain name.
func (p *Provider) Name() string { return p.cfg.Store.DomainName }

// Aliases returns the provider's alias table.
func (p *Provider) Aliases() *AliasTable { return p.aliases }

// borrow returns a directory connection and its release function. Every
// logical operation borrows once and releases on all exit paths.
func (p *Provider) borrow() (directory.Directory, func(), error) {
	if p.cfg.Directory != nil {
		return p.cfg.Directory, func() {}, nil
	}
	c, err := p.cfg.Pool.Borrow()
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	return c, func() { p.cfg.Pool.Release(c) }, nil
}

// search runs one subtree search on a borrowed connection.
func (p *Provider) search(baseDN string, scope directory.Scope, filter string, attrs []string, limit int) ([]*ldap.Entry, error) {
	conn, release, err := p.borrow()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	defer release()
	entries, err := conn.Search(baseDN, scope, filter, attrs, false, limit)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return entries, nil
}

// belongsHere reports whether a normalized principal domain is served by
// this store: the system domain, the alias domain or a registered UPN
// suffix.
func (p *Provider) belongsHere(domain string) bool {
	return strings.EqualFold(domain, p.cfg.Store.DomainName) ||
		p.aliases.IsAliasDomain(domain) ||
		p.cfg.Store.isRegisteredUPNSuffix(domain)
}

// isSameDomainUPN reports whether the principal addresses this store's own
// domain directly or through its alias, in which case lookups additionally
// match the bare account name.
func (p *Provider) isSameDomainUPN(id principal.ID) bool {
	return strings.EqualFold(id.Domain, p.cfg.Store.DomainName) ||
		p.aliases.IsAliasDomain(id.Domain)
}

// normalizeDomain substitutes the system domain when the principal
// addresses the alias domain and the alias is not also a registered UPN
// suffix.
func (p *Provider) normalizeDomain(id principal.ID) principal.ID {
	if p.aliases.IsAliasDomain(id.Domain) && !p.cfg.Store.isRegisteredUPNSuffix(id.Domain) {
		return principal.NewID(id.Name, p.cfg.Store.DomainName)
	}
	return id
}

// DomainID returns the directory's object id for the domain root entry.
// The value is resolved once and memoized; concurrent callers block on the
// first resolution and reuse its result.
func (p *Provider) DomainID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.domainID != "" {
		return p.domainID, nil
	}
	entries, err := p.search(p.cfg.Store.DomainDN, directory.ScopeBase, "(objectClass=*)", []string{attrObjectSid}, 0)
	if err != nil {
		return "", trace.Wrap(err)
	}
	if len(entries) != 1 {
		return "", newConsistencyError("expected exactly one domain entry at %q, found %v", p.cfg.Store.DomainDN, len(entries))
	}
	p.domainID = entries[0].GetAttributeValue(attrObjectSid)
	return p.domainID, nil
}

// aliasID returns the caller-facing alias identity for an account name,
// zero when the store has no alias domain.
func (p *Provider) aliasID(name string) principal.ID {
	if p.aliases.AliasDomain() == "" {
		return principal.ID{}
	}
	return principal.NewID(p.aliases.MapAccountNameToAlias(name), p.aliases.AliasDomain())
}

// accountFlags parses the userAccountControl bitmask of an entry, zero when
// absent or malformed.
func accountFlags(entry *ldap.Entry) int {
	v := entry.GetAttributeValue(attrAccountControl)
	if v == "" {
		return 0
	}
	flags, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return flags
}

// entryID derives a principal identity from an entry, preferring the UPN
// attribute and falling back to account name in the system domain.
func (p *Provider) entryID(entry *ldap.Entry) principal.ID {
	if upn := entry.GetAttributeValue(attrUPN); upn != "" {
		if id, err := principal.ParseID(upn); err == nil {
			return id
		}
	}
	return principal.NewID(entry.GetAttributeValue(attrAccountName), p.cfg.Store.DomainName)
}

// personFromEntry materializes a person user from its directory entry.
func (p *Provider) personFromEntry(entry *ldap.Entry) *principal.PersonUser {
	id := p.entryID(entry)
	flags := accountFlags(entry)
	pwdLastSet, _ := strconv.ParseInt(entry.GetAttributeValue(attrPwdLastSet), 10, 64)
	return &principal.PersonUser{
		ID:       id,
		Alias:    p.aliasID(id.Name),
		ObjectID: entry.GetAttributeValue(attrObjectSid),
		Detail: principal.PersonDetail{
			FirstName:         entry.GetAttributeValue(attrFirstName),
			LastName:          entry.GetAttributeValue(attrLastName),
			Email:             entry.GetAttributeValue(attrEmail),
			UserPrincipalName: entry.GetAttributeValue(attrUPN),
			Description:       entry.GetAttributeValue(attrDescription),
		},
		Disabled:        flags&accountDisabledFlag != 0,
		Locked:          flags&accountLockedFlag != 0,
		PasswordLastSet: pwdLastSet,
	}
}

// groupFromEntry materializes a group from its directory entry.
func (p *Provider) groupFromEntry(entry *ldap.Entry) *principal.Group {
	name := entry.GetAttributeValue(attrAccountName)
	return &principal.Group{
		ID:       principal.NewID(name, p.cfg.Store.DomainName),
		Alias:    p.aliasID(name),
		ObjectID: entry.GetAttributeValue(attrObjectSid),
		Detail: principal.GroupDetail{
			Description: entry.GetAttributeValue(attrDescription),
		},
	}
}

// solutionFromEntry materializes a service principal from its directory
// entry.
func (p *Provider) solutionFromEntry(entry *ldap.Entry) *principal.SolutionUser {
	name := entry.GetAttributeValue(attrAccountName)
	flags := accountFlags(entry)
	return &principal.SolutionUser{
		ID:       principal.NewID(name, p.cfg.Store.DomainName),
		Alias:    p.aliasID(name),
		ObjectID: entry.GetAttributeValue(attrObjectSid),
		Detail: principal.SolutionDetail{
			Description:          entry.GetAttributeValue(attrDescription),
			Certificate:          entry.GetRawAttributeValue(attrCertificate),
			CertificateSubjectDN: entry.GetAttributeValue(attrSubjectDN),
		},
		Disabled: flags&accountDisabledFlag != 0,
	}
}

// singleEntry enforces the exactly-one contract on a lookup result: zero
// entries is nil (absence is not an error for these lookups), more than one
// is a backing-store consistency violation.
func singleEntry(entries []*ldap.Entry, what string) (*ldap.Entry, error) {
	switch len(entries) {
	case 0:
		return nil, nil
	case 1:
		return entries[0], nil
	default:
		return nil, newConsistencyError("found %v entries for %v, expected exactly one", len(entries), what)
	}
}
