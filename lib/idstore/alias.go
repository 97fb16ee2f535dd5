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

package idstore

import (
	"strings"

	"github.com/gravitational/trace"

	"github.com/vmware-archive/lightwave-sub003/lib/principal"
)

// AliasTable rewrites account names between their real form in the system
// domain and the aliased form exposed to callers. Both directions are
// case-insensitive and injective. The table is built once at provider
// construction and is read-only afterwards, so it is safe for concurrent
// use without synchronization.
type AliasTable struct {
	// systemDomain is the real domain name of the backing directory.
	systemDomain string
	// aliasDomain is the logical domain name exposed to callers.
	aliasDomain string
	// fromAlias maps lowercase(aliasName) -> realName.
	fromAlias map[string]string
	// toAlias maps lowercase(realName) -> aliasName.
	toAlias map[string]string
}

// NewAliasTable builds an alias table from the realName -> aliasName
// association. Blank keys or values are skipped. Construction fails when a
// key or a value repeats case-insensitively, since both directions of the
// mapping must stay unambiguous.
func NewAliasTable(systemDomain, aliasDomain string, accountAliases map[string]string) (*AliasTable, error) {
	if systemDomain == "" {
		return nil, trace.BadParameter("missing system domain")
	}
	t := &AliasTable{
		systemDomain: systemDomain,
		aliasDomain:  aliasDomain,
		fromAlias:    make(map[string]string, len(accountAliases)),
		toAlias:      make(map[string]string, len(accountAliases)),
	}
	for real, alias := range accountAliases {
		if strings.TrimSpace(real) == "" || strings.TrimSpace(alias) == "" {
			continue
		}
		realKey := strings.ToLower(real)
		aliasKey := strings.ToLower(alias)
		if _, ok := t.toAlias[realKey]; ok {
			return nil, trace.BadParameter("account mapping for %q must be unique, mappings are case-insensitive", real)
		}
		if _, ok := t.fromAlias[aliasKey]; ok {
			return nil, trace.BadParameter("cannot map different accounts to the same alias %q", alias)
		}
		t.toAlias[realKey] = alias
		t.fromAlias[aliasKey] = real
	}
	return t, nil
}

// SystemDomain returns the real domain name of the backing directory.
func (t *AliasTable) SystemDomain() string { return t.systemDomain }

// AliasDomain returns the logical domain name exposed to callers, empty
// when the provider is not aliased.
func (t *AliasTable) AliasDomain() string { return t.aliasDomain }

// IsAliasDomain reports whether the given domain is the table's alias
// domain, case-insensitively.
func (t *AliasTable) IsAliasDomain(domain string) bool {
	return t.aliasDomain != "" && strings.EqualFold(domain, t.aliasDomain)
}

// MapFromAlias rewrites an inbound principal reference into its real form.
// When the principal's domain is the alias domain and its name is a known
// alias, the result is (realName, systemDomain); any other principal passes
// through unchanged.
func (t *AliasTable) MapFromAlias(id principal.ID) principal.ID {
	if !t.IsAliasDomain(id.Domain) {
		return id
	}
	real, ok := t.fromAlias[strings.ToLower(id.Name)]
	if !ok {
		return id
	}
	return principal.NewID(real, t.systemDomain)
}

// MapAccountNameFromAlias rewrites a bare account name from its aliased
// form to its real form, returning the name unchanged when it is not a
// known alias.
func (t *AliasTable) MapAccountNameFromAlias(name string) string {
	if real, ok := t.fromAlias[strings.ToLower(name)]; ok {
		return real
	}
	return name
}

// MapAccountNameToAlias rewrites a bare account name from its real form to
// its aliased form, returning the name unchanged when no alias is
// registered for it.
func (t *AliasTable) MapAccountNameToAlias(name string) string {
	if alias, ok := t.toAlias[strings.ToLower(name)]; ok {
		return alias
	}
	return name
}

// MapStringFromAlias rewrites a composite identifier (domain\user or
// user@domain) from the alias domain into the system domain, preserving the
// original notation. The rewrite happens only when the domain part matches
// the alias domain and the user part is a registered alias; all other
// strings, including ones without either separator, pass through unchanged.
func (t *AliasTable) MapStringFromAlias(s string) string {
	return t.mapString(s, t.aliasDomain, t.systemDomain, t.lookupFromAlias)
}

// MapStringToAlias rewrites a composite identifier (domain\user or
// user@domain) from the system domain into the alias domain, preserving the
// original notation. Strings without either separator pass through
// unchanged.
func (t *AliasTable) MapStringToAlias(s string) string {
	if t.aliasDomain == "" {
		return s
	}
	return t.mapString(s, t.systemDomain, t.aliasDomain, t.lookupToAlias)
}

func (t *AliasTable) lookupFromAlias(name string) (string, bool) {
	real, ok := t.fromAlias[strings.ToLower(name)]
	return real, ok
}

func (t *AliasTable) lookupToAlias(name string) (string, bool) {
	alias, ok := t.toAlias[strings.ToLower(name)]
	return alias, ok
}

func (t *AliasTable) mapString(s, fromDomain, toDomain string, lookup func(string) (string, bool)) string {
	var user, domain string
	netbios := false
	if i := strings.Index(s, principal.NetBIOSSeparator); i > 0 && i < len(s)-1 {
		domain, user = s[:i], s[i+1:]
		netbios = true
	} else if i := strings.LastIndex(s, principal.UPNSeparator); i > 0 && i < len(s)-1 {
		user, domain = s[:i], s[i+1:]
	} else {
		return s
	}
	if !strings.EqualFold(domain, fromDomain) {
		return s
	}
	mapped, ok := lookup(user)
	if !ok {
		return s
	}
	if netbios {
		return toDomain + principal.NetBIOSSeparator + mapped
	}
	return mapped + principal.UPNSeparator + toDomain
}

// MapToAlias on principal objects and result sets is deliberately the
// identity function. The extension point is kept so egress rewriting can be
// added without changing call sites; only bare-string mapping performs a
// real substitution today.

// MapToAlias returns the principal unchanged.
func (t *AliasTable) MapToAlias(id principal.ID) principal.ID { return id }

// MapPersonUserToAlias returns the user unchanged.
func (t *AliasTable) MapPersonUserToAlias(u *principal.PersonUser) *principal.PersonUser { return u }

// MapGroupToAlias returns the group unchanged.
func (t *AliasTable) MapGroupToAlias(g *principal.Group) *principal.Group { return g }

// MapSearchResultToAlias returns the search result unchanged.
func (t *AliasTable) MapSearchResultToAlias(r *principal.SearchResult) *principal.SearchResult {
	return r
}
