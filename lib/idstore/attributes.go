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

	"github.com/go-ldap/ldap/v3"
	"github.com/gravitational/trace"

	"github.com/vmware-archive/lightwave-sub003/lib/directory"
	"github.com/vmware-archive/lightwave-sub003/lib/principal"
)

// GetAttributes resolves the requested logical attributes of a user or
// service principal. Group membership values are returned in NetBIOS form;
// when an alias rewrite applies to a membership value the aliased form is
// appended after the real one, so callers keep seeing both spellings.
func (p *Provider) GetAttributes(id principal.ID, attrNames []string) ([]principal.AttributeValues, error) {
	entry, err := p.attributeEntry(id)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	out := make([]principal.AttributeValues, 0, len(attrNames))
	for _, name := range attrNames {
		physical, ok := p.cfg.Store.AttributeMap[name]
		if !ok {
			return nil, trace.BadParameter("unknown attribute %q", name)
		}
		av := principal.AttributeValues{Name: name}
		switch name {
		case AttributeGroups:
			av.Values = p.groupMembershipValues(entry.GetAttributeValues(physical))
		case AttributeSubjectType:
			av.Values = []string{subjectType(entry)}
		case AttributeUPN:
			upn := entry.GetAttributeValue(physical)
			if upn == "" {
				upn = principal.NewID(entry.GetAttributeValue(attrAccountName), p.cfg.Store.DomainName).UPN()
			}
			av.Values = []string{upn}
		default:
			av.Values = entry.GetAttributeValues(physical)
		}
		out = append(out, av)
	}
	return out, nil
}

// attributeEntry fetches the full entry of a user or service principal for
// attribute retrieval, memberOf included.
func (p *Provider) attributeEntry(id principal.ID) (*ldap.Entry, error) {
	orig := id
	id = p.aliases.MapFromAlias(id)
	if !p.belongsHere(id.Domain) {
		return nil, newInvalidPrincipal(orig.UPN(), "not served by domain %q", p.cfg.Store.DomainName)
	}
	id = p.normalizeDomain(id)

	attrs := append([]string{attrMemberOf, attrObjectClass}, userFetchAttrs...)
	filter := p.cfg.Store.userFilter(id, p.isSameDomainUPN(id))
	entries, err := p.search(p.cfg.Store.UsersDN, directory.ScopeSubtree, filter, attrs, 0)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	entry, err := singleEntry(entries, "user "+id.UPN())
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if entry == nil {
		entries, err = p.search(p.cfg.Store.ServicePrincipalsDN, directory.ScopeSubtree, p.cfg.Store.svcFilter(id), attrs, 0)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		entry, err = singleEntry(entries, "service principal "+id.UPN())
		if err != nil {
			return nil, trace.Wrap(err)
		}
	}
	if entry == nil {
		return nil, newInvalidPrincipal(orig.UPN(), "no such principal")
	}
	return entry, nil
}

// groupMembershipValues converts memberOf DNs into NetBIOS-form group
// names, appending the alias-mapped spelling when it differs from the real
// one.
func (p *Provider) groupMembershipValues(groupDNs []string) []string {
	var values []string
	for _, dn := range groupDNs {
		name := firstRDNValue(dn)
		if name == "" {
			continue
		}
		value := p.cfg.Store.DomainName + principal.NetBIOSSeparator + name
		values = append(values, value)
		if mapped := p.aliases.MapStringToAlias(value); mapped != value {
			values = append(values, mapped)
		}
	}
	return values
}

// firstRDNValue extracts the value of the leading RDN of a DN, the group's
// common name for membership values.
func firstRDNValue(dn string) string {
	parsed, err := ldap.ParseDN(dn)
	if err != nil || len(parsed.RDNs) == 0 || len(parsed.RDNs[0].Attributes) == 0 {
		return ""
	}
	return parsed.RDNs[0].Attributes[0].Value
}

// subjectType reports "true" for service principal entries, "false" for
// person users.
func subjectType(entry *ldap.Entry) string {
	for _, class := range entry.GetAttributeValues(attrObjectClass) {
		if strings.EqualFold(class, classServicePrincipal) {
			return "true"
		}
	}
	return "false"
}
