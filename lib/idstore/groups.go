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

// FindGroup resolves a group by principal identity. Domains this store does
// not serve resolve to nil, zero matches is nil, more than one is a
// consistency violation.
func (p *Provider) FindGroup(id principal.ID) (*principal.Group, error) {
	id = p.aliases.MapFromAlias(id)
	if !p.belongsHere(id.Domain) {
		return nil, nil
	}
	id = p.normalizeDomain(id)
	entry, err := p.groupEntry(id.Name)
	if err != nil || entry == nil {
		return nil, trace.Wrap(err)
	}
	return p.groupFromEntry(entry), nil
}

// FindGroupByObjectID resolves a group by its directory object id.
func (p *Provider) FindGroupByObjectID(objectID string) (*principal.Group, error) {
	filter := buildFilter(queryGroupByObjectID, ldap.EscapeFilter(objectID))
	entries, err := p.search(p.cfg.Store.GroupsDN, directory.ScopeSubtree, filter, groupFetchAttrs, 0)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	entry, err := singleEntry(entries, "group with object id "+objectID)
	if err != nil || entry == nil {
		return nil, trace.Wrap(err)
	}
	return p.groupFromEntry(entry), nil
}

// groupEntry fetches the directory entry of a group by account name, nil
// when absent.
func (p *Provider) groupEntry(name string) (*ldap.Entry, error) {
	filter := buildFilter(queryGroupByAccount, ldap.EscapeFilter(name))
	entries, err := p.search(p.cfg.Store.GroupsDN, directory.ScopeSubtree, filter, append([]string{attrMember}, groupFetchAttrs...), 0)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	entry, err := singleEntry(entries, "group "+name)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return entry, nil
}

// FindGroups returns groups whose projected attributes contain the search
// term, up to limit matches. A limit <= 0 is unbounded.
func (p *Provider) FindGroups(search, domain string, limit int) ([]principal.Group, error) {
	return p.findGroupsWith(search, domain, groupMatchAttrs, containsCaseInsensitive, limit)
}

// FindGroupsByName returns groups whose account name starts with the
// search term, up to limit matches.
func (p *Provider) FindGroupsByName(search, domain string, limit int) ([]principal.Group, error) {
	return p.findGroupsWith(search, domain, groupNameMatchAttrs, startsWithCaseInsensitive, limit)
}

func (p *Provider) findGroupsWith(search, domain string, matchAttrs []string, match matcherFunc, limit int) ([]principal.Group, error) {
	if !p.belongsHere(domain) {
		return nil, nil
	}
	entries, err := p.search(p.cfg.Store.GroupsDN, directory.ScopeSubtree, filterTemplates[queryGroupAll], groupFetchAttrs, 0)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var out []principal.Group
	for _, e := range entries {
		if !entryMatches(e, matchAttrs, search, match) {
			continue
		}
		out = append(out, *p.groupFromEntry(e))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// FindUsersInGroup returns the person users directly contained in a group,
// filtered by the search term. A limit of 0 short-circuits to an empty
// result before any directory call; a negative limit is unbounded. Foreign
// security principal members are materialized as inactive stubs without a
// further lookup.
func (p *Provider) FindUsersInGroup(groupID principal.ID, search string, limit int) ([]principal.PersonUser, error) {
	if limit == 0 {
		return nil, nil
	}
	members, err := p.groupMembers(groupID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var out []principal.PersonUser
	for _, member := range members {
		if external, ok := strings.CutPrefix(member, fspPrefix); ok {
			out = append(out, *fspStubUser(external))
		} else {
			entry, err := p.memberEntry(member, filterTemplates[queryUserAll], userFetchAttrs)
			if err != nil {
				return nil, trace.Wrap(err)
			}
			if entry == nil || !entryMatches(entry, userMatchAttrs, search, containsCaseInsensitive) {
				continue
			}
			out = append(out, *p.personFromEntry(entry))
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// FindGroupsInGroup returns the groups directly contained in a group,
// filtered by the search term, with the same limit convention as
// FindUsersInGroup.
func (p *Provider) FindGroupsInGroup(groupID principal.ID, search string, limit int) ([]principal.Group, error) {
	if limit == 0 {
		return nil, nil
	}
	members, err := p.groupMembers(groupID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var out []principal.Group
	for _, member := range members {
		if strings.HasPrefix(member, fspPrefix) {
			continue
		}
		entry, err := p.memberEntry(member, filterTemplates[queryGroupAll], groupFetchAttrs)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		if entry == nil || !entryMatches(entry, groupMatchAttrs, search, containsCaseInsensitive) {
			continue
		}
		out = append(out, *p.groupFromEntry(entry))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// groupMembers resolves a group and returns its member attribute values.
// The group must exist and be unique.
func (p *Provider) groupMembers(groupID principal.ID) ([]string, error) {
	orig := groupID
	groupID = p.aliases.MapFromAlias(groupID)
	if !p.belongsHere(groupID.Domain) {
		return nil, newInvalidPrincipal(orig.UPN(), "not served by domain %q", p.cfg.Store.DomainName)
	}
	groupID = p.normalizeDomain(groupID)
	entry, err := p.groupEntry(groupID.Name)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if entry == nil {
		return nil, newInvalidPrincipal(orig.UPN(), "no such group")
	}
	return entry.GetAttributeValues(attrMember), nil
}

// memberEntry resolves one member DN with a base-scope search, nil when the
// DN no longer exists or is not of the expected kind.
func (p *Provider) memberEntry(dn, filter string, attrs []string) (*ldap.Entry, error) {
	entries, err := p.search(dn, directory.ScopeBase, filter, attrs, 0)
	if err != nil {
		if trace.IsNotFound(err) {
			return nil, nil
		}
		return nil, trace.Wrap(err)
	}
	entry, err := singleEntry(entries, "member "+dn)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return entry, nil
}

// fspStubUser materializes a foreign security principal group member as an
// inactive stub, since the real record lives in another identity provider.
func fspStubUser(externalID string) *principal.PersonUser {
	id, err := principal.ParseID(externalID)
	if err != nil {
		id = principal.NewID(externalID, "")
	}
	return &principal.PersonUser{
		ID:       id,
		ObjectID: externalID,
		Detail:   principal.PersonDetail{Description: "external principal"},
		Disabled: true,
		Locked:   true,
	}
}

// AddGroup creates a group in this store's domain, subject to the combined
// three-kind name collision check.
func (p *Provider) AddGroup(name string, detail principal.GroupDetail) (principal.ID, error) {
	if name == "" {
		return principal.ID{}, trace.BadParameter("missing group name")
	}
	id := principal.NewID(name, p.cfg.Store.DomainName)
	if err := p.checkPrincipalAbsent(id); err != nil {
		return principal.ID{}, trace.Wrap(err)
	}
	attrs := []directory.Attribute{
		{Name: attrObjectClass, Values: []string{classGroup}},
		{Name: attrAccountName, Values: []string{name}},
	}
	attrs = appendIfSet(attrs, attrDescription, detail.Description)

	conn, release, err := p.borrow()
	if err != nil {
		return principal.ID{}, trace.Wrap(err)
	}
	defer release()
	dn := "cn=" + ldap.EscapeDN(name) + "," + p.cfg.Store.GroupsDN
	if err := conn.Add(dn, attrs); err != nil {
		if trace.IsAlreadyExists(err) {
			return principal.ID{}, newInvalidPrincipal(id.UPN(), "already exists")
		}
		return principal.ID{}, trace.Wrap(err)
	}
	return id, nil
}

// UpdateGroupDetail rewrites a group's descriptive attributes.
func (p *Provider) UpdateGroupDetail(id principal.ID, detail principal.GroupDetail) error {
	mapped := p.aliases.MapFromAlias(id)
	if !p.belongsHere(mapped.Domain) {
		return newInvalidPrincipal(id.UPN(), "not served by domain %q", p.cfg.Store.DomainName)
	}
	mapped = p.normalizeDomain(mapped)
	entry, err := p.groupEntry(mapped.Name)
	if err != nil {
		return trace.Wrap(err)
	}
	if entry == nil {
		return newInvalidPrincipal(id.UPN(), "no such group")
	}
	conn, release, err := p.borrow()
	if err != nil {
		return trace.Wrap(err)
	}
	defer release()
	return trace.Wrap(conn.Modify(entry.DN, []directory.Modification{{
		Op:     directory.ModReplace,
		Name:   attrDescription,
		Values: valueOrNone(detail.Description),
	}}))
}

// AddUserToGroup adds a user or service principal to a group and reports
// whether the membership was added. Members already present are rejected
// with MemberAlreadyExistsError. A concurrent add racing past the
// membership pre-check is absorbed when the directory reports the value as
// already present.
func (p *Provider) AddUserToGroup(userID principal.ID, groupName string) (bool, error) {
	member, err := p.resolveMemberValue(userID)
	if err != nil {
		return false, trace.Wrap(err)
	}
	return p.addMember(member, userID.UPN(), groupName)
}

// AddGroupToGroup nests a group inside another group. Adding a group to
// itself is rejected. Deeper circular containment is not detected here;
// cycle prevention beyond direct self-nesting is left to callers.
func (p *Provider) AddGroupToGroup(groupID principal.ID, targetGroupName string) (bool, error) {
	member, err := p.resolveMemberValue(groupID)
	if err != nil {
		return false, trace.Wrap(err)
	}
	return p.addMember(member, groupID.UPN(), targetGroupName)
}

func (p *Provider) addMember(member, memberDisplay, targetGroup string) (bool, error) {
	entry, err := p.groupEntry(targetGroup)
	if err != nil {
		return false, trace.Wrap(err)
	}
	if entry == nil {
		return false, newInvalidPrincipal(targetGroup, "no such group")
	}
	// Self-nesting is checked on resolved DNs; alias and real spellings of
	// the same group resolve to the same DN.
	if strings.EqualFold(member, entry.DN) {
		return false, trace.BadParameter("group %q cannot be added to itself", targetGroup)
	}
	for _, existing := range entry.GetAttributeValues(attrMember) {
		if strings.EqualFold(existing, member) {
			return false, trace.Wrap(&MemberAlreadyExistsError{Member: memberDisplay, Group: targetGroup})
		}
	}
	conn, release, err := p.borrow()
	if err != nil {
		return false, trace.Wrap(err)
	}
	defer release()
	err = conn.Modify(entry.DN, []directory.Modification{{
		Op:     directory.ModAdd,
		Name:   attrMember,
		Values: []string{member},
	}})
	if err != nil {
		if directory.IsAttributeExistsError(err) {
			// Lost the race with a concurrent add, the membership holds.
			return true, nil
		}
		return false, trace.Wrap(err)
	}
	return true, nil
}

// RemoveFromGroup removes a principal from a group and reports whether a
// membership was actually removed. A member that was not present yields
// removed=false, not an error.
func (p *Provider) RemoveFromGroup(id principal.ID, targetGroup string) (bool, error) {
	member, err := p.resolveMemberValue(id)
	if err != nil {
		return false, trace.Wrap(err)
	}
	entry, err := p.groupEntry(targetGroup)
	if err != nil {
		return false, trace.Wrap(err)
	}
	if entry == nil {
		return false, newInvalidPrincipal(targetGroup, "no such group")
	}
	conn, release, err := p.borrow()
	if err != nil {
		return false, trace.Wrap(err)
	}
	defer release()
	err = conn.Modify(entry.DN, []directory.Modification{{
		Op:     directory.ModDelete,
		Name:   attrMember,
		Values: []string{member},
	}})
	if err != nil {
		if directory.IsNoSuchAttributeError(err) {
			return false, nil
		}
		return false, trace.Wrap(err)
	}
	return true, nil
}

// resolveMemberValue computes the member attribute value for a principal:
// the entry DN for principals of this store, the principal name itself for
// foreign principals.
func (p *Provider) resolveMemberValue(id principal.ID) (string, error) {
	mapped := p.aliases.MapFromAlias(id)
	if !p.belongsHere(mapped.Domain) {
		return id.UPN(), nil
	}
	mapped = p.normalizeDomain(mapped)
	entries, err := p.search(p.cfg.Store.DomainDN, directory.ScopeSubtree, p.cfg.Store.existenceFilter(mapped), []string{attrAccountName}, 0)
	if err != nil {
		return "", trace.Wrap(err)
	}
	entry, err := singleEntry(entries, "principal "+mapped.UPN())
	if err != nil {
		return "", trace.Wrap(err)
	}
	if entry == nil {
		return "", newInvalidPrincipal(id.UPN(), "no such principal")
	}
	return entry.DN, nil
}

// FindDirectParentGroups returns the groups whose member attribute directly
// contains the principal.
func (p *Provider) FindDirectParentGroups(id principal.ID) (*principal.GroupLookupInfo, error) {
	member, objectID, err := p.parentLookupKey(id)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	filter := buildFilter(queryGroupByMember, ldap.EscapeFilter(member))
	entries, err := p.search(p.cfg.Store.GroupsDN, directory.ScopeSubtree, filter, groupFetchAttrs, 0)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	info := &principal.GroupLookupInfo{PrincipalObjectID: objectID}
	for _, e := range entries {
		info.Groups = append(info.Groups, *p.groupFromEntry(e))
	}
	return info, nil
}

// FindNestedParentGroups returns every group the principal belongs to,
// directly or through nesting, using the directory's memberOf closure.
func (p *Provider) FindNestedParentGroups(id principal.ID) (*principal.GroupLookupInfo, error) {
	member, objectID, err := p.parentLookupKey(id)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	entries, err := p.search(member, directory.ScopeBase, "(objectClass=*)", []string{attrMemberOf, attrObjectSid}, 0)
	if err != nil {
		if trace.IsNotFound(err) {
			return &principal.GroupLookupInfo{PrincipalObjectID: objectID}, nil
		}
		return nil, trace.Wrap(err)
	}
	info := &principal.GroupLookupInfo{PrincipalObjectID: objectID}
	entry, err := singleEntry(entries, "principal entry "+member)
	if err != nil || entry == nil {
		return info, trace.Wrap(err)
	}
	for _, groupDN := range entry.GetAttributeValues(attrMemberOf) {
		groupEntry, err := p.memberEntry(groupDN, filterTemplates[queryGroupAll], groupFetchAttrs)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		if groupEntry == nil {
			continue
		}
		info.Groups = append(info.Groups, *p.groupFromEntry(groupEntry))
	}
	return info, nil
}

// parentLookupKey resolves the member value and object id used for parent
// group lookups. Foreign principals are addressed through their registered
// foreign-security-principal stub.
func (p *Provider) parentLookupKey(id principal.ID) (member string, objectID string, err error) {
	mapped := p.aliases.MapFromAlias(id)
	if p.belongsHere(mapped.Domain) {
		mapped = p.normalizeDomain(mapped)
		entries, err := p.search(p.cfg.Store.DomainDN, directory.ScopeSubtree, p.cfg.Store.existenceFilter(mapped), []string{attrAccountName, attrObjectSid}, 0)
		if err != nil {
			return "", "", trace.Wrap(err)
		}
		entry, err := singleEntry(entries, "principal "+mapped.UPN())
		if err != nil {
			return "", "", trace.Wrap(err)
		}
		if entry == nil {
			return "", "", newInvalidPrincipal(id.UPN(), "no such principal")
		}
		return entry.DN, entry.GetAttributeValue(attrObjectSid), nil
	}
	// Foreign principal: find its FSP stub by external object id.
	filter := buildFilter(queryFSPByExternalID, ldap.EscapeFilter(id.UPN()))
	entries, err := p.search(p.cfg.Store.ForeignPrincipalsDN, directory.ScopeSubtree, filter, []string{attrObjectSid}, 0)
	if err != nil {
		return "", "", trace.Wrap(err)
	}
	entry, err := singleEntry(entries, "foreign principal "+id.UPN())
	if err != nil {
		return "", "", trace.Wrap(err)
	}
	if entry == nil {
		return "", "", newInvalidPrincipal(id.UPN(), "no such foreign principal")
	}
	return entry.DN, entry.GetAttributeValue(attrObjectSid), nil
}
