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
	"strconv"

	"github.com/go-ldap/ldap/v3"
	"github.com/gravitational/trace"

	"github.com/vmware-archive/lightwave-sub003/lib/directory"
	"github.com/vmware-archive/lightwave-sub003/lib/principal"
)

// FindUser resolves a person user by principal identity. A principal from a
// domain this store does not serve resolves to nil rather than an error,
// since the same name may legitimately exist in another provider. Zero
// matches is nil; more than one is a consistency violation.
func (p *Provider) FindUser(id principal.ID) (*principal.PersonUser, error) {
	id = p.aliases.MapFromAlias(id)
	if !p.belongsHere(id.Domain) {
		return nil, nil
	}
	id = p.normalizeDomain(id)
	filter := p.cfg.Store.userFilter(id, p.isSameDomainUPN(id))
	entries, err := p.search(p.cfg.Store.UsersDN, directory.ScopeSubtree, filter, userFetchAttrs, 0)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	entry, err := singleEntry(entries, "user "+id.UPN())
	if err != nil || entry == nil {
		return nil, trace.Wrap(err)
	}
	return p.personFromEntry(entry), nil
}

// FindUserByObjectID resolves a person user by its directory object id.
func (p *Provider) FindUserByObjectID(objectID string) (*principal.PersonUser, error) {
	filter := buildFilter(queryUserByObjectID, ldap.EscapeFilter(objectID))
	entries, err := p.search(p.cfg.Store.UsersDN, directory.ScopeSubtree, filter, userFetchAttrs, 0)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	entry, err := singleEntry(entries, "user with object id "+objectID)
	if err != nil || entry == nil {
		return nil, trace.Wrap(err)
	}
	return p.personFromEntry(entry), nil
}

// FindUsers returns person users whose projected attributes contain the
// search term, up to limit matches. A limit <= 0 is unbounded. Matching is
// client side; the directory only narrows by object class.
func (p *Provider) FindUsers(search, domain string, limit int) ([]principal.PersonUser, error) {
	return p.findUsersWith(search, domain, userMatchAttrs, containsCaseInsensitive, limit)
}

// FindUsersByName returns person users whose account name or UPN starts
// with the search term, up to limit matches.
func (p *Provider) FindUsersByName(search, domain string, limit int) ([]principal.PersonUser, error) {
	return p.findUsersWith(search, domain, userNameMatchAttrs, startsWithCaseInsensitive, limit)
}

func (p *Provider) findUsersWith(search, domain string, matchAttrs []string, match matcherFunc, limit int) ([]principal.PersonUser, error) {
	if !p.belongsHere(domain) {
		return nil, nil
	}
	entries, err := p.search(p.cfg.Store.UsersDN, directory.ScopeSubtree, filterTemplates[queryUserAll], userFetchAttrs, 0)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var out []principal.PersonUser
	for _, e := range entries {
		if !entryMatches(e, matchAttrs, search, match) {
			continue
		}
		out = append(out, *p.personFromEntry(e))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Authenticate verifies a principal's password. The normalized identity of
// the authenticated principal is returned. The primary bind uses the UPN;
// when that fails with invalid credentials the provider falls back to a
// DN-based simple bind, but only for accounts that have no secure-remote-
// password secret registered. For accounts that do, the primary failure is
// final.
func (p *Provider) Authenticate(id principal.ID, password string) (principal.ID, error) {
	id = p.aliases.MapFromAlias(id)
	if !p.belongsHere(id.Domain) {
		return principal.ID{}, newInvalidPrincipal(id.UPN(), "not served by domain %q", p.cfg.Store.DomainName)
	}
	id = p.normalizeDomain(id)

	conn, release, err := p.borrow()
	if err != nil {
		return principal.ID{}, trace.Wrap(err)
	}
	defer release()

	bindErr := conn.Bind(id.UPN(), password)
	if bindErr == nil {
		return id, nil
	}
	if !directory.IsInvalidCredentialsError(bindErr) {
		return principal.ID{}, trace.Wrap(bindErr)
	}
	dn, err := p.simpleBindDN(conn, id)
	if err != nil {
		return principal.ID{}, trace.Wrap(err)
	}
	if dn == "" {
		// The account uses the primary method only, its failure stands.
		return principal.ID{}, trace.AccessDenied("failed to authenticate %q", id.UPN())
	}
	if err := conn.Bind(dn, password); err != nil {
		if directory.IsInvalidCredentialsError(err) {
			return principal.ID{}, trace.AccessDenied("failed to authenticate %q", id.UPN())
		}
		return principal.ID{}, trace.Wrap(err)
	}
	return id, nil
}

// simpleBindDN returns the account's DN when it is eligible for the simple
// bind fallback, empty when the account has a secure-remote-password secret
// registered.
func (p *Provider) simpleBindDN(conn directory.Directory, id principal.ID) (string, error) {
	filter := "(&(userPrincipalName=" + ldap.EscapeFilter(id.UPN()) + ")(!(" + attrSRPSecret + "=*)))"
	entries, err := conn.Search(p.cfg.Store.DomainDN, directory.ScopeSubtree, filter, []string{attrAccountName}, false, 0)
	if err != nil {
		return "", trace.Wrap(err)
	}
	entry, err := singleEntry(entries, "bindable account "+id.UPN())
	if err != nil || entry == nil {
		return "", trace.Wrap(err)
	}
	return entry.DN, nil
}

// IsActive reports whether the account exists and its disabled flag is
// clear.
func (p *Provider) IsActive(id principal.ID) (bool, error) {
	flags, err := p.GetUserAccountFlags(id)
	if err != nil {
		return false, trace.Wrap(err)
	}
	return flags&accountDisabledFlag == 0, nil
}

// GetUserAccountFlags returns the raw account-control bitmask of a user or
// service principal account.
func (p *Provider) GetUserAccountFlags(id principal.ID) (int, error) {
	entry, err := p.lookupAccountEntry(id)
	if err != nil {
		return 0, trace.Wrap(err)
	}
	return accountFlags(entry), nil
}

// CheckUserAccountFlags fails when the account is locked or its password
// has expired. Locked takes precedence over expired.
func (p *Provider) CheckUserAccountFlags(id principal.ID) error {
	flags, err := p.GetUserAccountFlags(id)
	if err != nil {
		return trace.Wrap(err)
	}
	if flags&accountLockedFlag != 0 {
		return trace.Wrap(&AccountLockedError{Principal: id.UPN()})
	}
	if flags&passwordExpiredFlag != 0 {
		return trace.Wrap(&PasswordExpiredError{Principal: id.UPN()})
	}
	return nil
}

// DisableUserAccount sets the disabled flag and reports whether the flag
// actually changed. Disabling an already disabled account is a no-op with
// changed=false.
func (p *Provider) DisableUserAccount(id principal.ID) (bool, error) {
	return p.setAccountFlag(id, accountDisabledFlag, true)
}

// EnableUserAccount clears the disabled flag and reports whether the flag
// actually changed.
func (p *Provider) EnableUserAccount(id principal.ID) (bool, error) {
	return p.setAccountFlag(id, accountDisabledFlag, false)
}

// UnlockUserAccount clears the locked flag and reports whether the flag
// actually changed.
func (p *Provider) UnlockUserAccount(id principal.ID) (bool, error) {
	return p.setAccountFlag(id, accountLockedFlag, false)
}

func (p *Provider) setAccountFlag(id principal.ID, bit int, set bool) (bool, error) {
	entry, err := p.lookupAccountEntry(id)
	if err != nil {
		return false, trace.Wrap(err)
	}
	flags := accountFlags(entry)
	newFlags := flags &^ bit
	if set {
		newFlags = flags | bit
	}
	if newFlags == flags {
		return false, nil
	}
	conn, release, err := p.borrow()
	if err != nil {
		return false, trace.Wrap(err)
	}
	defer release()
	err = conn.Modify(entry.DN, []directory.Modification{{
		Op:     directory.ModReplace,
		Name:   attrAccountControl,
		Values: []string{strconv.Itoa(newFlags)},
	}})
	if err != nil {
		return false, trace.Wrap(err)
	}
	return true, nil
}

// lookupAccountEntry locates the directory entry of a user account,
// checking the users container first and falling back to the service
// principal container.
func (p *Provider) lookupAccountEntry(id principal.ID) (*ldap.Entry, error) {
	orig := id
	id = p.aliases.MapFromAlias(id)
	if !p.belongsHere(id.Domain) {
		return nil, newInvalidPrincipal(orig.UPN(), "not served by domain %q", p.cfg.Store.DomainName)
	}
	id = p.normalizeDomain(id)

	filter := p.cfg.Store.userFilter(id, p.isSameDomainUPN(id))
	entries, err := p.search(p.cfg.Store.UsersDN, directory.ScopeSubtree, filter, userFetchAttrs, 0)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	entry, err := singleEntry(entries, "account "+id.UPN())
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if entry != nil {
		return entry, nil
	}

	entries, err = p.search(p.cfg.Store.ServicePrincipalsDN, directory.ScopeSubtree, p.cfg.Store.svcFilter(id), svcFetchAttrs, 0)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	entry, err = singleEntry(entries, "service principal "+id.UPN())
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if entry == nil {
		return nil, newInvalidPrincipal(orig.UPN(), "no such account")
	}
	return entry, nil
}

// AddUser creates a person user in this store's domain. The account name
// must not collide, case-insensitively, with any existing user, group or
// service principal, because the backing namespace is flat.
func (p *Provider) AddUser(name string, detail principal.PersonDetail, password string) (principal.ID, error) {
	if name == "" {
		return principal.ID{}, trace.BadParameter("missing account name")
	}
	id := principal.NewID(name, p.cfg.Store.DomainName)
	if err := p.checkPrincipalAbsent(id); err != nil {
		return principal.ID{}, trace.Wrap(err)
	}

	upn := detail.UserPrincipalName
	if upn == "" {
		upn = id.UPN()
	}
	attrs := []directory.Attribute{
		{Name: attrObjectClass, Values: []string{classUser}},
		{Name: attrAccountName, Values: []string{name}},
		{Name: attrUPN, Values: []string{upn}},
	}
	attrs = appendIfSet(attrs, attrFirstName, detail.FirstName)
	attrs = appendIfSet(attrs, attrLastName, detail.LastName)
	attrs = appendIfSet(attrs, attrEmail, detail.Email)
	attrs = appendIfSet(attrs, attrDescription, detail.Description)
	attrs = appendIfSet(attrs, attrPassword, password)

	conn, release, err := p.borrow()
	if err != nil {
		return principal.ID{}, trace.Wrap(err)
	}
	defer release()
	dn := "cn=" + ldap.EscapeDN(name) + "," + p.cfg.Store.UsersDN
	if err := conn.Add(dn, attrs); err != nil {
		if trace.IsAlreadyExists(err) {
			return principal.ID{}, newInvalidPrincipal(id.UPN(), "already exists")
		}
		return principal.ID{}, trace.Wrap(err)
	}
	return id, nil
}

// checkPrincipalAbsent runs the combined three-kind existence check and
// fails when any principal already answers to the name.
func (p *Provider) checkPrincipalAbsent(id principal.ID) error {
	entries, err := p.search(p.cfg.Store.DomainDN, directory.ScopeSubtree, p.cfg.Store.existenceFilter(id), []string{attrAccountName}, 1)
	if err != nil {
		return trace.Wrap(err)
	}
	if len(entries) > 0 {
		return newInvalidPrincipal(id.UPN(), "a principal with this name already exists")
	}
	return nil
}

// UpdateUserDetail rewrites a person user's descriptive attributes.
func (p *Provider) UpdateUserDetail(id principal.ID, detail principal.PersonDetail) error {
	user, err := p.FindUser(id)
	if err != nil {
		return trace.Wrap(err)
	}
	if user == nil {
		return newInvalidPrincipal(id.UPN(), "no such user")
	}
	entry, err := p.lookupAccountEntry(id)
	if err != nil {
		return trace.Wrap(err)
	}
	mods := []directory.Modification{
		{Op: directory.ModReplace, Name: attrFirstName, Values: valueOrNone(detail.FirstName)},
		{Op: directory.ModReplace, Name: attrLastName, Values: valueOrNone(detail.LastName)},
		{Op: directory.ModReplace, Name: attrEmail, Values: valueOrNone(detail.Email)},
		{Op: directory.ModReplace, Name: attrDescription, Values: valueOrNone(detail.Description)},
	}
	conn, release, err := p.borrow()
	if err != nil {
		return trace.Wrap(err)
	}
	defer release()
	return trace.Wrap(conn.Modify(entry.DN, mods))
}

// ResetPassword replaces the account's password.
func (p *Provider) ResetPassword(id principal.ID, newPassword string) error {
	if newPassword == "" {
		return trace.BadParameter("missing new password")
	}
	entry, err := p.lookupAccountEntry(id)
	if err != nil {
		return trace.Wrap(err)
	}
	conn, release, err := p.borrow()
	if err != nil {
		return trace.Wrap(err)
	}
	defer release()
	return trace.Wrap(conn.Modify(entry.DN, []directory.Modification{{
		Op:     directory.ModReplace,
		Name:   attrPassword,
		Values: []string{newPassword},
	}}))
}

// DeletePrincipal removes a user, group or service principal by account
// name.
func (p *Provider) DeletePrincipal(name string) error {
	id := principal.NewID(name, p.cfg.Store.DomainName)
	entries, err := p.search(p.cfg.Store.DomainDN, directory.ScopeSubtree, p.cfg.Store.existenceFilter(id), []string{attrAccountName}, 0)
	if err != nil {
		return trace.Wrap(err)
	}
	entry, err := singleEntry(entries, "principal "+name)
	if err != nil {
		return trace.Wrap(err)
	}
	if entry == nil {
		return newInvalidPrincipal(name, "no such principal")
	}
	conn, release, err := p.borrow()
	if err != nil {
		return trace.Wrap(err)
	}
	defer release()
	return trace.Wrap(conn.Delete(entry.DN))
}

func appendIfSet(attrs []directory.Attribute, name, value string) []directory.Attribute {
	if value == "" {
		return attrs
	}
	return append(attrs, directory.Attribute{Name: name, Values: []string{value}})
}

// valueOrNone returns the single-element value list for a replace
// modification, or nil to clear the attribute.
func valueOrNone(value string) []string {
	if value == "" {
		return nil
	}
	return []string{value}
}
