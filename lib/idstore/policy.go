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

// PasswordPolicy is the domain's password shape policy as stored on the
// domain root entry.
type PasswordPolicy struct {
	// LifetimeDays is how long a password stays valid, zero for no expiry.
	LifetimeDays int
	// MinLength is the minimum password length.
	MinLength int
	// MaxLength is the maximum password length.
	MaxLength int
}

// LockoutPolicy is the domain's account lockout policy as stored on the
// domain root entry.
type LockoutPolicy struct {
	// FailedAttemptIntervalSec is the window within which failures count
	// toward lockout.
	FailedAttemptIntervalSec int
	// MaxFailedAttempts is how many failures within the window lock the
	// account.
	MaxFailedAttempts int
	// AutoUnlockIntervalSec is how long a lockout lasts, zero for manual
	// unlock only.
	AutoUnlockIntervalSec int
}

// GetPasswordPolicy reads the domain's password policy.
func (p *Provider) GetPasswordPolicy() (*PasswordPolicy, error) {
	entry, err := p.domainEntry([]string{attrPwdLifetime, attrPwdMinLength, attrPwdMaxLength})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &PasswordPolicy{
		LifetimeDays: intAttr(entry, attrPwdLifetime),
		MinLength:    intAttr(entry, attrPwdMinLength),
		MaxLength:    intAttr(entry, attrPwdMaxLength),
	}, nil
}

// SetPasswordPolicy writes the domain's password policy.
func (p *Provider) SetPasswordPolicy(policy PasswordPolicy) error {
	if policy.MinLength < 0 || policy.MaxLength < 0 || policy.LifetimeDays < 0 {
		return trace.BadParameter("password policy values must not be negative")
	}
	if policy.MaxLength > 0 && policy.MinLength > policy.MaxLength {
		return trace.BadParameter("minimum password length %v exceeds maximum %v", policy.MinLength, policy.MaxLength)
	}
	return p.modifyDomainEntry([]directory.Modification{
		{Op: directory.ModReplace, Name: attrPwdLifetime, Values: []string{strconv.Itoa(policy.LifetimeDays)}},
		{Op: directory.ModReplace, Name: attrPwdMinLength, Values: []string{strconv.Itoa(policy.MinLength)}},
		{Op: directory.ModReplace, Name: attrPwdMaxLength, Values: []string{strconv.Itoa(policy.MaxLength)}},
	})
}

// GetLockoutPolicy reads the domain's lockout policy.
func (p *Provider) GetLockoutPolicy() (*LockoutPolicy, error) {
	entry, err := p.domainEntry([]string{attrLockoutThreshold, attrLockoutMaxAttempts, attrLockoutDuration})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &LockoutPolicy{
		FailedAttemptIntervalSec: intAttr(entry, attrLockoutThreshold),
		MaxFailedAttempts:        intAttr(entry, attrLockoutMaxAttempts),
		AutoUnlockIntervalSec:    intAttr(entry, attrLockoutDuration),
	}, nil
}

// SetLockoutPolicy writes the domain's lockout policy.
func (p *Provider) SetLockoutPolicy(policy LockoutPolicy) error {
	if policy.FailedAttemptIntervalSec < 0 || policy.MaxFailedAttempts < 0 || policy.AutoUnlockIntervalSec < 0 {
		return trace.BadParameter("lockout policy values must not be negative")
	}
	return p.modifyDomainEntry([]directory.Modification{
		{Op: directory.ModReplace, Name: attrLockoutThreshold, Values: []string{strconv.Itoa(policy.FailedAttemptIntervalSec)}},
		{Op: directory.ModReplace, Name: attrLockoutMaxAttempts, Values: []string{strconv.Itoa(policy.MaxFailedAttempts)}},
		{Op: directory.ModReplace, Name: attrLockoutDuration, Values: []string{strconv.Itoa(policy.AutoUnlockIntervalSec)}},
	})
}

func (p *Provider) domainEntry(attrs []string) (*ldap.Entry, error) {
	entries, err := p.search(p.cfg.Store.DomainDN, directory.ScopeBase, "(objectClass=*)", attrs, 0)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if len(entries) != 1 {
		return nil, newConsistencyError("expected exactly one domain entry at %q, found %v", p.cfg.Store.DomainDN, len(entries))
	}
	return entries[0], nil
}

func (p *Provider) modifyDomainEntry(mods []directory.Modification) error {
	conn, release, err := p.borrow()
	if err != nil {
		return trace.Wrap(err)
	}
	defer release()
	return trace.Wrap(conn.Modify(p.cfg.Store.DomainDN, mods))
}

func intAttr(entry *ldap.Entry, name string) int {
	v, _ := strconv.Atoi(entry.GetAttributeValue(name))
	return v
}

// RegisterExternalUser creates a foreign-security-principal stub for a
// principal that lives in another identity provider, keyed by its external
// object id. Registering the same principal twice is rejected.
func (p *Provider) RegisterExternalUser(externalID principal.ID) (principal.ID, error) {
	if externalID.IsEmpty() {
		return principal.ID{}, trace.BadParameter("missing external principal id")
	}
	marker := externalID.UPN()
	filter := buildFilter(queryFSPByExternalID, ldap.EscapeFilter(marker))
	entries, err := p.search(p.cfg.Store.ForeignPrincipalsDN, directory.ScopeSubtree, filter, []string{attrObjectSid}, 0)
	if err != nil && !trace.IsNotFound(err) {
		return principal.ID{}, trace.Wrap(err)
	}
	if len(entries) > 0 {
		return principal.ID{}, newInvalidPrincipal(marker, "external principal is already registered")
	}

	conn, release, err := p.borrow()
	if err != nil {
		return principal.ID{}, trace.Wrap(err)
	}
	defer release()
	dn := "cn=" + ldap.EscapeDN(marker) + "," + p.cfg.Store.ForeignPrincipalsDN
	attrs := []directory.Attribute{
		{Name: attrObjectClass, Values: []string{classForeignPrincipal}},
		{Name: "externalObjectId", Values: []string{marker}},
	}
	if err := conn.Add(dn, attrs); err != nil {
		if trace.IsAlreadyExists(err) {
			return principal.ID{}, newInvalidPrincipal(marker, "external principal is already registered")
		}
		return principal.ID{}, trace.Wrap(err)
	}
	return externalID, nil
}

// RemoveExternalUser deletes a foreign-security-principal stub.
func (p *Provider) RemoveExternalUser(externalID principal.ID) error {
	marker := externalID.UPN()
	filter := buildFilter(queryFSPByExternalID, ldap.EscapeFilter(marker))
	entries, err := p.search(p.cfg.Store.ForeignPrincipalsDN, directory.ScopeSubtree, filter, []string{attrObjectSid}, 0)
	if err != nil {
		return trace.Wrap(err)
	}
	entry, err := singleEntry(entries, "foreign principal "+marker)
	if err != nil {
		return trace.Wrap(err)
	}
	if entry == nil {
		return newInvalidPrincipal(marker, "external principal is not registered")
	}
	conn, release, err := p.borrow()
	if err != nil {
		return trace.Wrap(err)
	}
	defer release()
	return trace.Wrap(conn.Delete(entry.DN))
}
