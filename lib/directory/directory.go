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

// Package directory provides narrow access to an LDAP directory tree:
// search, add, modify and delete against a base DN, plus credential binds.
// The identity store layers on top of this package and never talks to the
// wire protocol directly.
package directory

import (
	"github.com/go-ldap/ldap/v3"
)

// Scope selects how deep a search descends below its base DN.
type Scope int

const (
	// ScopeBase searches the base DN entry only.
	ScopeBase Scope = iota
	// ScopeOneLevel searches the immediate children of the base DN.
	ScopeOneLevel
	// ScopeSubtree searches the base DN and its whole subtree.
	ScopeSubtree
)

// ldapScope translates a Scope into the go-ldap wire constant.
func (s Scope) ldapScope() int {
	switch s {
	case ScopeBase:
		return ldap.ScopeBaseObject
	case ScopeOneLevel:
		return ldap.ScopeSingleLevel
	default:
		return ldap.ScopeWholeSubtree
	}
}

// ModOp is the kind of change a Modification applies to an attribute.
type ModOp int

const (
	// ModAdd adds values to an attribute.
	ModAdd ModOp = iota
	// ModReplace replaces all values of an attribute.
	ModReplace
	// ModDelete removes values from an attribute (all values when none are
	// given).
	ModDelete
)

// Attribute is a named set of values supplied when creating an entry.
type Attribute struct {
	Name   string
	Values []string
}

// Modification is one attribute change applied to an existing entry.
type Modification struct {
	Op     ModOp
	Name   string
	Values []string
}

// Directory is the access port used by the identity store. Implementations
// must apply filter strings verbatim; callers are responsible for escaping
// interpolated values with ldap.EscapeFilter.
type Directory interface {
	// Search returns the entries below baseDN matching filter, with the
	// requested attributes. A limit > 0 caps the number of entries returned
	// by the server; limit <= 0 means unbounded.
	Search(baseDN string, scope Scope, filter string, attrs []string, attrsOnly bool, limit int) ([]*ldap.Entry, error)
	// Add creates an entry at dn with the given attributes.
	Add(dn string, attrs []Attribute) error
	// Modify applies the given attribute changes to the entry at dn.
	Modify(dn string, mods []Modification) error
	// Delete removes the entry at dn.
	Delete(dn string) error
	// Bind authenticates the given credentials against the directory without
	// disturbing the connection used for searches.
	Bind(username, password string) error
}

// IsAttributeExistsError reports whether err is the directory telling us an
// attribute value we tried to add is already present. Idempotent membership
// adds treat this as success.
func IsAttributeExistsError(err error) bool {
	return ldap.IsErrorWithCode(err, ldap.LDAPResultAttributeOrValueExists)
}

// IsNoSuchAttributeError reports whether err is the directory telling us an
// attribute value we tried to remove was not present.
func IsNoSuchAttributeError(err error) bool {
	return ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchAttribute)
}

// IsNoSuchObjectError reports whether err indicates the target entry does
// not exist.
func IsNoSuchObjectError(err error) bool {
	return ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject)
}

// IsInvalidCredentialsError reports whether err is a failed bind due to bad
// credentials, as opposed to a transport failure.
func IsInvalidCredentialsError(err error) bool {
	return ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials)
}
