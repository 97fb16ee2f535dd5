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

// Package principal defines the value types used to identify and describe
// principals (person users, solution users and groups) resolved from a
// directory-backed identity store.
package principal

import (
	"strings"

	"github.com/gravitational/trace"
)

// Separators recognized in composite principal identifiers.
const (
	// UPNSeparator joins name and domain in user-principal-name notation
	// (name@domain).
	UPNSeparator = "@"
	// NetBIOSSeparator joins domain and name in NetBIOS notation
	// (domain\name).
	NetBIOSSeparator = `\`
)

// ID identifies a principal by account name and domain. Display case of both
// parts is preserved, but all comparisons are case-insensitive. The zero
// value is not a valid ID.
type ID struct {
	// Name is the principal's account name within its domain.
	Name string
	// Domain is the name of the domain the principal belongs to.
	Domain string
}

// NewID returns an ID for the given account name and domain.
func NewID(name, domain string) ID {
	return ID{Name: name, Domain: domain}
}

// ParseID parses a composite identifier in either UPN (name@domain) or
// NetBIOS (domain\name) notation.
func ParseID(s string) (ID, error) {
	if i := strings.LastIndex(s, UPNSeparator); i > 0 && i < len(s)-1 {
		return ID{Name: s[:i], Domain: s[i+1:]}, nil
	}
	if i := strings.Index(s, NetBIOSSeparator); i > 0 && i < len(s)-1 {
		return ID{Name: s[i+1:], Domain: s[:i]}, nil
	}
	return ID{}, trace.BadParameter("principal %q is not in name@domain or domain\\name form", s)
}

// IsEmpty reports whether the ID has neither name nor domain set.
func (id ID) IsEmpty() bool {
	return id.Name == "" && id.Domain == ""
}

// UPN returns the identifier in user-principal-name notation (name@domain).
func (id ID) UPN() string {
	return id.Name + UPNSeparator + id.Domain
}

// NetBIOS returns the identifier in NetBIOS notation (domain\name).
func (id ID) NetBIOS() string {
	return id.Domain + NetBIOSSeparator + id.Name
}

// Equal reports whether two IDs refer to the same principal. Both the name
// and the domain are compared case-insensitively.
func (id ID) Equal(other ID) bool {
	return strings.EqualFold(id.Name, other.Name) &&
		strings.EqualFold(id.Domain, other.Domain)
}

// MatchesDomain reports whether the ID belongs to the given domain,
// case-insensitively.
func (id ID) MatchesDomain(domain string) bool {
	return strings.EqualFold(id.Domain, domain)
}

// String implements fmt.Stringer, using UPN notation.
func (id ID) String() string {
	return id.UPN()
}

// PersonDetail describes a person user beyond its identity.
type PersonDetail struct {
	FirstName         string
	LastName          string
	Email             string
	UserPrincipalName string
	Description       string
}

// SolutionDetail describes a solution (service) user. The certificate is
// mandatory when creating a solution user.
type SolutionDetail struct {
	Description string
	// Certificate is the PEM or DER encoded signing certificate registered
	// for the solution user. The certificate's subject DN must be unique
	// across all solution users of a tenant.
	Certificate []byte
	// CertificateSubjectDN is the subject DN of Certificate as stored in the
	// directory for duplicate detection.
	CertificateSubjectDN string
}

// GroupDetail describes a group beyond its identity.
type GroupDetail struct {
	Description string
}

// PersonUser is a person account resolved from the directory. Instances are
// created fresh on every lookup and never cached by this module.
type PersonUser struct {
	ID       ID
	Alias    ID
	ObjectID string
	Detail   PersonDetail
	Disabled bool
	Locked   bool
	// PasswordLastSet is the directory's password-last-set timestamp in
	// seconds since the epoch, zero when unknown.
	PasswordLastSet int64
}

// SolutionUser is a service account resolved from the directory.
type SolutionUser struct {
	ID       ID
	Alias    ID
	ObjectID string
	Detail   SolutionDetail
	Disabled bool
}

// Group is a group resolved from the directory.
type Group struct {
	ID       ID
	Alias    ID
	ObjectID string
	Detail   GroupDetail
}

// SearchResult bundles the principals matched by a combined search across
// all three principal kinds.
type SearchResult struct {
	PersonUsers   []PersonUser
	SolutionUsers []SolutionUser
	Groups        []Group
}

// GroupLookupInfo is the result of a parent-group lookup: the groups found
// plus, when it was resolved along the way, the queried principal's
// directory-native object id.
type GroupLookupInfo struct {
	Groups []Group
	// PrincipalObjectID is the object id of the principal whose parent
	// groups were looked up, empty when it was not resolved.
	PrincipalObjectID string
}

// AttributeValues is one resolved attribute of a principal: the logical
// attribute name and its values in directory order.
type AttributeValues struct {
	Name   string
	Values []string
}
