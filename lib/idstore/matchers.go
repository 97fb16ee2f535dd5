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
)

// Substring matching cannot be pushed down to the directory
// case-insensitively, so searches fetch all entries of the relevant object
// class and match client-side over a fixed attribute projection per
// principal kind.

// matcherFunc decides whether one attribute value satisfies a search term.
// Matchers are stateless pure functions.
type matcherFunc func(value, search string) bool

// containsCaseInsensitive matches when search occurs anywhere in value.
func containsCaseInsensitive(value, search string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(search))
}

// startsWithCaseInsensitive matches when value begins with search.
func startsWithCaseInsensitive(value, search string) bool {
	return strings.HasPrefix(strings.ToLower(value), strings.ToLower(search))
}

// Attributes fetched per principal kind.
var (
	userFetchAttrs = []string{
		attrAccountName, attrUPN, attrFirstName, attrLastName, attrEmail,
		attrDescription, attrAccountControl, attrObjectSid, attrPwdLastSet,
	}
	groupFetchAttrs = []string{
		attrAccountName, attrDescription, attrObjectSid,
	}
	svcFetchAttrs = []string{
		attrAccountName, attrUPN, attrDescription, attrCertificate,
		attrSubjectDN, attrAccountControl, attrObjectSid,
	}
)

// Attributes compared against the search term per principal kind. Generic
// searches match across the descriptive attributes, name searches only
// against the account name.
var (
	userMatchAttrs      = []string{attrAccountName, attrUPN, attrFirstName, attrLastName, attrEmail, attrDescription}
	userNameMatchAttrs  = []string{attrAccountName, attrUPN}
	groupMatchAttrs     = []string{attrAccountName, attrDescription}
	groupNameMatchAttrs = []string{attrAccountName}
	svcMatchAttrs       = []string{attrAccountName, attrDescription}
)

// validateProjections checks once, at provider construction, that every
// match attribute is part of the corresponding fetch projection, so
// client-side matching never inspects an attribute the search did not
// request.
func validateProjections() error {
	for _, p := range []struct {
		kind  string
		match []string
		fetch []string
	}{
		{"user", userMatchAttrs, userFetchAttrs},
		{"user-by-name", userNameMatchAttrs, userFetchAttrs},
		{"group", groupMatchAttrs, groupFetchAttrs},
		{"group-by-name", groupNameMatchAttrs, groupFetchAttrs},
		{"service-principal", svcMatchAttrs, svcFetchAttrs},
	} {
		for _, m := range p.match {
			if !containsAttr(p.fetch, m) {
				return trace.BadParameter("%v match attribute %q is not fetched", p.kind, m)
			}
		}
	}
	return nil
}

func containsAttr(attrs []string, name string) bool {
	for _, a := range attrs {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

// entryMatches reports whether any value of any projected attribute of the
// entry satisfies the search term under the given matcher. An empty search
// term matches every entry.
func entryMatches(entry *ldap.Entry, matchAttrs []string, search string, match matcherFunc) bool {
	if search == "" {
		return true
	}
	for _, name := range matchAttrs {
		for _, v := range entry.GetAttributeValues(name) {
			if match(v, search) {
				return true
			}
		}
	}
	return false
}
