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
	"errors"
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/gravitational/trace"

	"github.com/vmware-archive/lightwave-sub003/lib/directory"
)

// fakeDirectory is an in-memory directory.Directory with a small LDAP
// filter evaluator, enough to exercise the provider end to end. Entries
// keep insertion order so searches are deterministic.
type fakeDirectory struct {
	dns     []string
	entries map[string]map[string][]string

	// searches counts Search calls, binds counts Bind calls.
	searches int
	binds    int

	// bindFunc overrides the default credential check when set.
	bindFunc func(username, password string) error
	// modifyErr is returned by the next Modify call, once.
	modifyErr error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{entries: make(map[string]map[string][]string)}
}

func (d *fakeDirectory) put(dn string, attrs map[string][]string) {
	if d.lookup(dn) == nil {
		d.dns = append(d.dns, dn)
	}
	d.entries[dn] = attrs
}

func (d *fakeDirectory) lookup(dn string) map[string][]string {
	for k, v := range d.entries {
		if strings.EqualFold(k, dn) {
			return v
		}
	}
	return nil
}

func (d *fakeDirectory) Search(baseDN string, scope directory.Scope, filter string, attrs []string, attrsOnly bool, limit int) ([]*ldap.Entry, error) {
	d.searches++
	if scope == directory.ScopeBase && d.lookup(baseDN) == nil {
		return nil, trace.NotFound("no such object: %v", baseDN)
	}
	base := strings.ToLower(baseDN)
	var out []*ldap.Entry
	for _, dn := range d.dns {
		ldn := strings.ToLower(dn)
		switch scope {
		case directory.ScopeBase:
			if ldn != base {
				continue
			}
		case directory.ScopeOneLevel:
			rest, ok := strings.CutSuffix(ldn, ","+base)
			if !ok || strings.Contains(rest, ",") {
				continue
			}
		default:
			if ldn != base && !strings.HasSuffix(ldn, ","+base) {
				continue
			}
		}
		if !matchesFilter(filter, d.entries[dn]) {
			continue
		}
		out = append(out, ldap.NewEntry(dn, projectAttrs(d.entries[dn], attrs)))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (d *fakeDirectory) Add(dn string, attrs []directory.Attribute) error {
	if d.lookup(dn) != nil {
		return trace.AlreadyExists("entry %q already exists", dn)
	}
	m := make(map[string][]string, len(attrs))
	for _, a := range attrs {
		m[a.Name] = append([]string(nil), a.Values...)
	}
	d.put(dn, m)
	return nil
}

func (d *fakeDirectory) Modify(dn string, mods []directory.Modification) error {
	if d.modifyErr != nil {
		err := d.modifyErr
		d.modifyErr = nil
		return err
	}
	attrs := d.lookup(dn)
	if attrs == nil {
		return trace.NotFound("no such object: %v", dn)
	}
	for _, m := range mods {
		name := canonicalAttrName(attrs, m.Name)
		switch m.Op {
		case directory.ModAdd:
			for _, v := range m.Values {
				if indexFold(attrs[name], v) >= 0 {
					return &ldap.Error{ResultCode: ldap.LDAPResultAttributeOrValueExists, Err: errors.New("value exists")}
				}
				attrs[name] = append(attrs[name], v)
			}
		case directory.ModReplace:
			if len(m.Values) == 0 {
				delete(attrs, name)
			} else {
				attrs[name] = append([]string(nil), m.Values...)
			}
		case directory.ModDelete:
			if len(m.Values) == 0 {
				delete(attrs, name)
				continue
			}
			for _, v := range m.Values {
				i := indexFold(attrs[name], v)
				if i < 0 {
					return &ldap.Error{ResultCode: ldap.LDAPResultNoSuchAttribute, Err: errors.New("no such value")}
				}
				attrs[name] = append(attrs[name][:i], attrs[name][i+1:]...)
			}
		}
	}
	return nil
}

func (d *fakeDirectory) Delete(dn string) error {
	if d.lookup(dn) == nil {
		return trace.NotFound("no such object: %v", dn)
	}
	for i, k := range d.dns {
		if strings.EqualFold(k, dn) {
			d.dns = append(d.dns[:i], d.dns[i+1:]...)
			delete(d.entries, k)
			return nil
		}
	}
	return nil
}

func (d *fakeDirectory) Bind(username, password string) error {
	d.binds++
	if d.bindFunc != nil {
		return d.bindFunc(username, password)
	}
	for _, dn := range d.dns {
		attrs := d.entries[dn]
		if !strings.EqualFold(dn, username) && indexFold(attrs[attrUPN], username) < 0 {
			continue
		}
		for _, pw := range attrs[attrPassword] {
			if pw == password {
				return nil
			}
		}
		break
	}
	return &ldap.Error{ResultCode: ldap.LDAPResultInvalidCredentials, Err: errors.New("invalid credentials")}
}

func canonicalAttrName(attrs map[string][]string, name string) string {
	for k := range attrs {
		if strings.EqualFold(k, name) {
			return k
		}
	}
	return name
}

func indexFold(values []string, v string) int {
	for i, existing := range values {
		if strings.EqualFold(existing, v) {
			return i
		}
	}
	return -1
}

// projectAttrs narrows an entry to the requested attributes, keyed by the
// requested spelling so lookups on the returned entry see the names the
// caller asked for.
func projectAttrs(entry map[string][]string, attrs []string) map[string][]string {
	out := make(map[string][]string)
	for _, name := range attrs {
		for k, v := range entry {
			if strings.EqualFold(k, name) {
				out[name] = append([]string(nil), v...)
			}
		}
	}
	return out
}

// matchesFilter evaluates one parenthesized LDAP filter expression against
// an entry's attributes. It understands and, or, not, equality and presence,
// which covers every filter the provider builds.
func matchesFilter(filter string, attrs map[string][]string) bool {
	filter = strings.TrimSpace(filter)
	if len(filter) < 3 || filter[0] != '(' || filter[len(filter)-1] != ')' {
		return false
	}
	body := filter[1 : len(filter)-1]
	switch body[0] {
	case '&':
		for _, sub := range splitFilterList(body[1:]) {
			if !matchesFilter(sub, attrs) {
				return false
			}
		}
		return true
	case '|':
		for _, sub := range splitFilterList(body[1:]) {
			if matchesFilter(sub, attrs) {
				return true
			}
		}
		return false
	case '!':
		subs := splitFilterList(body[1:])
		return len(subs) == 1 && !matchesFilter(subs[0], attrs)
	}
	name, value, ok := strings.Cut(body, "=")
	if !ok {
		return false
	}
	var values []string
	for k, v := range attrs {
		if strings.EqualFold(k, name) {
			values = v
			break
		}
	}
	if value == "*" {
		return len(values) > 0
	}
	return indexFold(values, unescapeFilterValue(value)) >= 0
}

// splitFilterList splits a sequence of parenthesized subfilters at depth
// zero.
func splitFilterList(s string) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			if depth == 0 {
				start = i
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				out = append(out, s[start:i+1])
			}
		}
	}
	return out
}

// unescapeFilterValue undoes the \XX hex escaping applied by
// ldap.EscapeFilter.
func unescapeFilterValue(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+2 < len(s) {
			if code, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(code))
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
