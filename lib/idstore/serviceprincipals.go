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
	"github.com/go-ldap/ldap/v3"
	"github.com/gravitational/trace"

	"github.com/vmware-archive/lightwave-sub003/lib/directory"
	"github.com/vmware-archive/lightwave-sub003/lib/principal"
)

// FindServicePrincipal resolves a service principal by identity, nil when
// absent or from a foreign domain.
func (p *Provider) FindServicePrincipal(id principal.ID) (*principal.SolutionUser, error) {
	id = p.aliases.MapFromAlias(id)
	if !p.belongsHere(id.Domain) {
		return nil, nil
	}
	id = p.normalizeDomain(id)
	entries, err := p.search(p.cfg.Store.ServicePrincipalsDN, directory.ScopeSubtree, p.cfg.Store.svcFilter(id), svcFetchAttrs, 0)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	entry, err := singleEntry(entries, "service principal "+id.UPN())
	if err != nil || entry == nil {
		return nil, trace.Wrap(err)
	}
	return p.solutionFromEntry(entry), nil
}

// FindServicePrincipalByCertSubject resolves a service principal by the
// subject DN of its registered certificate.
func (p *Provider) FindServicePrincipalByCertSubject(subjectDN string) (*principal.SolutionUser, error) {
	filter := buildFilter(querySvcBySubjectDN, ldap.EscapeFilter(subjectDN))
	entries, err := p.search(p.cfg.Store.ServicePrincipalsDN, directory.ScopeSubtree, filter, svcFetchAttrs, 0)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	entry, err := singleEntry(entries, "service principal with certificate subject "+subjectDN)
	if err != nil || entry == nil {
		return nil, trace.Wrap(err)
	}
	return p.solutionFromEntry(entry), nil
}

// FindServicePrincipals returns service principals whose projected
// attributes contain the search term, up to limit matches. A limit <= 0 is
// unbounded.
func (p *Provider) FindServicePrincipals(search string, limit int) ([]principal.SolutionUser, error) {
	entries, err := p.search(p.cfg.Store.ServicePrincipalsDN, directory.ScopeSubtree, filterTemplates[querySvcAll], svcFetchAttrs, 0)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var out []principal.SolutionUser
	for _, e := range entries {
		if !entryMatches(e, svcMatchAttrs, search, containsCaseInsensitive) {
			continue
		}
		out = append(out, *p.solutionFromEntry(e))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// AddServicePrincipal creates a service principal. A certificate is
// mandatory, its subject DN must be unique across the tenant's service
// principals, and the account name is subject to the combined three-kind
// collision check.
func (p *Provider) AddServicePrincipal(name string, detail principal.SolutionDetail) (principal.ID, error) {
	if name == "" {
		return principal.ID{}, trace.BadParameter("missing service principal name")
	}
	if len(detail.Certificate) == 0 {
		return principal.ID{}, trace.BadParameter("service principal %q requires a certificate", name)
	}
	id := principal.NewID(name, p.cfg.Store.DomainName)
	if err := p.checkPrincipalAbsent(id); err != nil {
		return principal.ID{}, trace.Wrap(err)
	}
	if detail.CertificateSubjectDN != "" {
		existing, err := p.FindServicePrincipalByCertSubject(detail.CertificateSubjectDN)
		if err != nil {
			return principal.ID{}, trace.Wrap(err)
		}
		if existing != nil {
			return principal.ID{}, trace.Wrap(&DuplicateCertificateError{SubjectDN: detail.CertificateSubjectDN})
		}
	}

	attrs := []directory.Attribute{
		{Name: attrObjectClass, Values: []string{classServicePrincipal}},
		{Name: attrAccountName, Values: []string{name}},
		{Name: attrUPN, Values: []string{id.UPN()}},
		{Name: attrCertificate, Values: []string{string(detail.Certificate)}},
	}
	attrs = appendIfSet(attrs, attrSubjectDN, detail.CertificateSubjectDN)
	attrs = appendIfSet(attrs, attrDescription, detail.Description)

	conn, release, err := p.borrow()
	if err != nil {
		return principal.ID{}, trace.Wrap(err)
	}
	defer release()
	dn := "cn=" + ldap.EscapeDN(name) + "," + p.cfg.Store.ServicePrincipalsDN
	if err := conn.Add(dn, attrs); err != nil {
		if trace.IsAlreadyExists(err) {
			return principal.ID{}, newInvalidPrincipal(id.UPN(), "already exists")
		}
		return principal.ID{}, trace.Wrap(err)
	}
	return id, nil
}

// UpdateServicePrincipalDetail rewrites a service principal's certificate
// and description. A replacement certificate keeps the subject-DN
// uniqueness rule, ignoring the principal's own registration.
func (p *Provider) UpdateServicePrincipalDetail(id principal.ID, detail principal.SolutionDetail) error {
	current, err := p.FindServicePrincipal(id)
	if err != nil {
		return trace.Wrap(err)
	}
	if current == nil {
		return newInvalidPrincipal(id.UPN(), "no such service principal")
	}
	if detail.CertificateSubjectDN != "" && detail.CertificateSubjectDN != current.Detail.CertificateSubjectDN {
		existing, err := p.FindServicePrincipalByCertSubject(detail.CertificateSubjectDN)
		if err != nil {
			return trace.Wrap(err)
		}
		if existing != nil {
			return trace.Wrap(&DuplicateCertificateError{SubjectDN: detail.CertificateSubjectDN})
		}
	}
	mapped := p.normalizeDomain(p.aliases.MapFromAlias(id))
	entries, err := p.search(p.cfg.Store.ServicePrincipalsDN, directory.ScopeSubtree, p.cfg.Store.svcFilter(mapped), []string{attrAccountName}, 0)
	if err != nil {
		return trace.Wrap(err)
	}
	entry, err := singleEntry(entries, "service principal "+id.UPN())
	if err != nil {
		return trace.Wrap(err)
	}
	if entry == nil {
		return newInvalidPrincipal(id.UPN(), "no such service principal")
	}

	mods := []directory.Modification{
		{Op: directory.ModReplace, Name: attrDescription, Values: valueOrNone(detail.Description)},
	}
	if len(detail.Certificate) > 0 {
		mods = append(mods,
			directory.Modification{Op: directory.ModReplace, Name: attrCertificate, Values: []string{string(detail.Certificate)}},
			directory.Modification{Op: directory.ModReplace, Name: attrSubjectDN, Values: valueOrNone(detail.CertificateSubjectDN)},
		)
	}
	conn, release, err := p.borrow()
	if err != nil {
		return trace.Wrap(err)
	}
	defer release()
	return trace.Wrap(conn.Modify(entry.DN, mods))
}
