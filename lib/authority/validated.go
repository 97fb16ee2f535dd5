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

package authority

import (
	"crypto/x509"
	"time"

	"github.com/beevik/etree"
	"github.com/crewjam/saml"
	"github.com/gravitational/trace"

	"github.com/vmware-archive/lightwave-sub003/lib/idstore"
	"github.com/vmware-archive/lightwave-sub003/lib/principal"
	"github.com/vmware-archive/lightwave-sub003/lib/samltoken"
)

// validatedToken is the authority's view of a signature-checked assertion.
type validatedToken struct {
	id           string
	subject      samltoken.Subject
	issueInstant time.Time
	start        time.Time
	expiration   time.Time
	confirmation samltoken.ConfirmationType
	audience     []string
	advice       []samltoken.Advice
	groups       []principal.ID
	chain        []samltoken.TokenDelegate
	renewable    bool
	delegable    bool
}

var _ samltoken.ValidatedToken = (*validatedToken)(nil)

func (v *validatedToken) ID() string { return v.id }

func (v *validatedToken) Subject() samltoken.Subject { return v.subject }

func (v *validatedToken) IssueInstant() time.Time { return v.issueInstant }

func (v *validatedToken) StartTime() time.Time { return v.start }

func (v *validatedToken) ExpirationTime() time.Time { return v.expiration }

func (v *validatedToken) ConfirmationType() samltoken.ConfirmationType { return v.confirmation }

func (v *validatedToken) Audience() []string { return v.audience }

func (v *validatedToken) Advice() []samltoken.Advice { return v.advice }

func (v *validatedToken) Groups() []principal.ID { return v.groups }

func (v *validatedToken) DelegationChain() []samltoken.TokenDelegate { return v.chain }

func (v *validatedToken) IsRenewable() bool { return v.renewable }

func (v *validatedToken) IsDelegable() bool { return v.delegable }

// ConfirmationCertificate returns nil: issued assertions do not embed the
// holder-of-key certificate, so possession is proven out of band.
func (v *validatedToken) ConfirmationCertificate() *x509.Certificate { return nil }

// newValidatedToken builds the token view from the structured assertion and
// the validated element tree. The element tree carries the namespaced
// condition and advice extensions that the assertion schema has no slot for.
func newValidatedToken(el *etree.Element, assertion *saml.Assertion) (*validatedToken, error) {
	v := &validatedToken{
		id:           assertion.ID,
		issueInstant: assertion.IssueInstant,
		confirmation: samltoken.Bearer,
	}

	if assertion.Subject == nil || assertion.Subject.NameID == nil {
		return nil, trace.BadParameter("assertion has no subject")
	}
	subjectID, err := principal.ParseID(assertion.Subject.NameID.Value)
	if err != nil {
		return nil, trace.Wrap(err, "parsing assertion subject")
	}
	v.subject = samltoken.Subject{
		ID:     subjectID,
		Format: assertion.Subject.NameID.Format,
		Status: samltoken.SubjectUnknown,
	}
	for _, conf := range assertion.Subject.SubjectConfirmations {
		if conf.Method == samltoken.HolderOfKeyConfirmationURI {
			v.confirmation = samltoken.HolderOfKey
		}
	}

	if c := assertion.Conditions; c != nil {
		v.start = c.NotBefore
		v.expiration = c.NotOnOrAfter
		for _, ar := range c.AudienceRestrictions {
			v.audience = append(v.audience, ar.Audience.Value)
		}
	}

	for _, stmt := range assertion.AttributeStatements {
		for _, attr := range stmt.Attributes {
			if attr.Name != idstore.AttributeGroups {
				continue
			}
			for _, value := range attr.Values {
				group, err := principal.ParseID(value.Value)
				if err != nil {
					continue
				}
				v.groups = append(v.groups, group)
			}
		}
	}

	if del := el.FindElement("saml:Conditions/vmes:DelegationRestriction"); del != nil {
		v.delegable = del.SelectAttrValue("Delegable", "") == "true"
		for _, d := range del.SelectElements("vmes:Delegate") {
			subject, err := principal.ParseID(d.SelectAttrValue("Subject", ""))
			if err != nil {
				return nil, trace.Wrap(err, "parsing delegate subject")
			}
			delegate := samltoken.TokenDelegate{Subject: subject}
			if raw := d.SelectAttrValue("DelegationInstant", ""); raw != "" {
				instant, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					return nil, trace.BadParameter("malformed delegation instant %q: %v", raw, err)
				}
				delegate.DelegationInstant = instant
			}
			v.chain = append(v.chain, delegate)
		}
	}
	if renew := el.FindElement("saml:Conditions/vmes:RenewRestriction"); renew != nil {
		v.renewable = renew.SelectAttrValue("Renewable", "") == "true"
	}

	if adviceEl := el.FindElement("saml:Advice"); adviceEl != nil {
		for _, set := range adviceEl.SelectElements("vmes:AdviceSet") {
			advice := samltoken.Advice{SourceURI: set.SelectAttrValue("AdviceSource", "")}
			for _, attrEl := range set.SelectElements("vmes:Attribute") {
				attr := samltoken.AdviceAttribute{
					NameURI:      attrEl.SelectAttrValue("Name", ""),
					FriendlyName: attrEl.SelectAttrValue("FriendlyName", ""),
				}
				for _, valueEl := range attrEl.SelectElements("vmes:AttributeValue") {
					attr.Values = append(attr.Values, valueEl.Text())
				}
				advice.Attributes = append(advice.Attributes, attr)
			}
			v.advice = append(v.advice, advice)
		}
	}

	return v, nil
}
