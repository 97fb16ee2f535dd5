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

// Package samltoken models SAML token issuance requests: the immutable
// token specification, confirmation methods, delegation and renewal state,
// and advice attached to tokens. The token authority consumes these shapes;
// XML serialization and signing live elsewhere.
package samltoken

import (
	"crypto/x509"
	"time"

	"github.com/gravitational/trace"

	"github.com/vmware-archive/lightwave-sub003/lib/principal"
)

// WS-Trust 1.3 subject confirmation method URIs.
const (
	// BearerConfirmationURI marks tokens usable by whoever holds them.
	BearerConfirmationURI = "http://docs.oasis-open.org/ws-sx/ws-trust/200512/Bearer"
	// HolderOfKeyConfirmationURI marks tokens whose presenter must prove
	// possession of the confirmed key.
	HolderOfKeyConfirmationURI = "http://docs.oasis-open.org/ws-sx/ws-trust/200512/PublicKey"
)

// ConfirmationType distinguishes bearer from holder-of-key tokens.
type ConfirmationType int

const (
	// Bearer tokens are usable by any presenter.
	Bearer ConfirmationType = iota
	// HolderOfKey tokens require proof of possession of the certificate's
	// key.
	HolderOfKey
)

// String returns the confirmation method URI.
func (t ConfirmationType) String() string {
	if t == HolderOfKey {
		return HolderOfKeyConfirmationURI
	}
	return BearerConfirmationURI
}

// AuthnMethod is how the requesting principal authenticated.
type AuthnMethod string

const (
	AuthnMethodPassword      AuthnMethod = "password"
	AuthnMethodKerberos      AuthnMethod = "kerberos"
	AuthnMethodXMLDSig       AuthnMethod = "xmldsig"
	AuthnMethodNTLM          AuthnMethod = "ntlm"
	AuthnMethodAssertion     AuthnMethod = "assertion"
	AuthnMethodTLSClient     AuthnMethod = "tlsclient"
	AuthnMethodTimeSyncToken AuthnMethod = "timesynctoken"
	AuthnMethodSmartcard     AuthnMethod = "smartcard"
)

// SignatureAlgorithm names the XML signature algorithm requested for the
// token, empty when the authority's default applies.
type SignatureAlgorithm string

const (
	RSASHA256 SignatureAlgorithm = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	RSASHA384 SignatureAlgorithm = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha384"
	RSASHA512 SignatureAlgorithm = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha512"
)

// TimePeriod is a token lifespan. A nil start or end leaves that bound
// open; the zero value is a fully unbounded lifespan.
type TimePeriod struct {
	Start *time.Time
	End   *time.Time
}

// NewTimePeriod returns a bounded lifespan.
func NewTimePeriod(start, end time.Time) TimePeriod {
	return TimePeriod{Start: &start, End: &end}
}

// Confirmation describes how a token proves who may present it. Use
// NewBearerConfirmation or NewHolderOfKeyConfirmation; the constructor
// chosen determines the type, the variants are mutually exclusive.
type Confirmation struct {
	confType     ConfirmationType
	inResponseTo string
	recipient    string
	certificate  *x509.Certificate
}

// NewBearerConfirmation returns a bearer confirmation. InResponseTo and
// recipient are optional and empty strings leave them unset.
func NewBearerConfirmation(inResponseTo, recipient string) Confirmation {
	return Confirmation{
		confType:     Bearer,
		inResponseTo: inResponseTo,
		recipient:    recipient,
	}
}

// NewHolderOfKeyConfirmation returns a holder-of-key confirmation for the
// given certificate. The certificate is mandatory.
func NewHolderOfKeyConfirmation(cert *x509.Certificate) (Confirmation, error) {
	if cert == nil {
		return Confirmation{}, trace.BadParameter("holder-of-key confirmation requires a certificate")
	}
	return Confirmation{confType: HolderOfKey, certificate: cert}, nil
}

// Type returns the confirmation type.
func (c Confirmation) Type() ConfirmationType { return c.confType }

// InResponseTo returns the request id the token answers, empty for
// holder-of-key tokens.
func (c Confirmation) InResponseTo() string { return c.inResponseTo }

// Recipient returns the intended recipient URI, empty for holder-of-key
// tokens.
func (c Confirmation) Recipient() string { return c.recipient }

// Certificate returns the confirmed certificate, nil for bearer tokens.
func (c Confirmation) Certificate() *x509.Certificate { return c.certificate }

// AuthnData captures how and when the requesting principal authenticated.
type AuthnData struct {
	// PrincipalID is the authenticated principal.
	PrincipalID principal.ID
	// AuthnInstant is when authentication happened.
	AuthnInstant time.Time
	// Method is the authentication method used.
	Method AuthnMethod
	// IdentityAttrName is the attribute carrying the subject identity in
	// the issued token.
	IdentityAttrName string
	// SessionIndex ties the token to an authentication session, optional.
	SessionIndex string
	// SessionExpire bounds the session, nil when the session does not
	// expire.
	SessionExpire *time.Time
}

func (d AuthnData) check() error {
	if d.PrincipalID.IsEmpty() {
		return trace.BadParameter("missing authenticated principal")
	}
	if d.AuthnInstant.IsZero() {
		return trace.BadParameter("missing authentication instant")
	}
	if d.Method == "" {
		return trace.BadParameter("missing authentication method")
	}
	if d.IdentityAttrName == "" {
		return trace.BadParameter("missing identity attribute name")
	}
	return nil
}

// Spec is a fully validated description of a token to be issued. Specs are
// immutable and built exclusively through a Builder; collection getters
// return defensive copies.
type Spec struct {
	lifespan        TimePeriod
	confirmation    Confirmation
	authnData       AuthnData
	delegation      DelegationSpec
	renew           RenewSpec
	audience        []string
	requestedAdvice []Advice
	presentAdvice   []Advice
	attributeNames  []string
	signatureAlg    SignatureAlgorithm
}

// Builder assembles a Spec. Confirmation, authentication data and the
// attribute-name collection are required; everything else has a default.
type Builder struct {
	spec          Spec
	hasDelegation bool
	hasRenew      bool
	err           error
}

// NewBuilder starts a spec for the given required fields. A nil lifespan
// means the token's validity is unbounded.
func NewBuilder(lifespan *TimePeriod, confirmation Confirmation, authnData AuthnData, attributeNames []string) *Builder {
	b := &Builder{}
	if lifespan != nil {
		b.spec.lifespan = *lifespan
	}
	b.spec.confirmation = confirmation
	b.spec.authnData = authnData
	if attributeNames == nil {
		b.err = trace.BadParameter("missing attribute name collection")
		return b
	}
	b.spec.attributeNames = append([]string(nil), attributeNames...)
	return b
}

// SetDelegationSpec sets the delegation intent. Unset, the spec defaults to
// no delegate and not delegable.
func (b *Builder) SetDelegationSpec(d DelegationSpec) *Builder {
	if b.err == nil {
		if err := d.check(); err != nil {
			b.err = trace.Wrap(err)
			return b
		}
		b.spec.delegation = d
		b.hasDelegation = true
	}
	return b
}

// SetRenewSpec sets the renewal intent. Unset, the spec defaults to not
// renewable.
func (b *Builder) SetRenewSpec(r RenewSpec) *Builder {
	if b.err == nil {
		if err := r.check(); err != nil {
			b.err = trace.Wrap(err)
			return b
		}
		b.spec.renew = r
		b.hasRenew = true
	}
	return b
}

// AddAudience restricts the token to one more audience URI.
func (b *Builder) AddAudience(uri string) *Builder {
	if b.err == nil {
		if uri == "" {
			b.err = trace.BadParameter("missing audience URI")
			return b
		}
		b.spec.audience = append(b.spec.audience, uri)
	}
	return b
}

// AddRequestedAdvice adds advice the requester wants embedded in the
// token.
func (b *Builder) AddRequestedAdvice(a Advice) *Builder {
	if b.err == nil {
		b.spec.requestedAdvice = append(b.spec.requestedAdvice, a)
	}
	return b
}

// AddPresentAdvice adds advice already present in the token being
// exchanged or renewed.
func (b *Builder) AddPresentAdvice(a Advice) *Builder {
	if b.err == nil {
		b.spec.presentAdvice = append(b.spec.presentAdvice, a)
	}
	return b
}

// SetSignatureAlgorithm requests a specific signature algorithm.
func (b *Builder) SetSignatureAlgorithm(alg SignatureAlgorithm) *Builder {
	if b.err == nil {
		b.spec.signatureAlg = alg
	}
	return b
}

// Build validates and returns the immutable spec.
func (b *Builder) Build() (*Spec, error) {
	if b.err != nil {
		return nil, trace.Wrap(b.err)
	}
	if err := b.spec.authnData.check(); err != nil {
		return nil, trace.Wrap(err)
	}
	spec := b.spec
	if !b.hasDelegation {
		spec.delegation = DelegationSpec{}
	}
	if !b.hasRenew {
		spec.renew = RenewSpec{}
	}
	return &spec, nil
}

// Lifespan returns the requested token validity period.
func (s *Spec) Lifespan() TimePeriod { return s.lifespan }

// Confirmation returns the subject confirmation.
func (s *Spec) Confirmation() Confirmation { return s.confirmation }

// AuthnData returns the authentication data of the requesting principal.
func (s *Spec) AuthnData() AuthnData { return s.authnData }

// DelegationSpec returns the delegation intent.
func (s *Spec) DelegationSpec() DelegationSpec { return s.delegation }

// RenewSpec returns the renewal intent.
func (s *Spec) RenewSpec() RenewSpec { return s.renew }

// Audience returns a copy of the audience restriction URIs.
func (s *Spec) Audience() []string {
	return append([]string(nil), s.audience...)
}

// RequestedAdvice returns a copy of the advice the requester asked to
// embed.
func (s *Spec) RequestedAdvice() []Advice {
	return append([]Advice(nil), s.requestedAdvice...)
}

// PresentAdvice returns a copy of the advice carried over from a presented
// token.
func (s *Spec) PresentAdvice() []Advice {
	return append([]Advice(nil), s.presentAdvice...)
}

// AttributeNames returns a copy of the attribute names requested for the
// token's attribute statement.
func (s *Spec) AttributeNames() []string {
	return append([]string(nil), s.attributeNames...)
}

// SignatureAlgorithm returns the requested signature algorithm, empty when
// the authority's default applies.
func (s *Spec) SignatureAlgorithm() SignatureAlgorithm { return s.signatureAlg }

// RequesterIsTokenOwner reports whether this is a direct request rather
// than a delegated acting-as request: true when there is no delegation
// history, or when the authenticated principal is the subject recorded in
// it.
func (s *Spec) RequesterIsTokenOwner() bool {
	history := s.delegation.History
	return history == nil || s.authnData.PrincipalID.Equal(history.TokenSubject)
}
