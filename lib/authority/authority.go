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

// Package authority issues signed SAML 2.0 assertions from validated token
// specifications.
package authority

import (
	"crypto/tls"
	"log/slog"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/crewjam/saml"
	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/vmware-archive/lightwave-sub003"
	"github.com/vmware-archive/lightwave-sub003/lib/principal"
	"github.com/vmware-archive/lightwave-sub003/lib/samltoken"
)

const (
	upnNameIDFormat = "http://schemas.xmlsoap.org/claims/UPN"

	// adviceNamespace qualifies the advice extension elements carried in
	// issued assertions.
	adviceNamespace = "http://vmware.com/schemas/attr-names/2012/04/Advice"

	defaultBearerLifetime      = time.Hour
	defaultHolderOfKeyLifetime = 30 * 24 * time.Hour
)

// Config configures a token authority.
type Config struct {
	// IssuerURI identifies this authority in issued assertions.
	IssuerURI string
	// SigningKeyPair holds the authority's signing certificate and key.
	SigningKeyPair tls.Certificate
	// MaxBearerLifetime caps the validity of bearer tokens.
	MaxBearerLifetime time.Duration
	// MaxHolderOfKeyLifetime caps the validity of holder-of-key tokens.
	MaxHolderOfKeyLifetime time.Duration
	// Clock supplies issue instants.
	Clock clockwork.Clock
	// Logger emits issuance diagnostics.
	Logger *slog.Logger
}

// CheckAndSetDefaults validates the config and fills in defaults.
func (c *Config) CheckAndSetDefaults() error {
	if c.IssuerURI == "" {
		return trace.BadParameter("missing IssuerURI")
	}
	if len(c.SigningKeyPair.Certificate) == 0 || c.SigningKeyPair.PrivateKey == nil {
		return trace.BadParameter("missing SigningKeyPair")
	}
	if c.MaxBearerLifetime <= 0 {
		c.MaxBearerLifetime = defaultBearerLifetime
	}
	if c.MaxHolderOfKeyLifetime <= 0 {
		c.MaxHolderOfKeyLifetime = defaultHolderOfKeyLifetime
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = slog.With(lightwave.ComponentKey, lightwave.ComponentAuthority)
	}
	return nil
}

// Authority mints signed SAML assertions. Safe for concurrent use.
type Authority struct {
	cfg      Config
	keyStore dsig.TLSCertKeyStore
	logger   *slog.Logger
	clock    clockwork.Clock
}

// New builds a token authority.
func New(cfg Config) (*Authority, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Authority{
		cfg:      cfg,
		keyStore: dsig.TLSCertKeyStore(cfg.SigningKeyPair),
		logger:   cfg.Logger,
		clock:    cfg.Clock,
	}, nil
}

// Token is an issued, signed assertion.
type Token struct {
	// ID is the assertion id.
	ID string
	// Subject is the token subject.
	Subject principal.ID
	// Expires is the token's not-on-or-after bound.
	Expires time.Time
	// Document is the signed assertion XML.
	Document []byte
}

// Issue builds and signs an assertion for the given spec. The resolved
// attribute values become the assertion's attribute statement; advice is
// filtered by token ownership before being attached.
func (a *Authority) Issue(spec *samltoken.Spec, attributes []principal.AttributeValues) (*Token, error) {
	if spec == nil {
		return nil, trace.BadParameter("missing token spec")
	}
	now := a.clock.Now().UTC()
	id := "_" + uuid.NewString()
	subject := spec.AuthnData().PrincipalID

	notBefore, notOnOrAfter := a.lifespan(spec, now)

	assertion := &saml.Assertion{
		ID:           id,
		IssueInstant: now,
		Version:      "2.0",
		Issuer: saml.Issuer{
			Format: "urn:oasis:names:tc:SAML:2.0:nameid-format:entity",
			Value:  a.cfg.IssuerURI,
		},
		Subject:    a.subject(spec, subject, notOnOrAfter),
		Conditions: a.conditions(spec, notBefore, notOnOrAfter),
		AuthnStatements: []saml.AuthnStatement{
			a.authnStatement(spec),
		},
	}
	if stmt := attributeStatement(attributes); stmt != nil {
		assertion.AttributeStatements = []saml.AttributeStatement{*stmt}
	}

	el := assertion.Element()
	advice := samltoken.FilterAdvice(spec.RequesterIsTokenOwner(), spec.RequestedAdvice(), spec.PresentAdvice())
	attachAdvice(el, advice)
	attachDelegationChain(el, spec.DelegationSpec())
	attachRenewCount(el, spec.RenewSpec())

	signed, err := a.sign(el, spec.SignatureAlgorithm())
	if err != nil {
		return nil, trace.Wrap(err)
	}

	a.logger.Debug("issued token",
		"assertion_id", id,
		"subject", subject.UPN(),
		"expires", notOnOrAfter,
	)
	return &Token{
		ID:       id,
		Subject:  subject,
		Expires:  notOnOrAfter,
		Document: signed,
	}, nil
}

// lifespan computes the assertion validity window: the requested period
// clamped to the confirmation type's maximum lifetime.
func (a *Authority) lifespan(spec *samltoken.Spec, now time.Time) (time.Time, time.Time) {
	maxLifetime := a.cfg.MaxBearerLifetime
	if spec.Confirmation().Type() == samltoken.HolderOfKey {
		maxLifetime = a.cfg.MaxHolderOfKeyLifetime
	}
	start := now
	if s := spec.Lifespan().Start; s != nil {
		start = s.UTC()
	}
	end := start.Add(maxLifetime)
	if e := spec.Lifespan().End; e != nil && e.UTC().Before(end) {
		end = e.UTC()
	}
	return start, end
}

func (a *Authority) subject(spec *samltoken.Spec, subject principal.ID, notOnOrAfter time.Time) *saml.Subject {
	conf := spec.Confirmation()
	data := &saml.SubjectConfirmationData{
		NotOnOrAfter: notOnOrAfter,
	}
	if conf.Type() == samltoken.Bearer {
		data.InResponseTo = conf.InResponseTo()
		data.Recipient = conf.Recipient()
	}
	return &saml.Subject{
		NameID: &saml.NameID{
			Format: upnNameIDFormat,
			Value:  subject.UPN(),
		},
		SubjectConfirmations: []saml.SubjectConfirmation{{
			Method:                  conf.Type().String(),
			SubjectConfirmationData: data,
		}},
	}
}

func (a *Authority) conditions(spec *samltoken.Spec, notBefore, notOnOrAfter time.Time) *saml.Conditions {
	conditions := &saml.Conditions{
		NotBefore:    notBefore,
		NotOnOrAfter: notOnOrAfter,
	}
	for _, audience := range spec.Audience() {
		conditions.AudienceRestrictions = append(conditions.AudienceRestrictions, saml.AudienceRestriction{
			Audience: saml.Audience{Value: audience},
		})
	}
	return conditions
}

func (a *Authority) authnStatement(spec *samltoken.Spec) saml.AuthnStatement {
	data := spec.AuthnData()
	stmt := saml.AuthnStatement{
		AuthnInstant: data.AuthnInstant.UTC(),
		SessionIndex: data.SessionIndex,
		AuthnContext: saml.AuthnContext{
			AuthnContextClassRef: &saml.AuthnContextClassRef{
				Value: authnContextClassRef(data.Method),
			},
		},
	}
	if data.SessionExpire != nil {
		expire := data.SessionExpire.UTC()
		stmt.SessionNotOnOrAfter = &expire
	}
	return stmt
}

// authnContextClassRef maps an authentication method onto its SAML authn
// context class.
func authnContextClassRef(method samltoken.AuthnMethod) string {
	switch method {
	case samltoken.AuthnMethodKerberos:
		return "urn:oasis:names:tc:SAML:2.0:ac:classes:Kerberos"
	case samltoken.AuthnMethodXMLDSig:
		return "urn:oasis:names:tc:SAML:2.0:ac:classes:XMLDSig"
	case samltoken.AuthnMethodTLSClient, samltoken.AuthnMethodSmartcard:
		return "urn:oasis:names:tc:SAML:2.0:ac:classes:TLSClient"
	case samltoken.AuthnMethodTimeSyncToken:
		return "urn:oasis:names:tc:SAML:2.0:ac:classes:TimeSyncToken"
	default:
		return "urn:oasis:names:tc:SAML:2.0:ac:classes:PasswordProtectedTransport"
	}
}

func attributeStatement(attributes []principal.AttributeValues) *saml.AttributeStatement {
	if len(attributes) == 0 {
		return nil
	}
	stmt := &saml.AttributeStatement{}
	for _, attr := range attributes {
		samlAttr := saml.Attribute{
			Name:       attr.Name,
			NameFormat: "urn:oasis:names:tc:SAML:2.0:attrname-format:uri",
		}
		for _, v := range attr.Values {
			samlAttr.Values = append(samlAttr.Values, saml.AttributeValue{
				Type:  "xs:string",
				Value: v,
			})
		}
		stmt.Attributes = append(stmt.Attributes, samlAttr)
	}
	return stmt
}

// attachAdvice appends an Advice extension element carrying the filtered
// advice sets. The assertion schema has no native slot for attribute-bag
// advice, so it rides in a namespaced extension.
func attachAdvice(assertion *etree.Element, advice []samltoken.Advice) {
	if len(advice) == 0 {
		return
	}
	adviceEl := assertion.CreateElement("saml:Advice")
	for _, a := range advice {
		set := adviceEl.CreateElement("vmes:AdviceSet")
		set.CreateAttr("xmlns:vmes", adviceNamespace)
		set.CreateAttr("AdviceSource", a.SourceURI)
		for _, attr := range a.Attributes {
			attrEl := set.CreateElement("vmes:Attribute")
			attrEl.CreateAttr("Name", attr.NameURI)
			if attr.FriendlyName != "" {
				attrEl.CreateAttr("FriendlyName", attr.FriendlyName)
			}
			for _, v := range attr.Values {
				attrEl.CreateElement("vmes:AttributeValue").SetText(v)
			}
		}
	}
}

// attachDelegationChain records the delegation chain and remaining
// delegation budget as a namespaced condition extension.
func attachDelegationChain(assertion *etree.Element, delegation samltoken.DelegationSpec) {
	if delegation.History == nil && delegation.DelegateTo == nil && !delegation.Delegable {
		return
	}
	conditions := assertion.FindElement("saml:Conditions")
	if conditions == nil {
		return
	}
	el := conditions.CreateElement("vmes:DelegationRestriction")
	el.CreateAttr("xmlns:vmes", adviceNamespace)
	if delegation.Delegable {
		el.CreateAttr("Delegable", "true")
	}
	if delegation.History != nil {
		el.CreateAttr("RemainingDelegations", strconv.Itoa(delegation.History.RemainingDelegations))
		for _, d := range delegation.History.CurrentDelegateList {
			delegateEl := el.CreateElement("vmes:Delegate")
			delegateEl.CreateAttr("Subject", d.Subject.UPN())
			delegateEl.CreateAttr("DelegationInstant", d.DelegationInstant.UTC().Format(time.RFC3339))
		}
	}
	if delegation.DelegateTo != nil {
		delegateEl := el.CreateElement("vmes:Delegate")
		delegateEl.CreateAttr("Subject", delegation.DelegateTo.UPN())
	}
}

// attachRenewCount records the remaining renewal budget as a namespaced
// condition extension.
func attachRenewCount(assertion *etree.Element, renew samltoken.RenewSpec) {
	if !renew.Renewable && renew.RemainingRenewals == 0 {
		return
	}
	conditions := assertion.FindElement("saml:Conditions")
	if conditions == nil {
		return
	}
	el := conditions.CreateElement("vmes:RenewRestriction")
	el.CreateAttr("xmlns:vmes", adviceNamespace)
	if renew.Renewable {
		el.CreateAttr("Renewable", "true")
	}
	el.CreateAttr("Count", strconv.Itoa(renew.RemainingRenewals))
}

// sign applies an enveloped signature to the assertion element and returns
// the serialized document.
func (a *Authority) sign(assertion *etree.Element, alg samltoken.SignatureAlgorithm) ([]byte, error) {
	ctx := dsig.NewDefaultSigningContext(a.keyStore)
	ctx.Canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	if alg != "" {
		if err := ctx.SetSignatureMethod(string(alg)); err != nil {
			return nil, trace.BadParameter("unsupported signature algorithm %q: %v", alg, err)
		}
	}
	signed, err := ctx.SignEnveloped(assertion)
	if err != nil {
		return nil, trace.Wrap(err, "signing assertion")
	}
	doc := etree.NewDocument()
	doc.SetRoot(signed)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return out, nil
}
