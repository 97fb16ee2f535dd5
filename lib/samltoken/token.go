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

package samltoken

import (
	"crypto/x509"
	"time"

	"github.com/vmware-archive/lightwave-sub003/lib/principal"
)

// SubjectValidationStatus tells how far a validator could vouch for a
// token's subject.
type SubjectValidationStatus int

const (
	// SubjectActive means the subject resolved to an active account.
	SubjectActive SubjectValidationStatus = iota
	// SubjectNotActive means the subject resolved but the account is
	// disabled or removed.
	SubjectNotActive
	// SubjectUnknown means the subject could not be resolved in any
	// identity store.
	SubjectUnknown
)

// Subject is a validated token subject: the principal in UPN form plus the
// validator's verdict on it.
type Subject struct {
	ID     principal.ID
	Format string
	Status SubjectValidationStatus
}

// ValidatedToken is the shape of a parsed and signature-checked SAML token
// exposed to the issuance and validation pipeline. XML parsing and
// signature verification produce it; this package only defines the
// contract.
type ValidatedToken interface {
	// ID returns the assertion id.
	ID() string
	// Subject returns the validated subject.
	Subject() Subject
	// IssueInstant returns when the token was issued.
	IssueInstant() time.Time
	// StartTime returns the token's not-before bound.
	StartTime() time.Time
	// ExpirationTime returns the token's not-on-or-after bound.
	ExpirationTime() time.Time
	// ConfirmationType returns how the token is confirmed.
	ConfirmationType() ConfirmationType
	// ConfirmationCertificate returns the holder-of-key certificate, nil
	// for bearer tokens.
	ConfirmationCertificate() *x509.Certificate
	// Audience returns the audience restriction URIs.
	Audience() []string
	// Advice returns the advice attached to the token.
	Advice() []Advice
	// Groups returns the group identities asserted for the subject.
	Groups() []principal.ID
	// DelegationChain returns the token's delegation chain, oldest first.
	DelegationChain() []TokenDelegate
	// IsRenewable reports whether the token may be renewed.
	IsRenewable() bool
	// IsDelegable reports whether the token may be delegated further.
	IsDelegable() bool
}
