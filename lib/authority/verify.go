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
	"encoding/xml"

	"github.com/beevik/etree"
	"github.com/crewjam/saml"
	"github.com/gravitational/trace"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/vmware-archive/lightwave-sub003/lib/samltoken"
)

// Verify checks an assertion document's enveloped signature against the
// trusted certificates, then its validity window against the authority's
// clock, and returns the validated token view.
func (a *Authority) Verify(document []byte, trusted []*x509.Certificate) (samltoken.ValidatedToken, error) {
	if len(trusted) == 0 {
		return nil, trace.BadParameter("missing trusted certificates")
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(document); err != nil {
		return nil, trace.BadParameter("malformed assertion document: %v", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, trace.BadParameter("empty assertion document")
	}

	ctx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{
		Roots: trusted,
	})
	validated, err := ctx.Validate(root)
	if err != nil {
		return nil, trace.AccessDenied("assertion signature validation failed: %v", err)
	}

	validatedDoc := etree.NewDocument()
	validatedDoc.SetRoot(validated)
	raw, err := validatedDoc.WriteToBytes()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var assertion saml.Assertion
	if err := xml.Unmarshal(raw, &assertion); err != nil {
		return nil, trace.BadParameter("parsing validated assertion: %v", err)
	}

	now := a.clock.Now().UTC()
	if c := assertion.Conditions; c != nil {
		if !c.NotBefore.IsZero() && now.Before(c.NotBefore) {
			return nil, trace.AccessDenied("assertion is not yet valid")
		}
		if !c.NotOnOrAfter.IsZero() && !now.Before(c.NotOnOrAfter) {
			return nil, trace.AccessDenied("assertion has expired")
		}
	}
	token, err := newValidatedToken(validated, &assertion)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return token, nil
}
