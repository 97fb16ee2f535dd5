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
	"strings"
)

// AdviceAttribute is one attribute of an advice element.
type AdviceAttribute struct {
	// NameURI identifies the attribute.
	NameURI string
	// FriendlyName is an optional display name.
	FriendlyName string
	// Values are the attribute values, order preserved.
	Values []string
}

// Advice is auxiliary, source-tagged attribute data attached to a token
// outside its core assertions.
type Advice struct {
	// SourceURI identifies who attached the advice.
	SourceURI string
	// Attributes is the advice payload.
	Attributes []AdviceAttribute
}

// Intersects reports whether two advice elements carry data about the same
// thing: same source URI and at least one attribute name in common.
// Attribute values are irrelevant to intersection.
func (a Advice) Intersects(other Advice) bool {
	if !strings.EqualFold(a.SourceURI, other.SourceURI) {
		return false
	}
	for _, attr := range a.Attributes {
		for _, otherAttr := range other.Attributes {
			if attr.NameURI == otherAttr.NameURI {
				return true
			}
		}
	}
	return false
}

// FilterAdvice decides which advice ends up in an issued token. The token
// owner gets exactly what was requested. A delegated requester cannot
// strip or alter advice someone else attached, so the present advice is
// kept and only requested advice that conflicts with none of it is added.
func FilterAdvice(requesterIsTokenOwner bool, requested, present []Advice) []Advice {
	if requesterIsTokenOwner {
		return append([]Advice(nil), requested...)
	}
	result := append([]Advice(nil), present...)
	for _, req := range requested {
		conflicting := false
		for _, pres := range present {
			if req.Intersects(pres) {
				conflicting = true
				break
			}
		}
		if !conflicting {
			result = append(result, req)
		}
	}
	return result
}
