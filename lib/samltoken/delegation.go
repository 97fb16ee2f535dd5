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
	"time"

	"github.com/gravitational/trace"

	"github.com/vmware-archive/lightwave-sub003/lib/principal"
)

// TokenDelegate is one entry of a token's delegation chain: who received
// delegated use of the token and when.
type TokenDelegate struct {
	Subject           principal.ID
	DelegationInstant time.Time
}

// DelegationHistory carries the delegation state of a previously issued
// token that a new request builds on.
type DelegationHistory struct {
	// TokenSubject is the original subject of the presented token.
	TokenSubject principal.ID
	// CurrentDelegateList is the delegation chain of the presented token,
	// oldest first. Must be non-nil, empty for a token never delegated.
	CurrentDelegateList []TokenDelegate
	// RemainingDelegations is how many further delegations the presented
	// token allows. Never negative.
	RemainingDelegations int
	// TokenExpires is the expiration of the presented token.
	TokenExpires time.Time
}

func (h *DelegationHistory) check() error {
	if h.TokenSubject.IsEmpty() {
		return trace.BadParameter("delegation history requires a token subject")
	}
	if h.CurrentDelegateList == nil {
		return trace.BadParameter("delegation history requires a delegate list")
	}
	if h.RemainingDelegations < 0 {
		return trace.BadParameter("remaining delegation count must not be negative")
	}
	if h.TokenExpires.IsZero() {
		return trace.BadParameter("delegation history requires the token expiration")
	}
	return nil
}

// DelegationSpec is the delegation intent of a token request. The zero
// value means no delegate and not delegable.
type DelegationSpec struct {
	// DelegateTo is the principal the token should be delegated to, nil
	// for none.
	DelegateTo *principal.ID
	// Delegable marks the issued token as further delegable.
	Delegable bool
	// History is the delegation state of the presented token, nil for a
	// fresh request.
	History *DelegationHistory
}

func (d DelegationSpec) check() error {
	if d.History != nil {
		if err := d.History.check(); err != nil {
			return trace.Wrap(err)
		}
	}
	return nil
}

// RenewSpec is the renewal intent of a token request. The zero value means
// not renewable.
type RenewSpec struct {
	// Renewable marks the issued token as renewable.
	Renewable bool
	// Renew marks the request as a renewal of a presented token.
	Renew bool
	// RemainingRenewals is how many further renewals the presented token
	// allows. Never negative.
	RemainingRenewals int
}

func (r RenewSpec) check() error {
	if r.RemainingRenewals < 0 {
		return trace.BadParameter("remaining renewal count must not be negative")
	}
	return nil
}
