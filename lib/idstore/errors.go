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
	"fmt"

	"github.com/gravitational/trace"
)

// InvalidPrincipalError signals an ambiguous, duplicate or
// missing-when-required principal reference. Lookups whose contract
// tolerates absence return nil instead of this error.
type InvalidPrincipalError struct {
	// Principal is the offending principal reference in display form.
	Principal string
	// Message describes the violation.
	Message string
}

func (e *InvalidPrincipalError) Error() string {
	return fmt.Sprintf("invalid principal %q: %v", e.Principal, e.Message)
}

// newInvalidPrincipal wraps an InvalidPrincipalError with a stack trace.
func newInvalidPrincipal(principal, format string, args ...any) error {
	return trace.Wrap(&InvalidPrincipalError{
		Principal: principal,
		Message:   fmt.Sprintf(format, args...),
	})
}

// IsInvalidPrincipal reports whether err is an InvalidPrincipalError.
func IsInvalidPrincipal(err error) bool {
	var e *InvalidPrincipalError
	return errors.As(err, &e)
}

// MemberAlreadyExistsError signals an attempt to add a principal to a group
// it already belongs to.
type MemberAlreadyExistsError struct {
	Member string
	Group  string
}

func (e *MemberAlreadyExistsError) Error() string {
	return fmt.Sprintf("principal %q is already a member of group %q", e.Member, e.Group)
}

// IsMemberAlreadyExists reports whether err is a MemberAlreadyExistsError.
func IsMemberAlreadyExists(err error) bool {
	var e *MemberAlreadyExistsError
	return errors.As(err, &e)
}

// DuplicateCertificateError signals a service principal registration whose
// certificate subject DN is already registered for another service
// principal.
type DuplicateCertificateError struct {
	SubjectDN string
}

func (e *DuplicateCertificateError) Error() string {
	return fmt.Sprintf("certificate with subject %q is already registered", e.SubjectDN)
}

// IsDuplicateCertificate reports whether err is a DuplicateCertificateError.
func IsDuplicateCertificate(err error) bool {
	var e *DuplicateCertificateError
	return errors.As(err, &e)
}

// AccountLockedError signals an account whose locked flag is set.
type AccountLockedError struct {
	Principal string
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account %q is locked", e.Principal)
}

// IsAccountLocked reports whether err is an AccountLockedError.
func IsAccountLocked(err error) bool {
	var e *AccountLockedError
	return errors.As(err, &e)
}

// PasswordExpiredError signals an account whose password-expired flag is
// set.
type PasswordExpiredError struct {
	Principal string
}

func (e *PasswordExpiredError) Error() string {
	return fmt.Sprintf("password for account %q has expired", e.Principal)
}

// IsPasswordExpired reports whether err is a PasswordExpiredError.
func IsPasswordExpired(err error) bool {
	var e *PasswordExpiredError
	return errors.As(err, &e)
}

// ConsistencyError signals a backing-store invariant violation, such as two
// directory entries where exactly one was guaranteed. These indicate data
// corruption and are never retried.
type ConsistencyError struct {
	Message string
}

func (e *ConsistencyError) Error() string {
	return "directory consistency violation: " + e.Message
}

// newConsistencyError wraps a ConsistencyError with a stack trace.
func newConsistencyError(format string, args ...any) error {
	return trace.Wrap(&ConsistencyError{Message: fmt.Sprintf(format, args...)})
}

// IsConsistencyError reports whether err is a ConsistencyError.
func IsConsistencyError(err error) bool {
	var e *ConsistencyError
	return errors.As(err, &e)
}
