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
	"strings"

	"github.com/gravitational/trace"
)

// Physical directory attribute names.
const (
	attrObjectClass        = "objectClass"
	attrAccountName        = "sAMAccountName"
	attrUPN                = "userPrincipalName"
	attrTenantizedUPN      = "vmwSTSTenantizedUserPrincipalName"
	attrFirstName          = "givenName"
	attrLastName           = "sn"
	attrEmail              = "mail"
	attrDescription        = "description"
	attrAccountControl     = "userAccountControl"
	attrObjectSid          = "objectSid"
	attrPwdLastSet         = "pwdLastSet"
	attrCommonName         = "cn"
	attrMember             = "member"
	attrMemberOf           = "memberOf"
	attrCertificate        = "userCertificate"
	attrSubjectDN          = "vmwSTSSubjectDN"
	attrSRPSecret          = "vmwSRPSecret"
	attrPassword           = "userPassword"
	attrPwdLifetime        = "vmwPasswordLifetimeDays"
	attrPwdMinLength       = "vmwPasswordMinLength"
	attrPwdMaxLength       = "vmwPasswordMaxLength"
	attrLockoutThreshold   = "vmwPasswordChangeFailedAttemptIntervalSec"
	attrLockoutMaxAttempts = "vmwPasswordChangeMaxFailedAttempts"
	attrLockoutDuration    = "vmwPasswordChangeAutoUnlockIntervalSec"
)

// Directory object classes.
const (
	classUser             = "user"
	classGroup            = "group"
	classServicePrincipal = "vmwServicePrincipal"
	classForeignPrincipal = "foreignSecurityPrincipal"
	classContainer        = "container"
)

// fspPrefix is the sentinel marking a group member value as a foreign
// security principal reference rather than a directory DN.
const fspPrefix = "externalObjectId="

// Account-control flag bits stored in userAccountControl.
const (
	accountDisabledFlag = 0x0002
	accountLockedFlag   = 0x0010
	passwordExpiredFlag = 0x00800000
)

// Logical attribute names served by GetAttributes. Callers address
// attributes by these URIs; the attribute map translates them to physical
// directory attributes.
const (
	AttributeUPN         = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/upn"
	AttributeFirstName   = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/givenname"
	AttributeLastName    = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/surname"
	AttributeEmail       = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress"
	AttributeGroups      = "http://rsa.com/schemas/attr-names/2009/01/GroupIdentity"
	AttributeSubjectType = "http://vmware.com/schemas/attr-names/2011/07/isSolution"
)

// defaultAttributeMap maps the logical attribute URIs to the physical
// attributes they are read from.
func defaultAttributeMap() map[string]string {
	return map[string]string{
		AttributeUPN:         attrUPN,
		AttributeFirstName:   attrFirstName,
		AttributeLastName:    attrLastName,
		AttributeEmail:       attrEmail,
		AttributeGroups:      attrMemberOf,
		AttributeSubjectType: attrObjectClass,
	}
}

// StoreConfig is the identity-store descriptor consumed by a Provider:
// tenant and domain names, container DNs, account aliases, the logical
// attribute map and registered UPN suffixes. It is read-only after
// CheckAndSetDefaults.
type StoreConfig struct {
	// TenantName is the tenant this store serves.
	TenantName string
	// DomainName is the real (system) domain of the backing directory,
	// e.g. vsphere.local.
	DomainName string
	// AliasDomain is the logical domain name exposed to callers, empty when
	// the store is not aliased.
	AliasDomain string
	// AccountAliases maps real account names to their aliased names.
	AccountAliases map[string]string
	// DomainDN is the directory DN of the domain root. Derived from
	// DomainName when empty.
	DomainDN string
	// UsersDN is the container searched for person users and groups.
	UsersDN string
	// GroupsDN is the container searched for groups.
	GroupsDN string
	// ServicePrincipalsDN is the container for service principals.
	ServicePrincipalsDN string
	// ForeignPrincipalsDN is the container for foreign security principal
	// stubs.
	ForeignPrincipalsDN string
	// UPNSuffixes are the registered alternative UPN domain suffixes.
	UPNSuffixes []string
	// AttributeMap maps logical attribute URIs to physical directory
	// attributes. Defaults to the standard claim mapping.
	AttributeMap map[string]string
}

// CheckAndSetDefaults validates the config and derives the container DNs
// that were not supplied.
func (c *StoreConfig) CheckAndSetDefaults() error {
	if c.TenantName == "" {
		return trace.BadParameter("missing TenantName")
	}
	if c.DomainName == "" {
		return trace.BadParameter("missing DomainName")
	}
	if c.DomainDN == "" {
		c.DomainDN = domainDN(c.DomainName)
	}
	if c.UsersDN == "" {
		c.UsersDN = "cn=Users," + c.DomainDN
	}
	if c.GroupsDN == "" {
		c.GroupsDN = c.UsersDN
	}
	if c.ServicePrincipalsDN == "" {
		c.ServicePrincipalsDN = "cn=ServicePrincipals," + c.DomainDN
	}
	if c.ForeignPrincipalsDN == "" {
		c.ForeignPrincipalsDN = "cn=ForeignSecurityPrincipals," + c.DomainDN
	}
	if c.AttributeMap == nil {
		c.AttributeMap = defaultAttributeMap()
	}
	return nil
}

// domainDN converts a DNS domain name into its directory DN form,
// vsphere.local -> dc=vsphere,dc=local.
func domainDN(domain string) string {
	parts := strings.Split(domain, ".")
	for i, p := range parts {
		parts[i] = "dc=" + p
	}
	return strings.Join(parts, ",")
}

// tenantizedUPN is the backward-compatible UPN variant stored for records
// created before the directory became tenant aware.
func tenantizedUPN(upn, tenant string) string {
	return upn + "/" + tenant
}

// isRegisteredUPNSuffix reports whether the given domain is one of the
// store's registered UPN suffixes.
func (c *StoreConfig) isRegisteredUPNSuffix(domain string) bool {
	for _, s := range c.UPNSuffixes {
		if strings.EqualFold(s, domain) {
			return true
		}
	}
	return false
}
