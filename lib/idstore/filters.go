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
	"fmt"

	"github.com/go-ldap/ldap/v3"

	"github.com/vmware-archive/lightwave-sub003/lib/principal"
)

// queryKind selects a directory filter template. Templates are data rather
// than per-store methods; every interpolated value is filter-escaped before
// substitution.
type queryKind int

const (
	// queryUserByPrincipal matches a person user by UPN or tenantized UPN.
	queryUserByPrincipal queryKind = iota
	// queryUserByPrincipalOrAccount additionally matches by bare account
	// name, used for same-domain principals.
	queryUserByPrincipalOrAccount
	// queryUserByObjectID matches a person user by directory object id.
	queryUserByObjectID
	// queryUserAll matches every person user.
	queryUserAll
	// queryGroupByAccount matches a group by account name.
	queryGroupByAccount
	// queryGroupByObjectID matches a group by directory object id.
	queryGroupByObjectID
	// queryGroupAll matches every group.
	queryGroupAll
	// queryGroupByMember matches the groups directly containing a member
	// value.
	queryGroupByMember
	// querySvcByAccount matches a service principal by account name or UPN.
	querySvcByAccount
	// querySvcBySubjectDN matches a service principal by certificate
	// subject DN.
	querySvcBySubjectDN
	// querySvcAll matches every service principal.
	querySvcAll
	// queryExistence matches any principal kind colliding with a name, used
	// before creation. The backing namespace is flat, so a collision with
	// any kind blocks creation.
	queryExistence
	// queryFSPByExternalID matches a foreign security principal stub by its
	// external object id.
	queryFSPByExternalID
)

// filterTemplates is keyed by queryKind. Person-user templates exclude
// service principals by requiring an absent certificate subject DN, since
// service principals share the user object class.
var filterTemplates = map[queryKind]string{
	queryUserByPrincipal:          "(&(|(userPrincipalName=%[1]s)(vmwSTSTenantizedUserPrincipalName=%[2]s))(objectClass=user)(!(vmwSTSSubjectDN=*)))",
	queryUserByPrincipalOrAccount: "(&(|(userPrincipalName=%[1]s)(vmwSTSTenantizedUserPrincipalName=%[2]s)(sAMAccountName=%[3]s))(objectClass=user)(!(vmwSTSSubjectDN=*)))",
	queryUserByObjectID:           "(&(objectSid=%[1]s)(objectClass=user)(!(vmwSTSSubjectDN=*)))",
	queryUserAll:                  "(&(objectClass=user)(!(vmwSTSSubjectDN=*)))",
	queryGroupByAccount:           "(&(sAMAccountName=%[1]s)(objectClass=group))",
	queryGroupByObjectID:          "(&(objectSid=%[1]s)(objectClass=group))",
	queryGroupAll:                 "(objectClass=group)",
	queryGroupByMember:            "(&(objectClass=group)(member=%[1]s))",
	querySvcByAccount:             "(&(|(sAMAccountName=%[1]s)(userPrincipalName=%[2]s))(objectClass=vmwServicePrincipal))",
	querySvcBySubjectDN:           "(&(objectClass=vmwServicePrincipal)(vmwSTSSubjectDN=%[1]s))",
	querySvcAll:                   "(objectClass=vmwServicePrincipal)",
	queryExistence:                "(|(&(|(userPrincipalName=%[1]s)(vmwSTSTenantizedUserPrincipalName=%[2]s))(objectClass=user))(&(sAMAccountName=%[3]s)(|(objectClass=user)(objectClass=group)(objectClass=vmwServicePrincipal))))",
	queryFSPByExternalID:          "(&(externalObjectId=%[1]s)(objectClass=foreignSecurityPrincipal))",
}

// buildFilter substitutes the already-escaped arguments into the template
// for kind.
func buildFilter(kind queryKind, args ...any) string {
	return fmt.Sprintf(filterTemplates[kind], args...)
}

// userFilter builds the person-user filter for a normalized principal: UPN
// or tenantized UPN, plus bare account name when the principal belongs to
// this store's own domain.
func (c *StoreConfig) userFilter(id principal.ID, sameDomain bool) string {
	upn := ldap.EscapeFilter(id.UPN())
	tenantized := ldap.EscapeFilter(tenantizedUPN(id.UPN(), c.TenantName))
	if sameDomain {
		return buildFilter(queryUserByPrincipalOrAccount, upn, tenantized, ldap.EscapeFilter(id.Name))
	}
	return buildFilter(queryUserByPrincipal, upn, tenantized)
}

// svcFilter builds the service-principal filter for a normalized principal.
func (c *StoreConfig) svcFilter(id principal.ID) string {
	return buildFilter(querySvcByAccount,
		ldap.EscapeFilter(id.Name),
		ldap.EscapeFilter(id.UPN()))
}

// existenceFilter builds the combined three-kind existence filter used
// before creating any principal.
func (c *StoreConfig) existenceFilter(id principal.ID) string {
	upn := ldap.EscapeFilter(id.UPN())
	tenantized := ldap.EscapeFilter(tenantizedUPN(id.UPN(), c.TenantName))
	return buildFilter(queryExistence, upn, tenantized, ldap.EscapeFilter(id.Name))
}
