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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vmware-archive/lightwave-sub003/lib/principal"
)

func testStoreConfig(t *testing.T) StoreConfig {
	t.Helper()
	cfg := StoreConfig{
		TenantName: "vsphere.local",
		DomainName: "vsphere.local",
	}
	require.NoError(t, cfg.CheckAndSetDefaults())
	return cfg
}

func TestUserFilter(t *testing.T) {
	cfg := testStoreConfig(t)
	id := principal.NewID("jdoe", "vsphere.local")

	sameDomain := cfg.userFilter(id, true)
	require.Equal(t,
		"(&(|(userPrincipalName=jdoe@vsphere.local)(vmwSTSTenantizedUserPrincipalName=jdoe@vsphere.local/vsphere.local)(sAMAccountName=jdoe))(objectClass=user)(!(vmwSTSSubjectDN=*)))",
		sameDomain)

	foreign := cfg.userFilter(id, false)
	require.Equal(t,
		"(&(|(userPrincipalName=jdoe@vsphere.local)(vmwSTSTenantizedUserPrincipalName=jdoe@vsphere.local/vsphere.local))(objectClass=user)(!(vmwSTSSubjectDN=*)))",
		foreign)
}

func TestUserFilterEscapesValues(t *testing.T) {
	cfg := testStoreConfig(t)
	id := principal.NewID("j*(doe)", "vsphere.local")
	filter := cfg.userFilter(id, true)
	require.NotContains(t, filter, "j*(doe)")
	require.Contains(t, filter, `j\2a\28doe\29`)
}

func TestGroupAndServiceFilters(t *testing.T) {
	cfg := testStoreConfig(t)
	require.Equal(t,
		"(&(sAMAccountName=Admins)(objectClass=group))",
		buildFilter(queryGroupByAccount, "Admins"))
	require.Equal(t,
		"(&(objectClass=group)(member=cn=jdoe,cn=Users,dc=vsphere,dc=local))",
		buildFilter(queryGroupByMember, "cn=jdoe,cn=Users,dc=vsphere,dc=local"))
	require.Equal(t,
		"(&(|(sAMAccountName=sts)(userPrincipalName=sts@vsphere.local))(objectClass=vmwServicePrincipal))",
		cfg.svcFilter(principal.NewID("sts", "vsphere.local")))
}

func TestExistenceFilterCoversAllKinds(t *testing.T) {
	cfg := testStoreConfig(t)
	filter := cfg.existenceFilter(principal.NewID("Admins", "vsphere.local"))
	require.Contains(t, filter, "(objectClass=user)")
	require.Contains(t, filter, "(objectClass=group)")
	require.Contains(t, filter, "(objectClass=vmwServicePrincipal)")
	require.Contains(t, filter, "userPrincipalName=Admins@vsphere.local")
	require.Contains(t, filter, "sAMAccountName=Admins")
}
