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
	"strconv"
	"strings"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"

	"github.com/vmware-archive/lightwave-sub003/lib/principal"
)

const (
	testDomainDN = "dc=vsphere,dc=local"
	testUsersDN  = "cn=Users," + testDomainDN
	testSvcDN    = "cn=ServicePrincipals," + testDomainDN
	testFSPDN    = "cn=ForeignSecurityPrincipals," + testDomainDN

	johnDoeDN = "cn=john.doe," + testUsersDN
	adminsDN  = "cn=Admins," + testUsersDN
)

func newTestDirectory() *fakeDirectory {
	fd := newFakeDirectory()
	fd.put(testDomainDN, map[string][]string{
		attrObjectClass: {"domain"},
		attrObjectSid:   {"S-1-5-21-0"},
	})
	fd.put(testUsersDN, map[string][]string{attrObjectClass: {classContainer}})
	fd.put(testSvcDN, map[string][]string{attrObjectClass: {classContainer}})
	fd.put(testFSPDN, map[string][]string{attrObjectClass: {classContainer}})
	fd.put(johnDoeDN, map[string][]string{
		attrObjectClass:    {classUser},
		attrAccountName:    {"john.doe"},
		attrUPN:            {"john.doe@vsphere.local"},
		attrFirstName:      {"John"},
		attrLastName:       {"Doe"},
		attrEmail:          {"john.doe@example.com"},
		attrObjectSid:      {"S-1-5-21-1001"},
		attrAccountControl: {"0"},
		attrPwdLastSet:     {"131000000"},
		attrPassword:       {"correct horse"},
		attrMemberOf:       {adminsDN},
	})
	fd.put(adminsDN, map[string][]string{
		attrObjectClass: {classGroup},
		attrAccountName: {"Admins"},
		attrDescription: {"Tenant administrators"},
		attrObjectSid:   {"S-1-5-21-2001"},
		attrMember:      {johnDoeDN},
	})
	fd.put("cn=sts,"+testSvcDN, map[string][]string{
		attrObjectClass:    {classServicePrincipal},
		attrAccountName:    {"sts"},
		attrUPN:            {"sts@vsphere.local"},
		attrCertificate:    {"sts-cert-der"},
		attrSubjectDN:      {"CN=sts,O=VMware"},
		attrObjectSid:      {"S-1-5-21-3001"},
		attrAccountControl: {"0"},
	})
	return fd
}

func newTestProvider(t *testing.T, fd *fakeDirectory) *Provider {
	t.Helper()
	p, err := NewProvider(Config{
		Store: StoreConfig{
			TenantName:  "vsphere.local",
			DomainName:  "vsphere.local",
			AliasDomain: "VSPHERE",
			AccountAliases: map[string]string{
				"john.doe": "jdoe",
				"Admins":   "VSphereAdmins",
			},
		},
		Directory: fd,
	})
	require.NoError(t, err)
	return p
}

func TestFindUser(t *testing.T) {
	p := newTestProvider(t, newTestDirectory())

	t.Run("by alias", func(t *testing.T) {
		user, err := p.FindUser(principal.NewID("jdoe", "VSPHERE"))
		require.NoError(t, err)
		require.NotNil(t, user)
		require.Equal(t, principal.NewID("john.doe", "vsphere.local"), user.ID)
		require.Equal(t, principal.NewID("jdoe", "VSPHERE"), user.Alias)
		require.Equal(t, "John", user.Detail.FirstName)
		require.Equal(t, "S-1-5-21-1001", user.ObjectID)
		require.False(t, user.Disabled)
	})

	t.Run("by real name", func(t *testing.T) {
		user, err := p.FindUser(principal.NewID("john.doe", "vsphere.local"))
		require.NoError(t, err)
		require.NotNil(t, user)
	})

	t.Run("foreign domain resolves to nil", func(t *testing.T) {
		user, err := p.FindUser(principal.NewID("someone", "other.example"))
		require.NoError(t, err)
		require.Nil(t, user)
	})

	t.Run("absent resolves to nil", func(t *testing.T) {
		user, err := p.FindUser(principal.NewID("nobody", "vsphere.local"))
		require.NoError(t, err)
		require.Nil(t, user)
	})

	t.Run("by object id", func(t *testing.T) {
		user, err := p.FindUserByObjectID("S-1-5-21-1001")
		require.NoError(t, err)
		require.NotNil(t, user)
		require.Equal(t, "john.doe", user.ID.Name)
	})
}

func TestFindUserDuplicateEntries(t *testing.T) {
	fd := newTestDirectory()
	fd.put("cn=john.doe2,"+testUsersDN, map[string][]string{
		attrObjectClass: {classUser},
		attrAccountName: {"john.doe2"},
		attrUPN:         {"john.doe@vsphere.local"},
	})
	p := newTestProvider(t, fd)

	_, err := p.FindUser(principal.NewID("john.doe", "vsphere.local"))
	require.True(t, IsConsistencyError(err), "expected consistency error, got %v", err)
}

func TestDomainIDIsMemoized(t *testing.T) {
	fd := newTestDirectory()
	p := newTestProvider(t, fd)

	id, err := p.DomainID()
	require.NoError(t, err)
	require.Equal(t, "S-1-5-21-0", id)

	before := fd.searches
	again, err := p.DomainID()
	require.NoError(t, err)
	require.Equal(t, id, again)
	require.Equal(t, before, fd.searches, "second call must not hit the directory")
}

func TestAccountFlags(t *testing.T) {
	fd := newTestDirectory()
	fd.put("cn=locky,"+testUsersDN, map[string][]string{
		attrObjectClass:    {classUser},
		attrAccountName:    {"locky"},
		attrUPN:            {"locky@vsphere.local"},
		attrAccountControl: {strconv.Itoa(accountLockedFlag | passwordExpiredFlag)},
	})
	p := newTestProvider(t, fd)
	johnID := principal.NewID("jdoe", "VSPHERE")
	lockyID := principal.NewID("locky", "vsphere.local")

	t.Run("disable enable round trip", func(t *testing.T) {
		changed, err := p.DisableUserAccount(johnID)
		require.NoError(t, err)
		require.True(t, changed)

		active, err := p.IsActive(johnID)
		require.NoError(t, err)
		require.False(t, active)

		changed, err = p.DisableUserAccount(johnID)
		require.NoError(t, err)
		require.False(t, changed, "disabling a disabled account must be a no-op")

		changed, err = p.EnableUserAccount(johnID)
		require.NoError(t, err)
		require.True(t, changed)

		active, err = p.IsActive(johnID)
		require.NoError(t, err)
		require.True(t, active)
	})

	t.Run("locked takes precedence over expired", func(t *testing.T) {
		err := p.CheckUserAccountFlags(lockyID)
		require.True(t, IsAccountLocked(err), "expected locked error, got %v", err)
	})

	t.Run("unlock reveals expired password", func(t *testing.T) {
		changed, err := p.UnlockUserAccount(lockyID)
		require.NoError(t, err)
		require.True(t, changed)

		err = p.CheckUserAccountFlags(lockyID)
		require.True(t, IsPasswordExpired(err), "expected expired error, got %v", err)

		changed, err = p.UnlockUserAccount(lockyID)
		require.NoError(t, err)
		require.False(t, changed)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := p.GetUserAccountFlags(principal.NewID("nobody", "vsphere.local"))
		require.True(t, IsInvalidPrincipal(err), "expected invalid principal, got %v", err)
	})
}

func TestAddPrincipalNameCollisions(t *testing.T) {
	p := newTestProvider(t, newTestDirectory())

	tests := []struct {
		desc string
		add  func() error
	}{
		{"user colliding with group", func() error {
			_, err := p.AddUser("Admins", principal.PersonDetail{}, "pw")
			return err
		}},
		{"group colliding with user", func() error {
			_, err := p.AddGroup("john.doe", principal.GroupDetail{})
			return err
		}},
		{"group colliding with service principal", func() error {
			_, err := p.AddGroup("sts", principal.GroupDetail{})
			return err
		}},
		{"service principal colliding with group", func() error {
			_, err := p.AddServicePrincipal("admins", principal.SolutionDetail{
				Certificate:          []byte("cert"),
				CertificateSubjectDN: "CN=admins",
			})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			err := tt.add()
			require.True(t, IsInvalidPrincipal(err), "expected invalid principal, got %v", err)
		})
	}
}

func TestAddUser(t *testing.T) {
	p := newTestProvider(t, newTestDirectory())

	id, err := p.AddUser("alice", principal.PersonDetail{
		FirstName: "Alice",
		Email:     "alice@example.com",
	}, "secret")
	require.NoError(t, err)
	require.Equal(t, principal.NewID("alice", "vsphere.local"), id)

	user, err := p.FindUser(id)
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, "Alice", user.Detail.FirstName)

	_, err = p.AddUser("", principal.PersonDetail{}, "pw")
	require.True(t, trace.IsBadParameter(err))
}

func TestUpdateUserDetail(t *testing.T) {
	p := newTestProvider(t, newTestDirectory())
	id := principal.NewID("john.doe", "vsphere.local")

	err := p.UpdateUserDetail(id, principal.PersonDetail{
		FirstName: "Johnny",
		LastName:  "Doe",
	})
	require.NoError(t, err)

	user, err := p.FindUser(id)
	require.NoError(t, err)
	require.Equal(t, "Johnny", user.Detail.FirstName)
	require.Empty(t, user.Detail.Email, "omitted detail fields must be cleared")

	err = p.UpdateUserDetail(principal.NewID("nobody", "vsphere.local"), principal.PersonDetail{})
	require.True(t, IsInvalidPrincipal(err))
}

func TestDeletePrincipal(t *testing.T) {
	p := newTestProvider(t, newTestDirectory())

	require.NoError(t, p.DeletePrincipal("sts"))
	svc, err := p.FindServicePrincipal(principal.NewID("sts", "vsphere.local"))
	require.NoError(t, err)
	require.Nil(t, svc)

	err = p.DeletePrincipal("nobody")
	require.True(t, IsInvalidPrincipal(err))
}

func TestServicePrincipals(t *testing.T) {
	p := newTestProvider(t, newTestDirectory())

	t.Run("certificate is mandatory", func(t *testing.T) {
		_, err := p.AddServicePrincipal("vcenter", principal.SolutionDetail{})
		require.True(t, trace.IsBadParameter(err))
	})

	t.Run("add and find", func(t *testing.T) {
		id, err := p.AddServicePrincipal("vcenter", principal.SolutionDetail{
			Certificate:          []byte("vc-cert-der"),
			CertificateSubjectDN: "CN=vcenter,O=VMware",
			Description:          "vCenter solution",
		})
		require.NoError(t, err)

		svc, err := p.FindServicePrincipal(id)
		require.NoError(t, err)
		require.NotNil(t, svc)
		require.Equal(t, "CN=vcenter,O=VMware", svc.Detail.CertificateSubjectDN)

		byCert, err := p.FindServicePrincipalByCertSubject("CN=vcenter,O=VMware")
		require.NoError(t, err)
		require.NotNil(t, byCert)
		require.Equal(t, id, byCert.ID)
	})

	t.Run("duplicate certificate subject", func(t *testing.T) {
		_, err := p.AddServicePrincipal("another", principal.SolutionDetail{
			Certificate:          []byte("other-cert"),
			CertificateSubjectDN: "CN=sts,O=VMware",
		})
		require.True(t, IsDuplicateCertificate(err), "expected duplicate certificate, got %v", err)
	})

	t.Run("update keeps subject uniqueness", func(t *testing.T) {
		err := p.UpdateServicePrincipalDetail(principal.NewID("vcenter", "vsphere.local"), principal.SolutionDetail{
			Certificate:          []byte("new-cert"),
			CertificateSubjectDN: "CN=sts,O=VMware",
		})
		require.True(t, IsDuplicateCertificate(err), "expected duplicate certificate, got %v", err)
	})
}

func TestGroupMembership(t *testing.T) {
	fd := newTestDirectory()
	fd.put("cn=Operators,"+testUsersDN, map[string][]string{
		attrObjectClass: {classGroup},
		attrAccountName: {"Operators"},
		attrObjectSid:   {"S-1-5-21-2002"},
	})
	p := newTestProvider(t, fd)
	johnID := principal.NewID("jdoe", "VSPHERE")

	t.Run("add and remove", func(t *testing.T) {
		added, err := p.AddUserToGroup(johnID, "Operators")
		require.NoError(t, err)
		require.True(t, added)

		_, err = p.AddUserToGroup(johnID, "Operators")
		require.True(t, IsMemberAlreadyExists(err), "expected member exists, got %v", err)

		removed, err := p.RemoveFromGroup(johnID, "Operators")
		require.NoError(t, err)
		require.True(t, removed)

		removed, err = p.RemoveFromGroup(johnID, "Operators")
		require.NoError(t, err)
		require.False(t, removed, "removing an absent member reports removed=false")
	})

	t.Run("concurrent add is absorbed", func(t *testing.T) {
		fd.modifyErr = &ldap.Error{ResultCode: ldap.LDAPResultAttributeOrValueExists, Err: errors.New("value exists")}
		added, err := p.AddUserToGroup(johnID, "Operators")
		require.NoError(t, err)
		require.True(t, added)
	})

	t.Run("group cannot be nested in itself", func(t *testing.T) {
		_, err := p.AddGroupToGroup(principal.NewID("Operators", "vsphere.local"), "Operators")
		require.True(t, trace.IsBadParameter(err))
	})

	t.Run("group cannot be nested in itself under an alias", func(t *testing.T) {
		_, err := p.AddGroupToGroup(principal.NewID("VSphereAdmins", "VSPHERE"), "Admins")
		require.True(t, trace.IsBadParameter(err), "alias and real spellings resolve to the same group, got %v", err)
		require.NotContains(t, fd.lookup(adminsDN)[attrMember], adminsDN)
	})

	t.Run("nest group", func(t *testing.T) {
		added, err := p.AddGroupToGroup(principal.NewID("Operators", "vsphere.local"), "Admins")
		require.NoError(t, err)
		require.True(t, added)

		groups, err := p.FindGroupsInGroup(principal.NewID("Admins", "vsphere.local"), "", -1)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		require.Equal(t, "Operators", groups[0].ID.Name)
	})

	t.Run("unknown member", func(t *testing.T) {
		_, err := p.AddUserToGroup(principal.NewID("nobody", "vsphere.local"), "Operators")
		require.True(t, IsInvalidPrincipal(err))
	})

	t.Run("unknown group", func(t *testing.T) {
		_, err := p.AddUserToGroup(johnID, "NoSuchGroup")
		require.True(t, IsInvalidPrincipal(err))
	})
}

func TestFindUsersInGroup(t *testing.T) {
	fd := newTestDirectory()
	fd.put("cn=External,"+testUsersDN, map[string][]string{
		attrObjectClass: {classGroup},
		attrAccountName: {"External"},
		attrObjectSid:   {"S-1-5-21-2003"},
		attrMember: {
			fspPrefix + "guest@corp.example",
			johnDoeDN,
		},
	})
	p := newTestProvider(t, fd)
	groupID := principal.NewID("External", "vsphere.local")

	t.Run("limit zero short-circuits", func(t *testing.T) {
		before := fd.searches
		users, err := p.FindUsersInGroup(groupID, "", 0)
		require.NoError(t, err)
		require.Nil(t, users)
		require.Equal(t, before, fd.searches, "a zero limit must not reach the directory")
	})

	t.Run("negative limit is unbounded", func(t *testing.T) {
		users, err := p.FindUsersInGroup(groupID, "", -1)
		require.NoError(t, err)
		require.Len(t, users, 2)

		stub := users[0]
		require.Equal(t, "guest@corp.example", stub.ObjectID)
		require.True(t, stub.Disabled, "foreign stubs are inactive")
		require.True(t, stub.Locked)

		require.Equal(t, "john.doe", users[1].ID.Name)
	})

	t.Run("limit counts matches", func(t *testing.T) {
		users, err := p.FindUsersInGroup(groupID, "", 1)
		require.NoError(t, err)
		require.Len(t, users, 1)
	})

	t.Run("unknown group", func(t *testing.T) {
		_, err := p.FindUsersInGroup(principal.NewID("NoSuchGroup", "vsphere.local"), "", -1)
		require.True(t, IsInvalidPrincipal(err))
	})

	t.Run("groups in group skips foreign members", func(t *testing.T) {
		groups, err := p.FindGroupsInGroup(groupID, "", -1)
		require.NoError(t, err)
		require.Empty(t, groups)
	})
}

func TestFindParentGroups(t *testing.T) {
	p := newTestProvider(t, newTestDirectory())
	johnID := principal.NewID("jdoe", "VSPHERE")

	t.Run("direct", func(t *testing.T) {
		info, err := p.FindDirectParentGroups(johnID)
		require.NoError(t, err)
		require.Equal(t, "S-1-5-21-1001", info.PrincipalObjectID)
		require.Len(t, info.Groups, 1)
		require.Equal(t, "Admins", info.Groups[0].ID.Name)
	})

	t.Run("nested", func(t *testing.T) {
		info, err := p.FindNestedParentGroups(johnID)
		require.NoError(t, err)
		require.Equal(t, "S-1-5-21-1001", info.PrincipalObjectID)
		require.Len(t, info.Groups, 1)
		require.Equal(t, "Admins", info.Groups[0].ID.Name)
	})

	t.Run("unknown principal", func(t *testing.T) {
		_, err := p.FindDirectParentGroups(principal.NewID("nobody", "vsphere.local"))
		require.True(t, IsInvalidPrincipal(err))
	})
}

func TestAuthenticate(t *testing.T) {
	t.Run("primary bind", func(t *testing.T) {
		p := newTestProvider(t, newTestDirectory())
		id, err := p.Authenticate(principal.NewID("jdoe", "VSPHERE"), "correct horse")
		require.NoError(t, err)
		require.Equal(t, principal.NewID("john.doe", "vsphere.local"), id)
	})

	t.Run("wrong password", func(t *testing.T) {
		p := newTestProvider(t, newTestDirectory())
		_, err := p.Authenticate(principal.NewID("john.doe", "vsphere.local"), "wrong")
		require.True(t, trace.IsAccessDenied(err), "expected access denied, got %v", err)
	})

	t.Run("fallback simple bind", func(t *testing.T) {
		fd := newTestDirectory()
		fd.bindFunc = func(username, password string) error {
			if strings.Contains(username, "@") {
				return &ldap.Error{ResultCode: ldap.LDAPResultInvalidCredentials, Err: errors.New("invalid credentials")}
			}
			if strings.EqualFold(username, johnDoeDN) && password == "correct horse" {
				return nil
			}
			return &ldap.Error{ResultCode: ldap.LDAPResultInvalidCredentials, Err: errors.New("invalid credentials")}
		}
		p := newTestProvider(t, fd)
		id, err := p.Authenticate(principal.NewID("john.doe", "vsphere.local"), "correct horse")
		require.NoError(t, err)
		require.Equal(t, principal.NewID("john.doe", "vsphere.local"), id)
	})

	t.Run("no fallback for accounts with an SRP secret", func(t *testing.T) {
		fd := newTestDirectory()
		fd.put("cn=srp.user,"+testUsersDN, map[string][]string{
			attrObjectClass: {classUser},
			attrAccountName: {"srp.user"},
			attrUPN:         {"srp.user@vsphere.local"},
			attrSRPSecret:   {"srp-verifier"},
			attrPassword:    {"correct horse"},
		})
		p := newTestProvider(t, fd)

		fd.binds = 0
		_, err := p.Authenticate(principal.NewID("srp.user", "vsphere.local"), "wrong")
		require.True(t, trace.IsAccessDenied(err), "expected access denied, got %v", err)
		require.Equal(t, 1, fd.binds, "the primary failure is final, no DN bind may follow")
	})

	t.Run("foreign domain", func(t *testing.T) {
		p := newTestProvider(t, newTestDirectory())
		_, err := p.Authenticate(principal.NewID("someone", "other.example"), "pw")
		require.True(t, IsInvalidPrincipal(err))
	})
}

func TestGetAttributes(t *testing.T) {
	p := newTestProvider(t, newTestDirectory())
	johnID := principal.NewID("jdoe", "VSPHERE")

	t.Run("person user", func(t *testing.T) {
		attrs, err := p.GetAttributes(johnID, []string{
			AttributeUPN, AttributeFirstName, AttributeGroups, AttributeSubjectType,
		})
		require.NoError(t, err)
		require.Len(t, attrs, 4)

		byName := map[string][]string{}
		for _, a := range attrs {
			byName[a.Name] = a.Values
		}
		require.Equal(t, []string{"john.doe@vsphere.local"}, byName[AttributeUPN])
		require.Equal(t, []string{"John"}, byName[AttributeFirstName])
		require.Equal(t, []string{
			`vsphere.local\Admins`,
			`VSPHERE\VSphereAdmins`,
		}, byName[AttributeGroups], "aliased group spelling follows the real one")
		require.Equal(t, []string{"false"}, byName[AttributeSubjectType])
	})

	t.Run("service principal", func(t *testing.T) {
		attrs, err := p.GetAttributes(principal.NewID("sts", "vsphere.local"), []string{AttributeSubjectType})
		require.NoError(t, err)
		require.Len(t, attrs, 1)
		require.Equal(t, []string{"true"}, attrs[0].Values)
	})

	t.Run("unknown attribute", func(t *testing.T) {
		_, err := p.GetAttributes(johnID, []string{"http://example.com/no-such-claim"})
		require.True(t, trace.IsBadParameter(err))
	})

	t.Run("unknown principal", func(t *testing.T) {
		_, err := p.GetAttributes(principal.NewID("nobody", "vsphere.local"), []string{AttributeUPN})
		require.True(t, IsInvalidPrincipal(err))
	})
}

func TestFindApportionment(t *testing.T) {
	fd := newTestDirectory()
	for i := 1; i <= 3; i++ {
		fd.put(fmt.Sprintf("cn=team-svc-%d,%s", i, testSvcDN), map[string][]string{
			attrObjectClass: {classServicePrincipal},
			attrAccountName: {fmt.Sprintf("team-svc-%d", i)},
			attrUPN:         {fmt.Sprintf("team-svc-%d@vsphere.local", i)},
		})
	}
	for i := 1; i <= 5; i++ {
		fd.put(fmt.Sprintf("cn=team-user-%d,%s", i, testUsersDN), map[string][]string{
			attrObjectClass: {classUser},
			attrAccountName: {fmt.Sprintf("team-user-%d", i)},
			attrUPN:         {fmt.Sprintf("team-user-%d@vsphere.local", i)},
		})
	}
	for i := 1; i <= 20; i++ {
		fd.put(fmt.Sprintf("cn=team-group-%02d,%s", i, testUsersDN), map[string][]string{
			attrObjectClass: {classGroup},
			attrAccountName: {fmt.Sprintf("team-group-%02d", i)},
		})
	}
	p := newTestProvider(t, fd)

	t.Run("limit split favors users", func(t *testing.T) {
		result, err := p.Find("team", "vsphere.local", 10)
		require.NoError(t, err)
		require.Len(t, result.SolutionUsers, 3)
		require.Len(t, result.PersonUsers, 4)
		require.Len(t, result.Groups, 3)
	})

	t.Run("service principals can consume the whole limit", func(t *testing.T) {
		result, err := p.Find("team", "vsphere.local", 2)
		require.NoError(t, err)
		require.Len(t, result.SolutionUsers, 2)
		require.Empty(t, result.PersonUsers)
		require.Empty(t, result.Groups)
	})

	t.Run("non-positive limit is unbounded", func(t *testing.T) {
		for _, limit := range []int{0, -1} {
			result, err := p.Find("team", "vsphere.local", limit)
			require.NoError(t, err)
			require.Len(t, result.SolutionUsers, 3)
			require.Len(t, result.PersonUsers, 5)
			require.Len(t, result.Groups, 20)
		}
	})

	t.Run("by name", func(t *testing.T) {
		result, err := p.FindByName("team-group", "vsphere.local", -1)
		require.NoError(t, err)
		require.Empty(t, result.SolutionUsers)
		require.Empty(t, result.PersonUsers)
		require.Len(t, result.Groups, 20)
	})

	t.Run("foreign domain", func(t *testing.T) {
		result, err := p.Find("team", "other.example", -1)
		require.NoError(t, err)
		require.Empty(t, result.PersonUsers)
		require.Empty(t, result.Groups)
	})
}

func TestAliasedStore(t *testing.T) {
	p := newTestProvider(t, newTestDirectory())
	table, err := NewAliasTable("vsphere.local", "SECONDARY", map[string]string{
		"john.doe": "jd",
	})
	require.NoError(t, err)
	store, err := NewAliasedStore(p, table)
	require.NoError(t, err)

	require.Equal(t, "SECONDARY", store.Name())

	user, err := store.FindUser(principal.NewID("jd", "SECONDARY"))
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, "john.doe", user.ID.Name)

	users, err := store.FindUsersByName("john", "SECONDARY", -1)
	require.NoError(t, err)
	require.Len(t, users, 1)

	id, err := store.Authenticate(principal.NewID("jd", "SECONDARY"), "correct horse")
	require.NoError(t, err)
	require.Equal(t, principal.NewID("john.doe", "vsphere.local"), id)
}
