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
	"github.com/gravitational/trace"

	"github.com/vmware-archive/lightwave-sub003/lib/principal"
)

// Store is the identity-store surface consumed by the identity management
// APIs. Provider implements it against an LDAP directory; AliasedStore
// wraps any Store behind an additional alias domain.
type Store interface {
	Name() string

	Authenticate(id principal.ID, password string) (principal.ID, error)

	FindUser(id principal.ID) (*principal.PersonUser, error)
	FindUserByObjectID(objectID string) (*principal.PersonUser, error)
	FindUsers(search, domain string, limit int) ([]principal.PersonUser, error)
	FindUsersByName(search, domain string, limit int) ([]principal.PersonUser, error)
	FindUsersInGroup(groupID principal.ID, search string, limit int) ([]principal.PersonUser, error)

	FindGroup(id principal.ID) (*principal.Group, error)
	FindGroupByObjectID(objectID string) (*principal.Group, error)
	FindGroups(search, domain string, limit int) ([]principal.Group, error)
	FindGroupsByName(search, domain string, limit int) ([]principal.Group, error)
	FindGroupsInGroup(groupID principal.ID, search string, limit int) ([]principal.Group, error)
	FindDirectParentGroups(id principal.ID) (*principal.GroupLookupInfo, error)
	FindNestedParentGroups(id principal.ID) (*principal.GroupLookupInfo, error)

	FindServicePrincipal(id principal.ID) (*principal.SolutionUser, error)
	FindServicePrincipals(search string, limit int) ([]principal.SolutionUser, error)

	Find(search, domain string, limit int) (*principal.SearchResult, error)
	FindByName(search, domain string, limit int) (*principal.SearchResult, error)

	GetAttributes(id principal.ID, attrNames []string) ([]principal.AttributeValues, error)
	IsActive(id principal.ID) (bool, error)
	CheckUserAccountFlags(id principal.ID) error

	AddUser(name string, detail principal.PersonDetail, password string) (principal.ID, error)
	AddGroup(name string, detail principal.GroupDetail) (principal.ID, error)
	AddServicePrincipal(name string, detail principal.SolutionDetail) (principal.ID, error)
	DeletePrincipal(name string) error

	AddUserToGroup(userID principal.ID, groupName string) (bool, error)
	AddGroupToGroup(groupID principal.ID, targetGroupName string) (bool, error)
	RemoveFromGroup(id principal.ID, targetGroup string) (bool, error)

	EnableUserAccount(id principal.ID) (bool, error)
	DisableUserAccount(id principal.ID) (bool, error)
	UnlockUserAccount(id principal.ID) (bool, error)
}

// compile-time interface checks
var (
	_ Store = (*Provider)(nil)
	_ Store = (*AliasedStore)(nil)
)

// AliasedStore exposes an inner store under an alias domain. Inbound
// principal references are rewritten from the alias into the inner store's
// real names; egress principal objects pass through the deliberate no-op
// alias mapping. Account-name arguments for membership operations are
// rewritten with the bare-name table.
type AliasedStore struct {
	inner Store
	table *AliasTable
}

// NewAliasedStore wraps inner behind the given alias table.
func NewAliasedStore(inner Store, table *AliasTable) (*AliasedStore, error) {
	if inner == nil {
		return nil, trace.BadParameter("missing inner store")
	}
	if table == nil {
		return nil, trace.BadParameter("missing alias table")
	}
	return &AliasedStore{inner: inner, table: table}, nil
}

// Name returns the alias domain when one is configured, the inner store's
// name otherwise.
func (s *AliasedStore) Name() string {
	if d := s.table.AliasDomain(); d != "" {
		return d
	}
	return s.inner.Name()
}

func (s *AliasedStore) Authenticate(id principal.ID, password string) (principal.ID, error) {
	return s.inner.Authenticate(s.table.MapFromAlias(id), password)
}

func (s *AliasedStore) FindUser(id principal.ID) (*principal.PersonUser, error) {
	u, err := s.inner.FindUser(s.table.MapFromAlias(id))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return s.table.MapPersonUserToAlias(u), nil
}

func (s *AliasedStore) FindUserByObjectID(objectID string) (*principal.PersonUser, error) {
	u, err := s.inner.FindUserByObjectID(objectID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return s.table.MapPersonUserToAlias(u), nil
}

func (s *AliasedStore) FindUsers(search, domain string, limit int) ([]principal.PersonUser, error) {
	return s.inner.FindUsers(search, s.mapDomain(domain), limit)
}

func (s *AliasedStore) FindUsersByName(search, domain string, limit int) ([]principal.PersonUser, error) {
	return s.inner.FindUsersByName(search, s.mapDomain(domain), limit)
}

func (s *AliasedStore) FindUsersInGroup(groupID principal.ID, search string, limit int) ([]principal.PersonUser, error) {
	return s.inner.FindUsersInGroup(s.table.MapFromAlias(groupID), search, limit)
}

func (s *AliasedStore) FindGroup(id principal.ID) (*principal.Group, error) {
	g, err := s.inner.FindGroup(s.table.MapFromAlias(id))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return s.table.MapGroupToAlias(g), nil
}

func (s *AliasedStore) FindGroupByObjectID(objectID string) (*principal.Group, error) {
	g, err := s.inner.FindGroupByObjectID(objectID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return s.table.MapGroupToAlias(g), nil
}

func (s *AliasedStore) FindGroups(search, domain string, limit int) ([]principal.Group, error) {
	return s.inner.FindGroups(search, s.mapDomain(domain), limit)
}

func (s *AliasedStore) FindGroupsByName(search, domain string, limit int) ([]principal.Group, error) {
	return s.inner.FindGroupsByName(search, s.mapDomain(domain), limit)
}

func (s *AliasedStore) FindGroupsInGroup(groupID principal.ID, search string, limit int) ([]principal.Group, error) {
	return s.inner.FindGroupsInGroup(s.table.MapFromAlias(groupID), search, limit)
}

func (s *AliasedStore) FindDirectParentGroups(id principal.ID) (*principal.GroupLookupInfo, error) {
	return s.inner.FindDirectParentGroups(s.table.MapFromAlias(id))
}

func (s *AliasedStore) FindNestedParentGroups(id principal.ID) (*principal.GroupLookupInfo, error) {
	return s.inner.FindNestedParentGroups(s.table.MapFromAlias(id))
}

func (s *AliasedStore) FindServicePrincipal(id principal.ID) (*principal.SolutionUser, error) {
	return s.inner.FindServicePrincipal(s.table.MapFromAlias(id))
}

func (s *AliasedStore) FindServicePrincipals(search string, limit int) ([]principal.SolutionUser, error) {
	return s.inner.FindServicePrincipals(search, limit)
}

func (s *AliasedStore) Find(search, domain string, limit int) (*principal.SearchResult, error) {
	r, err := s.inner.Find(search, s.mapDomain(domain), limit)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return s.table.MapSearchResultToAlias(r), nil
}

func (s *AliasedStore) FindByName(search, domain string, limit int) (*principal.SearchResult, error) {
	r, err := s.inner.FindByName(search, s.mapDomain(domain), limit)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return s.table.MapSearchResultToAlias(r), nil
}

func (s *AliasedStore) GetAttributes(id principal.ID, attrNames []string) ([]principal.AttributeValues, error) {
	return s.inner.GetAttributes(s.table.MapFromAlias(id), attrNames)
}

func (s *AliasedStore) IsActive(id principal.ID) (bool, error) {
	return s.inner.IsActive(s.table.MapFromAlias(id))
}

func (s *AliasedStore) CheckUserAccountFlags(id principal.ID) error {
	return s.inner.CheckUserAccountFlags(s.table.MapFromAlias(id))
}

func (s *AliasedStore) AddUser(name string, detail principal.PersonDetail, password string) (principal.ID, error) {
	return s.inner.AddUser(s.table.MapAccountNameFromAlias(name), detail, password)
}

func (s *AliasedStore) AddGroup(name string, detail principal.GroupDetail) (principal.ID, error) {
	return s.inner.AddGroup(s.table.MapAccountNameFromAlias(name), detail)
}

func (s *AliasedStore) AddServicePrincipal(name string, detail principal.SolutionDetail) (principal.ID, error) {
	return s.inner.AddServicePrincipal(s.table.MapAccountNameFromAlias(name), detail)
}

func (s *AliasedStore) DeletePrincipal(name string) error {
	return s.inner.DeletePrincipal(s.table.MapAccountNameFromAlias(name))
}

func (s *AliasedStore) AddUserToGroup(userID principal.ID, groupName string) (bool, error) {
	return s.inner.AddUserToGroup(s.table.MapFromAlias(userID), s.table.MapAccountNameFromAlias(groupName))
}

func (s *AliasedStore) AddGroupToGroup(groupID principal.ID, targetGroupName string) (bool, error) {
	return s.inner.AddGroupToGroup(s.table.MapFromAlias(groupID), s.table.MapAccountNameFromAlias(targetGroupName))
}

func (s *AliasedStore) RemoveFromGroup(id principal.ID, targetGroup string) (bool, error) {
	return s.inner.RemoveFromGroup(s.table.MapFromAlias(id), s.table.MapAccountNameFromAlias(targetGroup))
}

func (s *AliasedStore) EnableUserAccount(id principal.ID) (bool, error) {
	return s.inner.EnableUserAccount(s.table.MapFromAlias(id))
}

func (s *AliasedStore) DisableUserAccount(id principal.ID) (bool, error) {
	return s.inner.DisableUserAccount(s.table.MapFromAlias(id))
}

func (s *AliasedStore) UnlockUserAccount(id principal.ID) (bool, error) {
	return s.inner.UnlockUserAccount(s.table.MapFromAlias(id))
}

// mapDomain rewrites a search domain from the alias into the real domain.
func (s *AliasedStore) mapDomain(domain string) string {
	if s.table.IsAliasDomain(domain) {
		return s.table.SystemDomain()
	}
	return domain
}
