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

// Find searches all three principal kinds for entries containing the
// search term. The overall limit is apportioned by exhausting the actual
// service principal matches first, splitting the remaining budget in favor
// of users, then filling what is left with groups. A limit <= 0 is
// unbounded.
func (p *Provider) Find(search, domain string, limit int) (*principal.SearchResult, error) {
	return p.findWith(search, domain, limit,
		p.FindServicePrincipals,
		p.FindUsers,
		p.FindGroups)
}

// FindByName is Find with prefix matching on account names.
func (p *Provider) FindByName(search, domain string, limit int) (*principal.SearchResult, error) {
	return p.findWith(search, domain, limit,
		p.FindServicePrincipals,
		p.FindUsersByName,
		p.FindGroupsByName)
}

func (p *Provider) findWith(
	search, domain string,
	limit int,
	findSvc func(string, int) ([]principal.SolutionUser, error),
	findUsers func(string, string, int) ([]principal.PersonUser, error),
	findGroups func(string, string, int) ([]principal.Group, error),
) (*principal.SearchResult, error) {
	result := &principal.SearchResult{}

	sols, err := findSvc(search, limit)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if limit > 0 && limit <= len(sols) {
		result.SolutionUsers = sols[:limit]
		return result, nil
	}
	result.SolutionUsers = sols

	// Budget remaining after the actual service principal result size.
	remaining := -1
	if limit > 0 {
		remaining = limit - len(sols)
	}

	userLimit := remaining
	if remaining > 0 {
		userLimit = remaining/2 + remaining%2
	}
	users, err := findUsers(search, domain, userLimit)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	result.PersonUsers = users

	if remaining > 0 {
		remaining -= len(users)
		if remaining == 0 {
			return result, nil
		}
	}
	groups, err := findGroups(search, domain, remaining)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	result.Groups = groups
	return result, nil
}
