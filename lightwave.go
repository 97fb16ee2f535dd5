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

// Package lightwave contains shared constants for the identity provider
// libraries in this module.
package lightwave

const (
	// ComponentKey is the name of the log attribute containing the component name.
	ComponentKey = "component"

	// ComponentDirectory identifies the LDAP directory access layer.
	ComponentDirectory = "directory"

	// ComponentIDStore identifies the directory-backed identity store.
	ComponentIDStore = "idstore"

	// ComponentAuthority identifies the SAML token authority.
	ComponentAuthority = "authority"
)
