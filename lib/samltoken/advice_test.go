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
	"testing"

	"github.com/stretchr/testify/require"
)

func adviceWith(source string, names ...string) Advice {
	a := Advice{SourceURI: source}
	for _, n := range names {
		a.Attributes = append(a.Attributes, AdviceAttribute{NameURI: n, Values: []string{"v"}})
	}
	return a
}

func TestAdviceIntersects(t *testing.T) {
	tests := []struct {
		desc       string
		a, b       Advice
		intersects bool
	}{
		{
			desc:       "same source shared attribute",
			a:          adviceWith("https://source.example", "a", "b"),
			b:          adviceWith("https://source.example", "b", "c"),
			intersects: true,
		},
		{
			desc:       "source comparison is case-insensitive",
			a:          adviceWith("https://SOURCE.example", "a"),
			b:          adviceWith("https://source.example", "a"),
			intersects: true,
		},
		{
			desc:       "different sources never intersect",
			a:          adviceWith("https://one.example", "a"),
			b:          adviceWith("https://two.example", "a"),
			intersects: false,
		},
		{
			desc:       "same source disjoint attributes",
			a:          adviceWith("https://source.example", "a"),
			b:          adviceWith("https://source.example", "b"),
			intersects: false,
		},
		{
			desc:       "no attributes",
			a:          adviceWith("https://source.example"),
			b:          adviceWith("https://source.example"),
			intersects: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			require.Equal(t, tt.intersects, tt.a.Intersects(tt.b))
			require.Equal(t, tt.intersects, tt.b.Intersects(tt.a))
		})
	}
}

func TestFilterAdvice(t *testing.T) {
	requested := []Advice{
		adviceWith("https://one.example", "a"),
		adviceWith("https://two.example", "b"),
	}
	present := []Advice{
		adviceWith("https://one.example", "a"),
		adviceWith("https://three.example", "c"),
	}

	t.Run("owner gets exactly the requested advice", func(t *testing.T) {
		result := FilterAdvice(true, requested, present)
		require.Equal(t, requested, result)
	})

	t.Run("non-owner keeps present advice and non-conflicting requests", func(t *testing.T) {
		result := FilterAdvice(false, requested, present)
		require.Equal(t, []Advice{
			adviceWith("https://one.example", "a"),
			adviceWith("https://three.example", "c"),
			adviceWith("https://two.example", "b"),
		}, result)
	})

	t.Run("owner with no requests drops present advice", func(t *testing.T) {
		result := FilterAdvice(true, nil, present)
		require.Empty(t, result)
	})

	t.Run("result is detached from the inputs", func(t *testing.T) {
		result := FilterAdvice(true, requested, nil)
		result[0] = adviceWith("mutated")
		require.Equal(t, "https://one.example", requested[0].SourceURI)
	})
}
