// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package uri

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFullRoundTrip(t *testing.T) {
	tests := []string{
		"http://www.my.site.com/some/file.html",
		"some-proto://ebay-bebay.com?q=cool+films",
		"blob://some.random.address.com:8999/path/to/file.txt?q=Text#sample",
		"default.proto.test.com:notAPort100",
		"",
	}
	for _, s := range tests {
		assert.Equal(t, s, New(s).Full())
	}
}

func TestParseFullURI(t *testing.T) {
	u := New("blob://some.random.address.com:8999/path/to/file.txt?q=Text#sample")

	scheme, ok := u.Scheme()
	assert.True(t, ok)
	assert.Equal(t, "blob", scheme)

	host, ok := u.Host()
	assert.True(t, ok)
	assert.Equal(t, "some.random.address.com", host)

	port, ok := u.Port()
	assert.True(t, ok)
	assert.Equal(t, uint16(8999), port)

	path, ok := u.Path()
	assert.True(t, ok)
	assert.Equal(t, "/path/to/file.txt", path)

	query, ok := u.Query()
	assert.True(t, ok)
	assert.Equal(t, "q=Text", query)

	fragment, ok := u.Fragment()
	assert.True(t, ok)
	assert.Equal(t, "sample", fragment)
}

func TestPortDefaultsAndMalformed(t *testing.T) {
	port, ok := New("http://www.my.site.com/some/file.html").Port()
	assert.True(t, ok)
	assert.Equal(t, uint16(80), port)

	_, ok = New("default.proto.test.com:notAPort100").Port()
	assert.False(t, ok)

	port, ok = New("http://host:65535/").Port()
	assert.True(t, ok)
	assert.Equal(t, uint16(65535), port)

	_, ok = New("http://host:65536/").Port()
	assert.False(t, ok)

	_, ok = New("http://host:/").Port()
	assert.False(t, ok)
}

func TestHasPort(t *testing.T) {
	assert.False(t, New("https://example.com").HasPort())
	assert.False(t, New("https://example.com/path").HasPort())
	assert.True(t, New("https://example.com:8443/path").HasPort())
	assert.True(t, New("https://example.com:notAPort").HasPort())
	assert.True(t, New("https://example.com:").HasPort())
}

func TestHostSchemeLess(t *testing.T) {
	host, ok := New("www.my.site.com/some/file.html").Host()
	assert.True(t, ok)
	assert.Equal(t, "www.my.site.com", host)

	_, ok = New("://host.com").Scheme()
	assert.False(t, ok)

	_, ok = New("not a scheme://host.com").Scheme()
	assert.False(t, ok)
}

func TestPathEdgeCases(t *testing.T) {
	_, ok := New("http://host.com").Path()
	assert.False(t, ok)

	_, ok = New("http://host.com/").Path()
	assert.False(t, ok)

	_, ok = New("some-proto://ebay-bebay.com?q=cool+films").Path()
	assert.False(t, ok)

	path, ok := New("http://host.com/a/b?x=1").Path()
	assert.True(t, ok)
	assert.Equal(t, "/a/b", path)
}

func TestQueryFragmentAbsence(t *testing.T) {
	_, ok := New("http://host.com/a").Query()
	assert.False(t, ok)

	_, ok = New("http://host.com/a#").Fragment()
	assert.False(t, ok)

	_, ok = New("http://host.com/a#").Query()
	assert.False(t, ok)

	frag, ok := New("http://host.com/a#x").Fragment()
	assert.True(t, ok)
	assert.Equal(t, "x", frag)
}

func TestOrderingAndEquality(t *testing.T) {
	a := New("http://a.com")
	b := New("http://b.com")
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.Equal(t, New("http://a.com"), a)
}
