package ormstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindTags(t *testing.T) {
	kind := Kind{
		Name:     "client",
		IDLength: 16,
		Tagged:   true,
		Untagged: []string{"client_secret", "redirect_urls"},
	}

	attrs := Attrs{
		"client_type":   String("web"),
		"client_secret": String("s3cret"),
		"redirect_urls": List("http://a.example/cb", "http://b.example/cb"),
		"trusted":       Bool(true),
		"labels":        List("x", "y"),
	}

	tags := kind.Tags(attrs)
	assert.Equal(t, []string{"client_type:web", "trusted:true"}, tags)
}

func TestKindTagsSorted(t *testing.T) {
	kind := Kind{Name: "token", IDLength: 64, Tagged: true}
	tags := kind.Tags(Attrs{
		"user_id":   String("u1"),
		"client_id": String("c1"),
		"scope":     String("read"),
	})
	assert.Equal(t, []string{"client_id:c1", "scope:read", "user_id:u1"}, tags)
}

func TestKindTagsUntaggedKind(t *testing.T) {
	kind := Kind{Name: "code", IDLength: 32}
	assert.Nil(t, kind.Tags(Attrs{"client_id": String("c1")}))
}

func TestKindTagsBoolFalse(t *testing.T) {
	kind := Kind{Name: "client", IDLength: 16, Tagged: true}
	assert.Equal(t, []string{"trusted:false"}, kind.Tags(Attrs{"trusted": Bool(false)}))
}
