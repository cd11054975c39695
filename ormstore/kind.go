package ormstore

import "sort"

// Kind describes an entity kind: its key namespace, the length of generated
// IDs, and its tagging policy. Kinds are plain values passed to a backend
// when obtaining an Engine; there is no registry and no name derivation.
type Kind struct {
	// Name is the key namespace component, e.g. "client" produces keys under
	// "{prefix}client:...".
	Name string

	// IDLength is the length of randomly generated IDs. Production lengths
	// are 16-64 characters over the alphanumeric corpus.
	IDLength int

	// Tagged enables the secondary tag index for this kind. Untagged kinds
	// support every Engine operation except Find.
	Tagged bool

	// Untagged lists attribute names excluded from tagging, typically
	// secrets and large list fields.
	Untagged []string
}

// untaggedSet returns the exclusion list as a set.
func (k Kind) untaggedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(k.Untagged))
	for _, name := range k.Untagged {
		set[name] = struct{}{}
	}
	return set
}

// Tags derives the sorted tag set for an attribute bag. Each scalar
// attribute (string or bool) not in the exclusion list yields one
// "attribute:value" tag; list attributes are never tagged. Untagged kinds
// yield nil.
func (k Kind) Tags(attrs Attrs) []string {
	if !k.Tagged || len(attrs) == 0 {
		return nil
	}
	excluded := k.untaggedSet()
	tags := make([]string, 0, len(attrs))
	for name, value := range attrs {
		if _, skip := excluded[name]; skip {
			continue
		}
		scalar, ok := value.Scalar()
		if !ok {
			continue
		}
		tags = append(tags, name+":"+scalar)
	}
	sort.Strings(tags)
	return tags
}
