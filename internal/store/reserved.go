package store

import (
	"fmt"

	"opendax/internal/daxerr"
	"opendax/internal/types"
)

// ValidateName enforces spec's tag name grammar: first character a letter
// or underscore, remainder alphanumeric or underscore, length <= maxLen.
func ValidateName(name string, maxLen int) error {
	if name == "" {
		return daxerr.New(daxerr.BadArg, "tag name must not be empty")
	}
	if len(name) > maxLen {
		return daxerr.New(daxerr.BadArg, fmt.Sprintf("tag name %q exceeds %d bytes", name, maxLen))
	}

	first := name[0]
	if !isAlpha(first) && first != '_' {
		return daxerr.New(daxerr.BadArg, fmt.Sprintf("tag name %q must start with a letter or underscore", name))
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		if !isAlpha(c) && !isDigit(c) && c != '_' {
			return daxerr.New(daxerr.BadArg, fmt.Sprintf("tag name %q contains an invalid character %q", name, c))
		}
	}
	return nil
}

func isAlpha(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// registerReserved seeds the special tags that are never deletable and
// expose the store's structural state to clients: _lastindex,
// _tag_added, _tag_deleted, _tag_changed.
//
// _lastindex is VIRTUAL (served live by Store.LastIndex via its
// before-read callback, registered by the server at startup once the
// store exists); _tag_added/_tag_deleted/_tag_changed are typed
// _tag_desc. Add and Delete do not write them, so they keep their
// zeroed bytes unless written through the I/O engine.
func registerReserved(s *Store) {
	tagDesc, ok := s.registry.ByName("_tag_desc")
	if !ok {
		panic("store: _tag_desc must be registered in the type registry before the store is constructed")
	}

	mustAdd(s, "_lastindex", types.UDINT, 1, AttrSpecial|AttrVirtual)
	mustAdd(s, "_tag_added", tagDesc, 1, AttrSpecial)
	mustAdd(s, "_tag_deleted", tagDesc, 1, AttrSpecial)
	mustAdd(s, "_tag_changed", tagDesc, 1, AttrSpecial)
}

// mustAdd adds a reserved tag at store-construction time, before any
// client can observe a partially-initialized store. A failure here is a
// programmer error (a name collision among hard-coded reserved names),
// not a runtime condition, so it panics rather than returning an error
// through New.
func mustAdd(s *Store, name string, typ types.ID, count uint, attrs Attr) {
	if count == 0 {
		count = 1
	}
	if _, err := s.Add(name, typ, count, attrs); err != nil {
		panic(fmt.Sprintf("store: failed to register reserved tag %q: %v", name, err))
	}
}
