package store

import (
	"fmt"
	"strconv"
	"strings"

	"opendax/internal/daxerr"
	"opendax/internal/types"
)

// Handle is a resolved reference to a sub-region of a tag: an opaque
// coordinate, not an owning pointer. Once resolved it never needs to
// consult the type registry or name map again.
type Handle struct {
	TagIndex     uint32
	ByteOffset   uint
	BitOffset    uint // non-zero only for BOOL data
	ElementCount uint
	Type         types.ID
	SizeBytes    uint
}

// ResolveHandle resolves a dotted/indexed path of the form
// "name[offset].member[k].member..." to a byte/bit window and leaf type.
//
// Grammar:
//
//	path       := tagName [ "[" index "]" ] { "." member [ "[" index "]" ] }
//	tagName    := the registered tag's name
//	member     := a field name of the CDT at the current position
//	index      := a non-negative element index into the current array
//
// count is the number of elements of the leaf type the handle should
// cover, starting at the resolved element; 0 is treated as 1. The window
// is checked against the end of the tag's bytes (TOO_BIG), not against
// the end of the addressed member array.
func (s *Store) ResolveHandle(path string, count uint) (Handle, error) {
	if path == "" {
		return Handle{}, daxerr.ErrNotFound
	}
	if count == 0 {
		count = 1
	}

	tagPart, memberParts := splitPath(path)
	tagName, tagIndexSel, err := splitIndex(tagPart)
	if err != nil {
		return Handle{}, err
	}

	meta, err := s.ByName(tagName)
	if err != nil {
		return Handle{}, err
	}
	if tagIndexSel >= meta.Count {
		return Handle{}, daxerr.ErrTooBig
	}

	curType := meta.Type
	curBitOffset := s.registry.SizeBits(curType) * tagIndexSel
	reg := s.registry

	for _, part := range memberParts {
		memberName, elemSel, err := splitIndex(part)
		if err != nil {
			return Handle{}, err
		}
		member, bitOffset, ok := reg.Member(curType, memberName)
		if !ok {
			return Handle{}, daxerr.New(daxerr.BadArg, fmt.Sprintf("no member %q on type %s", memberName, reg.NameOf(curType)))
		}
		if elemSel >= member.Count {
			return Handle{}, daxerr.ErrTooBig
		}
		curBitOffset += bitOffset + reg.SizeBits(member.Type)*elemSel
		curType = member.Type
	}

	elemBits := reg.SizeBits(curType)
	// Elements beyond the first requested by count address consecutive
	// elements of curType starting at the resolved position.
	totalBits := elemBits * count

	var byteOffset, bitOffset, sizeBytes uint
	if curType == types.BOOL {
		byteOffset = curBitOffset / 8
		bitOffset = curBitOffset % 8
		sizeBytes = (bitOffset + totalBits + 7) / 8
	} else {
		if curBitOffset%8 != 0 {
			return Handle{}, daxerr.New(daxerr.BadArg, "non-BOOL handle is not byte-aligned")
		}
		byteOffset = curBitOffset / 8
		bitOffset = 0
		sizeBytes = (totalBits + 7) / 8
	}

	if byteOffset+sizeBytes > meta.Size {
		return Handle{}, daxerr.ErrTooBig
	}

	return Handle{
		TagIndex:     meta.Index,
		ByteOffset:   byteOffset,
		BitOffset:    bitOffset,
		ElementCount: count,
		Type:         curType,
		SizeBytes:    sizeBytes,
	}, nil
}

// splitPath separates the leading "name[idx]" segment from the
// dot-separated member path that follows.
func splitPath(path string) (tagPart string, memberParts []string) {
	dot := strings.IndexByte(path, '.')
	if dot < 0 {
		return path, nil
	}
	return path[:dot], strings.Split(path[dot+1:], ".")
}

// splitIndex parses "name" or "name[idx]" into its name and element
// selector (0 when no bracket is present).
func splitIndex(part string) (name string, index uint, err error) {
	open := strings.IndexByte(part, '[')
	if open < 0 {
		return part, 0, nil
	}
	if !strings.HasSuffix(part, "]") {
		return "", 0, daxerr.New(daxerr.BadArg, fmt.Sprintf("malformed index in %q", part))
	}
	name = part[:open]
	idxStr := part[open+1 : len(part)-1]
	n, convErr := strconv.Atoi(idxStr)
	if convErr != nil || n < 0 {
		return "", 0, daxerr.New(daxerr.BadArg, fmt.Sprintf("malformed index in %q", part))
	}
	return name, uint(n), nil
}
