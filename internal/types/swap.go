package types

import "encoding/binary"

// SwapElements walks buf as n elements of leaf type leaf (or, when leaf is
// a CDT, as n repetitions of its member tree) and byte-swaps each
// multi-byte primitive leaf in place between host-native and on-wire
// little-endian order. The swap is its own inverse, so the same call
// serves both directions: host-to-wire before storing into a tag's
// backing bytes, and wire-to-host after copying out of them.
func SwapElements(reg *Registry, leaf ID, n uint, buf []byte) {
	elemBytes := reg.SizeBytes(leaf)
	if elemBytes == 0 {
		return
	}
	for i := uint(0); i < n; i++ {
		start := i * elemBytes
		if start+elemBytes > uint(len(buf)) {
			return
		}
		swapScalar(reg, leaf, buf[start:start+elemBytes])
	}
}

// swapScalar swaps one element of typ (descending into CDT members when
// typ is custom) in place.
func swapScalar(reg *Registry, typ ID, region []byte) {
	if IsCustom(typ) {
		reg.IterMembers(typ, func(m Member, bitOffset uint) {
			byteOffset := bitOffset / 8
			memberBytes := reg.SizeBytes(m.Type)
			if memberBytes == 0 {
				return
			}
			for i := uint(0); i < m.Count; i++ {
				start := byteOffset + i*memberBytes
				if start+memberBytes > uint(len(region)) {
					return
				}
				swapScalar(reg, m.Type, region[start:start+memberBytes])
			}
		})
		return
	}

	switch len(region) {
	case 1:
		// single byte: nothing to swap
	case 2:
		v := binary.NativeEndian.Uint16(region)
		binary.LittleEndian.PutUint16(region, v)
	case 4:
		v := binary.NativeEndian.Uint32(region)
		binary.LittleEndian.PutUint32(region, v)
	case 8:
		v := binary.NativeEndian.Uint64(region)
		binary.LittleEndian.PutUint64(region, v)
	}
}
