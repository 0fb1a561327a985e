package bmff

import "slices"

func u8(v uint8) []byte   { return []byte{v} }
func u16(v uint16) []byte { return be.AppendUint16(nil, v) }
func u32(v uint32) []byte { return be.AppendUint32(nil, v) }
func u64(v uint64) []byte { return be.AppendUint64(nil, v) }

func zeros(n int) []byte { return make([]byte, n) }

func cat(parts ...[]byte) []byte { return slices.Concat(parts...) }

// mkbox builds a box with a 32-bit size header around the concatenated payload.
func mkbox(typ string, payload ...[]byte) []byte {
	p := slices.Concat(payload...)
	return slices.Concat(u32(uint32(8+len(p))), []byte(typ), p)
}

// mkfull builds a full box with version and flags.
func mkfull(typ string, version uint8, flags uint32, payload ...[]byte) []byte {
	vf := []byte{version, byte(flags >> 16), byte(flags >> 8), byte(flags)}
	return mkbox(typ, append([][]byte{vf}, payload...)...)
}

func hdlrBox(handler string) []byte {
	return mkfull("hdlr", 0, 0, zeros(4), []byte(handler), zeros(12), []byte("Handler\x00"))
}

// trakWith wraps stbl children in trak/mdia/minf/stbl with an hdlr of the
// given handler type. An empty handler omits the hdlr box.
func trakWith(handler string, stblChildren ...[]byte) []byte {
	var hdlr []byte
	if handler != "" {
		hdlr = hdlrBox(handler)
	}
	return mkbox("trak",
		mkbox("mdia",
			hdlr,
			mkbox("minf", mkbox("stbl", stblChildren...))))
}

func stsdBox(entries ...[]byte) []byte {
	return mkfull("stsd", 0, 0, append([][]byte{u32(uint32(len(entries)))}, entries...)...)
}

func compressorName(s string) []byte {
	b := make([]byte, 32)
	b[0] = byte(len(s))
	copy(b[1:], s)
	return b
}

func visualEntry(typ string, width, height uint16, children ...[]byte) []byte {
	return mkbox(typ,
		zeros(6), u16(1),
		zeros(16),
		u16(width), u16(height),
		u32(0x00480000), u32(0x00480000),
		zeros(4),
		u16(1),
		compressorName("test"),
		u16(0x18), u16(0xffff),
		slices.Concat(children...))
}

func audioEntry(typ string, channels uint16, rate uint32, children ...[]byte) []byte {
	return mkbox(typ,
		zeros(6), u16(1),
		u16(0), zeros(6),
		u16(channels), u16(16),
		zeros(4),
		u32(rate<<16),
		slices.Concat(children...))
}

// baselineSPS is a 320x240 Baseline profile SPS.
var baselineSPS = []byte{0x67, 0x42, 0xc0, 0x1e, 0xda, 0x05, 0x07, 0xe4}

var testPPS = []byte{0x68, 0xce, 0x3c, 0x80}

func avcCBox(profile uint8, sps []byte, extension []byte) []byte {
	return mkbox("avcC",
		u8(1), u8(profile), u8(0), u8(0x1f), u8(0xff),
		u8(0xe1), u16(uint16(len(sps))), sps,
		u8(1), u16(uint16(len(testPPS))), testPPS,
		extension)
}
