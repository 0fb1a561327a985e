// Package bmff decodes ISO Base Media File Format (MP4, QuickTime, fragmented MP4)
// box trees, including the codec configuration records nested in sample entries.
package bmff

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

var be = binary.BigEndian

// BoxType is a 4-byte box type identifier.
type BoxType [4]byte

func (t BoxType) String() string {
	return string(t[:])
}

// newBoxType creates a BoxType from a 4-character string.
func newBoxType(s string) BoxType {
	var t BoxType
	copy(t[:], s)
	return t
}

// StrType returns the BoxType for a 4-character string such as "moov".
func StrType(s string) BoxType { return newBoxType(s) }

// Known box types.
var (
	TypeFtyp = newBoxType("ftyp")
	TypeStyp = newBoxType("styp")
	TypeMoov = newBoxType("moov")
	TypeMvhd = newBoxType("mvhd")
	TypeTrak = newBoxType("trak")
	TypeTkhd = newBoxType("tkhd")
	TypeEdts = newBoxType("edts")
	TypeElst = newBoxType("elst")
	TypeMdia = newBoxType("mdia")
	TypeMdhd = newBoxType("mdhd")
	TypeHdlr = newBoxType("hdlr")
	TypeMinf = newBoxType("minf")
	TypeVmhd = newBoxType("vmhd")
	TypeSmhd = newBoxType("smhd")
	TypeDinf = newBoxType("dinf")
	TypeDref = newBoxType("dref")
	TypeURL  = newBoxType("url ")
	TypeURN  = newBoxType("urn ")
	TypeStbl = newBoxType("stbl")
	TypeStsd = newBoxType("stsd")
	TypeStts = newBoxType("stts")
	TypeCtts = newBoxType("ctts")
	TypeStsc = newBoxType("stsc")
	TypeStsz = newBoxType("stsz")
	TypeStco = newBoxType("stco")
	TypeCo64 = newBoxType("co64")
	TypeStss = newBoxType("stss")
	TypeStps = newBoxType("stps")
	TypeSdtp = newBoxType("sdtp")
	TypeMvex = newBoxType("mvex")
	TypeMehd = newBoxType("mehd")
	TypeTrex = newBoxType("trex")
	TypeMoof = newBoxType("moof")
	TypeMfhd = newBoxType("mfhd")
	TypeTraf = newBoxType("traf")
	TypeTfhd = newBoxType("tfhd")
	TypeTfdt = newBoxType("tfdt")
	TypeTrun = newBoxType("trun")
	TypeSidx = newBoxType("sidx")
	TypeMeta = newBoxType("meta")
	TypeUdta = newBoxType("udta")
	TypeWloc = newBoxType("WLOC")
	TypeMdat = newBoxType("mdat")
	TypeFree = newBoxType("free")
	TypeUUID = newBoxType("uuid")

	TypeMp4a = newBoxType("mp4a")
	TypeEnca = newBoxType("enca")
	TypeAvc1 = newBoxType("avc1")
	TypeAvc3 = newBoxType("avc3")
	TypeHvc1 = newBoxType("hvc1")
	TypeHev1 = newBoxType("hev1")
	TypeAv01 = newBoxType("av01")
	TypeEncv = newBoxType("encv")
	TypeAvcC = newBoxType("avcC")
	TypeHvcC = newBoxType("hvcC")
	TypeAv1C = newBoxType("av1C")
	TypeEsds = newBoxType("esds")
	TypeColr = newBoxType("colr")
	TypeClap = newBoxType("clap")

	TypeSinf = newBoxType("sinf")
	TypeIpro = newBoxType("ipro")
	TypeSchi = newBoxType("schi")
	TypeFrma = newBoxType("frma")
	TypeSchm = newBoxType("schm")
	TypeTenc = newBoxType("tenc")
	TypeSenc = newBoxType("senc")
	TypePssh = newBoxType("pssh")
	TypeFpsd = newBoxType("fpsd")
	TypeFpsk = newBoxType("fpsk")
	TypeFpsi = newBoxType("fpsi")
	TypeFkri = newBoxType("fkri")
	TypeFkai = newBoxType("fkai")
	TypeFkcx = newBoxType("fkcx")
	TypeFkvl = newBoxType("fkvl")
)

// Payload is the decoded body of a box. The concrete type depends on the
// box type; boxes without a registered decoder have a nil Payload.
type Payload interface {
	payload()
}

// Box represents a decoded box (atom).
//
// Invariant: HeaderSize plus the payload length equals Size, and the sizes of
// Children never sum past the payload length.
type Box struct {
	Type     BoxType
	UserType uuid.UUID // set only for "uuid" boxes
	Size     uint64    // total size including header
	Offset   int       // absolute offset of the first header byte

	// HeaderSize covers the size and type fields, the large size, the user
	// type and, for full boxes, version and flags.
	HeaderSize int
	LargeSize  bool

	Version uint8
	Flags   uint32
	FullBox bool

	Children []*Box
	Payload  Payload

	// Data is the payload region. It aliases the decoded buffer.
	Data []byte

	// Index is the position of the box in its Tree's node list and Parent
	// the index of its parent, or -1 at the top level.
	Index  int
	Parent int

	name string
}

// Name returns the display name of the box, or "Undifferentiated Atom" for
// unregistered types.
func (b *Box) Name() string {
	if b.name != "" {
		return b.name
	}
	if def, ok := registry[b.Type]; ok {
		return def.name
	}
	return opaqueName
}

// End returns the absolute offset one past the last byte of the box.
func (b *Box) End() int { return b.Offset + int(b.Size) }

func (b *Box) String() string {
	return fmt.Sprintf("%s @%d size=%d", b.Type, b.Offset, b.Size)
}

// Child returns the first direct child of the given type, or nil.
func (b *Box) Child(t BoxType) *Box {
	for _, c := range b.Children {
		if c.Type == t {
			return c
		}
	}
	return nil
}

// FindFirst returns the first descendant of type t. Direct children are
// checked before descending, then each child's subtree is searched in order.
func (b *Box) FindFirst(t BoxType) *Box {
	return findFirst(b.Children, t)
}

// FindAll returns every descendant of type t. Matches among the direct
// children come first, followed by the matches of each child's subtree.
// The result is empty, never nil, when nothing matches.
func (b *Box) FindAll(t BoxType) []*Box {
	return findAll(b.Children, t, []*Box{})
}

// Walk calls fn for b and every descendant in depth-first order.
// Returning false from fn skips the children of that box.
func (b *Box) Walk(fn func(box *Box, depth int) bool) {
	walk(b, 0, fn)
}

func findFirst(boxes []*Box, t BoxType) *Box {
	for _, c := range boxes {
		if c.Type == t {
			return c
		}
	}
	for _, c := range boxes {
		if r := findFirst(c.Children, t); r != nil {
			return r
		}
	}
	return nil
}

func findAll(boxes []*Box, t BoxType, out []*Box) []*Box {
	for _, c := range boxes {
		if c.Type == t {
			out = append(out, c)
		}
	}
	for _, c := range boxes {
		out = findAll(c.Children, t, out)
	}
	return out
}

func walk(b *Box, depth int, fn func(*Box, int) bool) {
	if !fn(b, depth) {
		return
	}
	for _, c := range b.Children {
		walk(c, depth+1, fn)
	}
}

// PayloadAs returns the payload of b as T.
func PayloadAs[T Payload](b *Box) (T, bool) {
	var zero T
	if b == nil || b.Payload == nil {
		return zero, false
	}
	p, ok := b.Payload.(T)
	return p, ok
}

// header holds the parsed size/type prefix of a box.
type header struct {
	size      uint64
	typ       BoxType
	userType  uuid.UUID
	hdrSize   int
	largeSize bool
}

// readHeader parses a box header at buf[start:end]. It fails when the header
// does not fit, or when the declared size is zero, smaller than the header or
// extends past end.
func readHeader(buf []byte, start, end int) (header, error) {
	if end-start < 8 {
		return header{}, ErrShortHeader
	}

	h := header{size: uint64(be.Uint32(buf[start:]))}
	copy(h.typ[:], buf[start+4:])
	ptr := start + 8

	if h.size == 1 {
		if end-ptr < 8 {
			return header{}, fmt.Errorf("box %s: extended size: %w", h.typ, ErrShortHeader)
		}
		h.size = be.Uint64(buf[ptr:])
		h.largeSize = true
		ptr += 8
	}

	if h.typ == TypeUUID {
		if end-ptr < 16 {
			return header{}, fmt.Errorf("box %s: user type: %w", h.typ, ErrShortHeader)
		}
		copy(h.userType[:], buf[ptr:ptr+16])
		ptr += 16
	}

	h.hdrSize = ptr - start
	if h.size == 0 || h.size < uint64(h.hdrSize) {
		return header{}, fmt.Errorf("box %s: size %d: %w", h.typ, h.size, ErrMalformedSize)
	}
	if h.size > uint64(end-start) {
		return header{}, fmt.Errorf("box %s: size %d exceeds %d available bytes: %w", h.typ, h.size, end-start, ErrMalformedSize)
	}
	return h, nil
}
