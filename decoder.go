package bmff

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tetsuo/bmff/bits"
)

// Tree is the result of decoding a buffer: the top-level boxes plus a flat
// list of every node, indexed by Box.Index.
type Tree struct {
	Boxes []*Box

	// Err is the structural error that stopped top-level decoding, or nil
	// when the whole buffer was consumed.
	Err error

	nodes []*Box
}

// Nodes returns every decoded box in decode order.
func (t *Tree) Nodes() []*Box { return t.nodes }

// Parent returns the parent of b, or nil for a top-level box.
func (t *Tree) Parent(b *Box) *Box {
	if b == nil || b.Parent < 0 || b.Parent >= len(t.nodes) {
		return nil
	}
	return t.nodes[b.Parent]
}

// Ancestor returns the n-th ancestor of b (1 is the parent), or nil.
func (t *Tree) Ancestor(b *Box, n int) *Box {
	for ; n > 0 && b != nil; n-- {
		b = t.Parent(b)
	}
	return b
}

// FindFirst returns the first box of type t, searching the top level before
// descending into each top-level box in order.
func (t *Tree) FindFirst(typ BoxType) *Box {
	return findFirst(t.Boxes, typ)
}

// FindAll returns every box of type t in the same order as FindFirst.
func (t *Tree) FindAll(typ BoxType) []*Box {
	return findAll(t.Boxes, typ, []*Box{})
}

// Walk calls fn for every box in depth-first order.
func (t *Tree) Walk(fn func(box *Box, depth int) bool) {
	for _, b := range t.Boxes {
		walk(b, 0, fn)
	}
}

// Decoder decodes box trees. The zero value is not usable; use NewDecoder.
// A Decoder holds no per-call state and may be shared between goroutines.
type Decoder struct {
	log *slog.Logger
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger used to report truncated child lists, skipped
// boxes and integrity warnings. By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDecoder returns a Decoder configured with opts.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{log: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(d)
	}
	return d
}

var defaultDecoder = NewDecoder()

// Parse decodes consecutive top-level boxes from buf.
func Parse(buf []byte) *Tree { return defaultDecoder.ParseAt(buf, 0) }

// ParseAt decodes consecutive top-level boxes from buf starting at offset.
func ParseAt(buf []byte, offset int) *Tree { return defaultDecoder.ParseAt(buf, offset) }

// Decode decodes the single box (and its subtree) at offset.
func Decode(buf []byte, offset int) (*Box, error) { return defaultDecoder.Decode(buf, offset) }

// Parse decodes consecutive top-level boxes from buf.
func (d *Decoder) Parse(buf []byte) *Tree { return d.ParseAt(buf, 0) }

// ParseAt decodes consecutive top-level boxes from buf starting at offset.
// Decoding stops at the first position that holds no valid box; the reason
// is kept in Tree.Err and the boxes before it are returned.
func (d *Decoder) ParseAt(buf []byte, offset int) *Tree {
	s := &decodeState{buf: buf, tree: &Tree{}, log: d.log}
	if offset < 0 {
		s.tree.Err = ErrShortHeader
		return s.tree
	}
	ptr := offset
	for ptr < len(buf) {
		box, err := s.decodeBox(ptr, len(buf), -1, nil)
		if err != nil {
			s.tree.Err = fmt.Errorf("at offset %d: %w", ptr, err)
			d.log.Debug("stopped decoding top-level boxes", "offset", ptr, "err", err)
			break
		}
		s.tree.Boxes = append(s.tree.Boxes, box)
		ptr = box.End()
	}
	return s.tree
}

// Decode decodes the single box (and its subtree) at offset. It returns
// ErrShortHeader or ErrMalformedSize when offset holds no valid box.
func (d *Decoder) Decode(buf []byte, offset int) (*Box, error) {
	if offset < 0 || offset > len(buf) {
		return nil, ErrShortHeader
	}
	s := &decodeState{buf: buf, tree: &Tree{}, log: d.log}
	box, err := s.decodeBox(offset, len(buf), -1, nil)
	if err != nil {
		return nil, err
	}
	s.tree.Boxes = []*Box{box}
	return box, nil
}

// decodeState is the per-call state of one decode.
type decodeState struct {
	buf  []byte
	tree *Tree
	log  *slog.Logger
}

// decodeBox decodes the box at buf[start:] which must end by end. def, when
// non-nil, overrides the registry lookup. On error nothing is added to the
// tree.
func (s *decodeState) decodeBox(start, end, parent int, def *boxDef) (*Box, error) {
	h, err := readHeader(s.buf, start, end)
	if err != nil {
		return nil, err
	}

	box := &Box{
		Type:       h.typ,
		UserType:   h.userType,
		Size:       h.size,
		Offset:     start,
		HeaderSize: h.hdrSize,
		LargeSize:  h.largeSize,
		Index:      len(s.tree.nodes),
		Parent:     parent,
	}
	s.tree.nodes = append(s.tree.nodes, box)

	if def == nil {
		if d, ok := registry[h.typ]; ok {
			def = &d
		}
	}

	payloadStart := start + h.hdrSize
	boxEnd := box.End()

	if def == nil {
		box.name = opaqueName
		box.Data = s.buf[payloadStart:boxEnd]
		return box, nil
	}
	box.name = def.name

	if def.full {
		if boxEnd-payloadStart < 4 {
			s.drop(box)
			return nil, fmt.Errorf("box %s: version and flags: %w", h.typ, bits.ErrOutOfBounds)
		}
		vf := be.Uint32(s.buf[payloadStart:])
		box.Version = uint8(vf >> 24)
		box.Flags = vf & 0x00ffffff
		box.FullBox = true
		box.HeaderSize += 4
		payloadStart += 4
	}
	box.Data = s.buf[payloadStart:boxEnd]

	if def.decode == nil {
		return box, nil
	}
	if err := def.decode(s, box, bits.NewReader(box.Data)); err != nil {
		if errors.Is(err, ErrContextMismatch) {
			s.log.Debug("skipping box", "type", h.typ.String(), "offset", start, "err", err)
			box.Payload = nil
			box.Children = nil
			s.tree.nodes = s.tree.nodes[:box.Index+1]
			return box, nil
		}
		s.drop(box)
		return nil, fmt.Errorf("decoding %s: %w", h.typ, err)
	}
	return box, nil
}

// drop removes box and everything decoded after it from the node list.
func (s *decodeState) drop(box *Box) {
	s.tree.nodes = s.tree.nodes[:box.Index]
}

// decodeChildren decodes boxes from buf[start:end] into parent.Children. It
// stops when fewer than 8 bytes remain or a child fails.
func (s *decodeState) decodeChildren(parent *Box, start, end int) {
	s.decodeChildrenN(parent, start, end, -1)
}

// decodeChildrenN is decodeChildren limited to limit children when limit >= 0.
// It returns the offset after the last decoded child.
func (s *decodeState) decodeChildrenN(parent *Box, start, end, limit int) int {
	ptr := start
	for end-ptr >= 8 && (limit < 0 || len(parent.Children) < limit) {
		child, err := s.decodeBox(ptr, end, parent.Index, nil)
		if err != nil {
			s.log.Debug("truncated child list",
				"parent", parent.Type.String(), "offset", ptr, "err", err)
			break
		}
		parent.Children = append(parent.Children, child)
		ptr = child.End()
	}
	return ptr
}

// payloadOffset returns the absolute buffer offset of the reader position.
func payloadOffset(b *Box, r *bits.Reader) int {
	return b.Offset + b.HeaderSize + r.Offset()
}
