package bmff

import (
	"github.com/google/uuid"

	"github.com/tetsuo/bmff/bits"
)

// Well-known DRM system IDs carried in pssh boxes.
var (
	SystemIDWidevine  = uuid.MustParse("edef8ba9-79d6-4ace-a3c8-27dcd51d21ed")
	SystemIDPlayReady = uuid.MustParse("9a04f079-9840-4286-ab92-e65be0885f95")
	SystemIDFairPlay  = uuid.MustParse("94ce86fb-07ff-4f43-adb8-93d2fa968ca2")
)

var systemNames = map[uuid.UUID]string{
	SystemIDWidevine:  "Widevine",
	SystemIDPlayReady: "PlayReady",
	SystemIDFairPlay:  "FairPlay",
}

// SchemeType is the payload of a schm box.
type SchemeType struct {
	SchemeType    string
	SchemeVersion uint32
	SchemeURL     string // set when flag 0x1 is present
}

func (*SchemeType) payload() {}

func decodeSchm(_ *decodeState, b *Box, r *bits.Reader) error {
	s := &SchemeType{
		SchemeType:    r.String(4),
		SchemeVersion: r.Uint32(),
	}
	if b.Flags&0x1 != 0 {
		s.SchemeURL = string(trimNul(r.Rest()))
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = s
	return nil
}

func trimNul(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}

// TrackEncryption is the payload of tenc and senc boxes. The crypt and skip
// block counts are only present in version 1 and later.
type TrackEncryption struct {
	DefaultCryptByteBlock  uint8
	DefaultSkipByteBlock   uint8
	DefaultIsProtected     uint8
	DefaultPerSampleIVSize uint8
	DefaultKID             uuid.UUID
	DefaultConstantIV      []byte
}

func (*TrackEncryption) payload() {}

func decodeTenc(_ *decodeState, b *Box, r *bits.Reader) error {
	t := &TrackEncryption{}
	r.Skip(1)
	v := r.Uint8()
	if b.Version > 0 {
		t.DefaultCryptByteBlock = v >> 4
		t.DefaultSkipByteBlock = v & 0xf
	}
	t.DefaultIsProtected = r.Uint8()
	t.DefaultPerSampleIVSize = r.Uint8()
	t.DefaultKID = uuid.UUID(r.Array16())
	if t.DefaultIsProtected != 0 && t.DefaultPerSampleIVSize == 0 {
		t.DefaultConstantIV = r.Bytes(int(r.Uint8()))
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = t
	return nil
}

// ProtectionSystem is the payload of a pssh box.
type ProtectionSystem struct {
	SystemID uuid.UUID
	KIDs     []uuid.UUID // version 1 and later
	Data     []byte
}

func (*ProtectionSystem) payload() {}

// SystemName returns the name of a well-known DRM system, or "".
func (p *ProtectionSystem) SystemName() string {
	return systemNames[p.SystemID]
}

func decodePssh(_ *decodeState, b *Box, r *bits.Reader) error {
	p := &ProtectionSystem{SystemID: uuid.UUID(r.Array16())}
	if b.Version > 0 {
		count := r.Uint32()
		p.KIDs = make([]uuid.UUID, 0, capHint(count, r, 16))
		for i := uint32(0); i < count && r.Err() == nil; i++ {
			p.KIDs = append(p.KIDs, uuid.UUID(r.Array16()))
		}
	}
	p.Data = r.Bytes(int(r.Uint32()))
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = p
	return nil
}

// FairPlayInfo is the payload of an fpsi box.
type FairPlayInfo struct {
	Scheme string
}

func (*FairPlayInfo) payload() {}

func decodeFpsi(_ *decodeState, b *Box, r *bits.Reader) error {
	f := &FairPlayInfo{Scheme: r.String(4)}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = f
	return nil
}

// FairPlayKeyRequest is the payload of an fkri box. The fkai, fkcx and fkvl
// boxes that follow the key id are its children.
type FairPlayKeyRequest struct {
	KeyID uuid.UUID
}

func (*FairPlayKeyRequest) payload() {}

func decodeFkri(s *decodeState, b *Box, r *bits.Reader) error {
	f := &FairPlayKeyRequest{KeyID: uuid.UUID(r.Array16())}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = f
	s.decodeChildren(b, payloadOffset(b, r), b.End())
	return nil
}

// FairPlayAssetID is the payload of an fkai box.
type FairPlayAssetID struct {
	AssetID [16]byte
}

func (*FairPlayAssetID) payload() {}

func decodeFkai(_ *decodeState, b *Box, r *bits.Reader) error {
	f := &FairPlayAssetID{AssetID: r.Array16()}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = f
	return nil
}

// FairPlayContext is the payload of an fkcx box.
type FairPlayContext struct {
	Context []byte
}

func (*FairPlayContext) payload() {}

func decodeFkcx(_ *decodeState, b *Box, r *bits.Reader) error {
	b.Payload = &FairPlayContext{Context: r.Rest()}
	return nil
}

// FairPlayVersionList is the payload of an fkvl box.
type FairPlayVersionList struct {
	Versions []uint32
}

func (*FairPlayVersionList) payload() {}

func decodeFkvl(_ *decodeState, b *Box, r *bits.Reader) error {
	f := &FairPlayVersionList{Versions: make([]uint32, 0, r.Remaining()/4)}
	for r.Remaining() >= 4 {
		f.Versions = append(f.Versions, r.Uint32())
	}
	b.Payload = f
	return nil
}
