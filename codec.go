package bmff

import "github.com/tetsuo/bmff/bits"

const opaqueName = "Undifferentiated Atom"

// decodeFunc decodes the payload of b from r. r covers exactly the payload,
// after the header and, for full boxes, version and flags.
type decodeFunc func(s *decodeState, b *Box, r *bits.Reader) error

// boxDef is a registry entry: display name, full box flag and decoder.
// A nil decode leaves the box opaque apart from its name.
type boxDef struct {
	name   string
	full   bool
	decode decodeFunc
}

var registry = map[BoxType]boxDef{}

func register(t BoxType, name string, full bool, fn decodeFunc) {
	registry[t] = boxDef{name: name, full: full, decode: fn}
}

// Registered reports whether t has a registered decoder.
func Registered(t BoxType) bool {
	_, ok := registry[t]
	return ok
}

func init() {
	// containers
	register(TypeMoov, "Movie Atom", false, decodeContainer)
	register(TypeTrak, "Track Atom", false, decodeContainer)
	register(TypeMdia, "Media Atom", false, decodeContainer)
	register(TypeMinf, "Media Info Atom", false, decodeContainer)
	register(TypeMvex, "Movie Extends Atom", false, decodeContainer)
	register(TypeSinf, "Protection Scheme Info Atom", false, decodeContainer)
	register(TypeIpro, "Item Protection Atom", false, decodeContainer)
	register(TypeStbl, "Sample Table Atom", false, decodeContainer)
	register(TypeMoof, "Movie Fragment Atom", false, decodeContainer)
	register(TypeTraf, "Track Fragment Atom", false, decodeContainer)
	register(TypeEdts, "Edit Box", false, decodeContainer)
	register(TypeSchi, "Scheme Information Box", false, decodeContainer)
	register(TypeDinf, "Data Information Box", false, decodeContainer)
	register(TypeUdta, "User Data Box", false, decodeContainer)
	register(TypeFpsd, "FairPlay Streaming InitData Box", false, decodeContainer)
	register(TypeFpsk, "FairPlay Key Request Box", false, decodeContainer)
	register(TypeMeta, "Metadata Box", true, decodeContainer)

	// movie
	register(TypeFtyp, "File Type Atom", false, decodeFtyp)
	register(TypeStyp, "Segment Type Box", false, decodeFtyp)
	register(TypeMvhd, "Movie Header Atom", true, decodeMvhd)
	register(TypeTkhd, "Track Header Atom", true, decodeTkhd)
	register(TypeMdhd, "Media Header Atom", true, decodeMdhd)
	register(TypeElst, "Edit List Box", true, decodeElst)
	register(TypeVmhd, "Video Media Header Box", true, decodeVmhd)
	register(TypeSmhd, "Sound Media Header Box", true, decodeSmhd)
	register(TypeHdlr, "Handler Reference Box", true, decodeHdlr)
	register(TypeDref, "Data Reference Box", true, decodeDref)
	register(TypeURL, "Data Entry URL Box", true, decodeDataEntry)
	register(TypeURN, "Data Entry URN Box", true, decodeDataEntry)
	register(TypeWloc, "Window Location Atom", false, decodeWloc)
	register(TypeMehd, "Movie Extends Header Box", true, decodeMehd)
	register(TypeTrex, "Track Extends Atom", true, decodeTrex)
	register(TypeClap, "Clean Aperture Box", false, decodeClap)
	register(TypeColr, "Color", false, decodeColr)
	register(TypeFrma, "Original Format Box", false, decodeFrma)
	register(TypeMdat, "Media Data Box", false, nil)
	register(TypeFree, "Free Space Box", false, nil)

	// sample table
	register(TypeStsd, "Sample Description Box", true, decodeStsd)
	register(TypeStts, "Time-to-Sample Atom", true, decodeStts)
	register(TypeCtts, "Composition Offset Box", true, decodeCtts)
	register(TypeStsz, "Sample Size Atom", true, decodeStsz)
	register(TypeStsc, "Sample to Chunk Box", true, decodeStsc)
	register(TypeStco, "Chunk Offset Box", true, decodeStco)
	register(TypeCo64, "Chunk Large Offset Box", true, decodeCo64)
	register(TypeStss, "Sync Sample Atom", true, decodeSyncSample)
	register(TypeStps, "Partial Sync Sample Atom", true, decodeSyncSample)
	register(TypeSdtp, "Independent and Disposable Samples Box", true, decodeSdtp)

	// fragments
	register(TypeMfhd, "Movie Fragment Header Box", true, decodeMfhd)
	register(TypeTfhd, "Track Fragment Header Box", true, decodeTfhd)
	register(TypeTrun, "Track Fragment Run Box", true, decodeTrun)
	register(TypeTfdt, "Track Fragment Decode Time", true, decodeTfdt)
	register(TypeSidx, "Segment Index Box", true, decodeSidx)

	// sample entries and codec configuration
	register(TypeMp4a, "MP4 Audio Sample Entry", false, decodeAudioEntry)
	register(TypeEnca, "Encapsulated Audio Sample Entry", false, decodeAudioEntry)
	register(TypeAvcC, "AVC Configuration Box", false, decodeAvcC)
	register(TypeHvcC, "HEVC Configuration Box", false, decodeHvcC)
	register(TypeEsds, "Elementary Stream Descriptor Box", true, decodeEsds)
	register(TypeAv1C, "AV1 Codec Configuration Box", false, decodeAv1C)

	// encryption
	register(TypeSchm, "Scheme Type Box", true, decodeSchm)
	register(TypeTenc, "Track Encryption Box", true, decodeTenc)
	register(TypeSenc, "Sample Encryption Box", true, decodeTenc)
	register(TypePssh, "Protection System Box", true, decodePssh)
	register(TypeFpsi, "FairPlay InitData Info Box", true, decodeFpsi)
	register(TypeFkri, "FairPlay Key Request Info Box", true, decodeFkri)
	register(TypeFkai, "FairPlay Key Request Asset Id Box", false, decodeFkai)
	register(TypeFkcx, "FairPlay Key Request Context Box", false, decodeFkcx)
	register(TypeFkvl, "FairPlay Key Request Version List Box", false, decodeFkvl)
}

func decodeContainer(s *decodeState, b *Box, _ *bits.Reader) error {
	s.decodeChildren(b, b.Offset+b.HeaderSize, b.End())
	return nil
}
