// Package bmff implements encoding and decoding of ISO Base Media File Format
// (ISO/IEC 14496-12) boxes: the container format commonly known as MP4,
// including its fragmented variant.
package bmff

import "encoding/binary"

var be = binary.BigEndian

// BoxType is a 4-byte box type identifier.
type BoxType [4]byte

func (t BoxType) String() string {
	return string(t[:])
}

// FourCC is an alias of BoxType used where a four-char code identifies
// something other than a box (a brand, a handler type).
type FourCC = BoxType

// NewBoxType builds a BoxType from a string. Strings shorter than 4 bytes
// are zero-padded on the right.
func NewBoxType(s string) BoxType {
	var t BoxType
	copy(t[:], s)
	return t
}

// Uint32 returns the four-cc as a big-endian uint32, matching its wire form.
func (t BoxType) Uint32() uint32 {
	return be.Uint32(t[:])
}

// Known box types.
var (
	TypeFtyp = BoxType{'f', 't', 'y', 'p'}
	TypeStyp = BoxType{'s', 't', 'y', 'p'} // Segment type box (used in fragmented MP4)
	TypeMoov = BoxType{'m', 'o', 'o', 'v'}
	TypeMvhd = BoxType{'m', 'v', 'h', 'd'}
	TypeTrak = BoxType{'t', 'r', 'a', 'k'}
	TypeTkhd = BoxType{'t', 'k', 'h', 'd'}
	TypeTref = BoxType{'t', 'r', 'e', 'f'}
	TypeTrgr = BoxType{'t', 'r', 'g', 'r'}
	TypeEdts = BoxType{'e', 'd', 't', 's'}
	TypeElst = BoxType{'e', 'l', 's', 't'}
	TypeMdia = BoxType{'m', 'd', 'i', 'a'}
	TypeMdhd = BoxType{'m', 'd', 'h', 'd'}
	TypeHdlr = BoxType{'h', 'd', 'l', 'r'}
	TypeElng = BoxType{'e', 'l', 'n', 'g'}
	TypeMinf = BoxType{'m', 'i', 'n', 'f'}
	TypeVmhd = BoxType{'v', 'm', 'h', 'd'}
	TypeSmhd = BoxType{'s', 'm', 'h', 'd'}
	TypeHmhd = BoxType{'h', 'm', 'h', 'd'}
	TypeSthd = BoxType{'s', 't', 'h', 'd'}
	TypeNmhd = BoxType{'n', 'm', 'h', 'd'}
	TypeDinf = BoxType{'d', 'i', 'n', 'f'}
	TypeDref = BoxType{'d', 'r', 'e', 'f'}
	TypeUrl  = BoxType{'u', 'r', 'l', ' '}
	TypeStbl = BoxType{'s', 't', 'b', 'l'}
	TypeStsd = BoxType{'s', 't', 's', 'd'}
	TypeStts = BoxType{'s', 't', 't', 's'}
	TypeCtts = BoxType{'c', 't', 't', 's'}
	TypeCslg = BoxType{'c', 's', 'l', 'g'}
	TypeStsc = BoxType{'s', 't', 's', 'c'}
	TypeStsz = BoxType{'s', 't', 's', 'z'}
	TypeStz2 = BoxType{'s', 't', 'z', '2'}
	TypeStco = BoxType{'s', 't', 'c', 'o'}
	TypeCo64 = BoxType{'c', 'o', '6', '4'}
	TypeStss = BoxType{'s', 't', 's', 's'}
	TypeStsh = BoxType{'s', 't', 's', 'h'}
	TypePadb = BoxType{'p', 'a', 'd', 'b'}
	TypeStdp = BoxType{'s', 't', 'd', 'p'}
	TypeSdtp = BoxType{'s', 'd', 't', 'p'}
	TypeSbgp = BoxType{'s', 'b', 'g', 'p'}
	TypeSgpd = BoxType{'s', 'g', 'p', 'd'}
	TypeSubs = BoxType{'s', 'u', 'b', 's'}
	TypeSaiz = BoxType{'s', 'a', 'i', 'z'}
	TypeSaio = BoxType{'s', 'a', 'i', 'o'}
	// Fragment movie boxes
	TypeMvex = BoxType{'m', 'v', 'e', 'x'}
	TypeMehd = BoxType{'m', 'e', 'h', 'd'}
	TypeTrex = BoxType{'t', 'r', 'e', 'x'}
	TypeLeva = BoxType{'l', 'e', 'v', 'a'}
	TypeMoof = BoxType{'m', 'o', 'o', 'f'}
	TypeMfhd = BoxType{'m', 'f', 'h', 'd'}
	TypeTraf = BoxType{'t', 'r', 'a', 'f'}
	TypeTfhd = BoxType{'t', 'f', 'h', 'd'}
	TypeTfdt = BoxType{'t', 'f', 'd', 't'}
	TypeTrun = BoxType{'t', 'r', 'u', 'n'}
	TypeSidx = BoxType{'s', 'i', 'd', 'x'} // Segment index box
	TypeEmsg = BoxType{'e', 'm', 's', 'g'} // Event message box
	// Metadata boxes
	TypeMeta = BoxType{'m', 'e', 't', 'a'}
	TypeUdta = BoxType{'u', 'd', 't', 'a'}
	// Data boxes
	TypeMdat = BoxType{'m', 'd', 'a', 't'}
	TypeFree = BoxType{'f', 'r', 'e', 'e'}
	TypeSkip = BoxType{'s', 'k', 'i', 'p'}
	TypeWide = BoxType{'w', 'i', 'd', 'e'}
	TypeUuid = BoxType{'u', 'u', 'i', 'd'}
	// Sample entry boxes
	TypeAvc1 = BoxType{'a', 'v', 'c', '1'}
	TypeAvcC = BoxType{'a', 'v', 'c', 'C'}
	TypeHev1 = BoxType{'h', 'e', 'v', '1'}
	TypeHvc1 = BoxType{'h', 'v', 'c', '1'}
	TypeHvcC = BoxType{'h', 'v', 'c', 'C'}
	TypeVp09 = BoxType{'v', 'p', '0', '9'}
	TypeVpcC = BoxType{'v', 'p', 'c', 'C'}
	TypeBtrt = BoxType{'b', 't', 'r', 't'} // MPEG-4 Bit rate box
	TypePasp = BoxType{'p', 'a', 's', 'p'} // Pixel aspect ratio box
	TypeMp4a = BoxType{'m', 'p', '4', 'a'}
	TypeEsds = BoxType{'e', 's', 'd', 's'}
	TypeOpus = BoxType{'O', 'p', 'u', 's'}
	TypeDOps = BoxType{'d', 'O', 'p', 's'}
	TypeTx3g = BoxType{'t', 'x', '3', 'g'}
)

// IsFullBox returns true if the box type has version and flags fields.
func IsFullBox(t BoxType) bool {
	switch t {
	case TypeMvhd, TypeTkhd, TypeMdhd, TypeHdlr,
		TypeVmhd, TypeSmhd, TypeDref, TypeUrl, TypeStsd,
		TypeStts, TypeCtts, TypeStsc, TypeStsz,
		TypeStco, TypeCo64, TypeStss, TypeElst,
		TypeMeta, TypeEsds, TypeMehd, TypeTrex,
		TypeMfhd, TypeTfhd, TypeTfdt, TypeTrun,
		TypeSbgp, TypeSgpd, TypeSaiz, TypeSaio,
		TypeCslg, TypeSdtp, TypeSidx, TypeEmsg, TypeVpcC:
		return true
	}
	return false
}

// IsContainerBox returns true if the box type is a container that holds child boxes.
func IsContainerBox(t BoxType) bool {
	switch t {
	case TypeMoov, TypeTrak, TypeEdts, TypeMdia,
		TypeMinf, TypeDinf, TypeStbl, TypeUdta,
		TypeMeta, TypeMvex, TypeMoof, TypeTraf,
		TypeTref, TypeTrgr:
		return true
	}
	return false
}

// FixedPointU88 is an unsigned 8.8 fixed-point value (e.g. mvhd volume).
type FixedPointU88 uint16

// Int returns the integer part.
func (f FixedPointU88) Int() int { return int(f >> 8) }

// Raw returns the raw stored value.
func (f FixedPointU88) Raw() uint16 { return uint16(f) }

// NewFixedPointU88 builds a value from an integer part.
func NewFixedPointU88(i int) FixedPointU88 { return FixedPointU88(i << 8) }

// FixedPointS88 is a signed 8.8 fixed-point value (e.g. smhd balance).
type FixedPointS88 int16

// Int returns the integer part.
func (f FixedPointS88) Int() int { return int(f >> 8) }

// Raw returns the raw stored value.
func (f FixedPointS88) Raw() int16 { return int16(f) }

// FixedPointU1616 is an unsigned 16.16 fixed-point value (e.g. mvhd rate,
// sample entry resolution/sample-rate fields).
type FixedPointU1616 uint32

// Int returns the integer part.
func (f FixedPointU1616) Int() int { return int(f >> 16) }

// Raw returns the raw stored value.
func (f FixedPointU1616) Raw() uint32 { return uint32(f) }

// NewFixedPointU1616 builds a value from an integer part.
func NewFixedPointU1616(i int) FixedPointU1616 { return FixedPointU1616(i << 16) }

// Mul multiplies two 16.16 values, keeping the result in raw fixed-point form.
func (f FixedPointU1616) Mul(o FixedPointU1616) FixedPointU1616 {
	return FixedPointU1616((uint64(f) * uint64(o)) >> 16)
}

// mp4Epoch is the difference in seconds between the MP4 epoch (1904-01-01
// UTC) and the Unix epoch (1970-01-01 UTC).
const mp4Epoch = 2_082_844_800

// UnixTime converts an MP4-epoch timestamp to a Unix-epoch timestamp.
func UnixTime(mp4Time uint64) int64 {
	if mp4Time < mp4Epoch {
		return int64(mp4Time)
	}
	return int64(mp4Time - mp4Epoch)
}

// PackLanguage packs a 3-letter ISO-639-2/T code into the 15-bit mdhd
// language field (bit 15 is always zero).
func PackLanguage(lang string) uint16 {
	if len(lang) != 3 {
		return 0
	}
	var v uint16
	for i := 0; i < 3; i++ {
		v = (v << 5) | uint16(lang[i]-0x60)
	}
	return v
}

// UnpackLanguage unpacks a 15-bit mdhd language field into a 3-letter code.
func UnpackLanguage(v uint16) string {
	var b [3]byte
	b[0] = byte((v>>10)&0x1f) + 0x60
	b[1] = byte((v>>5)&0x1f) + 0x60
	b[2] = byte(v&0x1f) + 0x60
	return string(b[:])
}

// FtypInfo holds the parsed fields of an ftyp (or styp) box.
type FtypInfo struct {
	MajorBrand   BoxType
	MinorVersion uint32
	Compatible   [][4]byte
}

// ReadFtyp parses an ftyp box's data (major brand, minor version, and the
// trailing list of compatible brands).
func ReadFtyp(data []byte) FtypInfo {
	f := FtypInfo{MinorVersion: be.Uint32(data[4:8])}
	copy(f.MajorBrand[:], data[0:4])
	for i := 8; i+4 <= len(data); i += 4 {
		var b [4]byte
		copy(b[:], data[i:i+4])
		f.Compatible = append(f.Compatible, b)
	}
	return f
}
