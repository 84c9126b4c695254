package bmff

import (
	"bytes"
	"io"

	"github.com/icza/bitio"
)

// HvcCArray is one NALU array entry within an hvcC box (e.g. all VPS NALUs,
// all SPS NALUs, all PPS NALUs).
type HvcCArray struct {
	NalUnitType  uint8
	Completeness bool
	Nalus        [][]byte
}

// HvcCBox holds the decoder configuration record carried by an hvcC box,
// nested under hvc1/hev1 visual sample entries.
type HvcCBox struct {
	ConfigurationVersion             uint8
	GeneralProfileSpace              uint8
	GeneralTierFlag                  bool
	GeneralProfileIdc                uint8
	GeneralProfileCompatibilityFlags uint32
	GeneralConstraintIndicatorFlag   uint64 // 48 bits
	GeneralLevelIdc                  uint8
	MinSpatialSegmentationIdc        uint16
	ParallelismType                  uint8
	ChromaFormatIdc                  uint8
	BitDepthLumaMinus8               uint8
	BitDepthChromaMinus8             uint8
	AvgFrameRate                     uint16
	ConstantFrameRate                uint8
	NumTemporalLayers                uint8
	TemporalIdNested                 bool
	LengthSizeMinusOne               uint8
	Arrays                           []HvcCArray
}

// Marshal writes the hvcC payload (without the box header) using bit-packed
// nibble fields, mirroring the HEVC decoder configuration record layout.
func (h *HvcCBox) Marshal(w io.Writer) error {
	bw := bitio.NewWriter(w)

	if err := bw.WriteBits(uint64(h.ConfigurationVersion), 8); err != nil {
		return err
	}
	profileByte := (h.GeneralProfileSpace&0b11)<<6 | boolBit(h.GeneralTierFlag)<<5 | (h.GeneralProfileIdc & 0b11111)
	if err := bw.WriteBits(uint64(profileByte), 8); err != nil {
		return err
	}
	if err := bw.WriteBits(uint64(h.GeneralProfileCompatibilityFlags), 32); err != nil {
		return err
	}
	if err := bw.WriteBits(h.GeneralConstraintIndicatorFlag, 48); err != nil {
		return err
	}
	if err := bw.WriteBits(uint64(h.GeneralLevelIdc), 8); err != nil {
		return err
	}
	// The five fields below are each preceded by reserved bits the spec
	// requires to be set to 1 (reserved = '1111'b / '111111'b / '11111'b).
	if err := bw.WriteBits(uint64(0xF000|(h.MinSpatialSegmentationIdc&0x0FFF)), 16); err != nil {
		return err
	}
	if err := bw.WriteBits(uint64(0xFC|(h.ParallelismType&0b11)), 8); err != nil {
		return err
	}
	if err := bw.WriteBits(uint64(0xFC|(h.ChromaFormatIdc&0b11)), 8); err != nil {
		return err
	}
	if err := bw.WriteBits(uint64(0xF8|(h.BitDepthLumaMinus8&0b111)), 8); err != nil {
		return err
	}
	if err := bw.WriteBits(uint64(0xF8|(h.BitDepthChromaMinus8&0b111)), 8); err != nil {
		return err
	}
	if err := bw.WriteBits(uint64(h.AvgFrameRate), 16); err != nil {
		return err
	}
	lastByte := (h.ConstantFrameRate&0b11)<<6 | (h.NumTemporalLayers&0b111)<<3 | boolBit(h.TemporalIdNested)<<2 | (h.LengthSizeMinusOne & 0b11)
	if err := bw.WriteBits(uint64(lastByte), 8); err != nil {
		return err
	}
	if err := bw.WriteBits(uint64(len(h.Arrays)), 8); err != nil {
		return err
	}
	// Flush the bit writer (which buffers when w is not an io.ByteWriter)
	// before the arrays are written to w directly.
	if err := bw.Close(); err != nil {
		return err
	}

	for _, arr := range h.Arrays {
		hdr := (arr.NalUnitType & 0b111111) | boolBit(arr.Completeness)<<7
		if _, err := w.Write([]byte{hdr}); err != nil {
			return err
		}
		var cnt [2]byte
		be.PutUint16(cnt[:], uint16(len(arr.Nalus)))
		if _, err := w.Write(cnt[:]); err != nil {
			return err
		}
		for _, nalu := range arr.Nalus {
			var sz [2]byte
			be.PutUint16(sz[:], uint16(len(nalu)))
			if _, err := w.Write(sz[:]); err != nil {
				return err
			}
			if _, err := w.Write(nalu); err != nil {
				return err
			}
		}
	}
	return nil
}

// Size returns the encoded size of the hvcC payload, excluding the box header.
func (h *HvcCBox) Size() int {
	n := 23
	for _, arr := range h.Arrays {
		n += 3
		for _, nalu := range arr.Nalus {
			n += 2 + len(nalu)
		}
	}
	return n
}

// UnmarshalHvcC parses an hvcC payload (box data, excluding the box header).
func UnmarshalHvcC(data []byte) (*HvcCBox, error) {
	br := bitio.NewReader(bytes.NewReader(data))
	h := &HvcCBox{}

	v, err := br.ReadBits(8)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	h.ConfigurationVersion = uint8(v)

	profileBits, err := br.ReadBits(8)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	profileByte := uint8(profileBits)
	h.GeneralProfileSpace = (profileByte >> 6) & 0b11
	h.GeneralTierFlag = (profileByte>>5)&0b1 != 0
	h.GeneralProfileIdc = profileByte & 0b11111

	compat, err := br.ReadBits(32)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	h.GeneralProfileCompatibilityFlags = uint32(compat)

	constraint, err := br.ReadBits(48)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	h.GeneralConstraintIndicatorFlag = constraint

	levelIdc, err := br.ReadBits(8)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	h.GeneralLevelIdc = uint8(levelIdc)

	minSeg, err := br.ReadBits(16)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	h.MinSpatialSegmentationIdc = uint16(minSeg) & 0x0FFF

	parallelism, err := br.ReadBits(8)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	h.ParallelismType = uint8(parallelism) & 0b11

	chroma, err := br.ReadBits(8)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	h.ChromaFormatIdc = uint8(chroma) & 0b11

	bdLuma, err := br.ReadBits(8)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	h.BitDepthLumaMinus8 = uint8(bdLuma) & 0b111

	bdChroma, err := br.ReadBits(8)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	h.BitDepthChromaMinus8 = uint8(bdChroma) & 0b111

	avgFrame, err := br.ReadBits(16)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	h.AvgFrameRate = uint16(avgFrame)

	lastBits, err := br.ReadBits(8)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	last := uint8(lastBits)
	h.ConstantFrameRate = (last >> 6) & 0b11
	h.NumTemporalLayers = (last >> 3) & 0b111
	h.TemporalIdNested = (last>>2)&0b1 != 0
	h.LengthSizeMinusOne = last & 0b11

	numArraysBits, err := br.ReadBits(8)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	numArrays := uint8(numArraysBits)

	pos := 23
	for i := 0; i < int(numArrays); i++ {
		if pos+3 > len(data) {
			return nil, &InvalidData{Detail: "hvcC array header truncated"}
		}
		hdr := data[pos]
		numNalus := int(be.Uint16(data[pos+1:]))
		pos += 3
		arr := HvcCArray{
			NalUnitType:  hdr & 0b111111,
			Completeness: hdr&0x80 != 0,
		}
		for j := 0; j < numNalus; j++ {
			if pos+2 > len(data) {
				return nil, &InvalidData{Detail: "hvcC nalu header truncated"}
			}
			size := int(be.Uint16(data[pos:]))
			pos += 2
			if pos+size > len(data) {
				return nil, &InvalidData{Detail: "hvcC nalu data truncated"}
			}
			arr.Nalus = append(arr.Nalus, data[pos:pos+size])
			pos += size
		}
		h.Arrays = append(h.Arrays, arr)
	}

	return h, nil
}

func boolBit(b bool) byte {
	if b {
		return 1
	}
	return 0
}
