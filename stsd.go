package bmff

// SampleEntry is implemented by every concrete stsd child box this package
// knows how to decode: avc1, hev1/hvc1, vp09, mp4a, Opus, tx3g.
type SampleEntry interface {
	SampleEntryType() BoxType
	Marshal(w *Writer)
	Size() int // encoded size including the entry's own box header
}

// VisualSampleEntry holds the fixed fields common to every visual sample
// entry (avc1, hev1/hvc1, vp09): the 78-byte header ISO/IEC 14496-12
// §12.1.3 prepends before a codec's own configuration child box.
type VisualSampleEntry struct {
	DataReferenceIndex uint16
	Width              uint16
	Height             uint16
	HResolution        uint32 // 16.16 fixed point
	VResolution        uint32 // 16.16 fixed point
	FrameCount         uint16
	CompressorName     string
	Depth              uint16
	ChildOffset        int // byte offset within data where child boxes begin
}

// ReadVisualSampleEntry parses the 78-byte visual sample entry header from
// box data. Child boxes (e.g. avcC) start at the returned ChildOffset.
func ReadVisualSampleEntry(data []byte) VisualSampleEntry {
	nameLen := min(int(data[42]), 31)
	return VisualSampleEntry{
		DataReferenceIndex: be.Uint16(data[6:8]),
		Width:              be.Uint16(data[24:26]),
		Height:             be.Uint16(data[26:28]),
		HResolution:        be.Uint32(data[28:32]),
		VResolution:        be.Uint32(data[32:36]),
		FrameCount:         be.Uint16(data[40:42]),
		CompressorName:     string(data[43 : 43+nameLen]),
		Depth:              be.Uint16(data[74:76]),
		ChildOffset:        78,
	}
}

// AudioSampleEntry holds the fixed fields common to every audio sample
// entry (mp4a, Opus): the 28-byte header ISO/IEC 14496-12 §12.2.3 prepends
// before a codec's own configuration child box.
type AudioSampleEntry struct {
	DataReferenceIndex uint16
	ChannelCount       uint16
	SampleSize         uint16
	SampleRate         uint32 // 16.16 fixed point
	ChildOffset        int    // byte offset within data where child boxes begin
}

// ReadAudioSampleEntry parses the 28-byte audio sample entry header from
// box data. Child boxes (e.g. esds) start at the returned ChildOffset.
func ReadAudioSampleEntry(data []byte) AudioSampleEntry {
	return AudioSampleEntry{
		DataReferenceIndex: be.Uint16(data[6:8]),
		ChannelCount:       be.Uint16(data[16:18]),
		SampleSize:         be.Uint16(data[18:20]),
		SampleRate:         be.Uint32(data[24:28]),
		ChildOffset:        28,
	}
}

// AvcSampleEntry is an avc1 visual sample entry carrying an avcC
// (AVCDecoderConfigurationRecord) child box.
type AvcSampleEntry struct {
	DataReferenceIndex uint16
	Width, Height      uint16
	FrameCount         uint16
	Depth              uint16
	Compressor         string
	Type               BoxType // TypeAvc1
	AvcC               AvcCBox
}

func (e *AvcSampleEntry) SampleEntryType() BoxType { return e.Type }

func (e *AvcSampleEntry) Size() int { return 8 + 78 + 8 + e.AvcC.Size() }

// AvcCBox holds an AVCDecoderConfigurationRecord: a profile/level byte
// triplet plus the SPS/PPS NALU lists, carried verbatim (no bit-packing
// beyond the single length-size byte, unlike HEVC's hvcC).
type AvcCBox struct {
	ConfigurationVersion uint8
	ProfileIndication    uint8
	ProfileCompat        uint8
	LevelIndication      uint8
	LengthSizeMinusOne   uint8 // low 2 bits significant, rest reserved-set-to-1
	SPS                  [][]byte
	PPS                  [][]byte
}

func (e *AvcSampleEntry) Marshal(w *Writer) {
	w.StartBox(e.Type)
	w.WriteVisualSampleEntry(e.DataReferenceIndex, e.Width, e.Height, e.FrameCount, e.Depth, e.Compressor)
	w.StartBox(TypeAvcC)
	w.putUint8(e.AvcC.ConfigurationVersion)
	w.putUint8(e.AvcC.ProfileIndication)
	w.putUint8(e.AvcC.ProfileCompat)
	w.putUint8(e.AvcC.LevelIndication)
	w.putUint8(0xfc | (e.AvcC.LengthSizeMinusOne & 0b11))
	w.putUint8(0xe0 | uint8(len(e.AvcC.SPS))&0x1f)
	for _, sps := range e.AvcC.SPS {
		w.putUint16(uint16(len(sps)))
		w.putBytes(sps)
	}
	w.putUint8(uint8(len(e.AvcC.PPS)))
	for _, pps := range e.AvcC.PPS {
		w.putUint16(uint16(len(pps)))
		w.putBytes(pps)
	}
	w.EndBox()
	w.EndBox()
}

// UnmarshalAvcC parses an avcC payload (box data, excluding the box header).
func UnmarshalAvcC(data []byte) (*AvcCBox, error) {
	if len(data) < 7 {
		return nil, &InvalidData{Detail: "avcC too short"}
	}
	box := &AvcCBox{
		ConfigurationVersion: data[0],
		ProfileIndication:    data[1],
		ProfileCompat:        data[2],
		LevelIndication:      data[3],
		LengthSizeMinusOne:   data[4] & 0b11,
	}
	pos := 5
	numSps := int(data[pos] & 0x1f)
	pos++
	for i := 0; i < numSps; i++ {
		if pos+2 > len(data) {
			return nil, &InvalidData{Detail: "avcC sps truncated"}
		}
		n := int(be.Uint16(data[pos:]))
		pos += 2
		if pos+n > len(data) {
			return nil, &InvalidData{Detail: "avcC sps data truncated"}
		}
		box.SPS = append(box.SPS, data[pos:pos+n])
		pos += n
	}
	if pos >= len(data) {
		return box, nil
	}
	numPps := int(data[pos])
	pos++
	for i := 0; i < numPps; i++ {
		if pos+2 > len(data) {
			return nil, &InvalidData{Detail: "avcC pps truncated"}
		}
		n := int(be.Uint16(data[pos:]))
		pos += 2
		if pos+n > len(data) {
			return nil, &InvalidData{Detail: "avcC pps data truncated"}
		}
		box.PPS = append(box.PPS, data[pos:pos+n])
		pos += n
	}
	return box, nil
}

// Size returns the encoded size of the avcC payload, excluding the box header.
func (a *AvcCBox) Size() int {
	n := 7
	for _, s := range a.SPS {
		n += 2 + len(s)
	}
	for _, p := range a.PPS {
		n += 2 + len(p)
	}
	return n
}

// HevcSampleEntry is an hev1 or hvc1 visual sample entry carrying an hvcC
// (HEVCDecoderConfigurationRecord) child box. hev1 and hvc1 differ only in
// whether parameter sets may also appear out-of-band; this package treats
// them identically and distinguishes them only by Type.
type HevcSampleEntry struct {
	DataReferenceIndex uint16
	Width, Height      uint16
	FrameCount         uint16
	Depth              uint16
	Compressor         string
	Type               BoxType // TypeHev1 or TypeHvc1
	HvcC               HvcCBox
}

func (e *HevcSampleEntry) SampleEntryType() BoxType { return e.Type }

func (e *HevcSampleEntry) Size() int { return 8 + 78 + 8 + e.HvcC.Size() }

func (e *HevcSampleEntry) Marshal(w *Writer) {
	w.StartBox(e.Type)
	w.WriteVisualSampleEntry(e.DataReferenceIndex, e.Width, e.Height, e.FrameCount, e.Depth, e.Compressor)
	w.StartBox(TypeHvcC)
	// HvcCBox.Marshal writes via io.Writer; Writer implements io.Writer.
	_ = e.HvcC.Marshal(w)
	w.EndBox()
	w.EndBox()
}

// Vp9SampleEntry is a vp09 visual sample entry carrying a vpcC
// (VPCodecConfigurationBox) child box.
type Vp9SampleEntry struct {
	DataReferenceIndex uint16
	Width, Height      uint16
	FrameCount         uint16
	Depth              uint16
	Compressor         string
	VpcC               VpcCBox
}

func (e *Vp9SampleEntry) SampleEntryType() BoxType { return TypeVp09 }

func (e *Vp9SampleEntry) Size() int { return 8 + 78 + 12 + 6 + 2 }

// VpcCBox holds a VP9 codec configuration record.
type VpcCBox struct {
	Profile            uint8
	Level              uint8
	BitDepth           uint8
	ChromaSubsampling  uint8
	VideoFullRangeFlag bool
	ColourPrimaries    uint8
	TransferChars      uint8
	MatrixCoeffs       uint8
}

func (e *Vp9SampleEntry) Marshal(w *Writer) {
	w.StartBox(TypeVp09)
	w.WriteVisualSampleEntry(e.DataReferenceIndex, e.Width, e.Height, e.FrameCount, e.Depth, e.Compressor)
	w.StartFullBox(TypeVpcC, 1, 0)
	w.putUint8(e.VpcC.Profile)
	w.putUint8(e.VpcC.Level)
	bitDepthAndRange := (e.VpcC.BitDepth&0b1111)<<4 | (e.VpcC.ChromaSubsampling&0b111)<<1 | boolBit(e.VpcC.VideoFullRangeFlag)
	w.putUint8(bitDepthAndRange)
	w.putUint8(e.VpcC.ColourPrimaries)
	w.putUint8(e.VpcC.TransferChars)
	w.putUint8(e.VpcC.MatrixCoeffs)
	w.putUint16(0) // codec initialization data size, always 0 for VP9
	w.EndBox()
	w.EndBox()
}

// UnmarshalVpcC parses a vpcC payload (box data after version/flags).
func UnmarshalVpcC(data []byte) (*VpcCBox, error) {
	if len(data) < 7 {
		return nil, &InvalidData{Detail: "vpcC too short"}
	}
	return &VpcCBox{
		Profile:            data[0],
		Level:              data[1],
		BitDepth:           (data[2] >> 4) & 0b1111,
		ChromaSubsampling:  (data[2] >> 1) & 0b111,
		VideoFullRangeFlag: data[2]&0b1 != 0,
		ColourPrimaries:    data[3],
		TransferChars:      data[4],
		MatrixCoeffs:       data[5],
	}, nil
}

// Mp4aSampleEntry is an mp4a audio sample entry carrying an esds
// (ES_Descriptor) child box.
type Mp4aSampleEntry struct {
	DataReferenceIndex uint16
	ChannelCount       uint16
	SampleSize         uint16
	SampleRate         FixedPointU1616
	Esds               EsdsBox
}

func (e *Mp4aSampleEntry) SampleEntryType() BoxType { return TypeMp4a }

func (e *Mp4aSampleEntry) Size() int { return 8 + 28 + 12 + e.Esds.Size() }

func (e *Mp4aSampleEntry) Marshal(w *Writer) {
	w.StartBox(TypeMp4a)
	w.WriteAudioSampleEntry(e.DataReferenceIndex, e.ChannelCount, e.SampleSize, e.SampleRate.Raw())
	w.StartFullBox(TypeEsds, 0, 0)
	e.Esds.marshal(w)
	w.EndBox()
	w.EndBox()
}

// OpusSampleEntry is an 'Opus' audio sample entry carrying a dOps
// (OpusSpecificBox) child box.
//
// REDESIGN: unlike the box this package's reference implementation shipped,
// new dOps boxes default PreSkip/OutputGain to the Opus-spec defaults (0, 0)
// rather than (16, -1); see NewDOpsBox.
type OpusSampleEntry struct {
	DataReferenceIndex uint16
	ChannelCount       uint16
	SampleSize         uint16
	SampleRate         FixedPointU1616
	DOps               DOpsBox
}

func (e *OpusSampleEntry) SampleEntryType() BoxType { return TypeOpus }

func (e *OpusSampleEntry) Size() int { return 8 + 28 + 8 + e.DOps.Size() }

// DOpsBox holds an Opus codec-specific configuration record.
type DOpsBox struct {
	Version              uint8
	OutputChannelCount   uint8
	PreSkip              uint16
	InputSampleRate      uint32
	OutputGain           int16
	ChannelMappingFamily uint8
	StreamCount          uint8
	CoupledCount         uint8
	ChannelMapping       []uint8
}

// NewDOpsBox builds a dOps box with the fields the Opus specification
// recommends for a fresh encode: zero pre-skip and zero output gain.
func NewDOpsBox(channelCount uint8, sampleRate uint32) DOpsBox {
	return DOpsBox{
		Version:            0,
		OutputChannelCount: channelCount,
		PreSkip:            0,
		InputSampleRate:    sampleRate,
		OutputGain:         0,
	}
}

func (e *OpusSampleEntry) Marshal(w *Writer) {
	w.StartBox(TypeOpus)
	w.WriteAudioSampleEntry(e.DataReferenceIndex, e.ChannelCount, e.SampleSize, e.SampleRate.Raw())
	w.StartBox(TypeDOps)
	w.putUint8(e.DOps.Version)
	w.putUint8(e.DOps.OutputChannelCount)
	w.putUint16(e.DOps.PreSkip)
	w.putUint32(e.DOps.InputSampleRate)
	w.putInt16(e.DOps.OutputGain)
	w.putUint8(e.DOps.ChannelMappingFamily)
	if e.DOps.ChannelMappingFamily != 0 {
		w.putUint8(e.DOps.StreamCount)
		w.putUint8(e.DOps.CoupledCount)
		w.putBytes(e.DOps.ChannelMapping)
	}
	w.EndBox()
	w.EndBox()
}

// Size returns the encoded size of the dOps payload, excluding the box header.
func (d *DOpsBox) Size() int {
	n := 11
	if d.ChannelMappingFamily != 0 {
		n += 2 + int(d.OutputChannelCount)
	}
	return n
}

// UnmarshalDOps parses a dOps payload (box data, excluding the box header).
func UnmarshalDOps(data []byte) (*DOpsBox, error) {
	if len(data) < 11 {
		return nil, &InvalidData{Detail: "dOps too short"}
	}
	d := &DOpsBox{
		Version:              data[0],
		OutputChannelCount:   data[1],
		PreSkip:              be.Uint16(data[2:4]),
		InputSampleRate:      be.Uint32(data[4:8]),
		OutputGain:           int16(be.Uint16(data[8:10])),
		ChannelMappingFamily: data[10],
	}
	if d.ChannelMappingFamily != 0 {
		if len(data) < 13+int(d.OutputChannelCount) {
			return nil, &InvalidData{Detail: "dOps channel mapping table truncated"}
		}
		d.StreamCount = data[11]
		d.CoupledCount = data[12]
		d.ChannelMapping = append([]byte(nil), data[13:13+int(d.OutputChannelCount)]...)
	}
	return d, nil
}

// Tx3gSampleEntry is a tx3g timed-text sample entry (QuickTime/3GPP timed
// text). Its fixed display, box and style fields are read and written one by
// one; child boxes such as a font table are neither read nor written.
type Tx3gSampleEntry struct {
	DataReferenceIndex uint16
	DisplayFlags       uint32
	HorzJustification  int8
	VertJustification  int8
	BgColorRGBA        [4]uint8
	DefaultTextBox     [8]byte
	FontID             uint16
	FontStyle          uint8
	FontSize           uint8
	TextColorRGBA      [4]uint8
}

func (e *Tx3gSampleEntry) SampleEntryType() BoxType { return TypeTx3g }

func (e *Tx3gSampleEntry) Size() int { return 8 + 6 + 2 + 4 + 2 + 4 + 8 + 2 + 2 + 4 }

func (e *Tx3gSampleEntry) Marshal(w *Writer) {
	w.StartBox(TypeTx3g)
	w.putZeros(6)
	w.putUint16(e.DataReferenceIndex)
	w.putUint32(e.DisplayFlags)
	w.putUint8(uint8(e.HorzJustification))
	w.putUint8(uint8(e.VertJustification))
	w.putBytes(e.BgColorRGBA[:])
	w.putBytes(e.DefaultTextBox[:])
	w.putUint16(e.FontID)
	w.putUint8(e.FontStyle)
	w.putUint8(e.FontSize)
	w.putBytes(e.TextColorRGBA[:])
	w.EndBox()
}

// Stsd holds the parsed, typed entries of a sample description box.
// ReadStsd keeps every entry it recognises (avc1, hev1, hvc1, vp09, mp4a,
// Opus, tx3g) in the order they appear in the box; it does not pick one
// entry over another.
type Stsd struct {
	Entries []SampleEntry
}

// WriteStsd writes a complete stsd box from typed entries.
func WriteStsd(w *Writer, entries []SampleEntry) {
	w.StartFullBox(TypeStsd, 0, 0)
	w.putUint32(uint32(len(entries)))
	for _, e := range entries {
		e.Marshal(w)
	}
	w.EndBox()
}

// ReadStsd parses an stsd box's children into typed sample entries. r must
// currently be positioned on the stsd box; ReadStsd enters and exits it.
func ReadStsd(r *Reader) ([]SampleEntry, error) {
	r.Enter()
	defer r.Exit()
	r.Skip(4) // entry_count; entries are counted by iterating children instead

	var entries []SampleEntry
	for r.Next() {
		entry, err := readSampleEntry(r)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func readSampleEntry(r *Reader) (SampleEntry, error) {
	switch r.Type() {
	case TypeAvc1:
		return readAvcSampleEntry(r, TypeAvc1)
	case TypeHev1:
		return readHevcSampleEntry(r, TypeHev1)
	case TypeHvc1:
		return readHevcSampleEntry(r, TypeHvc1)
	case TypeVp09:
		return readVp9SampleEntry(r)
	case TypeMp4a:
		return readMp4aSampleEntry(r)
	case TypeOpus:
		return readOpusSampleEntry(r)
	case TypeTx3g:
		return readTx3gSampleEntry(r)
	default:
		return nil, nil // unrecognized entry type: skip, do not fail the whole stsd
	}
}

func readAvcSampleEntry(r *Reader, t BoxType) (*AvcSampleEntry, error) {
	data := r.Data()
	if len(data) < 78 {
		return nil, &InvalidData{Detail: "avc1 too short"}
	}
	vse := ReadVisualSampleEntry(data)
	e := &AvcSampleEntry{
		DataReferenceIndex: vse.DataReferenceIndex,
		Width:              vse.Width,
		Height:             vse.Height,
		FrameCount:         vse.FrameCount,
		Depth:              vse.Depth,
		Compressor:         vse.CompressorName,
		Type:               t,
	}
	child := NewReader(data[vse.ChildOffset:])
	for child.Next() {
		if child.Type() == TypeAvcC {
			avcC, err := UnmarshalAvcC(child.Data())
			if err != nil {
				return nil, err
			}
			e.AvcC = *avcC
		}
	}
	return e, nil
}

func readHevcSampleEntry(r *Reader, t BoxType) (*HevcSampleEntry, error) {
	data := r.Data()
	if len(data) < 78 {
		return nil, &InvalidData{Detail: "hevc sample entry too short"}
	}
	vse := ReadVisualSampleEntry(data)
	e := &HevcSampleEntry{
		DataReferenceIndex: vse.DataReferenceIndex,
		Width:              vse.Width,
		Height:             vse.Height,
		FrameCount:         vse.FrameCount,
		Depth:              vse.Depth,
		Compressor:         vse.CompressorName,
		Type:               t,
	}
	child := NewReader(data[vse.ChildOffset:])
	for child.Next() {
		if child.Type() == TypeHvcC {
			hvcC, err := UnmarshalHvcC(child.Data())
			if err != nil {
				return nil, err
			}
			e.HvcC = *hvcC
		}
	}
	return e, nil
}

func readVp9SampleEntry(r *Reader) (*Vp9SampleEntry, error) {
	data := r.Data()
	if len(data) < 78 {
		return nil, &InvalidData{Detail: "vp09 too short"}
	}
	vse := ReadVisualSampleEntry(data)
	e := &Vp9SampleEntry{
		DataReferenceIndex: vse.DataReferenceIndex,
		Width:              vse.Width,
		Height:             vse.Height,
		FrameCount:         vse.FrameCount,
		Depth:              vse.Depth,
		Compressor:         vse.CompressorName,
	}
	child := NewReader(data[vse.ChildOffset:])
	for child.Next() {
		if child.Type() == TypeVpcC {
			vpcC, err := UnmarshalVpcC(child.Data())
			if err != nil {
				return nil, err
			}
			e.VpcC = *vpcC
		}
	}
	return e, nil
}

func readMp4aSampleEntry(r *Reader) (*Mp4aSampleEntry, error) {
	data := r.Data()
	if len(data) < 28 {
		return nil, &InvalidData{Detail: "mp4a too short"}
	}
	ase := ReadAudioSampleEntry(data)
	e := &Mp4aSampleEntry{
		DataReferenceIndex: ase.DataReferenceIndex,
		ChannelCount:       ase.ChannelCount,
		SampleSize:         ase.SampleSize,
		SampleRate:         FixedPointU1616(ase.SampleRate),
	}
	child := NewReader(data[ase.ChildOffset:])
	for child.Next() {
		if child.Type() == TypeEsds {
			esds, err := UnmarshalEsds(child.Data())
			if err != nil {
				return nil, err
			}
			e.Esds = *esds
		}
	}
	return e, nil
}

func readOpusSampleEntry(r *Reader) (*OpusSampleEntry, error) {
	data := r.Data()
	if len(data) < 28 {
		return nil, &InvalidData{Detail: "Opus sample entry too short"}
	}
	ase := ReadAudioSampleEntry(data)
	e := &OpusSampleEntry{
		DataReferenceIndex: ase.DataReferenceIndex,
		ChannelCount:       ase.ChannelCount,
		SampleSize:         ase.SampleSize,
		SampleRate:         FixedPointU1616(ase.SampleRate),
	}
	child := NewReader(data[ase.ChildOffset:])
	for child.Next() {
		if child.Type() == TypeDOps {
			dOps, err := UnmarshalDOps(child.Data())
			if err != nil {
				return nil, err
			}
			e.DOps = *dOps
		}
	}
	return e, nil
}

func readTx3gSampleEntry(r *Reader) (*Tx3gSampleEntry, error) {
	data := r.Data()
	if len(data) < 34 {
		return nil, &InvalidData{Detail: "tx3g too short"}
	}
	e := &Tx3gSampleEntry{
		DataReferenceIndex: be.Uint16(data[6:8]),
		DisplayFlags:       be.Uint32(data[8:12]),
		HorzJustification:  int8(data[12]),
		VertJustification:  int8(data[13]),
		FontID:             be.Uint16(data[26:28]),
		FontStyle:          data[28],
		FontSize:           data[29],
	}
	copy(e.BgColorRGBA[:], data[14:18])
	copy(e.DefaultTextBox[:], data[18:26])
	copy(e.TextColorRGBA[:], data[30:34])
	return e, nil
}
