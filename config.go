package bmff

import "gopkg.in/yaml.v2"

// AudioObjectType is the MPEG-4 Audio Object Type carried in an AAC
// AudioSpecificConfig (esds' DecoderSpecificInfo).
type AudioObjectType uint8

const (
	AacMain             AudioObjectType = 1
	AacLowComplexity    AudioObjectType = 2
	AacScalableSampleRate AudioObjectType = 3
	AacLongTermPrediction AudioObjectType = 4
)

// SampleFreqIndex is the 4-bit sampling frequency index of an
// AudioSpecificConfig.
//
// REDESIGN: FreqFromHz's 9600 case is carried over unchanged from the
// reference implementation's mapping table, which maps the literal
// frequency 9600 Hz (not 96000 Hz) to Freq96000. No real AAC stream uses a
// 9600 Hz sample rate, so the entry is inert in practice; it is preserved
// rather than silently renumbered so a config round-tripped through this
// package matches bit-for-bit what the original mapping produced.
type SampleFreqIndex uint8

const (
	Freq96000 SampleFreqIndex = 0x0
	Freq88200 SampleFreqIndex = 0x1
	Freq64000 SampleFreqIndex = 0x2
	Freq48000 SampleFreqIndex = 0x3
	Freq44100 SampleFreqIndex = 0x4
	Freq32000 SampleFreqIndex = 0x5
	Freq24000 SampleFreqIndex = 0x6
	Freq22050 SampleFreqIndex = 0x7
	Freq16000 SampleFreqIndex = 0x8
	Freq12000 SampleFreqIndex = 0x9
	Freq11025 SampleFreqIndex = 0xa
	Freq8000  SampleFreqIndex = 0xb
	Freq7350  SampleFreqIndex = 0xc
)

// Freq returns the sampling frequency in Hz this index represents.
func (f SampleFreqIndex) Freq() uint32 {
	switch f {
	case Freq96000:
		return 96000
	case Freq88200:
		return 88200
	case Freq64000:
		return 64000
	case Freq48000:
		return 48000
	case Freq44100:
		return 44100
	case Freq32000:
		return 32000
	case Freq24000:
		return 24000
	case Freq22050:
		return 22050
	case Freq16000:
		return 16000
	case Freq12000:
		return 12000
	case Freq11025:
		return 11025
	case Freq8000:
		return 8000
	case Freq7350:
		return 7350
	}
	return 0
}

// FreqFromHz maps a sampling frequency in Hz to its SampleFreqIndex.
//
// See the REDESIGN note on SampleFreqIndex: the 9600 case below is kept
// exactly as the reference mapping had it.
func FreqFromHz(hz uint32) (SampleFreqIndex, error) {
	switch hz {
	case 9600:
		return Freq96000, nil
	case 88200:
		return Freq88200, nil
	case 64000:
		return Freq64000, nil
	case 48000:
		return Freq48000, nil
	case 44100:
		return Freq44100, nil
	case 32000:
		return Freq32000, nil
	case 24000:
		return Freq24000, nil
	case 22050:
		return Freq22050, nil
	case 16000:
		return Freq16000, nil
	case 12000:
		return Freq12000, nil
	case 11025:
		return Freq11025, nil
	case 8000:
		return Freq8000, nil
	case 7350:
		return Freq7350, nil
	}
	return 0, &InvalidData{Detail: "unsupported sampling frequency"}
}

// ChannelConfig is the 4-bit channel configuration of an AudioSpecificConfig.
type ChannelConfig uint8

const (
	ChanMono    ChannelConfig = 0x1
	ChanStereo  ChannelConfig = 0x2
	ChanThree   ChannelConfig = 0x3
	ChanFour    ChannelConfig = 0x4
	ChanFive    ChannelConfig = 0x5
	ChanFiveOne ChannelConfig = 0x6
	ChanSevenOne ChannelConfig = 0x7
)

// AvcOptions configures an avc1 sample entry's avcC record when adding an
// H.264 track.
type AvcOptions struct {
	Width             uint16 `yaml:"width"`
	Height            uint16 `yaml:"height"`
	SequenceParameterSet []byte `yaml:"-"`
	PictureParameterSet  []byte `yaml:"-"`
}

// HevcOptions configures an hev1/hvc1 sample entry's hvcC record when
// adding an H.265 track. Every numeric field defaults to the value the
// reference HEVC encoder used for a plain Main-profile stream; callers
// override only what their stream actually differs on.
type HevcOptions struct {
	Width                            uint16 `yaml:"width"`
	Height                           uint16 `yaml:"height"`
	ConfigurationVersion             uint8  `yaml:"configuration_version"`
	GeneralProfileSpace              uint8  `yaml:"general_profile_space"`
	GeneralTierFlag                  bool   `yaml:"general_tier_flag"`
	GeneralProfileIdc                uint8  `yaml:"general_profile_idc"`
	GeneralProfileCompatibilityFlags uint32 `yaml:"general_profile_compatibility_flags"`
	GeneralConstraintIndicatorFlag   uint64 `yaml:"general_constraint_indicator_flag"`
	GeneralLevelIdc                  uint8  `yaml:"general_level_idc"`
	MinSpatialSegmentationIdc        uint16 `yaml:"min_spatial_segmentation_idc"`
	ParallelismType                  uint8  `yaml:"parallelism_type"`
	ChromaFormatIdc                  uint8  `yaml:"chroma_format_idc"`
	BitDepthLumaMinus8               uint8  `yaml:"bit_depth_luma_minus8"`
	BitDepthChromaMinus8              uint8  `yaml:"bit_depth_chroma_minus8"`
	AvgFrameRate                     uint16 `yaml:"avg_frame_rate"`
	ConstantFrameRate                uint8  `yaml:"constant_frame_rate"`
	NumTemporalLayers                uint8  `yaml:"num_temporal_layers"`
	TemporalIdNested                 bool   `yaml:"temporal_id_nested"`
	LengthSizeMinusOne               uint8  `yaml:"length_size_minus_one"`
	Arrays                           []HvcCArray `yaml:"-"`
	UseHvc1                          bool   `yaml:"use_hvc1"`
}

// NewHevcOptions returns the defaults the reference HEVC encoder used for a
// single-layer Main-profile, 4:2:0, 8-bit stream.
func NewHevcOptions() HevcOptions {
	return HevcOptions{
		ConfigurationVersion: 1,
		GeneralProfileIdc:    1,
		GeneralLevelIdc:      93,
		ChromaFormatIdc:      1,
		NumTemporalLayers:    1,
		LengthSizeMinusOne:   3,
	}
}

// Vp9Options configures a vp09 sample entry's vpcC record when adding a
// VP9 track.
type Vp9Options struct {
	Width              uint16 `yaml:"width"`
	Height             uint16 `yaml:"height"`
	Profile            uint8  `yaml:"profile"`
	Level              uint8  `yaml:"level"`
	BitDepth           uint8  `yaml:"bit_depth"`
	ChromaSubsampling  uint8  `yaml:"chroma_subsampling"`
	VideoFullRangeFlag bool   `yaml:"video_full_range_flag"`
	ColourPrimaries    uint8  `yaml:"colour_primaries"`
	TransferChars      uint8  `yaml:"transfer_characteristics"`
	MatrixCoeffs       uint8  `yaml:"matrix_coefficients"`
}

// AacOptions configures an mp4a sample entry's esds record when adding an
// AAC track.
type AacOptions struct {
	Bitrate  uint32          `yaml:"bitrate"`
	Profile  AudioObjectType `yaml:"profile"`
	FreqIdx  SampleFreqIndex `yaml:"freq_index"`
	ChanConf ChannelConfig   `yaml:"chan_conf"`
}

// OpusOptions configures an Opus sample entry's dOps record when adding an
// Opus track.
type OpusOptions struct {
	Bitrate  uint32          `yaml:"bitrate"`
	FreqIdx  SampleFreqIndex `yaml:"freq_index"`
	ChanConf ChannelConfig   `yaml:"chan_conf"`
	PreSkip  uint16          `yaml:"pre_skip"`
}

// MediaConfig is a closed set of codec-specific options, exactly one of
// which is populated when constructing a TrackConfig.
type MediaConfig struct {
	Avc  *AvcOptions  `yaml:"avc,omitempty"`
	Hevc *HevcOptions `yaml:"hevc,omitempty"`
	Vp9  *Vp9Options  `yaml:"vp9,omitempty"`
	Aac  *AacOptions  `yaml:"aac,omitempty"`
	Opus *OpusOptions `yaml:"opus,omitempty"`
}

// TrackConfig describes a track to be added to a FileWriter via AddTrack.
type TrackConfig struct {
	TrackID   uint32      `yaml:"track_id,omitempty"` // 0 means auto-assign
	Timescale uint32      `yaml:"timescale"`
	Language  string      `yaml:"language"`
	Media     MediaConfig `yaml:"media"`
}

// WriterConfig configures WriteStart.
type WriterConfig struct {
	MajorBrand       string   `yaml:"major_brand"`
	MinorVersion     uint32   `yaml:"minor_version"`
	CompatibleBrands []string `yaml:"compatible_brands"`
	Timescale        uint32   `yaml:"timescale"`
}

// DefaultWriterConfig returns the brand set the reference muxer used for a
// progressive (non-fragmented) MP4 file.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		MajorBrand:       "isom",
		MinorVersion:     512,
		CompatibleBrands: []string{"isom", "iso2", "avc1", "mp41"},
		Timescale:        1000,
	}
}

// ParseWriterConfig decodes a YAML document into a WriterConfig, applying
// DefaultWriterConfig's values for any field the document omits.
func ParseWriterConfig(data []byte) (WriterConfig, error) {
	cfg := DefaultWriterConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return WriterConfig{}, &InvalidData{Detail: "writer config: " + err.Error()}
	}
	return cfg, nil
}
