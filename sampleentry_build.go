package bmff

// This file turns the codec Options a caller supplies to AddTrack into the
// concrete SampleEntry the stsd box will carry. Option fields are copied as
// given; zero values are not replaced here, so defaults come from
// constructors such as NewHevcOptions.

func avcSampleEntryFromOptions(o *AvcOptions) SampleEntry {
	return &AvcSampleEntry{
		DataReferenceIndex: 1,
		Width:              o.Width,
		Height:             o.Height,
		FrameCount:         1,
		Depth:              0x18,
		Type:               TypeAvc1,
		AvcC: AvcCBox{
			ConfigurationVersion: 1,
			ProfileIndication:    avcProfileByte(o.SequenceParameterSet),
			ProfileCompat:        avcProfileCompatByte(o.SequenceParameterSet),
			LevelIndication:      avcLevelByte(o.SequenceParameterSet),
			LengthSizeMinusOne:   3,
			SPS:                  [][]byte{o.SequenceParameterSet},
			PPS:                  [][]byte{o.PictureParameterSet},
		},
	}
}

// avcProfileByte/avcProfileCompatByte/avcLevelByte pull the three profile
// bytes directly out of the raw SPS NALU (bytes 1-3 of the NALU payload,
// immediately after the 1-byte NALU header), the way avcC is defined to
// mirror them.
func avcProfileByte(sps []byte) uint8 {
	if len(sps) < 2 {
		return 0
	}
	return sps[1]
}

func avcProfileCompatByte(sps []byte) uint8 {
	if len(sps) < 3 {
		return 0
	}
	return sps[2]
}

func avcLevelByte(sps []byte) uint8 {
	if len(sps) < 4 {
		return 0
	}
	return sps[3]
}

func hevcSampleEntryFromOptions(o *HevcOptions) SampleEntry {
	t := TypeHev1
	if o.UseHvc1 {
		t = TypeHvc1
	}
	return &HevcSampleEntry{
		DataReferenceIndex: 1,
		Width:              o.Width,
		Height:             o.Height,
		FrameCount:         1,
		Depth:              0x18,
		Type:               t,
		HvcC: HvcCBox{
			ConfigurationVersion:             o.ConfigurationVersion,
			GeneralProfileSpace:              o.GeneralProfileSpace,
			GeneralTierFlag:                  o.GeneralTierFlag,
			GeneralProfileIdc:                o.GeneralProfileIdc,
			GeneralProfileCompatibilityFlags: o.GeneralProfileCompatibilityFlags,
			GeneralConstraintIndicatorFlag:   o.GeneralConstraintIndicatorFlag,
			GeneralLevelIdc:                  o.GeneralLevelIdc,
			MinSpatialSegmentationIdc:        o.MinSpatialSegmentationIdc,
			ParallelismType:                  o.ParallelismType,
			ChromaFormatIdc:                  o.ChromaFormatIdc,
			BitDepthLumaMinus8:               o.BitDepthLumaMinus8,
			BitDepthChromaMinus8:             o.BitDepthChromaMinus8,
			AvgFrameRate:                     o.AvgFrameRate,
			ConstantFrameRate:                o.ConstantFrameRate,
			NumTemporalLayers:                o.NumTemporalLayers,
			TemporalIdNested:                 o.TemporalIdNested,
			LengthSizeMinusOne:               o.LengthSizeMinusOne,
			Arrays:                           o.Arrays,
		},
	}
}

func vp9SampleEntryFromOptions(o *Vp9Options) SampleEntry {
	return &Vp9SampleEntry{
		DataReferenceIndex: 1,
		Width:              o.Width,
		Height:             o.Height,
		FrameCount:         1,
		Depth:              0x18,
		VpcC: VpcCBox{
			Profile:            o.Profile,
			Level:              o.Level,
			BitDepth:           o.BitDepth,
			ChromaSubsampling:  o.ChromaSubsampling,
			VideoFullRangeFlag: o.VideoFullRangeFlag,
			ColourPrimaries:    o.ColourPrimaries,
			TransferChars:      o.TransferChars,
			MatrixCoeffs:       o.MatrixCoeffs,
		},
	}
}

func aacSampleEntryFromOptions(o *AacOptions) SampleEntry {
	asc := buildAacAudioSpecificConfig(o.Profile, o.FreqIdx, o.ChanConf)
	return &Mp4aSampleEntry{
		DataReferenceIndex: 1,
		ChannelCount:       2,
		SampleSize:         16,
		SampleRate:         NewFixedPointU1616(int(o.FreqIdx.Freq())),
		Esds: EsdsBox{
			ObjectTypeIndication: 0x40, // ISO/IEC 14496-3 (AAC)
			StreamType:           0x05, // AudioStream
			MaxBitrate:           o.Bitrate,
			AvgBitrate:           o.Bitrate,
			DecoderSpecificInfo:  asc,
		},
	}
}

// buildAacAudioSpecificConfig packs the 5-bit object type, 4-bit frequency
// index, and 4-bit channel configuration into the 2-byte AudioSpecificConfig
// defined by ISO/IEC 14496-3, the payload of esds' DecoderSpecificInfo.
func buildAacAudioSpecificConfig(profile AudioObjectType, freq SampleFreqIndex, chanConf ChannelConfig) []byte {
	b0 := (uint8(profile) << 3) | (uint8(freq) >> 1)
	b1 := (uint8(freq) << 7) | (uint8(chanConf) << 3)
	return []byte{b0, b1}
}

func opusSampleEntryFromOptions(o *OpusOptions) SampleEntry {
	channels := uint8(o.ChanConf)
	dOps := NewDOpsBox(channels, o.FreqIdx.Freq())
	if o.PreSkip != 0 {
		dOps.PreSkip = o.PreSkip
	}
	return &OpusSampleEntry{
		DataReferenceIndex: 1,
		ChannelCount:       uint16(channels),
		SampleSize:         16,
		SampleRate:         NewFixedPointU1616(int(o.FreqIdx.Freq())),
		DOps:               dOps,
	}
}
