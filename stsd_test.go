package bmff

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAvc1SampleEntryRoundTrip(t *testing.T) {
	entry := &AvcSampleEntry{
		DataReferenceIndex: 1,
		Width:              1280,
		Height:             720,
		FrameCount:         1,
		Depth:              24,
		Compressor:         "",
		Type:               TypeAvc1,
		AvcC: AvcCBox{
			ConfigurationVersion: 1,
			ProfileIndication:    0x64,
			ProfileCompat:        0,
			LevelIndication:      0x1f,
			LengthSizeMinusOne:   3,
			SPS:                  [][]byte{{0x67, 0x64, 0x00, 0x1f}},
			PPS:                  [][]byte{{0x68, 0xeb}},
		},
	}

	w := NewWriter(make([]byte, 512))
	WriteStsd(&w, []SampleEntry{entry})

	r := NewReader(w.Bytes())
	require.True(t, r.Next())
	require.Equal(t, TypeStsd, r.Type())

	entries, err := ReadStsd(&r)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got, ok := entries[0].(*AvcSampleEntry)
	require.True(t, ok)
	require.Equal(t, entry.DataReferenceIndex, got.DataReferenceIndex)
	require.Equal(t, entry.Width, got.Width)
	require.Equal(t, entry.Height, got.Height)
	require.Equal(t, entry.AvcC.ProfileIndication, got.AvcC.ProfileIndication)
	require.Equal(t, entry.AvcC.LevelIndication, got.AvcC.LevelIndication)
	require.Equal(t, entry.AvcC.SPS, got.AvcC.SPS)
	require.Equal(t, entry.AvcC.PPS, got.AvcC.PPS)
}

func TestOpusSampleEntryRoundTrip(t *testing.T) {
	entry := &OpusSampleEntry{
		DataReferenceIndex: 1,
		ChannelCount:       2,
		SampleSize:         16,
		SampleRate:         NewFixedPointU1616(48000),
		DOps:               NewDOpsBox(2, 48000),
	}

	w := NewWriter(make([]byte, 256))
	WriteStsd(&w, []SampleEntry{entry})

	r := NewReader(w.Bytes())
	require.True(t, r.Next())

	entries, err := ReadStsd(&r)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got, ok := entries[0].(*OpusSampleEntry)
	require.True(t, ok)
	require.Equal(t, entry.ChannelCount, got.ChannelCount)
	require.Equal(t, entry.SampleRate, got.SampleRate)
	require.Equal(t, uint16(0), got.DOps.PreSkip)  // REDESIGN default
	require.Equal(t, int16(0), got.DOps.OutputGain) // REDESIGN default
	require.Equal(t, uint8(2), got.DOps.OutputChannelCount)
}

func TestDOpsBoxRoundTripWithChannelMapping(t *testing.T) {
	d := DOpsBox{
		Version:              0,
		OutputChannelCount:   3,
		PreSkip:              312,
		InputSampleRate:      48000,
		OutputGain:           -256,
		ChannelMappingFamily: 1,
		StreamCount:          2,
		CoupledCount:         1,
		ChannelMapping:       []byte{0, 1, 2},
	}

	w := NewWriter(make([]byte, 64))
	w.StartBox(TypeDOps)
	w.putUint8(d.Version)
	w.putUint8(d.OutputChannelCount)
	w.putUint16(d.PreSkip)
	w.putUint32(d.InputSampleRate)
	w.putInt16(d.OutputGain)
	w.putUint8(d.ChannelMappingFamily)
	w.putUint8(d.StreamCount)
	w.putUint8(d.CoupledCount)
	w.putBytes(d.ChannelMapping)
	w.EndBox()

	r := NewReader(w.Bytes())
	require.True(t, r.Next())

	got, err := UnmarshalDOps(r.Data())
	require.NoError(t, err)
	require.Equal(t, d, *got)
}

func TestUnmarshalAvcCRejectsTooShort(t *testing.T) {
	_, err := UnmarshalAvcC([]byte{1, 2, 3})
	require.Error(t, err)
	var invalid *InvalidData
	require.ErrorAs(t, err, &invalid)
}
