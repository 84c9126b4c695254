package bmff

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSampleFreqIndex9600Quirk(t *testing.T) {
	idx, err := FreqFromHz(9600)
	require.NoError(t, err)
	require.Equal(t, Freq96000, idx)
	require.Equal(t, uint32(96000), idx.Freq())
}

func TestFreqFromHzRejectsUnsupportedRate(t *testing.T) {
	_, err := FreqFromHz(96000)
	require.Error(t, err)
	var invalid *InvalidData
	require.ErrorAs(t, err, &invalid)
}

func TestFreqFromHzRoundTripsSupportedRates(t *testing.T) {
	rates := []uint32{88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350}
	for _, hz := range rates {
		idx, err := FreqFromHz(hz)
		require.NoError(t, err)
		require.Equal(t, hz, idx.Freq())
	}
}

func TestDefaultWriterConfig(t *testing.T) {
	cfg := DefaultWriterConfig()
	require.Equal(t, "isom", cfg.MajorBrand)
	require.Equal(t, uint32(512), cfg.MinorVersion)
	require.Equal(t, []string{"isom", "iso2", "avc1", "mp41"}, cfg.CompatibleBrands)
	require.Equal(t, uint32(1000), cfg.Timescale)
}

func TestParseWriterConfigAppliesDefaultsForOmittedFields(t *testing.T) {
	cfg, err := ParseWriterConfig([]byte("major_brand: mp42\n"))
	require.NoError(t, err)
	require.Equal(t, "mp42", cfg.MajorBrand)
	require.Equal(t, uint32(1000), cfg.Timescale) // not in the document, stays at the default
}

func TestParseWriterConfigOverridesExplicitFields(t *testing.T) {
	doc := []byte("major_brand: mp42\ntimescale: 90000\ncompatible_brands: [mp42, isom]\n")
	cfg, err := ParseWriterConfig(doc)
	require.NoError(t, err)
	require.Equal(t, "mp42", cfg.MajorBrand)
	require.Equal(t, uint32(90000), cfg.Timescale)
	require.Equal(t, []string{"mp42", "isom"}, cfg.CompatibleBrands)
}

func TestParseWriterConfigRejectsMalformedYaml(t *testing.T) {
	_, err := ParseWriterConfig([]byte("major_brand: [unterminated\n"))
	require.Error(t, err)
	var invalid *InvalidData
	require.ErrorAs(t, err, &invalid)
}

func TestNewHevcOptionsDefaults(t *testing.T) {
	opts := NewHevcOptions()
	require.Equal(t, uint8(1), opts.ConfigurationVersion)
	require.Equal(t, uint8(1), opts.GeneralProfileIdc)
	require.Equal(t, uint8(93), opts.GeneralLevelIdc)
	require.Equal(t, uint8(1), opts.ChromaFormatIdc)
	require.Equal(t, uint8(1), opts.NumTemporalLayers)
	require.Equal(t, uint8(3), opts.LengthSizeMinusOne)
}
