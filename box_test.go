package bmff

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoxTypeString(t *testing.T) {
	require.Equal(t, "ftyp", TypeFtyp.String())
	require.Equal(t, "moov", NewBoxType("moov").String())
}

func TestBoxTypeShortStringIsZeroPadded(t *testing.T) {
	bt := NewBoxType("ab")
	require.Equal(t, BoxType{'a', 'b', 0, 0}, bt)
}

func TestFixedPointU1616RoundTrip(t *testing.T) {
	f := NewFixedPointU1616(640)
	require.Equal(t, 640, f.Int())
	require.Equal(t, uint32(640<<16), f.Raw())
}

func TestFixedPointU1616Mul(t *testing.T) {
	one := NewFixedPointU1616(1)
	two := NewFixedPointU1616(2)
	require.Equal(t, 2, one.Mul(two).Int())
}

func TestPackUnpackLanguageRoundTrip(t *testing.T) {
	for _, lang := range []string{"und", "eng", "jpn"} {
		packed := PackLanguage(lang)
		require.Equal(t, lang, UnpackLanguage(packed))
	}
}

func TestPackLanguageRejectsWrongLength(t *testing.T) {
	require.Equal(t, uint16(0), PackLanguage("english"))
}

func TestUnixTimeFromMp4Epoch(t *testing.T) {
	require.Equal(t, int64(0), UnixTime(mp4Epoch))
	require.Equal(t, int64(100), UnixTime(mp4Epoch+100))
}
