package xmlchar

import (
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_ControlCharacterByVersion(t *testing.T) {
	in := []uint16{'a', 0x0001, 'b'}

	out, n := Filter{}.Units(in)
	assert.Equal(t, []uint16{'a', 0xFFFD, 'b'}, out)
	assert.Equal(t, 1, n)

	f11, err := NewFilter(XML11, DefaultReplacement)
	require.NoError(t, err)
	out, n = f11.Units(in)
	assert.Equal(t, in, out, "XML 1.1 allows U+0001")
	assert.Zero(t, n)
}

func TestFilter_XML10Ranges(t *testing.T) {
	f := Filter{}
	for u := uint16(0); u < 0x20; u++ {
		out, _ := f.Units([]uint16{u})
		legal := u == 0x09 || u == 0x0A || u == 0x0D
		if legal {
			assert.Equal(t, u, out[0], "U+%04X should pass", u)
		} else {
			assert.Equal(t, uint16(0xFFFD), out[0], "U+%04X should be replaced", u)
		}
	}
	out, _ := f.Units([]uint16{0xFFFE, 0xFFFF, 0xE000, 0xD7FF})
	assert.Equal(t, []uint16{0xFFFD, 0xFFFD, 0xE000, 0xD7FF}, out)
}

func TestFilter_XML11StillRejectsNUL(t *testing.T) {
	f, err := NewFilter(XML11, '?')
	require.NoError(t, err)
	out, n := f.Units([]uint16{0x0000, 0x001F})
	assert.Equal(t, []uint16{'?', 0x001F}, out)
	assert.Equal(t, 1, n)
}

func TestFilter_Surrogates(t *testing.T) {
	pair := utf16.Encode([]rune{0x1F600})
	require.Len(t, pair, 2)

	tests := []struct {
		name string
		in   []uint16
		want []uint16
	}{
		{"valid pair", pair, pair},
		{"lone high", []uint16{'x', 0xD800, 'y'}, []uint16{'x', 0xFFFD, 'y'}},
		{"lone low", []uint16{0xDC00, 'y'}, []uint16{0xFFFD, 'y'}},
		{"reversed pair", []uint16{0xDC00, 0xD800}, []uint16{0xFFFD, 0xFFFD}},
		{"high then high+low", []uint16{0xD800, pair[0], pair[1]}, []uint16{0xFFFD, pair[0], pair[1]}},
		{"high at end", []uint16{'a', 0xDBFF}, []uint16{'a', 0xFFFD}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := Filter{}.Units(tt.in)
			assert.Equal(t, tt.want, out)
			assert.Len(t, out, len(tt.in))
		})
	}
}

func TestFilter_OutputNeverContainsIllegalUnits(t *testing.T) {
	in := make([]uint16, 0, 0x10000)
	for u := 0; u <= 0xFFFF; u++ {
		in = append(in, uint16(u))
	}
	out, _ := Filter{}.Units(in)
	require.Len(t, out, len(in))

	for i := 0; i < len(out); i++ {
		u := out[i]
		if u >= 0xD800 && u <= 0xDBFF {
			require.Less(t, i+1, len(out))
			require.True(t, out[i+1] >= 0xDC00 && out[i+1] <= 0xDFFF, "unpaired high surrogate at %d", i)
			i++
			continue
		}
		require.False(t, u >= 0xDC00 && u <= 0xDFFF, "unpaired low surrogate at %d", i)
		require.True(t, IsLegal(XML10, rune(u)), "illegal unit U+%04X at %d", u, i)
	}
}

func TestFilter_String(t *testing.T) {
	s, n := Filter{}.String("ok\x01 \U0001F600")
	assert.Equal(t, "ok\uFFFD \U0001F600", s)
	assert.Equal(t, 1, n)

	clean := "plain text"
	s, n = Filter{}.String(clean)
	assert.Equal(t, clean, s)
	assert.Zero(t, n)
}

func TestNewFilter_RejectsUnusableReplacement(t *testing.T) {
	for _, r := range []rune{0x0000, 0xD800, 0x1F600, 0xFFFE} {
		_, err := NewFilter(XML10, r)
		assert.ErrorIs(t, err, ErrIllegalReplacement, "%U", r)
	}
	_, err := NewFilter(XML10, 0x0001)
	assert.ErrorIs(t, err, ErrIllegalReplacement, "U+0001 is illegal in XML 1.0")
	_, err = NewFilter(XML11, 0x0001)
	assert.NoError(t, err)
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("1.1")
	require.NoError(t, err)
	assert.Equal(t, XML11, v)
	v, err = ParseVersion("")
	require.NoError(t, err)
	assert.Equal(t, XML10, v)
	_, err = ParseVersion("2.0")
	assert.Error(t, err)
}

func TestFilter_StringCountsInvalidUTF8(t *testing.T) {
	s, n := Filter{}.String("a\xffb\xfe\xfdc")
	assert.Equal(t, "a\uFFFDb\uFFFD\uFFFDc", s)
	assert.Equal(t, 3, n)

	f, err := NewFilter(XML10, '?')
	require.NoError(t, err)
	s, n = f.String("x\xc3\x01")
	assert.Equal(t, "x??", s, "truncated sequence and control character")
	assert.Equal(t, 2, n)

	s, n = Filter{}.String("already \uFFFD")
	assert.Equal(t, "already \uFFFD", s)
	assert.Zero(t, n, "a literal U+FFFD is legal text")
}
