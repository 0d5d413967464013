package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeBytesASCII(t *testing.T) {
	assert.Equal(t, "DATA,1,512,0,75", DecodeBytes([]byte("DATA,1,512,0,75")))
}

func TestDecodeBytesUTF8(t *testing.T) {
	assert.Equal(t, "ECG (µV)", DecodeBytes([]byte("ECG (µV)")))
}

func TestDecodeBytesLatin1Fallback(t *testing.T) {
	// 0xb5 alone is invalid UTF-8 but is micro sign in Latin-1
	got := DecodeBytes([]byte{'E', 'C', 'G', ' ', 0xb5, 'V'})
	assert.Equal(t, "ECG µV", got)
}

func TestDecodeBytesDropsControlBytes(t *testing.T) {
	// C1 control bytes vanish instead of becoming replacement runes
	got := DecodeBytes([]byte{'4', '2', 0x85, 0x90})
	assert.Equal(t, "42", got)
}
