package imagefile

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hexLine(byteCount int, addr uint16, recType byte, payload []byte) string {
	b := []byte{byte(byteCount), byte(addr >> 8), byte(addr), recType}
	b = append(b, payload...)
	b = append(b, hexChecksum(b))
	return ":" + strings.ToUpper(fmt.Sprintf("%x", b))
}

func TestIsHex(t *testing.T) {
	assert.True(t, IsHex("firmware.hex"))
	assert.True(t, IsHex("firmware.HEX"))
	assert.True(t, IsHex("firmware.ihx"))
	assert.True(t, IsHex("firmware.ihex"))
	assert.False(t, IsHex("firmware.bin"))
	assert.False(t, IsHex("firmware"))
}

func TestLoadBinaryPadsToBlockSize(t *testing.T) {
	data := []byte{1, 2, 3}
	out, err := Load("image.bin", strings.NewReader(string(data)), 1024, 128)
	require.NoError(t, err)
	require.Len(t, out, 128)
	assert.Equal(t, []byte{1, 2, 3}, out[:3])
	for _, b := range out[3:] {
		assert.Equal(t, byte(0xFF), b)
	}
}

func TestLoadBinaryExceedsRegion(t *testing.T) {
	data := make([]byte, 200)
	_, err := Load("image.bin", strings.NewReader(string(data)), 100, 128)
	require.Error(t, err)
}

func TestLoadHexSimple(t *testing.T) {
	var lines []string
	lines = append(lines, hexLine(4, 0x0000, recData, []byte{0xDE, 0xAD, 0xBE, 0xEF}))
	lines = append(lines, hexLine(0, 0x0000, recEOF, nil))
	content := strings.Join(lines, "\n")

	out, err := Load("image.hex", strings.NewReader(content), 1024, 128)
	require.NoError(t, err)
	require.Len(t, out, 128)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, out[:4])
	for _, b := range out[4:] {
		assert.Equal(t, byte(0xFF), b)
	}
}

func TestLoadHexExtendedLinearAddress(t *testing.T) {
	var lines []string
	lines = append(lines, hexLine(2, 0x0000, recExtendedLinearAddr, []byte{0x00, 0x01}))
	lines = append(lines, hexLine(2, 0x0000, recData, []byte{0xAA, 0xBB}))
	lines = append(lines, hexLine(0, 0x0000, recEOF, nil))
	content := strings.Join(lines, "\n")

	out, err := Load("image.hex", strings.NewReader(content), 0x20000, 256)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, out[0x10000:0x10002])
}

func TestLoadHexRejectsOverlap(t *testing.T) {
	var lines []string
	lines = append(lines, hexLine(4, 0x0000, recData, []byte{1, 2, 3, 4}))
	lines = append(lines, hexLine(2, 0x0002, recData, []byte{5, 6}))
	lines = append(lines, hexLine(0, 0x0000, recEOF, nil))
	content := strings.Join(lines, "\n")

	_, err := Load("image.hex", strings.NewReader(content), 1024, 128)
	require.Error(t, err)
}

func TestLoadHexRejectsPastRegion(t *testing.T) {
	var lines []string
	lines = append(lines, hexLine(4, 0x00F0, recData, []byte{1, 2, 3, 4}))
	lines = append(lines, hexLine(0, 0x0000, recEOF, nil))
	content := strings.Join(lines, "\n")

	_, err := Load("image.hex", strings.NewReader(content), 0x00F2, 128)
	require.Error(t, err)
}

func TestLoadHexRejectsBadChecksum(t *testing.T) {
	line := hexLine(4, 0x0000, recData, []byte{1, 2, 3, 4})
	corrupted := line[:len(line)-1] + "0"
	content := corrupted + "\n" + hexLine(0, 0x0000, recEOF, nil)

	_, err := Load("image.hex", strings.NewReader(content), 1024, 128)
	require.Error(t, err)
}

func TestLoadHexMissingEOF(t *testing.T) {
	content := hexLine(4, 0x0000, recData, []byte{1, 2, 3, 4})
	_, err := Load("image.hex", strings.NewReader(content), 1024, 128)
	require.Error(t, err)
}

func TestLoadHexNoPanicOnGarbage(t *testing.T) {
	inputs := []string{
		"",
		":",
		":ZZ",
		":00000001FF\n",
		"not hex at all",
	}
	for _, in := range inputs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("panic on input %q: %v", in, r)
				}
			}()
			_, _ = Load("image.hex", strings.NewReader(in), 1024, 128)
		}()
	}
}
