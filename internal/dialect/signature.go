package dialect

import "fmt"

// DecodeSignature extracts the magic and BSL version prefix from an
// announcement payload without a full model-database lookup, so the
// autodetect engine (spec §4.7) can classify which dialect to run before
// any Engine has been constructed.
func DecodeSignature(payload []byte) (magic uint16, bslVersion string, err error) {
	if len(payload) < 5 {
		return 0, "", fmt.Errorf("announcement too short: %d bytes", len(payload))
	}
	magic = uint16(payload[0])<<8 | uint16(payload[1])
	bslVersion = fmt.Sprintf("%d.%d%c", payload[2], payload[3], payload[4])
	return magic, bslVersion, nil
}
