package codec

import (
	"bytes"
	"fmt"
)

var opusHeadMagic = []byte("OpusHead")

// opusHeadChannels reads the output channel count from the OpusHead packet,
// which lives in the first ogg page of the file.
func opusHeadChannels(data []byte) (int, error) {
	limit := len(data)
	if limit > 4096 {
		limit = 4096
	}
	idx := bytes.Index(data[:limit], opusHeadMagic)
	// magic(8) version(1) channels(1)
	if idx < 0 || idx+10 > len(data) {
		return 0, fmt.Errorf("%w: OpusHead not found", ErrUnsupported)
	}
	ch := int(data[idx+9])
	if ch < 1 {
		return 0, fmt.Errorf("%w: OpusHead has %d channels", ErrUnsupported, ch)
	}
	return ch, nil
}
