//go:build !opus
// +build !opus

package voice

import "errors"

// ErrOpusUnsupported is returned for Ogg/Opus audio in builds without
// libopus. Build with -tags opus to decode it.
var ErrOpusUnsupported = errors.New("opus audio requires a build with the opus tag")

func decodeOpus(body []byte) ([]int16, error) {
	return nil, ErrOpusUnsupported
}
