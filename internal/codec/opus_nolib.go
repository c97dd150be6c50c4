//go:build !cgo || nolibopusfile

package codec

import "fmt"

func decodeOpus(path string) (*PCM, error) {
	return nil, fmt.Errorf("%w: %s (built without libopusfile)", ErrUnsupported, path)
}
