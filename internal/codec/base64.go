package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	ErrEncode = errors.New("codec encode failed")
	ErrDecode = errors.New("codec decode failed")
)

// Base64Encode uses the standard alphabet with padding.
func Base64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func Base64Decode(text string) ([]byte, error) {
	out, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDecode, err)
	}
	return out, nil
}
