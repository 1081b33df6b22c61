package codec

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// MaxBech32Length bounds encoded strings. BIP-173 caps on-chain addresses at
// 90 characters, which a 64-byte signature does not fit in; 1023 is the
// largest length for which the BCH checksum keeps its detection guarantees.
const MaxBech32Length = 1023

// Bech32Encode regroups data into 5-bit words and encodes it under hrp with a
// bech32 (not bech32m) checksum.
func Bech32Encode(hrp string, data []byte) (string, error) {
	if err := validateHRP(hrp); err != nil {
		return "", err
	}
	words, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("%w: bech32 regroup: %v", ErrEncode, err)
	}
	out, err := bech32.Encode(hrp, words)
	if err != nil {
		return "", fmt.Errorf("%w: bech32: %v", ErrEncode, err)
	}
	if len(out) > MaxBech32Length {
		return "", fmt.Errorf("%w: bech32 length %d exceeds %d", ErrEncode, len(out), MaxBech32Length)
	}
	return out, nil
}

// Bech32Decode validates the checksum and returns the human-readable part and
// the 8-bit payload. Strings carrying a bech32m checksum are rejected.
func Bech32Decode(text string) (string, []byte, error) {
	if len(text) > MaxBech32Length {
		return "", nil, fmt.Errorf("%w: bech32 length %d exceeds %d", ErrDecode, len(text), MaxBech32Length)
	}
	hrp, words, version, err := bech32.DecodeNoLimitWithVersion(text)
	if err != nil {
		return "", nil, fmt.Errorf("%w: bech32: %v", ErrDecode, err)
	}
	if version != bech32.Version0 {
		return "", nil, fmt.Errorf("%w: bech32m checksum is not accepted", ErrDecode)
	}
	data, err := bech32.ConvertBits(words, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("%w: bech32 regroup: %v", ErrDecode, err)
	}
	return hrp, data, nil
}

func validateHRP(hrp string) error {
	if hrp == "" {
		return fmt.Errorf("%w: empty human-readable part", ErrEncode)
	}
	for i := 0; i < len(hrp); i++ {
		c := hrp[i]
		if c < 33 || c > 126 {
			return fmt.Errorf("%w: invalid human-readable part character %q", ErrEncode, c)
		}
		if c >= 'A' && c <= 'Z' {
			return fmt.Errorf("%w: human-readable part must be lowercase", ErrEncode)
		}
	}
	return nil
}
