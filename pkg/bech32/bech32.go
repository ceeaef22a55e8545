// Package bech32 implements Bech32 encoding (BIP-173), used for the
// age-style key strings printed by the key derivation helpers.
package bech32

import (
	"fmt"
	"strings"
)

const charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

var charsetRev = func() map[byte]byte {
	m := make(map[byte]byte, len(charset))
	for i := 0; i < len(charset); i++ {
		m[charset[i]] = byte(i)
	}
	return m
}()

func polymod(values []byte) uint32 {
	gen := []uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

func hrpExpand(hrp string) []byte {
	out := make([]byte, 0, len(hrp)*2+1)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]>>5)
	}
	out = append(out, 0)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]&0x1f)
	}
	return out
}

func createChecksum(hrp string, data []byte) []byte {
	values := append(hrpExpand(hrp), data...)
	values = append(values, 0, 0, 0, 0, 0, 0)
	mod := polymod(values) ^ 1
	checksum := make([]byte, 6)
	for i := 0; i < 6; i++ {
		checksum[i] = byte((mod >> uint(5*(5-i))) & 0x1f)
	}
	return checksum
}

func verifyChecksum(hrp string, data []byte) bool {
	return polymod(append(hrpExpand(hrp), data...)) == 1
}

// convertBits regroups the bits of in from fromBits-sized groups into
// toBits-sized groups. With pad set, leftover bits are zero-padded into a
// final group; without it, leftover bits must be zero or the input is invalid.
func convertBits(in []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	var acc uint32
	var bits uint
	out := make([]byte, 0, (len(in)*int(fromBits)+int(toBits)-1)/int(toBits))
	maxv := uint32(1)<<toBits - 1

	for _, b := range in {
		if uint32(b)>>fromBits != 0 {
			return nil, fmt.Errorf("invalid data value %d for %d-bit group", b, fromBits)
		}
		acc = acc<<fromBits | uint32(b)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			out = append(out, byte((acc>>bits)&maxv))
		}
	}

	if pad {
		if bits > 0 {
			out = append(out, byte((acc<<(toBits-bits))&maxv))
		}
	} else if bits >= fromBits || (acc<<(toBits-bits))&maxv != 0 {
		return nil, fmt.Errorf("invalid padding bits")
	}

	return out, nil
}

func validateHRP(hrp string) error {
	if hrp == "" {
		return fmt.Errorf("empty HRP")
	}
	if strings.ToLower(hrp) != hrp && strings.ToUpper(hrp) != hrp {
		return fmt.Errorf("mixed-case HRP %q", hrp)
	}
	for i := 0; i < len(hrp); i++ {
		if hrp[i] < 33 || hrp[i] > 126 {
			return fmt.Errorf("invalid HRP character at index %d", i)
		}
	}
	return nil
}

// Encode encodes arbitrary bytes with the given human-readable prefix.
// An uppercase HRP yields an uppercase string, a lowercase one lowercase.
func Encode(hrp string, data []byte) (string, error) {
	if err := validateHRP(hrp); err != nil {
		return "", err
	}

	upper := strings.ToUpper(hrp) == hrp && strings.ToLower(hrp) != hrp
	lowerHRP := strings.ToLower(hrp)

	grouped, err := convertBits(data, 8, 5, true)
	if err != nil {
		return "", err
	}

	combined := append(grouped, createChecksum(lowerHRP, grouped)...)

	var sb strings.Builder
	sb.WriteString(lowerHRP)
	sb.WriteByte('1')
	for _, v := range combined {
		sb.WriteByte(charset[v])
	}

	if upper {
		return strings.ToUpper(sb.String()), nil
	}
	return sb.String(), nil
}

// Decode decodes a Bech32 string, returning the HRP (in the input's case)
// and the payload bytes.
func Decode(s string) (string, []byte, error) {
	if strings.ToLower(s) != s && strings.ToUpper(s) != s {
		return "", nil, fmt.Errorf("mixed-case string")
	}
	if len(s) > 1023 {
		return "", nil, fmt.Errorf("string too long")
	}

	lower := strings.ToLower(s)
	sep := strings.LastIndex(lower, "1")
	if sep < 1 || sep+7 > len(lower) {
		return "", nil, fmt.Errorf("invalid separator position")
	}

	hrp := s[:sep]
	lowerHRP := lower[:sep]
	if err := validateHRP(lowerHRP); err != nil {
		return "", nil, err
	}

	values := make([]byte, 0, len(lower)-sep-1)
	for i := sep + 1; i < len(lower); i++ {
		v, ok := charsetRev[lower[i]]
		if !ok {
			return "", nil, fmt.Errorf("invalid character %q at index %d", lower[i], i)
		}
		values = append(values, v)
	}

	if !verifyChecksum(lowerHRP, values) {
		return "", nil, fmt.Errorf("invalid checksum")
	}

	data, err := convertBits(values[:len(values)-6], 5, 8, false)
	if err != nil {
		return "", nil, err
	}

	return hrp, data, nil
}
