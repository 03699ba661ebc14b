package classify

import (
	"bytes"
	"crypto/sha256"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

// AddressPrefix is the first byte of every mainnet account address
const AddressPrefix = 0x41

const (
	addressLen  = 21
	checksumLen = 4
)

// ResolveAddress converts a wire address to its base58check form.
// Accepts hex with the 41 prefix, bare 20-byte hex, 0x-prefixed hex, or an
// already-encoded base58 address. Returns false when the input is not an address.
func ResolveAddress(addr string) (string, bool) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", false
	}

	if strings.HasPrefix(addr, "T") {
		if _, ok := decodeBase58(addr); ok {
			return addr, true
		}
		return "", false
	}

	raw := strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X")
	if !isHex(raw) || len(raw)%2 != 0 {
		return "", false
	}

	b := common.FromHex(raw)
	switch {
	case len(b) == common.AddressLength:
		b = append([]byte{AddressPrefix}, b...)
	case len(b) == addressLen && b[0] == AddressPrefix:
	default:
		return "", false
	}
	return encodeBase58(b), true
}

// addressFromEVM converts a 20-byte EVM-style address to base58check
func addressFromEVM(a common.Address) string {
	return encodeBase58(append([]byte{AddressPrefix}, a.Bytes()...))
}

func encodeBase58(payload []byte) string {
	sum := checksum(payload)
	return base58.Encode(append(append([]byte{}, payload...), sum...))
}

func decodeBase58(addr string) ([]byte, bool) {
	decoded, err := base58.Decode(addr)
	if err != nil || len(decoded) != addressLen+checksumLen {
		return nil, false
	}
	payload := decoded[:addressLen]
	if payload[0] != AddressPrefix {
		return nil, false
	}
	if !bytes.Equal(checksum(payload), decoded[addressLen:]) {
		return nil, false
	}
	return payload, true
}

func checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:checksumLen]
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}
