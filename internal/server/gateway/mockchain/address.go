package mockchain

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/dmitrijs2005/happypaisa/internal/server/gateway"
	"github.com/mr-tron/base58"
	"lukechampine.com/blake3"
)

const (
	addressPrefix  = "HP"
	addressVersion = 0x2a
	checksumLen    = 4
)

// deriveKey returns the custodial key of userID on network. Keys are
// deterministic so a restarted chain hands out the same addresses.
func deriveKey(network, userID string) *secp256k1.PrivateKey {
	seed := blake3.Sum256([]byte(network + "/" + userID))
	return secp256k1.PrivKeyFromBytes(seed[:])
}

func checksum(payload []byte) []byte {
	sum := blake3.Sum256(payload)
	return sum[:checksumLen]
}

// EncodeAddress renders the address of a public key: "HP" followed by the
// base58 of version, a 20-byte blake3 digest of the compressed key and a
// checksum.
func EncodeAddress(pub *secp256k1.PublicKey) string {
	digest := blake3.Sum256(pub.SerializeCompressed())
	payload := append([]byte{addressVersion}, digest[:20]...)
	return addressPrefix + base58.Encode(append(payload, checksum(payload)...))
}

// ValidateAddress checks the prefix, version and checksum of addr.
func ValidateAddress(addr string) error {
	body, ok := strings.CutPrefix(addr, addressPrefix)
	if !ok {
		return fmt.Errorf("%w: %q lacks %s prefix", gateway.ErrInvalidAddress, addr, addressPrefix)
	}
	raw, err := base58.Decode(body)
	if err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrInvalidAddress, err)
	}
	if len(raw) != 1+20+checksumLen || raw[0] != addressVersion {
		return fmt.Errorf("%w: %q has wrong length or version", gateway.ErrInvalidAddress, addr)
	}
	payload, sum := raw[:21], raw[21:]
	if !bytes.Equal(checksum(payload), sum) {
		return fmt.Errorf("%w: %q checksum mismatch", gateway.ErrInvalidAddress, addr)
	}
	return nil
}
