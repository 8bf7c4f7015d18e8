// Package signature verifies escrow release authorizations.
//
// Release and dispute operations are authorized by a detached 65-byte
// (r,s,v) secp256k1 signature over the escrow identifier. Verification
// is an injected strategy so tests can stub it and alternative schemes
// can be swapped in without touching the escrow service.
package signature

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Verifier checks that a signature over a 32-byte message was produced
// by the expected address. Implementations return false (never an error)
// on malformed input: a bad signature and a wrong signer are the same
// authorization failure.
type Verifier interface {
	Verify(message [32]byte, signatureHex string, expected common.Address) bool
}

// EthereumVerifier verifies Ethereum personal-message signatures
// (EIP-191: the message is prefixed before hashing, matching what
// wallets produce for eth_sign / personal_sign of a 32-byte digest).
type EthereumVerifier struct{}

// NewEthereumVerifier returns the standard production verifier.
func NewEthereumVerifier() *EthereumVerifier {
	return &EthereumVerifier{}
}

// HashMessage applies the personal-message prefix to a 32-byte payload
// and returns the keccak256 digest that signatures are recovered against.
func HashMessage(message [32]byte) [32]byte {
	prefixed := append([]byte("\x19Ethereum Signed Message:\n32"), message[:]...)
	var out [32]byte
	copy(out[:], crypto.Keccak256(prefixed))
	return out
}

// Verify recovers the signer of signatureHex over the prefixed message
// and compares it to expected.
func (v *EthereumVerifier) Verify(message [32]byte, signatureHex string, expected common.Address) bool {
	recovered, ok := recoverSigner(message, signatureHex)
	if !ok {
		return false
	}
	return recovered == expected
}

// recoverSigner extracts the signer address from a 65-byte hex signature.
func recoverSigner(message [32]byte, signatureHex string) (common.Address, bool) {
	sigHex := strings.TrimPrefix(signatureHex, "0x")
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, false
	}

	// Wallets emit v as 27/28; crypto.SigToPub wants 0/1.
	sig = append([]byte(nil), sig...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, false
	}

	digest := HashMessage(message)
	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return common.Address{}, false
	}
	return crypto.PubkeyToAddress(*pub), true
}
