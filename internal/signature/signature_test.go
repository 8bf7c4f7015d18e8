package signature

import (
	"crypto/ecdsa"
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func signMessage(t *testing.T, key *ecdsa.PrivateKey, message [32]byte) string {
	t.Helper()
	digest := HashMessage(message)
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "0x" + hex.EncodeToString(sig)
}

func TestVerify_Roundtrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	var message [32]byte
	copy(message[:], crypto.Keccak256([]byte("escrow-id")))

	sig := signMessage(t, key, message)

	v := NewEthereumVerifier()
	if !v.Verify(message, sig, addr) {
		t.Error("valid signature rejected")
	}
}

func TestVerify_LegacyVValues(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.PubkeyToAddress(key.PublicKey)

	var message [32]byte
	message[0] = 0x42

	digest := HashMessage(message)
	raw, err := crypto.Sign(digest[:], key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	// Shift v from 0/1 to 27/28, the form wallets produce.
	legacy := append([]byte(nil), raw...)
	legacy[64] += 27

	v := NewEthereumVerifier()
	if !v.Verify(message, "0x"+hex.EncodeToString(legacy), addr) {
		t.Error("signature with v=27/28 rejected")
	}
	if !v.Verify(message, hex.EncodeToString(legacy), addr) {
		t.Error("signature without 0x prefix rejected")
	}
}

func TestVerify_WrongSigner(t *testing.T) {
	key, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()
	otherAddr := crypto.PubkeyToAddress(other.PublicKey)

	var message [32]byte
	sig := signMessage(t, key, message)

	v := NewEthereumVerifier()
	if v.Verify(message, sig, otherAddr) {
		t.Error("signature attributed to wrong signer")
	}
}

func TestVerify_WrongMessage(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.PubkeyToAddress(key.PublicKey)

	var message [32]byte
	sig := signMessage(t, key, message)

	var tampered [32]byte
	tampered[31] = 1

	v := NewEthereumVerifier()
	if v.Verify(tampered, sig, addr) {
		t.Error("signature accepted for different message")
	}
}

func TestVerify_Malformed(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.PubkeyToAddress(key.PublicKey)

	var message [32]byte

	v := NewEthereumVerifier()
	cases := []string{
		"",
		"0x",
		"not-hex",
		"0xdeadbeef",                 // too short
		"0x" + hexOfLen(t, 64),       // 64 bytes, missing v
		"0x" + hexOfLen(t, 66),       // too long
		"0x" + hexOfLen(t, 64) + "1e", // v = 30, out of range
	}
	for _, sig := range cases {
		if v.Verify(message, sig, addr) {
			t.Errorf("malformed signature %q accepted", sig)
		}
	}
}

func hexOfLen(t *testing.T, n int) string {
	t.Helper()
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return hex.EncodeToString(b)
}
