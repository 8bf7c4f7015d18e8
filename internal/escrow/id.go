package escrow

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ComputeID derives the deterministic escrow identifier from its creation
// tuple. Layout, byte-concatenated then keccak256-hashed:
//
//	instance[20] || agent[20] || seller[20] || buyer[20] ||
//	agentFeeBPS uint128 BE[16] || token[20] ||
//	limitHours uint128 BE[16] || salt uint256 BE[32]
//
// Any party holding the tuple can recompute the identifier off-system.
// Returns the 0x-prefixed 64-hex-char digest.
func ComputeID(instance, agent, seller, buyer string, agentFeeBPS int64, token string, limitHours int64, salt *big.Int) string {
	buf := make([]byte, 0, 164)
	buf = append(buf, common.HexToAddress(instance).Bytes()...)
	buf = append(buf, common.HexToAddress(agent).Bytes()...)
	buf = append(buf, common.HexToAddress(seller).Bytes()...)
	buf = append(buf, common.HexToAddress(buyer).Bytes()...)
	buf = append(buf, common.LeftPadBytes(big.NewInt(agentFeeBPS).Bytes(), 16)...)
	buf = append(buf, common.HexToAddress(token).Bytes()...)
	buf = append(buf, common.LeftPadBytes(big.NewInt(limitHours).Bytes(), 16)...)
	buf = append(buf, common.LeftPadBytes(salt.Bytes(), 32)...)

	return "0x" + hex.EncodeToString(crypto.Keccak256(buf))
}

// idMessage decodes an identifier into the 32-byte payload that release
// and dispute signatures are verified over.
func idMessage(id string) ([32]byte, bool) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(id, "0x"))
	if err != nil || len(raw) != 32 {
		return out, false
	}
	copy(out[:], raw)
	return out, true
}
