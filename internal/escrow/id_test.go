package escrow

import (
	"math/big"
	"testing"
)

func TestComputeID_Deterministic(t *testing.T) {
	args := func() string {
		return ComputeID(
			"0x1000000000000000000000000000000000000001",
			"0x2000000000000000000000000000000000000002",
			"0x3000000000000000000000000000000000000003",
			"0x4000000000000000000000000000000000000004",
			500,
			"0x5000000000000000000000000000000000000005",
			24,
			big.NewInt(7),
		)
	}

	a, b := args(), args()
	if a != b {
		t.Errorf("same tuple produced different ids: %s vs %s", a, b)
	}
	if len(a) != 66 || a[:2] != "0x" {
		t.Errorf("id = %q, want 0x + 64 hex chars", a)
	}
}

func TestComputeID_EveryFieldMatters(t *testing.T) {
	base := ComputeID(
		"0x1000000000000000000000000000000000000001",
		"0x2000000000000000000000000000000000000002",
		"0x3000000000000000000000000000000000000003",
		"0x4000000000000000000000000000000000000004",
		500,
		"0x5000000000000000000000000000000000000005",
		24,
		big.NewInt(7),
	)

	variants := []string{
		ComputeID("0x1100000000000000000000000000000000000001", "0x2000000000000000000000000000000000000002", "0x3000000000000000000000000000000000000003", "0x4000000000000000000000000000000000000004", 500, "0x5000000000000000000000000000000000000005", 24, big.NewInt(7)),
		ComputeID("0x1000000000000000000000000000000000000001", "0x2200000000000000000000000000000000000002", "0x3000000000000000000000000000000000000003", "0x4000000000000000000000000000000000000004", 500, "0x5000000000000000000000000000000000000005", 24, big.NewInt(7)),
		ComputeID("0x1000000000000000000000000000000000000001", "0x2000000000000000000000000000000000000002", "0x3300000000000000000000000000000000000003", "0x4000000000000000000000000000000000000004", 500, "0x5000000000000000000000000000000000000005", 24, big.NewInt(7)),
		ComputeID("0x1000000000000000000000000000000000000001", "0x2000000000000000000000000000000000000002", "0x3000000000000000000000000000000000000003", "0x4400000000000000000000000000000000000004", 500, "0x5000000000000000000000000000000000000005", 24, big.NewInt(7)),
		ComputeID("0x1000000000000000000000000000000000000001", "0x2000000000000000000000000000000000000002", "0x3000000000000000000000000000000000000003", "0x4000000000000000000000000000000000000004", 501, "0x5000000000000000000000000000000000000005", 24, big.NewInt(7)),
		ComputeID("0x1000000000000000000000000000000000000001", "0x2000000000000000000000000000000000000002", "0x3000000000000000000000000000000000000003", "0x4000000000000000000000000000000000000004", 500, "0x5500000000000000000000000000000000000005", 24, big.NewInt(7)),
		ComputeID("0x1000000000000000000000000000000000000001", "0x2000000000000000000000000000000000000002", "0x3000000000000000000000000000000000000003", "0x4000000000000000000000000000000000000004", 500, "0x5000000000000000000000000000000000000005", 25, big.NewInt(7)),
		ComputeID("0x1000000000000000000000000000000000000001", "0x2000000000000000000000000000000000000002", "0x3000000000000000000000000000000000000003", "0x4000000000000000000000000000000000000004", 500, "0x5000000000000000000000000000000000000005", 24, big.NewInt(8)),
	}

	seen := map[string]bool{base: true}
	for i, v := range variants {
		if seen[v] {
			t.Errorf("variant %d collides with an earlier id", i)
		}
		seen[v] = true
	}
}

func TestComputeID_CaseInsensitiveAddresses(t *testing.T) {
	lower := ComputeID("0xabcdef0000000000000000000000000000000001", "0x2000000000000000000000000000000000000002", "0x3000000000000000000000000000000000000003", ZeroAddress, 0, "0x5000000000000000000000000000000000000005", 0, big.NewInt(0))
	upper := ComputeID("0xABCDEF0000000000000000000000000000000001", "0x2000000000000000000000000000000000000002", "0x3000000000000000000000000000000000000003", ZeroAddress, 0, "0x5000000000000000000000000000000000000005", 0, big.NewInt(0))
	if lower != upper {
		t.Errorf("address casing changed the id: %s vs %s", lower, upper)
	}
}

func TestIDMessage(t *testing.T) {
	id := ComputeID(ZeroAddress, ZeroAddress, ZeroAddress, ZeroAddress, 0, ZeroAddress, 0, big.NewInt(0))

	if _, ok := idMessage(id); !ok {
		t.Errorf("idMessage rejected a valid id %q", id)
	}
	for _, bad := range []string{"", "0x", "0x1234", "not-hex", id + "00"} {
		if _, ok := idMessage(bad); ok {
			t.Errorf("idMessage accepted %q", bad)
		}
	}
}
