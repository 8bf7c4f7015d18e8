package escrow

import (
	"context"
	"testing"
	"time"

	"github.com/jpgonzalezra/dp2p-engine/internal/testutil"
)

func pgEscrow(id string) *Escrow {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &Escrow{
		ID:          id,
		AgentAddr:   "0x1111111111111111111111111111111111111111",
		SellerAddr:  "0x2222222222222222222222222222222222222222",
		BuyerAddr:   ZeroAddress,
		TokenAddr:   "0x3333333333333333333333333333333333333333",
		AgentFeeBPS: 500,
		Balance:     "1000000000000000000",
		LimitHours:  24,
		Salt:        "7",
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestPostgresStoreRoundtrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	id := "0xab00000000000000000000000000000000000000000000000000000000000001"
	e := pgEscrow(id)

	if err := store.Create(ctx, e); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Balance != e.Balance {
		t.Errorf("balance = %s, want %s", got.Balance, e.Balance)
	}
	if got.Salt != e.Salt {
		t.Errorf("salt = %s, want %s", got.Salt, e.Salt)
	}
	if got.Status != StatusOpen {
		t.Errorf("status = %s, want open", got.Status)
	}

	// Duplicate id maps the unique violation to the sentinel
	if err := store.Create(ctx, pgEscrow(id)); err != ErrEscrowExists {
		t.Errorf("duplicate Create = %v, want ErrEscrowExists", err)
	}
}

func TestPostgresStoreUpdateAndClose(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	id := "0xab00000000000000000000000000000000000000000000000000000000000002"
	e := pgEscrow(id)
	if err := store.Create(ctx, e); err != nil {
		t.Fatalf("Create: %v", err)
	}

	closedAt := time.Now().UTC().Truncate(time.Microsecond)
	e.BuyerAddr = "0x4444444444444444444444444444444444444444"
	e.Balance = "0"
	e.Status = StatusClosed
	e.UpdatedAt = closedAt
	e.ClosedAt = &closedAt

	if err := store.Update(ctx, e); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusClosed {
		t.Errorf("status = %s, want closed", got.Status)
	}
	if got.ClosedAt == nil {
		t.Error("closedAt not persisted")
	}
	if got.BuyerAddr != e.BuyerAddr {
		t.Errorf("buyer = %s, want %s", got.BuyerAddr, e.BuyerAddr)
	}

	// Updating a missing escrow reports not found
	missing := pgEscrow("0xab00000000000000000000000000000000000000000000000000000000000003")
	if err := store.Update(ctx, missing); err != ErrEscrowNotFound {
		t.Errorf("Update missing = %v, want ErrEscrowNotFound", err)
	}
}

func TestPostgresStoreListByParty(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	seller := "0x2222222222222222222222222222222222222222"
	for i := 0; i < 3; i++ {
		e := pgEscrow("0xab0000000000000000000000000000000000000000000000000000000000001" + string(rune('0'+i)))
		e.CreatedAt = e.CreatedAt.Add(time.Duration(i) * time.Second)
		if err := store.Create(ctx, e); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	escrows, err := store.ListByParty(ctx, seller, 10)
	if err != nil {
		t.Fatalf("ListByParty: %v", err)
	}
	if len(escrows) != 3 {
		t.Fatalf("expected 3 escrows, got %d", len(escrows))
	}
	// Newest first
	if !escrows[0].CreatedAt.After(escrows[2].CreatedAt) {
		t.Error("expected newest-first ordering")
	}

	escrows, err = store.ListByParty(ctx, "0x9999999999999999999999999999999999999999", 10)
	if err != nil {
		t.Fatalf("ListByParty stranger: %v", err)
	}
	if len(escrows) != 0 {
		t.Errorf("expected no escrows for stranger, got %d", len(escrows))
	}
}
