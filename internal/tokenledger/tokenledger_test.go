package tokenledger

import (
	"context"
	"errors"
	"math/big"
	"testing"
)

const (
	engineAddr = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
	tokenAddr  = "0x1111111111111111111111111111111111111111"
	aliceAddr  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bobAddr    = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func TestTransferInOut(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(engineAddr)
	l.Mint(tokenAddr, aliceAddr, big.NewInt(1000))

	if err := l.TransferIn(ctx, tokenAddr, aliceAddr, big.NewInt(600)); err != nil {
		t.Fatalf("TransferIn: %v", err)
	}

	aliceBal, _ := l.BalanceOf(ctx, tokenAddr, aliceAddr)
	engineBal, _ := l.BalanceOf(ctx, tokenAddr, engineAddr)
	if aliceBal.Int64() != 400 || engineBal.Int64() != 600 {
		t.Fatalf("after TransferIn: alice=%s engine=%s, want 400/600", aliceBal, engineBal)
	}

	if err := l.TransferOut(ctx, tokenAddr, bobAddr, big.NewInt(250)); err != nil {
		t.Fatalf("TransferOut: %v", err)
	}

	bobBal, _ := l.BalanceOf(ctx, tokenAddr, bobAddr)
	engineBal, _ = l.BalanceOf(ctx, tokenAddr, engineAddr)
	if bobBal.Int64() != 250 || engineBal.Int64() != 350 {
		t.Fatalf("after TransferOut: bob=%s engine=%s, want 250/350", bobBal, engineBal)
	}
}

func TestTransferIn_Insufficient(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(engineAddr)
	l.Mint(tokenAddr, aliceAddr, big.NewInt(100))

	err := l.TransferIn(ctx, tokenAddr, aliceAddr, big.NewInt(101))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	// Balance untouched after the failed transfer.
	bal, _ := l.BalanceOf(ctx, tokenAddr, aliceAddr)
	if bal.Int64() != 100 {
		t.Errorf("alice balance = %s, want 100", bal)
	}
}

func TestTransferOut_EmptyCustody(t *testing.T) {
	l := NewMemoryLedger(engineAddr)

	err := l.TransferOut(context.Background(), tokenAddr, bobAddr, big.NewInt(1))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("err = %v, want ErrInsufficientFunds", err)
	}
}

func TestTransfer_ZeroAmountNoop(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(engineAddr)

	// Zero transfers succeed even with no balances at all.
	if err := l.TransferIn(ctx, tokenAddr, aliceAddr, big.NewInt(0)); err != nil {
		t.Errorf("TransferIn(0): %v", err)
	}
	if err := l.TransferOut(ctx, tokenAddr, bobAddr, big.NewInt(0)); err != nil {
		t.Errorf("TransferOut(0): %v", err)
	}
}

func TestTokensIndependent(t *testing.T) {
	ctx := context.Background()
	otherToken := "0x2222222222222222222222222222222222222222"

	l := NewMemoryLedger(engineAddr)
	l.Mint(tokenAddr, aliceAddr, big.NewInt(100))
	l.Mint(otherToken, aliceAddr, big.NewInt(7))

	if err := l.TransferIn(ctx, tokenAddr, aliceAddr, big.NewInt(100)); err != nil {
		t.Fatalf("TransferIn: %v", err)
	}

	bal, _ := l.BalanceOf(ctx, otherToken, aliceAddr)
	if bal.Int64() != 7 {
		t.Errorf("other token balance = %s, want 7", bal)
	}
}

func TestBalanceOf_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(engineAddr)
	l.Mint(tokenAddr, aliceAddr, big.NewInt(50))

	bal, _ := l.BalanceOf(ctx, tokenAddr, aliceAddr)
	bal.SetInt64(0)

	again, _ := l.BalanceOf(ctx, tokenAddr, aliceAddr)
	if again.Int64() != 50 {
		t.Errorf("stored balance mutated through returned value")
	}
}
