package sol

import (
	"bytes"
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"bundler/utils"
)

func testBlockhash(t *testing.T) solana.Hash {
	t.Helper()
	hash, err := solana.HashFromBase58("GfVcyD4kkTrj4bKc7WA9sZCin9JDbdT4Zkd3EittNR1W")
	if err != nil {
		t.Fatalf("bad test blockhash: %v", err)
	}
	return hash
}

func TestBudgetInstructionOrder(t *testing.T) {
	ixs, err := budgetInstructions(Budget{PriorityFee: 5000, ComputeUnitLimit: 90000})
	if err != nil {
		t.Fatalf("budgetInstructions failed: %v", err)
	}
	if len(ixs) != 2 {
		t.Fatalf("expected [unit limit, unit price], got %d instructions", len(ixs))
	}

	limitData, err := ixs[0].Data()
	if err != nil {
		t.Fatalf("limit data: %v", err)
	}
	// tag 2, then 90000 little-endian
	if want := []byte{2, 0x90, 0x5F, 0x01, 0x00}; !bytes.Equal(limitData, want) {
		t.Fatalf("unit limit payload: expected %v, got %v", want, limitData)
	}

	priceData, err := ixs[1].Data()
	if err != nil {
		t.Fatalf("price data: %v", err)
	}
	// tag 3, then 5000 little-endian
	if want := []byte{3, 0x88, 0x13, 0, 0, 0, 0, 0, 0}; !bytes.Equal(priceData, want) {
		t.Fatalf("unit price payload: expected %v, got %v", want, priceData)
	}

	for _, ix := range ixs {
		if !ix.ProgramID().Equals(computeBudgetProgramID) {
			t.Fatalf("expected compute budget program id, got %s", ix.ProgramID())
		}
	}
}

func TestBudgetDataSizeLimitComesFirst(t *testing.T) {
	ixs, err := budgetInstructions(Budget{PriorityFee: 1, ComputeUnitLimit: 200_000, AccountDataSizeLimit: 64 * 1024})
	if err != nil {
		t.Fatalf("budgetInstructions failed: %v", err)
	}
	if len(ixs) != 3 {
		t.Fatalf("expected 3 budget instructions, got %d", len(ixs))
	}

	tags := make([]byte, 0, 3)
	for _, ix := range ixs {
		data, err := ix.Data()
		if err != nil {
			t.Fatalf("instruction data: %v", err)
		}
		tags = append(tags, data[0])
	}
	want := []byte{tagSetLoadedAccountsDataSizeLimit, tagSetComputeUnitLimit, tagSetComputeUnitPrice}
	if !bytes.Equal(tags, want) {
		t.Fatalf("budget instruction order: expected tags %v, got %v", want, tags)
	}
}

func TestBudgetUnitLimitDefaultsWhenOtherKnobSet(t *testing.T) {
	ixs, err := budgetInstructions(Budget{PriorityFee: 5000})
	if err != nil {
		t.Fatalf("budgetInstructions failed: %v", err)
	}
	if len(ixs) != 2 {
		t.Fatalf("expected defaulted unit limit plus price, got %d instructions", len(ixs))
	}
	data, err := ixs[0].Data()
	if err != nil {
		t.Fatalf("limit data: %v", err)
	}
	// 85000 = 0x14C08 little-endian
	if want := []byte{2, 0x08, 0x4C, 0x01, 0x00}; !bytes.Equal(data, want) {
		t.Fatalf("expected default 85000 unit limit payload %v, got %v", want, data)
	}
}

func TestBudgetAbsentMeansNoPrefix(t *testing.T) {
	ixs, err := budgetInstructions(Budget{})
	if err != nil {
		t.Fatalf("budgetInstructions failed: %v", err)
	}
	if len(ixs) != 0 {
		t.Fatalf("expected no budget prefix, got %d instructions", len(ixs))
	}
}

func TestBuildTransactionPrependsAndSigns(t *testing.T) {
	client := NewClient("http://localhost:8899", utils.NewHTTPPool(0))
	client.blockhash.Set(testBlockhash(t))

	signer := solana.NewWallet().PrivateKey
	recipient := solana.NewWallet().PublicKey()
	transfer := system.NewTransferInstruction(1000, signer.PublicKey(), recipient).Build()

	tx, err := client.BuildTransaction(context.Background(),
		[]solana.Instruction{transfer}, signer,
		Budget{PriorityFee: 5000, ComputeUnitLimit: 90000})
	if err != nil {
		t.Fatalf("BuildTransaction failed: %v", err)
	}

	if len(tx.Message.Instructions) != 3 {
		t.Fatalf("expected [unit limit, unit price, transfer], got %d instructions", len(tx.Message.Instructions))
	}

	first, err := tx.Message.Program(tx.Message.Instructions[0].ProgramIDIndex)
	if err != nil {
		t.Fatalf("resolving program id: %v", err)
	}
	if !first.Equals(computeBudgetProgramID) {
		t.Fatalf("expected compute budget instruction first, got %s", first)
	}
	if tx.Message.Instructions[0].Data[0] != tagSetComputeUnitLimit {
		t.Fatalf("expected unit limit first, got tag %d", tx.Message.Instructions[0].Data[0])
	}
	if tx.Message.Instructions[1].Data[0] != tagSetComputeUnitPrice {
		t.Fatalf("expected unit price second, got tag %d", tx.Message.Instructions[1].Data[0])
	}

	last, err := tx.Message.Program(tx.Message.Instructions[2].ProgramIDIndex)
	if err != nil {
		t.Fatalf("resolving program id: %v", err)
	}
	if !last.Equals(solana.SystemProgramID) {
		t.Fatalf("expected caller transfer last, got %s", last)
	}

	if len(tx.Signatures) != 1 {
		t.Fatalf("expected 1 signature, got %d", len(tx.Signatures))
	}
}
