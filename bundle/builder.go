package bundle

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// InstructionBuilder turns a trade intent into program instructions for
// one identity. How a buy or sell becomes on-chain instructions belongs
// to the program integration plugged in here; the coordinator only
// prepends compute-budget instructions to whatever comes back.
type InstructionBuilder interface {
	BuildBuy(ctx context.Context, target solana.PublicKey, buyer solana.PublicKey, lamports uint64) ([]solana.Instruction, error)
	BuildSell(ctx context.Context, target solana.PublicKey, seller solana.PublicKey, amount uint64) ([]solana.Instruction, error)
}

// TransferBuilder is the reference builder: it moves plain SOL to or
// from the target account. Useful for devnet drills and tests; real
// trading wires a program-specific builder instead.
type TransferBuilder struct{}

func (TransferBuilder) BuildBuy(ctx context.Context, target solana.PublicKey, buyer solana.PublicKey, lamports uint64) ([]solana.Instruction, error) {
	ix := system.NewTransferInstruction(lamports, buyer, target).Build()
	return []solana.Instruction{ix}, nil
}

func (TransferBuilder) BuildSell(ctx context.Context, target solana.PublicKey, seller solana.PublicKey, amount uint64) ([]solana.Instruction, error) {
	ix := system.NewTransferInstruction(amount, seller, target).Build()
	return []solana.Instruction{ix}, nil
}
