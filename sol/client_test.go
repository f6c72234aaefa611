package sol

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"

	"bundler/utils"
)

func TestGetBalance(t *testing.T) {
	srv, _ := fakeRpcServer(t, map[string]func() (any, *RpcError){
		"getBalance": func() (any, *RpcError) {
			return map[string]any{"value": uint64(1_500_000_000)}, nil
		},
	})

	client := NewClient(srv.URL, utils.NewHTTPPool(0))
	balance, err := client.GetBalance(context.Background(), solana.NewWallet().PublicKey())
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance != 1_500_000_000 {
		t.Fatalf("expected 1500000000 lamports, got %d", balance)
	}
}

func TestGetBalanceMissingAccountReadsZero(t *testing.T) {
	srv, _ := fakeRpcServer(t, map[string]func() (any, *RpcError){
		"getBalance": func() (any, *RpcError) {
			return nil, &RpcError{Code: -32602, Message: "Invalid param: could not find account"}
		},
	})

	client := NewClient(srv.URL, utils.NewHTTPPool(0))
	balance, err := client.GetBalance(context.Background(), solana.NewWallet().PublicKey())
	if err != nil {
		t.Fatalf("expected missing account to read as zero, got error: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected zero balance, got %d", balance)
	}
}

func TestSingleModeBlockhashSingleFetch(t *testing.T) {
	srv, calls := fakeRpcServer(t, healthyHandlers())

	client := NewClient(srv.URL, utils.NewHTTPPool(0))

	if _, err := client.GetCachedBlockhash(context.Background()); err != nil {
		t.Fatalf("GetCachedBlockhash failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly 1 fetch on cold cache, got %d", calls.Load())
	}

	if _, err := client.GetCachedBlockhash(context.Background()); err != nil {
		t.Fatalf("GetCachedBlockhash failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected cached read with zero extra fetches, got %d", calls.Load())
	}
	if client.blockhash.FetchedAt().IsZero() {
		t.Fatalf("expected cache to record the fetch time")
	}
}

func TestGetHealth(t *testing.T) {
	srv, _ := fakeRpcServer(t, map[string]func() (any, *RpcError){
		"getHealth": func() (any, *RpcError) { return "ok", nil },
	})

	client := NewClient(srv.URL, utils.NewHTTPPool(0))
	if err := client.GetHealth(context.Background()); err != nil {
		t.Fatalf("GetHealth failed: %v", err)
	}
}

func TestGetAccountInfo(t *testing.T) {
	srv, _ := fakeRpcServer(t, map[string]func() (any, *RpcError){
		"getAccountInfo": func() (any, *RpcError) {
			return map[string]any{"value": map[string]any{"lamports": uint64(42)}}, nil
		},
	})

	client := NewClient(srv.URL, utils.NewHTTPPool(0))
	lamports, exists, err := client.GetAccountInfo(context.Background(), solana.NewWallet().PublicKey())
	if err != nil {
		t.Fatalf("GetAccountInfo failed: %v", err)
	}
	if !exists || lamports != 42 {
		t.Fatalf("expected existing account with 42 lamports, got exists=%v lamports=%d", exists, lamports)
	}
}

func TestGetAccountInfoMissingAccount(t *testing.T) {
	srv, _ := fakeRpcServer(t, map[string]func() (any, *RpcError){
		"getAccountInfo": func() (any, *RpcError) {
			return map[string]any{"value": nil}, nil
		},
	})

	client := NewClient(srv.URL, utils.NewHTTPPool(0))
	_, exists, err := client.GetAccountInfo(context.Background(), solana.NewWallet().PublicKey())
	if err != nil {
		t.Fatalf("GetAccountInfo failed: %v", err)
	}
	if exists {
		t.Fatalf("expected missing account to report exists=false")
	}
}

func TestGetTokenAccountBalance(t *testing.T) {
	srv, _ := fakeRpcServer(t, map[string]func() (any, *RpcError){
		"getTokenAccountBalance": func() (any, *RpcError) {
			return map[string]any{"value": map[string]any{"amount": "123456", "decimals": 6}}, nil
		},
	})

	client := NewClient(srv.URL, utils.NewHTTPPool(0))
	amount, err := client.GetTokenAccountBalance(context.Background(), solana.NewWallet().PublicKey())
	if err != nil {
		t.Fatalf("GetTokenAccountBalance failed: %v", err)
	}
	if amount != 123456 {
		t.Fatalf("expected 123456 base units, got %d", amount)
	}
}

func TestGetMultipleBalances(t *testing.T) {
	srv, _ := fakeRpcServer(t, map[string]func() (any, *RpcError){
		"getMultipleAccounts": func() (any, *RpcError) {
			return map[string]any{"value": []any{
				map[string]any{"lamports": uint64(100)},
				nil, // account does not exist
				map[string]any{"lamports": uint64(300)},
			}}, nil
		},
	})

	client := NewClient(srv.URL, utils.NewHTTPPool(0))
	keys := []solana.PublicKey{
		solana.NewWallet().PublicKey(),
		solana.NewWallet().PublicKey(),
		solana.NewWallet().PublicKey(),
	}
	balances, err := client.GetMultipleBalances(context.Background(), keys)
	if err != nil {
		t.Fatalf("GetMultipleBalances failed: %v", err)
	}
	want := []uint64{100, 0, 300}
	for i, w := range want {
		if balances[i] != w {
			t.Fatalf("balance[%d]: expected %d, got %d", i, w, balances[i])
		}
	}
}

func TestConfirmTransaction(t *testing.T) {
	srv, _ := fakeRpcServer(t, map[string]func() (any, *RpcError){
		"getSignatureStatuses": func() (any, *RpcError) {
			return map[string]any{"value": []any{
				map[string]any{"confirmationStatus": "confirmed", "err": nil},
			}}, nil
		},
	})

	client := NewClient(srv.URL, utils.NewHTTPPool(0))
	if !client.ConfirmTransaction(context.Background(), "sig", "confirmed") {
		t.Fatalf("expected confirmation to report true")
	}
}

func TestConfirmTransactionChainErrorReportsFalse(t *testing.T) {
	srv, _ := fakeRpcServer(t, map[string]func() (any, *RpcError){
		"getSignatureStatuses": func() (any, *RpcError) {
			return map[string]any{"value": []any{
				map[string]any{"confirmationStatus": "confirmed", "err": map[string]any{"InstructionError": []any{}}},
			}}, nil
		},
	})

	client := NewClient(srv.URL, utils.NewHTTPPool(0))
	if client.ConfirmTransaction(context.Background(), "sig", "confirmed") {
		t.Fatalf("expected on-chain failure to report false, not error out")
	}
}
