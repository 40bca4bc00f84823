package wallet_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/custody/types"
	"github.com/xraph/custody/wallet"
)

func TestRegistryLookup(t *testing.T) {
	reg, err := wallet.NewRegistry(
		wallet.NewMock("Bitcoin", "btc"),
		wallet.NewMock("dash", "dash"),
		wallet.Internal("btc"),
	)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	tests := []struct {
		name    string
		network string
		found   bool
	}{
		{"exact lower", "dash", true},
		{"registered upper stored lower", "bitcoin", true},
		{"case-insensitive lookup", "BITCOIN", true},
		{"mixed case", "Dash", true},
		{"internal", "internal", true},
		{"unknown", "foo", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := reg.Lookup(tt.network)
			if ok != tt.found {
				t.Errorf("Lookup(%q): got %v, want %v", tt.network, ok, tt.found)
			}
			if reg.Has(tt.network) != tt.found {
				t.Errorf("Has(%q): got %v, want %v", tt.network, !tt.found, tt.found)
			}
		})
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := wallet.NewRegistry(
		wallet.NewMock("bitcoin", "btc"),
		wallet.NewMock("BITCOIN", "btc"),
	)
	if err == nil {
		t.Fatal("expected error for duplicate network")
	}
}

func TestRegistryRejectsEmptyNetwork(t *testing.T) {
	_, err := wallet.NewRegistry(wallet.NewMock("", "btc"))
	if err == nil {
		t.Fatal("expected error for empty network name")
	}
}

func TestRegistryNetworksAndCurrencies(t *testing.T) {
	reg := wallet.MustRegistry(
		wallet.NewMock("dash", "dash"),
		wallet.NewMock("bitcoin", "btc"),
		wallet.Internal("btc"),
	)

	wantNetworks := []string{"bitcoin", "dash", "internal"}
	gotNetworks := reg.Networks()
	if len(gotNetworks) != len(wantNetworks) {
		t.Fatalf("Networks: got %v, want %v", gotNetworks, wantNetworks)
	}
	for i := range wantNetworks {
		if gotNetworks[i] != wantNetworks[i] {
			t.Errorf("Networks[%d]: got %q, want %q", i, gotNetworks[i], wantNetworks[i])
		}
	}

	wantCurrencies := []string{"btc", "dash"}
	gotCurrencies := reg.Currencies()
	if len(gotCurrencies) != len(wantCurrencies) {
		t.Fatalf("Currencies: got %v, want %v", gotCurrencies, wantCurrencies)
	}
	for i := range wantCurrencies {
		if gotCurrencies[i] != wantCurrencies[i] {
			t.Errorf("Currencies[%d]: got %q, want %q", i, gotCurrencies[i], wantCurrencies[i])
		}
	}

	if reg.Len() != 3 {
		t.Errorf("Len: got %d, want 3", reg.Len())
	}
}

func TestMockBackend(t *testing.T) {
	ctx := context.Background()
	m := wallet.NewMock("mock", "btc")

	addr, err := m.GetNewAddress(ctx)
	if err != nil {
		t.Fatalf("GetNewAddress failed: %v", err)
	}
	if addr == "" {
		t.Fatal("expected non-empty address")
	}

	ref, err := m.SendToAddress(ctx, addr, types.BTC(100))
	if err != nil {
		t.Fatalf("SendToAddress failed: %v", err)
	}
	if ref == "" {
		t.Fatal("expected non-empty ref")
	}

	sends := m.Sends()
	if len(sends) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sends))
	}
	if sends[0].Address != addr || !sends[0].Amount.Equal(types.BTC(100)) {
		t.Errorf("send mismatch: %+v", sends[0])
	}
}

func TestMockBackendScriptedFailures(t *testing.T) {
	ctx := context.Background()
	m := wallet.NewMock("mock", "btc")

	sendErr := errors.New("node unreachable")
	m.FailSend = sendErr
	if _, err := m.SendToAddress(ctx, "x", types.BTC(1)); !errors.Is(err, sendErr) {
		t.Errorf("expected scripted send error, got %v", err)
	}
	if len(m.Sends()) != 0 {
		t.Error("failed send should not be recorded")
	}

	addrErr := errors.New("keypool empty")
	m.FailNewAddress = addrErr
	if _, err := m.GetNewAddress(ctx); !errors.Is(err, addrErr) {
		t.Errorf("expected scripted address error, got %v", err)
	}
}

func TestInternalBackend(t *testing.T) {
	ctx := context.Background()
	b := wallet.Internal("btc")

	if b.Network() != wallet.NetworkInternal {
		t.Errorf("Network: got %q, want %q", b.Network(), wallet.NetworkInternal)
	}
	if b.Currency() != "btc" {
		t.Errorf("Currency: got %q, want btc", b.Currency())
	}

	addr, err := b.GetNewAddress(ctx)
	if err != nil {
		t.Fatalf("GetNewAddress failed: %v", err)
	}
	if addr == "" {
		t.Fatal("expected non-empty internal address")
	}

	if _, err := b.SendToAddress(ctx, addr, types.BTC(1)); err == nil {
		t.Error("internal backend should refuse direct sends")
	}
}
