package crypto

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Well-known local development key (hardhat/anvil account 0).
const (
	devKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestSignerAddressAndSender(t *testing.T) {
	s, err := NewSigner("0x"+devKey, 137)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	if s.Address() != common.HexToAddress(devAddress) {
		t.Fatalf("address = %s, want %s", s.Address().Hex(), devAddress)
	}

	to := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.ChainID(),
		Nonce:     12,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
	})
	signed, err := s.SignTx(tx)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}
	from, err := s.Sender(signed)
	if err != nil {
		t.Fatalf("Sender: %v", err)
	}
	if from != s.Address() || signed.Nonce() != 12 {
		t.Errorf("recovered %s nonce %d", from.Hex(), signed.Nonce())
	}
}

func TestNewSignerRejectsBadInput(t *testing.T) {
	if _, err := NewSigner("zz", 1); err == nil {
		t.Error("expected error for non-hex key")
	}
	if _, err := NewSigner(devKey, 0); err == nil {
		t.Error("expected error for zero chain id")
	}
}

func TestKeyFileRoundTrip(t *testing.T) {
	blob, err := EncryptKey(devKey, "hunter2", devAddress)
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := KeySource{EncryptedKeyPath: path, KeyPassword: "hunter2"}.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != devKey {
		t.Errorf("decrypted key mismatch")
	}

	if _, err := (KeySource{EncryptedKeyPath: path, KeyPassword: "wrong"}).Load(); err == nil {
		t.Error("expected failure with the wrong password")
	}
}

func TestKeySourcePrecedence(t *testing.T) {
	got, err := KeySource{RawPrivateKey: "0x" + devKey, EncryptedKeyPath: "/does/not/exist"}.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != devKey {
		t.Errorf("raw key should win, got %s", got)
	}
	if _, err := (KeySource{}).Load(); err == nil {
		t.Error("expected error with no source")
	}
	if (KeySource{}).Configured() {
		t.Error("empty source reports configured")
	}
}

func TestRequestAuth(t *testing.T) {
	auth := RequestAuth{Secret: "s3cret", Tolerance: time.Minute}
	now := time.Unix(1_700_000_000, 0)
	body := `{"id":"1","data":{"method":"poke"}}`
	h := auth.Headers("POST", "/", body, now.Unix())

	tests := []struct {
		name string
		body string
		ts   string
		sig  string
		at   time.Time
		want error
	}{
		{"valid", body, h[HeaderTimestamp], h[HeaderSignature], now.Add(10 * time.Second), nil},
		{"tampered body", body + " ", h[HeaderTimestamp], h[HeaderSignature], now, ErrSignatureInvalid},
		{"stale", body, h[HeaderTimestamp], h[HeaderSignature], now.Add(2 * time.Minute), ErrSignatureStale},
		{"missing", body, "", "", now, ErrSignatureMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.Verify("POST", "/", tt.body, tt.ts, tt.sig, tt.at)
			if !errors.Is(err, tt.want) {
				t.Errorf("Verify = %v, want %v", err, tt.want)
			}
		})
	}
}
