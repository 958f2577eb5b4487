package curvestate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/mr-tron/base58"

	"clawdvault-indexer/internal/solana"
	"clawdvault-indexer/internal/solana/stub"
)

func testPubkey(fill byte) string {
	b := make([]byte, 32)
	for i := range b {
		b[i] = fill
	}
	return base58.Encode(b)
}

func encodeAccount(state *BondingCurveState) []byte {
	buf := make([]byte, 0, accountSize)
	buf = append(buf, curveDiscriminator[:]...)

	creator, _ := base58.Decode(state.Creator)
	mint, _ := base58.Decode(state.Mint)
	buf = append(buf, creator...)
	buf = append(buf, mint...)

	appendU64 := func(v uint64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		buf = append(buf, b[:]...)
	}
	appendU64(state.VirtualSol)
	appendU64(state.VirtualTokens)
	appendU64(state.RealSol)
	appendU64(state.RealTokens)
	appendU64(state.TokenTotalSupply)

	if state.Graduated {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	appendU64(uint64(state.CreatedAt))
	buf = append(buf, state.Bump, state.SolVaultBump, state.TokenVaultBump)

	return buf
}

func TestDeriveCurveAddress(t *testing.T) {
	program := testPubkey(0x11)
	mint := testPubkey(0x22)

	addr, err := DeriveCurveAddress(program, mint)
	if err != nil {
		t.Fatalf("DeriveCurveAddress: %v", err)
	}

	decoded, err := base58.Decode(addr)
	if err != nil {
		t.Fatalf("derived address is not base58: %v", err)
	}
	if len(decoded) != 32 {
		t.Errorf("expected 32-byte address, got %d", len(decoded))
	}

	// Derivation is deterministic
	again, err := DeriveCurveAddress(program, mint)
	if err != nil {
		t.Fatalf("DeriveCurveAddress: %v", err)
	}
	if again != addr {
		t.Errorf("derivation not deterministic: %s vs %s", addr, again)
	}

	// A different mint maps to a different address
	other, err := DeriveCurveAddress(program, testPubkey(0x33))
	if err != nil {
		t.Fatalf("DeriveCurveAddress: %v", err)
	}
	if other == addr {
		t.Error("different mints derived the same address")
	}
}

func TestDeriveCurveAddress_OffCurve(t *testing.T) {
	addr, err := DeriveCurveAddress(testPubkey(0x11), testPubkey(0x22))
	if err != nil {
		t.Fatalf("DeriveCurveAddress: %v", err)
	}

	decoded, _ := base58.Decode(addr)
	if isOnCurve(decoded) {
		t.Error("derived address lies on the ed25519 curve")
	}
}

func TestDecodeAccount_RoundTrip(t *testing.T) {
	want := &BondingCurveState{
		Creator:          testPubkey(0xBB),
		Mint:             testPubkey(0xAA),
		VirtualSol:       31_500_000_000,
		VirtualTokens:    952_380_952_380_952,
		RealSol:          1_500_000_000,
		RealTokens:       47_619_047_619_048,
		TokenTotalSupply: 1_000_000_000_000_000,
		Graduated:        false,
		CreatedAt:        1_700_000_000,
		Bump:             254,
		SolVaultBump:     253,
		TokenVaultBump:   252,
	}

	got, err := DecodeAccount(encodeAccount(want))
	if err != nil {
		t.Fatalf("DecodeAccount: %v", err)
	}
	if *got != *want {
		t.Errorf("decoded state mismatch:\ngot  %+v\nwant %+v", got, want)
	}
	if sold := got.TokensSold(); sold != 47_619_047_619_048 {
		t.Errorf("TokensSold = %d, want 47619047619048", sold)
	}
}

func TestDecodeAccount_FieldOrder(t *testing.T) {
	creator := testPubkey(0x01)
	mint := testPubkey(0x02)

	got, err := DecodeAccount(encodeAccount(&BondingCurveState{
		Creator:   creator,
		Mint:      mint,
		CreatedAt: 1_700_000_000,
		Bump:      254,
	}))
	if err != nil {
		t.Fatalf("DecodeAccount: %v", err)
	}

	// Creator precedes mint in the account layout
	if got.Creator != creator {
		t.Errorf("Creator = %s, want %s", got.Creator, creator)
	}
	if got.Mint != mint {
		t.Errorf("Mint = %s, want %s", got.Mint, mint)
	}
	if got.Bump != 254 {
		t.Errorf("Bump = %d, want 254", got.Bump)
	}
}

func TestDecodeAccount_Graduated(t *testing.T) {
	state := &BondingCurveState{
		Mint:       testPubkey(0xAA),
		Creator:    testPubkey(0xBB),
		VirtualSol: 150_000_000_000,
		RealSol:    120_000_000_000,
		Graduated:  true,
		Bump:       253,
	}

	got, err := DecodeAccount(encodeAccount(state))
	if err != nil {
		t.Fatalf("DecodeAccount: %v", err)
	}
	if !got.Graduated {
		t.Error("expected graduated state")
	}
}

func TestDecodeAccount_BadDiscriminator(t *testing.T) {
	data := encodeAccount(&BondingCurveState{
		Mint:    testPubkey(0xAA),
		Creator: testPubkey(0xBB),
	})
	other := accountDiscriminator("Config")
	copy(data[:8], other[:])

	if _, err := DecodeAccount(data); !errors.Is(err, ErrBadDiscriminator) {
		t.Errorf("expected ErrBadDiscriminator, got %v", err)
	}
}

func TestDecodeAccount_TooShort(t *testing.T) {
	data := bytes.Repeat([]byte{0}, accountSize-1)
	if _, err := DecodeAccount(data); err == nil {
		t.Error("expected error for truncated account")
	}
}

func TestReader_Fetch(t *testing.T) {
	program := testPubkey(0x11)
	mint := testPubkey(0x22)

	want := &BondingCurveState{
		Mint:          mint,
		Creator:       testPubkey(0xBB),
		VirtualSol:    30_000_000_000,
		VirtualTokens: 1_000_000_000_000_000,
		Bump:          255,
	}

	addr, err := DeriveCurveAddress(program, mint)
	if err != nil {
		t.Fatalf("DeriveCurveAddress: %v", err)
	}

	rpc := stub.NewRPCClient()
	rpc.Accounts[addr] = &solana.AccountInfo{
		Owner: program,
		Data:  base64.StdEncoding.EncodeToString(encodeAccount(want)),
	}

	reader := NewReader(rpc, program)
	got, err := reader.Fetch(context.Background(), mint)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if *got != *want {
		t.Errorf("fetched state mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestReader_Fetch_NotFound(t *testing.T) {
	reader := NewReader(stub.NewRPCClient(), testPubkey(0x11))

	_, err := reader.Fetch(context.Background(), testPubkey(0x22))
	if !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}
