// Package curvestate reads on-chain bonding curve accounts so the local
// asset mirror can be refreshed from authoritative reserve state.
package curvestate

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"clawdvault-indexer/internal/solana"
)

// accountSize is the serialized BondingCurve account: 8-byte
// discriminator, creator (32), mint (32), five u64 reserve/supply
// fields, graduated flag, created_at (i64), and three bump bytes.
const accountSize = 8 + 32 + 32 + 8*5 + 1 + 8 + 1 + 1 + 1

var (
	ErrAccountNotFound  = errors.New("curvestate: account not found")
	ErrBadDiscriminator = errors.New("curvestate: not a bonding curve account")
)

// BondingCurveState is the decoded on-chain curve account. Field order
// follows the program's BondingCurve struct.
type BondingCurveState struct {
	Creator          string
	Mint             string
	VirtualSol       uint64
	VirtualTokens    uint64
	RealSol          uint64
	RealTokens       uint64
	TokenTotalSupply uint64
	Graduated        bool
	CreatedAt        int64
	Bump             uint8
	SolVaultBump     uint8
	TokenVaultBump   uint8
}

// TokensSold derives the sold amount from the token reserve drawdown;
// the account itself only stores reserves and the fixed total supply.
func (s *BondingCurveState) TokensSold() uint64 {
	if s.VirtualTokens >= s.TokenTotalSupply {
		return 0
	}
	return s.TokenTotalSupply - s.VirtualTokens
}

// accountDiscriminator returns the Anchor account discriminator,
// sha256("account:<Name>")[:8].
func accountDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

var curveDiscriminator = accountDiscriminator("BondingCurve")

// DeriveCurveAddress derives the bonding curve PDA for a mint,
// seeds ["bonding_curve", mint].
func DeriveCurveAddress(programID, mint string) (string, error) {
	programBytes, err := base58.Decode(programID)
	if err != nil {
		return "", fmt.Errorf("decode program id: %w", err)
	}
	mintBytes, err := base58.Decode(mint)
	if err != nil {
		return "", fmt.Errorf("decode mint: %w", err)
	}

	seeds := [][]byte{
		[]byte("bonding_curve"),
		mintBytes,
	}

	pda := derivePDA(seeds, programBytes)
	if pda == "" {
		return "", fmt.Errorf("no valid bump for mint %s", mint)
	}
	return pda, nil
}

// derivePDA derives a Program Derived Address using the Solana algorithm.
func derivePDA(seeds [][]byte, programID []byte) string {
	// 1. Concatenate all seeds with bump
	// 2. Append program ID and "ProgramDerivedAddress" marker
	// 3. SHA256 hash
	// 4. Find bump seed that results in off-curve point

	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programID...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		// Check if point is off the ed25519 curve
		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:])
		}
	}

	return ""
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// DecodeAccount decodes a raw BondingCurve account payload.
func DecodeAccount(data []byte) (*BondingCurveState, error) {
	if len(data) < accountSize {
		return nil, fmt.Errorf("curvestate: account too short: %d bytes", len(data))
	}
	for i := 0; i < 8; i++ {
		if data[i] != curveDiscriminator[i] {
			return nil, ErrBadDiscriminator
		}
	}

	offset := 8
	state := &BondingCurveState{}

	state.Creator = base58.Encode(data[offset : offset+32])
	offset += 32
	state.Mint = base58.Encode(data[offset : offset+32])
	offset += 32

	readU64 := func() uint64 {
		v := binary.LittleEndian.Uint64(data[offset : offset+8])
		offset += 8
		return v
	}

	state.VirtualSol = readU64()
	state.VirtualTokens = readU64()
	state.RealSol = readU64()
	state.RealTokens = readU64()
	state.TokenTotalSupply = readU64()
	state.Graduated = data[offset] != 0
	offset++
	state.CreatedAt = int64(binary.LittleEndian.Uint64(data[offset : offset+8]))
	offset += 8
	state.Bump = data[offset]
	offset++
	state.SolVaultBump = data[offset]
	offset++
	state.TokenVaultBump = data[offset]

	return state, nil
}

// Reader fetches and decodes bonding curve accounts over RPC.
type Reader struct {
	rpc       solana.RPCClient
	programID string
}

// NewReader creates a curve account reader for the given program.
func NewReader(rpc solana.RPCClient, programID string) *Reader {
	return &Reader{rpc: rpc, programID: programID}
}

// Fetch derives the curve PDA for a mint, fetches the account, and
// decodes it. Returns ErrAccountNotFound when the account does not
// exist on chain.
func (r *Reader) Fetch(ctx context.Context, mint string) (*BondingCurveState, error) {
	address, err := DeriveCurveAddress(r.programID, mint)
	if err != nil {
		return nil, err
	}

	info, err := r.rpc.GetAccountInfo(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("get account info: %w", err)
	}
	if info == nil {
		return nil, ErrAccountNotFound
	}

	raw, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}

	return DecodeAccount(raw)
}
