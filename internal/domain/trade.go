package domain

// Token decimal constants. Lamports carry 9 decimals, the launchpad
// token mint carries 6.
const (
	LamportsPerSol = 1_000_000_000
	TokenBaseUnit  = 1_000_000
)

// Trade represents a confirmed bonding-curve trade decoded from a
// ledger transaction. Corresponds to trades table in PostgreSQL.
type Trade struct {
	ID                   int64   // BIGSERIAL primary key
	Signature            string  // Solana transaction signature (unique)
	Mint                 string  // token mint address
	Trader               string  // trader wallet address
	Side                 string  // "buy" | "sell"
	SolAmount            uint64  // lamports moved through the curve
	TokenAmount          uint64  // token base units moved
	ProtocolFee          uint64  // protocol fee in lamports
	CreatorFee           uint64  // creator fee in lamports
	VirtualSolReserves   uint64  // virtual SOL reserves after the trade
	VirtualTokenReserves uint64  // virtual token reserves after the trade
	PriceSol             float64 // execution price, SOL per token
	SolPriceUsd          float64 // SOL/USD reference at sync time (0 when unknown)
	Slot                 int64   // Solana slot number
	Timestamp            int64   // block time, Unix seconds
	CreatedAt            int64   // record creation timestamp (ms)
}

// Trade side constants
const (
	TradeSideBuy  = "buy"
	TradeSideSell = "sell"
)

// PriceSolPerToken converts base-unit amounts into a SOL-per-token
// execution price.
func PriceSolPerToken(solAmount, tokenAmount uint64) float64 {
	if tokenAmount == 0 {
		return 0
	}
	return (float64(solAmount) / LamportsPerSol) / (float64(tokenAmount) / TokenBaseUnit)
}
