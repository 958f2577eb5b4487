package domain

// Asset represents a launchpad token together with a mirror of its
// bonding-curve account state. Corresponds to assets table in PostgreSQL.
type Asset struct {
	Mint                 string // token mint address, primary key
	Creator              string // wallet that created the token
	VirtualSolReserves   uint64 // virtual SOL reserves, lamports
	VirtualTokenReserves uint64 // virtual token reserves, base units
	RealSolReserves      uint64 // SOL actually held by the curve
	RealTokenReserves    uint64 // tokens still held by the curve
	TokensSold           uint64 // cumulative tokens sold by the curve
	Graduated            bool   // curve closed, liquidity moved to a DEX
	LastSlot             int64  // slot of the last trade applied
	LastTradeAt          int64  // block time of the last trade, Unix seconds
	UpdatedAt            int64  // record update timestamp (ms)
}
