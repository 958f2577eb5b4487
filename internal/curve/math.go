// Package curve implements the constant-product bonding curve math used
// by the launchpad program. Amounts are integer base units (lamports and
// token base units); intermediate products need u128 width and go through
// math/big.
package curve

import (
	"errors"
	"math/big"

	"clawdvault-indexer/internal/domain"
)

// On-chain curve parameters.
const (
	TotalSupply          uint64 = 1_000_000_000_000_000 // 1B tokens, 6 decimals
	InitialVirtualSol    uint64 = 30_000_000_000        // 30 SOL in lamports
	InitialVirtualTokens uint64 = TotalSupply
	GraduationThreshold  uint64 = 120_000_000_000 // 120 SOL in lamports

	ProtocolFeeBps uint64 = 50
	CreatorFeeBps  uint64 = 50
	TotalFeeBps    uint64 = ProtocolFeeBps + CreatorFeeBps
	BpsDenominator uint64 = 10_000

	// SellCapBufferBps shrinks a liquidity-capped sell so integer
	// truncation between quote and payout cannot push the gross payout
	// past the curve's real SOL balance.
	SellCapBufferBps uint64 = 200
)

var (
	ErrZeroAmount    = errors.New("curve: amount must be positive")
	ErrZeroOutput    = errors.New("curve: amount too small to produce output")
	ErrEmptyReserves = errors.New("curve: reserves must be positive")
)

// BuyQuote describes the outcome of swapping SOL into tokens.
type BuyQuote struct {
	TokensOut        uint64 // token base units the buyer receives
	ProtocolFee      uint64 // lamports
	CreatorFee       uint64 // lamports
	SolToCurve       uint64 // lamports added to reserves after fees
	NewVirtualSol    uint64
	NewVirtualTokens uint64
	PriceImpact      float64 // relative marginal price move, >= 0
}

// SellQuote describes the outcome of swapping tokens into SOL.
type SellQuote struct {
	SolOutGross      uint64 // lamports removed from the curve
	ProtocolFee      uint64 // lamports, taken from the gross output
	CreatorFee       uint64 // lamports, taken from the gross output
	SolOutNet        uint64 // lamports the seller receives
	NewVirtualSol    uint64
	NewVirtualTokens uint64
	PriceImpact      float64 // relative marginal price move, >= 0
}

// QuoteBuy prices a buy of solIn lamports against virtual reserves
// (vSol, vTok). The total fee is deducted from solIn before the
// constant-product solve, so only the net amount moves the reserves.
func QuoteBuy(solIn, vSol, vTok uint64) (*BuyQuote, error) {
	if solIn == 0 {
		return nil, ErrZeroAmount
	}
	if vSol == 0 || vTok == 0 {
		return nil, ErrEmptyReserves
	}

	protocolFee := feeOf(solIn, ProtocolFeeBps)
	creatorFee := feeOf(solIn, CreatorFeeBps)
	solNet := solIn - protocolFee - creatorFee
	if solNet == 0 {
		return nil, ErrZeroOutput
	}

	// tokensOut = vTok - ceil(k / (vSol + solNet)); rounding the new
	// token reserve up keeps k from ever decreasing.
	k := new(big.Int).Mul(bigU(vSol), bigU(vTok))
	newVSol := vSol + solNet
	newVTok := ceilDiv(k, bigU(newVSol)).Uint64()
	if newVTok >= vTok {
		return nil, ErrZeroOutput
	}
	tokensOut := vTok - newVTok

	return &BuyQuote{
		TokensOut:        tokensOut,
		ProtocolFee:      protocolFee,
		CreatorFee:       creatorFee,
		SolToCurve:       solNet,
		NewVirtualSol:    newVSol,
		NewVirtualTokens: newVTok,
		PriceImpact:      priceImpact(vSol, vTok, newVSol, newVTok),
	}, nil
}

// QuoteSell prices a sell of tokensIn base units against virtual
// reserves (vSol, vTok). Fees apply to the gross SOL output; the full
// token amount moves the reserves.
func QuoteSell(tokensIn, vSol, vTok uint64) (*SellQuote, error) {
	if tokensIn == 0 {
		return nil, ErrZeroAmount
	}
	if vSol == 0 || vTok == 0 {
		return nil, ErrEmptyReserves
	}

	// solOut = vSol - ceil(k / (vTok + tokensIn))
	k := new(big.Int).Mul(bigU(vSol), bigU(vTok))
	newVTok := vTok + tokensIn
	newVSol := ceilDiv(k, bigU(newVTok)).Uint64()
	if newVSol >= vSol {
		return nil, ErrZeroOutput
	}
	solGross := vSol - newVSol

	protocolFee := feeOf(solGross, ProtocolFeeBps)
	creatorFee := feeOf(solGross, CreatorFeeBps)

	return &SellQuote{
		SolOutGross:      solGross,
		ProtocolFee:      protocolFee,
		CreatorFee:       creatorFee,
		SolOutNet:        solGross - protocolFee - creatorFee,
		NewVirtualSol:    newVSol,
		NewVirtualTokens: newVTok,
		PriceImpact:      priceImpact(vSol, vTok, newVSol, newVTok),
	}, nil
}

// CapSellToLiquidity limits tokensIn so the gross payout fits within the
// realSol lamports the curve actually holds. The returned bool reports
// whether the cap was applied.
func CapSellToLiquidity(tokensIn, vSol, vTok, realSol uint64) (uint64, bool) {
	if tokensIn == 0 || vSol == 0 || vTok == 0 {
		return tokensIn, false
	}
	// Gross payout is always strictly below vSol, so a curve holding at
	// least vSol can cover any sell.
	if realSol >= vSol {
		return tokensIn, false
	}

	q, err := QuoteSell(tokensIn, vSol, vTok)
	if err != nil {
		return tokensIn, false
	}
	if q.SolOutGross <= realSol {
		return tokensIn, false
	}

	// Largest tokensIn with gross payout <= realSol:
	// vTok + tokensIn <= k / (vSol - realSol)
	k := new(big.Int).Mul(bigU(vSol), bigU(vTok))
	maxAfter := new(big.Int).Div(k, bigU(vSol-realSol))
	maxIn := new(big.Int).Sub(maxAfter, bigU(vTok))
	if maxIn.Sign() <= 0 {
		return 0, true
	}

	capped := new(big.Int).Mul(maxIn, bigU(BpsDenominator-SellCapBufferBps))
	capped.Div(capped, bigU(BpsDenominator))
	return capped.Uint64(), true
}

// SpotPrice returns the marginal price in SOL per token.
func SpotPrice(vSol, vTok uint64) float64 {
	if vTok == 0 {
		return 0
	}
	return domain.PriceSolPerToken(vSol, vTok)
}

// MarketCapSol values the full token supply at the current spot price.
func MarketCapSol(vSol, vTok uint64) float64 {
	return SpotPrice(vSol, vTok) * (float64(TotalSupply) / domain.TokenBaseUnit)
}

// GraduationProgress reports how far the curve is toward graduation,
// clamped to [0, 1].
func GraduationProgress(realSol uint64) float64 {
	p := float64(realSol) / float64(GraduationThreshold)
	if p > 1 {
		return 1
	}
	return p
}

// Graduated reports whether the curve has collected enough SOL to close.
func Graduated(realSol uint64) bool {
	return realSol >= GraduationThreshold
}

func bigU(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

func ceilDiv(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

func feeOf(amount, bps uint64) uint64 {
	f := new(big.Int).Mul(bigU(amount), bigU(bps))
	f.Div(f, bigU(BpsDenominator))
	return f.Uint64()
}

func priceImpact(vSol, vTok, newVSol, newVTok uint64) float64 {
	p0 := float64(vSol) / float64(vTok)
	p1 := float64(newVSol) / float64(newVTok)
	if p0 == 0 {
		return 0
	}
	impact := p1/p0 - 1
	if impact < 0 {
		impact = -impact
	}
	return impact
}
