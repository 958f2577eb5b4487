// Package events decodes Anchor-emitted program events out of
// transaction log messages.
package events

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
)

// programDataPrefix marks Anchor emit! payloads in log output.
const programDataPrefix = "Program data: "

// tradeEventSize is the 8-byte discriminator plus the borsh body:
// mint(32) trader(32) isBuy(1) six u64 fields(48) timestamp(8).
const tradeEventSize = 129

// tradeEventDiscriminator is sha256("event:TradeEvent")[:8], the Anchor
// event discriminator.
var tradeEventDiscriminator = anchorEventDiscriminator("TradeEvent")

func anchorEventDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("event:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// TradeEvent mirrors the event the program emits on every buy and sell.
// Reserve fields are the post-trade virtual reserves.
type TradeEvent struct {
	Mint                 string
	Trader               string
	IsBuy                bool
	SolAmount            uint64
	TokenAmount          uint64
	ProtocolFee          uint64
	CreatorFee           uint64
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
	Timestamp            int64
}

// Decoder extracts trade events from transaction logs.
type Decoder struct {
	logger *logrus.Logger
}

// NewDecoder creates a decoder. A nil logger falls back to the default
// logrus logger.
func NewDecoder(logger *logrus.Logger) *Decoder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Decoder{logger: logger}
}

// Decode scans transaction logs for a trade event. A transaction
// without one is a normal outcome and returns (nil, false). Payloads
// carrying the trade discriminator but a wrong size are logged at Warn
// and skipped; payloads with other discriminators belong to other
// events and are ignored silently.
func (d *Decoder) Decode(logs []string) (*TradeEvent, bool) {
	for _, line := range logs {
		if !strings.HasPrefix(line, programDataPrefix) {
			continue
		}

		data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, programDataPrefix))
		if err != nil {
			d.logger.WithError(err).Warn("Skipping undecodable program data payload")
			continue
		}
		if len(data) < 8 {
			continue
		}

		var disc [8]byte
		copy(disc[:], data[:8])
		if disc != tradeEventDiscriminator {
			continue
		}

		if len(data) != tradeEventSize {
			d.logger.WithField("size", len(data)).Warn("Trade event payload has unexpected size")
			continue
		}

		return parseTradeEvent(data[8:]), true
	}
	return nil, false
}

// parseTradeEvent reads the borsh-encoded body. All integers are
// little-endian; the caller has already validated the length.
func parseTradeEvent(data []byte) *TradeEvent {
	off := 0

	mint := base58.Encode(data[off : off+32])
	off += 32
	trader := base58.Encode(data[off : off+32])
	off += 32
	isBuy := data[off] != 0
	off++

	readU64 := func() uint64 {
		v := binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
		return v
	}

	ev := &TradeEvent{
		Mint:                 mint,
		Trader:               trader,
		IsBuy:                isBuy,
		SolAmount:            readU64(),
		TokenAmount:          readU64(),
		ProtocolFee:          readU64(),
		CreatorFee:           readU64(),
		VirtualSolReserves:   readU64(),
		VirtualTokenReserves: readU64(),
	}
	ev.Timestamp = int64(readU64())
	return ev
}
