package shared

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"

	"github.com/shopspring/decimal"
)

// SignatureDomain binds trade message signatures to a specific deployment,
// preventing replay across chains or contract versions.
type SignatureDomain struct {
	Name              string
	Version           string
	ChainID           uint64
	VerifyingContract string
}

// tradeMessageType is the structural type tag hashed into every trade
// message digest.
const tradeMessageType = "Trade(address taker,address maker,address fromToken,address toToken," +
	"uint256 fromAmount,uint256 toAmount,uint256 settlementTime,bytes32 quoteId)"

// TradeMessage represents the structured message both parties sign to
// authorize trade creation on the ledger.
type TradeMessage struct {
	Taker          string
	Maker          string
	FromToken      string
	ToToken        string
	FromAmount     decimal.Decimal
	ToAmount       decimal.Decimal
	SettlementTime int64
	// QuoteID is the quote-derived identifier bound into the signature,
	// see QuoteDigest.
	QuoteID string
}

// QuoteDigest derives the fixed-width quote identifier bound into trade
// signatures from a quote id.
func QuoteDigest(quoteID string) string {
	digest := sha256.Sum256([]byte(quoteID))
	return "0x" + hex.EncodeToString(digest[:])
}

// writeField writes a length-prefixed field into the digest, keeping the
// encoding unambiguous across adjacent fields.
func writeField(h hash.Hash, field []byte) {
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(field)))
	h.Write(length[:])
	h.Write(field)
}

func writeUint64(h hash.Hash, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	writeField(h, buf[:])
}

// Digest computes the domain-separated digest of the trade message. Both
// parties sign this digest; the ledger recomputes and verifies it.
func (m *TradeMessage) Digest(domain *SignatureDomain) []byte {
	h := sha256.New()

	writeField(h, []byte(domain.Name))
	writeField(h, []byte(domain.Version))
	writeUint64(h, domain.ChainID)
	writeField(h, []byte(domain.VerifyingContract))

	writeField(h, []byte(tradeMessageType))
	writeField(h, []byte(m.Taker))
	writeField(h, []byte(m.Maker))
	writeField(h, []byte(m.FromToken))
	writeField(h, []byte(m.ToToken))
	writeUint64(h, uint64(ToBaseUnits(m.FromAmount)))
	writeUint64(h, uint64(ToBaseUnits(m.ToAmount)))
	writeUint64(h, uint64(m.SettlementTime))
	writeField(h, []byte(m.QuoteID))

	return h.Sum(nil)
}
