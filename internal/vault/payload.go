package vault

import (
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// Timelocked function signatures. The 4-byte selector is the keccak prefix of
// the signature, and the canonical payload is selector || encoded arguments.
// Callers must submit and later replay the exact same bytes.
const (
	sigSetMaxSlippage       = "SetMaxSlippage(decimal)"
	sigSetEpochDuration     = "SetEpochDuration(duration)"
	sigAddToken             = "AddToken(address)"
	sigRemoveToken          = "RemoveToken(address)"
	sigAddFundingAdapter    = "AddFundingAdapter(string)"
	sigRemoveFundingAdapter = "RemoveFundingAdapter(string)"
	sigAddFacility          = "AddFacility(string,bytes)"
	sigRemoveFacility       = "RemoveFacility(hash)"
	sigBindCollateral       = "BindCollateralToken(hash,address)"
	sigUnbindCollateral     = "UnbindCollateralToken(hash)"
	sigBindDebt             = "BindDebtToken(hash,address)"
	sigUnbindDebt           = "UnbindDebtToken(hash)"
	sigIncreaseTimelock     = "IncreaseTimelock(selector,duration)"
)

type selector [4]byte

func selectorOf(signature string) selector {
	var s selector
	copy(s[:], crypto.Keccak256([]byte(signature))[:4])
	return s
}

// payloadWriter builds the canonical byte encoding of a privileged call.
// Variable-length fields carry a 4-byte big-endian length prefix so two
// different calls can never share an encoding.
type payloadWriter struct {
	buf []byte
}

func newPayload(signature string) *payloadWriter {
	sel := selectorOf(signature)
	return &payloadWriter{buf: append([]byte(nil), sel[:]...)}
}

func (w *payloadWriter) address(a common.Address) *payloadWriter {
	w.buf = append(w.buf, a.Bytes()...)
	return w
}

func (w *payloadWriter) hash(h common.Hash) *payloadWriter {
	w.buf = append(w.buf, h.Bytes()...)
	return w
}

func (w *payloadWriter) duration(d time.Duration) *payloadWriter {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(d))
	w.buf = append(w.buf, b[:]...)
	return w
}

func (w *payloadWriter) decimal(d decimal.Decimal) *payloadWriter {
	return w.bytes([]byte(d.String()))
}

func (w *payloadWriter) str(s string) *payloadWriter {
	return w.bytes([]byte(s))
}

func (w *payloadWriter) sel(s selector) *payloadWriter {
	w.buf = append(w.buf, s[:]...)
	return w
}

func (w *payloadWriter) bytes(b []byte) *payloadWriter {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	w.buf = append(w.buf, n[:]...)
	w.buf = append(w.buf, b...)
	return w
}

func (w *payloadWriter) encode() []byte {
	return append([]byte(nil), w.buf...)
}

func payloadSelector(payload []byte) (selector, error) {
	var s selector
	if len(payload) < len(s) {
		return s, ErrPayloadTooShort
	}
	copy(s[:], payload[:4])
	return s, nil
}

func payloadKey(payload []byte) common.Hash {
	return crypto.Keccak256Hash(payload)
}

// ActionKey is the pending-queue identity of a canonical payload.
func ActionKey(payload []byte) common.Hash {
	return payloadKey(payload)
}

// Payload encode helpers used both by the engine (to verify the exact bytes at
// execution time) and by callers building a submission.

func EncodeSetMaxSlippage(d decimal.Decimal) []byte {
	return newPayload(sigSetMaxSlippage).decimal(d).encode()
}

func EncodeSetEpochDuration(d time.Duration) []byte {
	return newPayload(sigSetEpochDuration).duration(d).encode()
}

func EncodeAddToken(token common.Address) []byte {
	return newPayload(sigAddToken).address(token).encode()
}

func EncodeRemoveToken(token common.Address) []byte {
	return newPayload(sigRemoveToken).address(token).encode()
}

func EncodeAddFundingAdapter(name string) []byte {
	return newPayload(sigAddFundingAdapter).str(name).encode()
}

func EncodeRemoveFundingAdapter(name string) []byte {
	return newPayload(sigRemoveFundingAdapter).str(name).encode()
}

func EncodeAddFacility(adapterName string, descriptor []byte) []byte {
	return newPayload(sigAddFacility).str(adapterName).bytes(descriptor).encode()
}

func EncodeRemoveFacility(id common.Hash) []byte {
	return newPayload(sigRemoveFacility).hash(id).encode()
}

func EncodeBindCollateralToken(id common.Hash, token common.Address) []byte {
	return newPayload(sigBindCollateral).hash(id).address(token).encode()
}

func EncodeUnbindCollateralToken(id common.Hash) []byte {
	return newPayload(sigUnbindCollateral).hash(id).encode()
}

func EncodeBindDebtToken(id common.Hash, token common.Address) []byte {
	return newPayload(sigBindDebt).hash(id).address(token).encode()
}

func EncodeUnbindDebtToken(id common.Hash) []byte {
	return newPayload(sigUnbindDebt).hash(id).encode()
}

func EncodeIncreaseTimelock(signature string, d time.Duration) []byte {
	return newPayload(sigIncreaseTimelock).sel(selectorOf(signature)).duration(d).encode()
}

// FacilityID derives the identity of a funding relationship from the adapter
// name and the opaque market descriptor.
func FacilityID(adapterName string, descriptor []byte) common.Hash {
	return crypto.Keccak256Hash([]byte(adapterName), descriptor)
}
