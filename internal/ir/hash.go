package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for a future algorithm change.
const (
	DomainCall    = "worldpurpose/call/v1"
	DomainReceipt = "worldpurpose/receipt/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
// The null separator keeps domain and data from running together.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CallID computes the content-addressed ID of a call.
// It is stable across replays given the same inputs.
func CallID(txToken string, action Action, caller string, args IRObject, seq int64) (string, error) {
	if args == nil {
		args = IRObject{}
	}
	obj := IRObject{
		"tx_token": IRString(txToken),
		"action":   IRString(action),
		"caller":   IRString(caller),
		"args":     args,
		"seq":      IRInt(seq),
	}

	canonical, err := marshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("CallID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCall, canonical), nil
}

// ReceiptID computes the content-addressed ID of a receipt.
func ReceiptID(callID, outputCase string, result IRObject, seq int64) (string, error) {
	if result == nil {
		result = IRObject{}
	}
	obj := IRObject{
		"call_id":     IRString(callID),
		"output_case": IRString(outputCase),
		"result":      result,
		"seq":         IRInt(seq),
	}

	canonical, err := marshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ReceiptID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainReceipt, canonical), nil
}

// MustCallID is like CallID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustCallID(txToken string, action Action, caller string, args IRObject, seq int64) string {
	id, err := CallID(txToken, action, caller, args, seq)
	if err != nil {
		panic(err)
	}
	return id
}
