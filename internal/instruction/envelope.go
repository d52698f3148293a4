package instruction

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/portfolio-ledger/internal/types"
)

// Envelope carries instruction data and, for signed calls, the signer's proof.
// The signature covers SigningMessage(address, Timestamp, Data).
type Envelope struct {
	Data      []byte
	Signer    *solana.PublicKey
	Signature *solana.Signature
	Timestamp int64 // unix milliseconds
}

type envelopeJSON struct {
	Data      string `json:"data"`
	Signer    string `json:"signer,omitempty"`
	Signature string `json:"signature,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// SigningMessage builds the bytes a signer signs: address || timestamp (u64 LE) || data
func SigningMessage(address solana.PublicKey, timestamp int64, data []byte) []byte {
	msg := make([]byte, 0, solana.PublicKeyLength+8+len(data))
	msg = append(msg, address[:]...)
	msg = binary.LittleEndian.AppendUint64(msg, uint64(timestamp))
	return append(msg, data...)
}

// Unsigned wraps an instruction that needs no signer
func Unsigned(ix Instruction) (*Envelope, error) {
	data, err := Encode(ix)
	if err != nil {
		return nil, err
	}
	return &Envelope{Data: data}, nil
}

// Sign encodes ix and signs it for the portfolio at address
func Sign(signer solana.PrivateKey, address solana.PublicKey, ix Instruction, at time.Time) (*Envelope, error) {
	data, err := Encode(ix)
	if err != nil {
		return nil, err
	}

	ts := at.UnixMilli()
	sig, err := signer.Sign(SigningMessage(address, ts, data))
	if err != nil {
		return nil, fmt.Errorf("failed to sign instruction: %w", err)
	}

	pub := signer.PublicKey()
	return &Envelope{
		Data:      data,
		Signer:    &pub,
		Signature: &sig,
		Timestamp: ts,
	}, nil
}

// IsSigned reports whether the envelope names a signer
func (e *Envelope) IsSigned() bool {
	return e.Signer != nil
}

// Verify checks the signature against address and that the timestamp lies within
// window of now. Unsigned envelopes pass; the caller decides whether a signer is required.
func (e *Envelope) Verify(address solana.PublicKey, now time.Time, window time.Duration) error {
	if e.Signer == nil {
		if e.Signature != nil {
			return types.NewServiceError(types.CodeInvalidSignature, "signature supplied without signer")
		}
		return nil
	}
	if e.Signature == nil {
		return types.NewServiceError(types.CodeInvalidSignature, "missing signature for signer %s", e.Signer)
	}

	if !e.Signature.Verify(*e.Signer, SigningMessage(address, e.Timestamp, e.Data)) {
		return types.NewServiceError(types.CodeInvalidSignature, "signature verification failed for signer %s", e.Signer).
			WithDetail("signer", e.Signer.String())
	}

	age := now.Sub(time.UnixMilli(e.Timestamp))
	if age > window || age < -window {
		return types.NewServiceError(types.CodeStaleSignature, "signature timestamp outside the %s window", window).
			WithDetail("timestamp", e.Timestamp)
	}
	return nil
}

// MarshalJSON encodes data as base64 and keys/signatures as base58
func (e Envelope) MarshalJSON() ([]byte, error) {
	out := envelopeJSON{
		Data:      base64.StdEncoding.EncodeToString(e.Data),
		Timestamp: e.Timestamp,
	}
	if e.Signer != nil {
		out.Signer = e.Signer.String()
	}
	if e.Signature != nil {
		out.Signature = e.Signature.String()
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON. Unknown fields are rejected.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var in envelopeJSON
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return err
	}

	data, err := base64.StdEncoding.DecodeString(in.Data)
	if err != nil {
		return fmt.Errorf("invalid instruction data encoding: %w", err)
	}
	*e = Envelope{Data: data, Timestamp: in.Timestamp}

	if in.Signer != "" {
		signer, err := solana.PublicKeyFromBase58(in.Signer)
		if err != nil {
			return fmt.Errorf("invalid signer: %w", err)
		}
		e.Signer = &signer
	}
	if in.Signature != "" {
		sig, err := solana.SignatureFromBase58(in.Signature)
		if err != nil {
			return fmt.Errorf("invalid signature: %w", err)
		}
		e.Signature = &sig
	}
	return nil
}
