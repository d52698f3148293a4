package account

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	// DiscriminatorSize is the length of the account type prefix
	DiscriminatorSize = 8

	// DefaultSpace is the size reserved for a portfolio account:
	// discriminator, owner, bio(4+30), links(4+2*50), image_url(4+30),
	// vouches(4+3*56), vouch_requests(4+3*56), messages(4+2*46), tip_amount, bump.
	DefaultSpace = 8 + 32 + (4 + 30) + (4 + 50*2) + (4 + 30) +
		(4 + 3*(32+4+20)) + (4 + 3*(32+4+20)) + (4 + 2*(32+4+10)) + 8 + 1
)

// Discriminator prefixes every encoded portfolio account
var Discriminator = accountDiscriminator("Portfolio")

func accountDiscriminator(name string) [DiscriminatorSize]byte {
	var d [DiscriminatorSize]byte
	sum := sha256.Sum256([]byte("account:" + name))
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// Size returns the encoded length of the account, discriminator included
func (p *Portfolio) Size() int {
	size := DiscriminatorSize + solana.PublicKeyLength
	size += 4 + len(p.Bio)
	size += 4
	for _, link := range p.Links {
		size += 4 + len(link)
	}
	size += 4 + len(p.ImageURL)
	size += 4
	for _, v := range p.Vouches {
		size += solana.PublicKeyLength + 4 + len(v.Comment)
	}
	size += 4
	for _, v := range p.VouchRequests {
		size += solana.PublicKeyLength + 4 + len(v.Comment)
	}
	size += 4
	for _, m := range p.Messages {
		size += solana.PublicKeyLength + 4 + len(m.Content)
	}
	return size + 8 + 1
}

// MarshalWithEncoder writes the account body (without discriminator)
func (p *Portfolio) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteBytes(p.Owner[:], false); err != nil {
		return err
	}
	if err := WriteString(enc, p.Bio); err != nil {
		return err
	}
	if err := enc.WriteUint32(uint32(len(p.Links)), bin.LE); err != nil {
		return err
	}
	for _, link := range p.Links {
		if err := WriteString(enc, link); err != nil {
			return err
		}
	}
	if err := WriteString(enc, p.ImageURL); err != nil {
		return err
	}
	if err := enc.WriteUint32(uint32(len(p.Vouches)), bin.LE); err != nil {
		return err
	}
	for _, v := range p.Vouches {
		if err := writeKeyedString(enc, v.VouchedBy, v.Comment); err != nil {
			return err
		}
	}
	if err := enc.WriteUint32(uint32(len(p.VouchRequests)), bin.LE); err != nil {
		return err
	}
	for _, v := range p.VouchRequests {
		if err := writeKeyedString(enc, v.VouchedBy, v.Comment); err != nil {
			return err
		}
	}
	if err := enc.WriteUint32(uint32(len(p.Messages)), bin.LE); err != nil {
		return err
	}
	for _, m := range p.Messages {
		if err := writeKeyedString(enc, m.Sender, m.Content); err != nil {
			return err
		}
	}
	if err := enc.WriteUint64(p.TipAmount, bin.LE); err != nil {
		return err
	}
	return enc.WriteUint8(p.Bump)
}

// UnmarshalWithDecoder reads the account body (without discriminator)
func (p *Portfolio) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if p.Owner, err = ReadPublicKey(dec); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	if p.Bio, err = ReadString(dec); err != nil {
		return fmt.Errorf("bio: %w", err)
	}

	n, err := readLength(dec, 4)
	if err != nil {
		return fmt.Errorf("links: %w", err)
	}
	p.Links = make([]string, n)
	for i := range p.Links {
		if p.Links[i], err = ReadString(dec); err != nil {
			return fmt.Errorf("links[%d]: %w", i, err)
		}
	}

	if p.ImageURL, err = ReadString(dec); err != nil {
		return fmt.Errorf("image_url: %w", err)
	}

	if n, err = readLength(dec, solana.PublicKeyLength+4); err != nil {
		return fmt.Errorf("vouches: %w", err)
	}
	p.Vouches = make([]Vouch, n)
	for i := range p.Vouches {
		if p.Vouches[i].VouchedBy, p.Vouches[i].Comment, err = readKeyedString(dec); err != nil {
			return fmt.Errorf("vouches[%d]: %w", i, err)
		}
	}

	if n, err = readLength(dec, solana.PublicKeyLength+4); err != nil {
		return fmt.Errorf("vouch_requests: %w", err)
	}
	p.VouchRequests = make([]VouchRequest, n)
	for i := range p.VouchRequests {
		if p.VouchRequests[i].VouchedBy, p.VouchRequests[i].Comment, err = readKeyedString(dec); err != nil {
			return fmt.Errorf("vouch_requests[%d]: %w", i, err)
		}
	}

	if n, err = readLength(dec, solana.PublicKeyLength+4); err != nil {
		return fmt.Errorf("messages: %w", err)
	}
	p.Messages = make([]Message, n)
	for i := range p.Messages {
		if p.Messages[i].Sender, p.Messages[i].Content, err = readKeyedString(dec); err != nil {
			return fmt.Errorf("messages[%d]: %w", i, err)
		}
	}

	if p.TipAmount, err = dec.ReadUint64(bin.LE); err != nil {
		return fmt.Errorf("tip_amount: %w", err)
	}
	if p.Bump, err = dec.ReadUint8(); err != nil {
		return fmt.Errorf("bump: %w", err)
	}
	return nil
}

// Encode serializes the account with its discriminator
func Encode(p *Portfolio) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, p.Size()))
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(Discriminator[:], false); err != nil {
		return nil, fmt.Errorf("failed to write discriminator: %w", err)
	}
	if err := p.MarshalWithEncoder(enc); err != nil {
		return nil, fmt.Errorf("failed to encode portfolio: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses account data produced by Encode. Trailing zero padding up to the
// reserved space is accepted.
func Decode(data []byte) (*Portfolio, error) {
	if len(data) < DiscriminatorSize {
		return nil, fmt.Errorf("account data too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:DiscriminatorSize], Discriminator[:]) {
		return nil, fmt.Errorf("account discriminator mismatch")
	}

	var p Portfolio
	dec := bin.NewBorshDecoder(data[DiscriminatorSize:])
	if err := p.UnmarshalWithDecoder(dec); err != nil {
		return nil, fmt.Errorf("failed to decode portfolio: %w", err)
	}
	return &p, nil
}

// ReadPublicKey reads a 32-byte public key
func ReadPublicKey(dec *bin.Decoder) (solana.PublicKey, error) {
	b, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(b), nil
}

// ReadString reads a u32 length-prefixed UTF-8 string
func ReadString(dec *bin.Decoder) (string, error) {
	n, err := readLength(dec, 1)
	if err != nil {
		return "", err
	}
	b, err := dec.ReadNBytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadStringVec reads a u32 length-prefixed vector of strings
func ReadStringVec(dec *bin.Decoder) ([]string, error) {
	n, err := readLength(dec, 4)
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		if out[i], err = ReadString(dec); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return out, nil
}

// readLength reads a u32 length and rejects values that cannot fit in the remaining
// input, given the minimum encoded size of one element.
func readLength(dec *bin.Decoder, minElemSize int) (int, error) {
	n, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return 0, err
	}
	if int64(n)*int64(minElemSize) > int64(dec.Remaining()) {
		return 0, fmt.Errorf("length %d exceeds remaining %d bytes", n, dec.Remaining())
	}
	return int(n), nil
}

// WriteString writes a u32 length-prefixed string
func WriteString(enc *bin.Encoder, s string) error {
	if err := enc.WriteUint32(uint32(len(s)), bin.LE); err != nil {
		return err
	}
	return enc.WriteBytes([]byte(s), false)
}

func writeKeyedString(enc *bin.Encoder, key solana.PublicKey, s string) error {
	if err := enc.WriteBytes(key[:], false); err != nil {
		return err
	}
	return WriteString(enc, s)
}

func readKeyedString(dec *bin.Decoder) (solana.PublicKey, string, error) {
	key, err := ReadPublicKey(dec)
	if err != nil {
		return solana.PublicKey{}, "", err
	}
	s, err := ReadString(dec)
	if err != nil {
		return solana.PublicKey{}, "", err
	}
	return key, s, nil
}
