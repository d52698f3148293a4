// Package instruction encodes and decodes portfolio program instructions: an 8-byte
// discriminator followed by Borsh arguments.
package instruction

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/portfolio-ledger/internal/account"
	"github.com/portfolio-ledger/internal/types"
)

// DiscriminatorSize is the length of the instruction selector
const DiscriminatorSize = 8

// Instruction is one decoded portfolio program call
type Instruction interface {
	Name() types.InstructionName
	encodeArgs(enc *bin.Encoder) error
}

// Initialize creates the caller's portfolio
type Initialize struct{}

// CreatePortfolio sets the biography
type CreatePortfolio struct {
	Bio string
}

// StoreLinks appends links
type StoreLinks struct {
	Links []string
}

// StoreImage sets the image URL
type StoreImage struct {
	ImageURL string
}

// RequestVouch queues an endorsement request
type RequestVouch struct {
	Request account.VouchRequest
}

// ApproveVouch approves the pending request from VouchUser
type ApproveVouch struct {
	VouchUser solana.PublicKey
}

// SendMessage leaves a message from the signer
type SendMessage struct {
	Content string
}

// Tip adds Amount to the tip total
type Tip struct {
	Amount uint64
}

func (Initialize) Name() types.InstructionName { return types.InstructionInitialize }
func (CreatePortfolio) Name() types.InstructionName { return types.InstructionCreatePortfolio }
func (StoreLinks) Name() types.InstructionName { return types.InstructionStoreLinks }
func (StoreImage) Name() types.InstructionName { return types.InstructionStoreImage }
func (RequestVouch) Name() types.InstructionName { return types.InstructionRequestVouch }
func (ApproveVouch) Name() types.InstructionName { return types.InstructionApproveVouch }
func (SendMessage) Name() types.InstructionName { return types.InstructionSendMessage }
func (Tip) Name() types.InstructionName { return types.InstructionTip }

func (Initialize) encodeArgs(*bin.Encoder) error { return nil }

func (ix CreatePortfolio) encodeArgs(enc *bin.Encoder) error {
	return account.WriteString(enc, ix.Bio)
}

func (ix StoreLinks) encodeArgs(enc *bin.Encoder) error {
	if err := enc.WriteUint32(uint32(len(ix.Links)), bin.LE); err != nil {
		return err
	}
	for _, link := range ix.Links {
		if err := account.WriteString(enc, link); err != nil {
			return err
		}
	}
	return nil
}

func (ix StoreImage) encodeArgs(enc *bin.Encoder) error {
	return account.WriteString(enc, ix.ImageURL)
}

func (ix RequestVouch) encodeArgs(enc *bin.Encoder) error {
	if err := enc.WriteBytes(ix.Request.VouchedBy[:], false); err != nil {
		return err
	}
	return account.WriteString(enc, ix.Request.Comment)
}

func (ix ApproveVouch) encodeArgs(enc *bin.Encoder) error {
	return enc.WriteBytes(ix.VouchUser[:], false)
}

func (ix SendMessage) encodeArgs(enc *bin.Encoder) error {
	return account.WriteString(enc, ix.Content)
}

func (ix Tip) encodeArgs(enc *bin.Encoder) error {
	return enc.WriteUint64(ix.Amount, bin.LE)
}

var names = []types.InstructionName{
	types.InstructionInitialize,
	types.InstructionCreatePortfolio,
	types.InstructionStoreLinks,
	types.InstructionStoreImage,
	types.InstructionRequestVouch,
	types.InstructionApproveVouch,
	types.InstructionSendMessage,
	types.InstructionTip,
}

var (
	discriminators  = make(map[types.InstructionName][DiscriminatorSize]byte, len(names))
	byDiscriminator = make(map[[DiscriminatorSize]byte]types.InstructionName, len(names))
)

func init() {
	for _, name := range names {
		d := Discriminator(name)
		discriminators[name] = d
		byDiscriminator[d] = name
	}
}

// Discriminator returns sha256("global:<name>")[:8]
func Discriminator(name types.InstructionName) [DiscriminatorSize]byte {
	var d [DiscriminatorSize]byte
	sum := sha256.Sum256([]byte("global:" + string(name)))
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// Encode serializes an instruction
func Encode(ix Instruction) ([]byte, error) {
	d, ok := discriminators[ix.Name()]
	if !ok {
		return nil, fmt.Errorf("unknown instruction: %s", ix.Name())
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(d[:], false); err != nil {
		return nil, fmt.Errorf("failed to write instruction discriminator: %w", err)
	}
	if err := ix.encodeArgs(enc); err != nil {
		return nil, fmt.Errorf("failed to encode %s arguments: %w", ix.Name(), err)
	}
	return buf.Bytes(), nil
}

// Decode parses instruction data. Unknown discriminators, malformed arguments and
// trailing bytes are rejected with INVALID_INSTRUCTION.
func Decode(data []byte) (Instruction, error) {
	if len(data) < DiscriminatorSize {
		return nil, invalid("instruction data too short: %d bytes", len(data))
	}

	var d [DiscriminatorSize]byte
	copy(d[:], data[:DiscriminatorSize])
	name, ok := byDiscriminator[d]
	if !ok {
		return nil, invalid("unknown instruction discriminator %x", d)
	}

	dec := bin.NewBorshDecoder(data[DiscriminatorSize:])
	ix, err := decodeArgs(name, dec)
	if err != nil {
		return nil, invalid("malformed %s arguments: %v", name, err)
	}
	if dec.Remaining() > 0 {
		return nil, invalid("%d trailing bytes after %s arguments", dec.Remaining(), name)
	}
	return ix, nil
}

func decodeArgs(name types.InstructionName, dec *bin.Decoder) (Instruction, error) {
	switch name {
	case types.InstructionInitialize:
		return Initialize{}, nil
	case types.InstructionCreatePortfolio:
		bio, err := account.ReadString(dec)
		return CreatePortfolio{Bio: bio}, err
	case types.InstructionStoreLinks:
		links, err := account.ReadStringVec(dec)
		return StoreLinks{Links: links}, err
	case types.InstructionStoreImage:
		url, err := account.ReadString(dec)
		return StoreImage{ImageURL: url}, err
	case types.InstructionRequestVouch:
		voucher, err := account.ReadPublicKey(dec)
		if err != nil {
			return nil, err
		}
		comment, err := account.ReadString(dec)
		return RequestVouch{Request: account.VouchRequest{VouchedBy: voucher, Comment: comment}}, err
	case types.InstructionApproveVouch:
		voucher, err := account.ReadPublicKey(dec)
		return ApproveVouch{VouchUser: voucher}, err
	case types.InstructionSendMessage:
		content, err := account.ReadString(dec)
		return SendMessage{Content: content}, err
	case types.InstructionTip:
		amount, err := dec.ReadUint64(bin.LE)
		return Tip{Amount: amount}, err
	default:
		return nil, fmt.Errorf("unsupported instruction %s", name)
	}
}

func invalid(format string, args ...interface{}) error {
	return types.NewServiceError(types.CodeInvalidInstruction, format, args...)
}
