package wormhole

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const (
	supportedVAAVersion = 1
	signatureLength     = 65

	// version + guardian set index + signature count
	headerLength = 1 + 4 + 1
	// timestamp + nonce + emitter chain + emitter address + sequence + consistency level
	bodyMinLength = 4 + 4 + 2 + 32 + 8 + 1
)

var (
	ErrInvalidVAA      = errors.New("invalid vaa")
	ErrNoQuorum        = errors.New("vaa does not reach guardian quorum")
	ErrUnsortedSigners = errors.New("vaa signatures are not sorted by guardian index")
)

// Signature is a guardian signature over the VAA digest
type Signature struct {
	Index     uint8    `json:"guardian_index"`
	Signature [65]byte `json:"-"`
}

// VAA is a parsed Wormhole verified action approval
type VAA struct {
	Version          uint8          `json:"version"`
	GuardianSetIndex uint32         `json:"guardian_set_index"`
	Signatures       []Signature    `json:"signatures"`
	Timestamp        time.Time      `json:"timestamp"`
	Nonce            uint32         `json:"nonce"`
	EmitterChain     uint16         `json:"emitter_chain"`
	EmitterAddress   common.Hash    `json:"emitter_address"`
	Sequence         uint64         `json:"sequence"`
	ConsistencyLevel uint8          `json:"consistency_level"`
	Payload          HexBytes       `json:"payload"`
	body             []byte
}

// HexBytes marshals as 0x-prefixed hex
type HexBytes []byte

func (h HexBytes) MarshalText() ([]byte, error) {
	return []byte("0x" + hex.EncodeToString(h)), nil
}

// ParseVAA decodes the binary VAA layout
func ParseVAA(data []byte) (*VAA, error) {
	if len(data) < headerLength {
		return nil, errors.Wrap(ErrInvalidVAA, "too short")
	}

	r := bytes.NewReader(data)
	v := &VAA{}

	if err := binary.Read(r, binary.BigEndian, &v.Version); err != nil {
		return nil, errors.Wrap(ErrInvalidVAA, "version")
	}

	if v.Version != supportedVAAVersion {
		return nil, errors.Wrapf(ErrInvalidVAA, "unsupported version %d", v.Version)
	}

	if err := binary.Read(r, binary.BigEndian, &v.GuardianSetIndex); err != nil {
		return nil, errors.Wrap(ErrInvalidVAA, "guardian set index")
	}

	var count uint8
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, errors.Wrap(ErrInvalidVAA, "signature count")
	}

	v.Signatures = make([]Signature, count)
	for i := range v.Signatures {
		if err := binary.Read(r, binary.BigEndian, &v.Signatures[i].Index); err != nil {
			return nil, errors.Wrapf(ErrInvalidVAA, "signature %d index", i)
		}

		if n, err := r.Read(v.Signatures[i].Signature[:]); err != nil || n != signatureLength {
			return nil, errors.Wrapf(ErrInvalidVAA, "signature %d", i)
		}
	}

	bodyStart := len(data) - r.Len()
	if r.Len() < bodyMinLength {
		return nil, errors.Wrap(ErrInvalidVAA, "body too short")
	}

	v.body = data[bodyStart:]

	var unixTime uint32
	fields := []any{&unixTime, &v.Nonce, &v.EmitterChain, &v.EmitterAddress, &v.Sequence, &v.ConsistencyLevel}
	for _, field := range fields {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return nil, errors.Wrap(ErrInvalidVAA, "body")
		}
	}

	v.Timestamp = time.Unix(int64(unixTime), 0).UTC()

	payload := make([]byte, r.Len())
	_, _ = r.Read(payload)
	v.Payload = payload

	return v, nil
}

// Digest is keccak256(keccak256(body)), the message guardians sign
func (v *VAA) Digest() common.Hash {
	return crypto.Keccak256Hash(crypto.Keccak256(v.Body()))
}

// Quorum returns the number of signatures required for a guardian set of the given size
func Quorum(guardians int) int {
	return guardians*2/3 + 1
}

// Verify checks the signatures against the guardian set. Signer indexes must be strictly
// ascending and each signature must recover to the guardian at its index.
func (v *VAA) Verify(guardians []common.Address) error {
	if len(guardians) == 0 {
		return errors.Wrap(ErrNoQuorum, "empty guardian set")
	}

	if len(v.Signatures) < Quorum(len(guardians)) {
		return errors.Wrapf(ErrNoQuorum, "%d of %d signatures", len(v.Signatures), Quorum(len(guardians)))
	}

	digest := v.Digest()
	last := -1

	for _, sig := range v.Signatures {
		if int(sig.Index) <= last {
			return ErrUnsortedSigners
		}
		last = int(sig.Index)

		if int(sig.Index) >= len(guardians) {
			return errors.Wrapf(ErrInvalidVAA, "guardian index %d out of range", sig.Index)
		}

		pub, err := crypto.SigToPub(digest.Bytes(), sig.Signature[:])
		if err != nil {
			return errors.Wrapf(ErrInvalidVAA, "signature %d: %s", sig.Index, err.Error())
		}

		if crypto.PubkeyToAddress(*pub) != guardians[sig.Index] {
			return errors.Wrapf(ErrInvalidVAA, "signature %d does not match guardian", sig.Index)
		}
	}

	return nil
}

// Serialize re-encodes the VAA
func (v *VAA) Serialize() []byte {
	var buf bytes.Buffer

	buf.WriteByte(v.Version)
	_ = binary.Write(&buf, binary.BigEndian, v.GuardianSetIndex)
	buf.WriteByte(uint8(len(v.Signatures)))

	for _, sig := range v.Signatures {
		buf.WriteByte(sig.Index)
		buf.Write(sig.Signature[:])
	}

	buf.Write(v.Body())

	return buf.Bytes()
}

// Body returns the signed part of the VAA, encoding it from the fields when not parsed
func (v *VAA) Body() []byte {
	if v.body != nil {
		return v.body
	}

	var buf bytes.Buffer

	_ = binary.Write(&buf, binary.BigEndian, uint32(v.Timestamp.Unix()))
	_ = binary.Write(&buf, binary.BigEndian, v.Nonce)
	_ = binary.Write(&buf, binary.BigEndian, v.EmitterChain)
	buf.Write(v.EmitterAddress.Bytes())
	_ = binary.Write(&buf, binary.BigEndian, v.Sequence)
	buf.WriteByte(v.ConsistencyLevel)
	buf.Write(v.Payload)

	v.body = buf.Bytes()

	return v.body
}
