package models

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var byteOrder = binary.LittleEndian

// writeString writes a uint16 length-prefixed UTF-8 string.
func writeString(w io.Writer, s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("string too long: %d bytes", len(s))
	}
	if err := binary.Write(w, byteOrder, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// readString reads a uint16 length-prefixed UTF-8 string.
func readString(r io.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, byteOrder, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeAddress(w io.Writer, addr common.Address) error {
	_, err := w.Write(addr[:])
	return err
}

func readAddress(r io.Reader) (common.Address, error) {
	var addr common.Address
	_, err := io.ReadFull(r, addr[:])
	return addr, err
}

// writeUint256 writes a fixed 32-byte big-endian word; nil is written as zero.
func writeUint256(w io.Writer, v *uint256.Int) error {
	if v == nil {
		v = new(uint256.Int)
	}
	word := v.Bytes32()
	_, err := w.Write(word[:])
	return err
}

func readUint256(r io.Reader) (*uint256.Int, error) {
	var word [32]byte
	if _, err := io.ReadFull(r, word[:]); err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes32(word[:]), nil
}

// EncodeParticipant serializes a participant.
// Format: address(20) referrer(20) reward(32) referredCount(uint64) lastActiveAt(int64)
func EncodeParticipant(p Participant) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(20 + 20 + 32 + 8 + 8)
	if err := writeAddress(&buf, p.Address); err != nil {
		return nil, err
	}
	if err := writeAddress(&buf, p.Referrer); err != nil {
		return nil, err
	}
	if err := writeUint256(&buf, p.RewardBalance); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, byteOrder, p.ReferredCount); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, byteOrder, p.LastActiveAt); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeParticipant(data []byte) (Participant, error) {
	r := bytes.NewReader(data)
	var p Participant
	var err error
	if p.Address, err = readAddress(r); err != nil {
		return Participant{}, fmt.Errorf("participant address: %w", err)
	}
	if p.Referrer, err = readAddress(r); err != nil {
		return Participant{}, fmt.Errorf("participant referrer: %w", err)
	}
	if p.RewardBalance, err = readUint256(r); err != nil {
		return Participant{}, fmt.Errorf("participant reward: %w", err)
	}
	if err = binary.Read(r, byteOrder, &p.ReferredCount); err != nil {
		return Participant{}, fmt.Errorf("participant referred count: %w", err)
	}
	if err = binary.Read(r, byteOrder, &p.LastActiveAt); err != nil {
		return Participant{}, fmt.Errorf("participant last active: %w", err)
	}
	return p, nil
}

// EncodeReceipt serializes a receipt.
// Format: reference(uint16 len + bytes) subject(20) amount(32) points(32) createdAt(int64)
func EncodeReceipt(rc Receipt) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeString(&buf, rc.Reference); err != nil {
		return nil, err
	}
	if err := writeAddress(&buf, rc.Subject); err != nil {
		return nil, err
	}
	if err := writeUint256(&buf, rc.PurchaseAmount); err != nil {
		return nil, err
	}
	if err := writeUint256(&buf, rc.TotalPoints); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, byteOrder, rc.CreatedAt); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeReceipt(data []byte) (Receipt, error) {
	r := bytes.NewReader(data)
	var rc Receipt
	var err error
	if rc.Reference, err = readString(r); err != nil {
		return Receipt{}, fmt.Errorf("receipt reference: %w", err)
	}
	if rc.Subject, err = readAddress(r); err != nil {
		return Receipt{}, fmt.Errorf("receipt subject: %w", err)
	}
	if rc.PurchaseAmount, err = readUint256(r); err != nil {
		return Receipt{}, fmt.Errorf("receipt amount: %w", err)
	}
	if rc.TotalPoints, err = readUint256(r); err != nil {
		return Receipt{}, fmt.Errorf("receipt points: %w", err)
	}
	if err = binary.Read(r, byteOrder, &rc.CreatedAt); err != nil {
		return Receipt{}, fmt.Errorf("receipt created at: %w", err)
	}
	return rc, nil
}
