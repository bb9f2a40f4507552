package network

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/uuid"

	"github.com/LICODX/rnr-network/pkg/core"
	"github.com/LICODX/rnr-network/pkg/statedb"
)

var errStopIteration = errors.New("stop iteration")

type AuditKind string

const (
	AuditGenesis        AuditKind = "genesis"
	AuditRegister       AuditKind = "register"
	AuditStake          AuditKind = "stake"
	AuditUnstake        AuditKind = "unstake"
	AuditBoost          AuditKind = "boost"
	AuditPenalty        AuditKind = "penalty"
	AuditAdvanceCycle   AuditKind = "advance_cycle"
	AuditClaim          AuditKind = "claim"
	AuditAction         AuditKind = "action"
	AuditRegisterAction AuditKind = "register_action"
	AuditSetParameter   AuditKind = "set_parameter"
	AuditPause          AuditKind = "pause"
	AuditUnpause        AuditKind = "unpause"
	AuditWithdrawEscrow AuditKind = "withdraw_escrow"
	AuditTransferAdmin  AuditKind = "transfer_admin"
)

// AuditEvent is an append-only record of an economic or privileged change.
// Amount is signed: a penalty records the boost actually removed as a
// negative value, which may be smaller than the requested delta when the
// floor clamps it.
//
// Events form a hash chain: Hash is the keccak256 of the encoded event,
// which includes PrevHash.
type AuditEvent struct {
	ID       uuid.UUID      `json:"id"`
	Seq      uint64         `json:"seq"`
	Kind     AuditKind      `json:"kind"`
	At       core.Timestamp `json:"at"`
	Actor    common.Address `json:"actor"`
	Node     core.NodeID    `json:"node,omitempty"`
	Cycle    uint64         `json:"cycle,omitempty"`
	Amount   *big.Int       `json:"amount,omitempty"`
	Detail   string         `json:"detail,omitempty"`
	PrevHash common.Hash    `json:"prev_hash"`
	Hash     common.Hash    `json:"hash"`
}

type auditRecord struct {
	ID        [16]byte
	Seq       uint64
	Kind      string
	At        uint64
	Actor     common.Address
	Node      uint64
	Cycle     uint64
	AmountNeg bool
	AmountAbs *big.Int
	Detail    string
	PrevHash  common.Hash
}

// appendAudit stamps ev with the next sequence number and links it to the
// current head. At never goes below the previous event's time, so a clock
// stepped back still yields an ordered log.
func appendAudit(w statedb.Writer, now core.Timestamp, ev AuditEvent) (AuditEvent, error) {
	seq, err := getU64(w, keyAuditSeq)
	if err != nil {
		return ev, err
	}
	seq++
	last, err := getU64(w, keyAuditAt)
	if err != nil {
		return ev, err
	}
	if now < core.Timestamp(last) {
		now = core.Timestamp(last)
	}
	head, err := getHash(w, keyAuditHead)
	if err != nil {
		return ev, err
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return ev, fmt.Errorf("failed to allocate audit id: %w", err)
	}
	ev.ID = id
	ev.Seq = seq
	ev.At = now
	ev.PrevHash = head

	rec := auditRecord{
		ID:       ev.ID,
		Seq:      ev.Seq,
		Kind:     string(ev.Kind),
		At:       uint64(ev.At),
		Actor:    ev.Actor,
		Node:     uint64(ev.Node),
		Cycle:    ev.Cycle,
		Detail:   ev.Detail,
		PrevHash: head,
	}
	rec.AmountAbs = new(big.Int)
	if ev.Amount != nil {
		rec.AmountNeg = ev.Amount.Sign() < 0
		rec.AmountAbs.Abs(ev.Amount)
	}
	raw, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return ev, err
	}
	ev.Hash = crypto.Keccak256Hash(raw)
	w.Put(auditKey(seq), raw)
	w.Put(keyAuditSeq, encodeU64(seq))
	w.Put(keyAuditHead, ev.Hash.Bytes())
	w.Put(keyAuditAt, encodeU64(uint64(ev.At)))
	return ev, nil
}

func decodeAudit(b []byte) (AuditEvent, error) {
	var rec auditRecord
	if err := rlp.DecodeBytes(b, &rec); err != nil {
		return AuditEvent{}, fmt.Errorf("failed to decode audit event: %w", err)
	}
	ev := AuditEvent{
		ID:       rec.ID,
		Seq:      rec.Seq,
		Kind:     AuditKind(rec.Kind),
		At:       core.Timestamp(rec.At),
		Actor:    rec.Actor,
		Node:     core.NodeID(rec.Node),
		Cycle:    rec.Cycle,
		Detail:   rec.Detail,
		PrevHash: rec.PrevHash,
		Hash:     crypto.Keccak256Hash(b),
	}
	if rec.AmountAbs != nil && rec.AmountAbs.Sign() != 0 {
		ev.Amount = new(big.Int).Set(rec.AmountAbs)
		if rec.AmountNeg {
			ev.Amount.Neg(ev.Amount)
		}
	}
	return ev, nil
}

// Audit returns up to limit events with Seq >= from, oldest first. A
// non-positive limit returns everything.
func (n *Network) Audit(from uint64, limit int) ([]AuditEvent, error) {
	var events []AuditEvent
	err := n.view(func(r statedb.Reader, _ core.Timestamp, _ *Parameters) error {
		err := r.IterateRange(auditRange(from), func(_, v []byte) error {
			ev, err := decodeAudit(v)
			if err != nil {
				return err
			}
			events = append(events, ev)
			if limit > 0 && len(events) >= limit {
				return errStopIteration
			}
			return nil
		})
		if errors.Is(err, errStopIteration) {
			return nil
		}
		return err
	})
	return events, err
}
