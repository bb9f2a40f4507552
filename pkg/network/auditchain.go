package network

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/LICODX/rnr-network/pkg/core"
	"github.com/LICODX/rnr-network/pkg/statedb"
)

var ErrAuditChainBroken = errors.New("audit chain broken")

type auditCheckpoint struct {
	Seq  uint64
	Hash common.Hash
	At   core.Timestamp
}

// AuditHead is the hash of the newest audit event, or the zero hash before
// genesis.
func (n *Network) AuditHead() (common.Hash, error) {
	var head common.Hash
	err := n.view(func(r statedb.Reader, _ core.Timestamp, _ *Parameters) error {
		var err error
		head, err = getHash(r, keyAuditHead)
		return err
	})
	return head, err
}

// VerifyAudit checks the events appended since the last successful check:
// sequence numbers are contiguous, timestamps never go backwards, every
// event links to its predecessor's hash and the last hash is the stored
// head. The event the previous check ended on is re-hashed, older events
// are not revisited. It returns the length of the verified log.
func (n *Network) VerifyAudit() (uint64, error) {
	return n.verifyAudit(n.auditVerified.Load())
}

// VerifyAuditFull is VerifyAudit over the whole log.
func (n *Network) VerifyAuditFull() (uint64, error) {
	return n.verifyAudit(nil)
}

func (n *Network) verifyAudit(from *auditCheckpoint) (uint64, error) {
	var last auditCheckpoint
	err := n.view(func(r statedb.Reader, _ core.Timestamp, _ *Parameters) error {
		if from != nil {
			raw, err := r.Get(auditKey(from.Seq))
			if errors.Is(err, statedb.ErrNotFound) {
				return fmt.Errorf("%w: event %d is gone", ErrAuditChainBroken, from.Seq)
			}
			if err != nil {
				return err
			}
			if crypto.Keccak256Hash(raw) != from.Hash {
				return fmt.Errorf("%w: event %d was rewritten", ErrAuditChainBroken, from.Seq)
			}
			last = *from
		}

		err := r.IterateRange(auditRange(last.Seq+1), func(k, v []byte) error {
			ev, err := decodeAudit(v)
			if err != nil {
				return err
			}
			if key := decodeU64(k[len(auditPrefix):]); key != ev.Seq {
				return fmt.Errorf("%w: event %d stored under key %d", ErrAuditChainBroken, ev.Seq, key)
			}
			if ev.Seq != last.Seq+1 {
				return fmt.Errorf("%w: event %d follows %d", ErrAuditChainBroken, ev.Seq, last.Seq)
			}
			if ev.At < last.At {
				return fmt.Errorf("%w: event %d is older than event %d", ErrAuditChainBroken, ev.Seq, last.Seq)
			}
			if ev.PrevHash != last.Hash {
				return fmt.Errorf("%w: event %d does not link to event %d", ErrAuditChainBroken, ev.Seq, last.Seq)
			}
			last = auditCheckpoint{Seq: ev.Seq, Hash: ev.Hash, At: ev.At}
			return nil
		})
		if err != nil {
			return err
		}

		head, err := getHash(r, keyAuditHead)
		if err != nil {
			return err
		}
		if head != last.Hash {
			return fmt.Errorf("%w: head %s, last event %s", ErrAuditChainBroken, head.Hex(), last.Hash.Hex())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if cur := n.auditVerified.Load(); last.Seq > 0 && (cur == nil || cur.Seq < last.Seq) {
		n.auditVerified.Store(&last)
	}
	return last.Seq, nil
}
