package network

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/LICODX/rnr-network/pkg/core"
)

// Key layout. Numeric components are big-endian so prefix iteration walks
// them in ascending order.
var (
	nodePrefix     = []byte("n/")
	ownerPrefix    = []byte("o/")
	cyclePrefix    = []byte("c/")
	snapshotPrefix = []byte("s/")
	claimPrefix    = []byte("r/")
	paramPrefix    = []byte("p/")
	actionPrefix   = []byte("a/")
	auditPrefix    = []byte("e/")

	keyAdmin     = []byte("g/admin")
	keyPaused    = []byte("g/paused")
	keyState     = []byte("g/state")
	keyCycle     = []byte("g/cycle")
	keyNextNode  = []byte("g/nextnode")
	keyAuditSeq  = []byte("g/auditseq")
	keyAuditHead = []byte("g/audithead")
	keyAuditAt   = []byte("g/auditat")
	keyGenesisAt = []byte("g/genesis")
)

func u64Key(prefix []byte, parts ...uint64) []byte {
	k := make([]byte, len(prefix), len(prefix)+8*len(parts))
	copy(k, prefix)
	for _, p := range parts {
		k = binary.BigEndian.AppendUint64(k, p)
	}
	return k
}

func nodeKey(id core.NodeID) []byte { return u64Key(nodePrefix, uint64(id)) }

func ownerKey(addr common.Address) []byte {
	return append(append([]byte(nil), ownerPrefix...), addr.Bytes()...)
}

func cycleKey(n uint64) []byte { return u64Key(cyclePrefix, n) }

func snapshotKey(n uint64, id core.NodeID) []byte { return u64Key(snapshotPrefix, n, uint64(id)) }

func snapshotCycleKey(n uint64) []byte { return u64Key(snapshotPrefix, n) }

func claimKey(n uint64, id core.NodeID) []byte { return u64Key(claimPrefix, n, uint64(id)) }

func paramKey(name string) []byte {
	return append(append([]byte(nil), paramPrefix...), name...)
}

func actionKey(id core.ActionID) []byte { return u64Key(actionPrefix, uint64(id)) }

func auditKey(seq uint64) []byte { return u64Key(auditPrefix, seq) }

// auditRange covers the audit events with Seq >= from.
func auditRange(from uint64) *util.Range {
	return &util.Range{Start: auditKey(from), Limit: util.BytesPrefix(auditPrefix).Limit}
}

func encodeU64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func decodeU64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
