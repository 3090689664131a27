package journalreader

import (
	"github.com/rohan-flutterint/dragonfly/entry"
	"github.com/rohan-flutterint/dragonfly/execctx"
)

// Transaction is one logical unit of replay: either a single self-contained
// entry (a pseudo-transaction — OpCommand with ShardCnt==1, or a control
// entry like OpSelect/OpPing/OpLSN/OpFin), or an OpMultiCommand entry
// together with every entry up to and including its closing OpExec.
type Transaction struct {
	TxID    uint64
	Opcode  entry.Op
	DBID    uint32
	Slot    int64
	Entries []entry.Entry
}

// NextTx reads entries from r until it has assembled the next complete
// transaction, returning (tx, true). It returns (Transaction{}, false) once
// r is exhausted or errors; the caller can distinguish the two via ctx.Err().
func NextTx(r *Reader, ctx *execctx.Context) (Transaction, bool) {
	head, err := r.ReadEntry(ctx)
	if err != nil {
		return Transaction{}, false
	}

	if head.Opcode != entry.OpMultiCommand {
		return Transaction{
			TxID:    head.TxID,
			Opcode:  head.Opcode,
			DBID:    head.DBID,
			Slot:    head.Slot,
			Entries: []entry.Entry{head},
		}, true
	}

	tx := Transaction{
		TxID:    head.TxID,
		DBID:    head.DBID,
		Slot:    head.Slot,
		Entries: []entry.Entry{head},
	}
	for {
		next, err := r.ReadEntry(ctx)
		if err != nil {
			return Transaction{}, false
		}
		tx.Entries = append(tx.Entries, next)
		if next.Opcode == entry.OpExec && next.TxID == tx.TxID {
			tx.Opcode = entry.OpExec
			return tx, true
		}
	}
}
