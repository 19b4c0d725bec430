package spanner

import (
	"context"

	"cloud.google.com/go/spanner"
)

// txKey carries an active read-write transaction; roTxKey carries an
// active read-only transaction. A context carries at most one of the two.
type txKey struct{}
type roTxKey struct{}

// ReadTransaction is the subset of *spanner.ReadWriteTransaction and
// *spanner.ReadOnlyTransaction a repository needs to read rows. It lets
// a FindMany/Statistics-style method run its queries against whichever
// transaction is active without knowing which kind it is.
type ReadTransaction interface {
	ReadRow(ctx context.Context, table string, key spanner.Key, columns []string) (*spanner.Row, error)
	Read(ctx context.Context, table string, keys spanner.KeySet, columns []string) *spanner.RowIterator
	Query(ctx context.Context, stmt spanner.Statement) *spanner.RowIterator
}

// WithReadWriteTx attaches an active read-write transaction to ctx.
func WithReadWriteTx(ctx context.Context, tx *spanner.ReadWriteTransaction) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// ReadWriteTxFromContext extracts an active read-write transaction, for
// buffering mutations.
func ReadWriteTxFromContext(ctx context.Context) (*spanner.ReadWriteTransaction, bool) {
	tx, ok := ctx.Value(txKey{}).(*spanner.ReadWriteTransaction)
	return tx, ok
}

// WithReadOnlyTx attaches an active read-only transaction to ctx.
func WithReadOnlyTx(ctx context.Context, tx *spanner.ReadOnlyTransaction) context.Context {
	return context.WithValue(ctx, roTxKey{}, tx)
}

// ReadTransactionFromContext extracts whichever transaction is active
// for reads: a read-write transaction takes priority since it can also
// read, falling back to a read-only transaction.
func ReadTransactionFromContext(ctx context.Context) (ReadTransaction, bool) {
	if tx, ok := ctx.Value(txKey{}).(*spanner.ReadWriteTransaction); ok {
		return tx, true
	}
	if tx, ok := ctx.Value(roTxKey{}).(*spanner.ReadOnlyTransaction); ok {
		return tx, true
	}
	return nil, false
}
