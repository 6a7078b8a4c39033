package repos

import (
	"context"

	trmsqlx "github.com/avito-tech/go-transaction-manager/drivers/sqlx/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	"github.com/jmoiron/sqlx"
)

// NewTxManager returns a transaction manager over db. Repository calls made
// inside Do with its context join the transaction.
func NewTxManager(db *sqlx.DB) *manager.Manager {
	return manager.Must(trmsqlx.NewDefaultFactory(db))
}

// conn returns the transaction bound to ctx, or db.
func conn(ctx context.Context, db *sqlx.DB) trmsqlx.Tr {
	return trmsqlx.DefaultCtxGetter.DefaultTrOrDB(ctx, db)
}
