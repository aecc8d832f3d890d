package database

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
)

// DumpTable writes every row of table to w as CSV with a header line.
// The table name is quoted, so it may be schema-qualified with a dot.
func (db *DB) DumpTable(ctx context.Context, table string, w io.Writer) (int64, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	sql := fmt.Sprintf(`COPY (SELECT * FROM %s) TO STDOUT WITH (FORMAT csv, HEADER true)`,
		identifierFor(table).Sanitize())
	tag, err := conn.Conn().PgConn().CopyTo(ctx, w, sql)
	if err != nil {
		return 0, fmt.Errorf("dump %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func identifierFor(table string) pgx.Identifier {
	return pgx.Identifier(strings.Split(table, "."))
}
