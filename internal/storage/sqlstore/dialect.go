package sqlstore

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/habitkit/habits/internal/streak"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type dialect struct {
	name       string
	sqlDriver  string
	schema     []string
	numbered   bool   // $1, $2 placeholders instead of ?
	lockSuffix string // appended to row reads that precede a write
	uniqueErr  func(error) bool
	dayArg     func(time.Time) any
}

var sqliteDialect = dialect{
	name:      DriverSQLite,
	sqlDriver: "sqlite3",
	schema:    sqliteSchema,
	uniqueErr: func(err error) bool {
		var se sqlite3.Error
		return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
	},
	dayArg: func(d time.Time) any { return streak.Format(d) },
}

var postgresDialect = dialect{
	name:       DriverPostgres,
	sqlDriver:  "pgx",
	schema:     postgresSchema,
	numbered:   true,
	lockSuffix: " FOR UPDATE",
	uniqueErr: func(err error) bool {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == "23505"
	},
	dayArg: func(d time.Time) any { return d },
}

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// dayValue scans a completion date from either a TEXT (sqlite) or DATE
// (postgres) column.
type dayValue struct {
	t time.Time
}

func (d *dayValue) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		d.t = streak.Day(v, time.UTC)
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return errors.New("unsupported completion date type")
	}
}

func (d *dayValue) parse(s string) error {
	if len(s) > 10 {
		s = s[:10]
	}
	t, err := streak.Parse(s)
	if err != nil {
		return err
	}
	d.t = t
	return nil
}
