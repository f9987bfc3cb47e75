// Package testutil provides an in-memory database/sql driver that understands
// the statement shapes issued by the postgres snapshot sink.
package testutil

import (
	"cmp"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var (
	insertRe = regexp.MustCompile(`(?is)^\s*insert\s+into\s+(\w+)\s*\(([^)]*)\)(?:.*?on\s+conflict\s*\(\s*(\w+)\s*\)\s*do\s+(nothing|update))?`)
	deleteRe = regexp.MustCompile(`(?is)^\s*delete\s+from\s+(\w+)\s+where\s+(\w+)\s*=\s*\$1\s*$`)
	selectRe = regexp.MustCompile(`(?is)^\s*select\s+(.+?)\s+from\s+(\w+)(?:\s+order\s+by\s+(\w+)(\s+desc)?)?(?:\s+limit\s+(\d+))?\s*$`)

	driverSeq atomic.Int64
)

// StubConn keeps rows per table and records every Exec statement. The Fail
// fields inject errors into the matching driver call.
type StubConn struct {
	Execs  []string
	Tables map[string][]map[string]any

	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailTables map[string]bool
	RowsErr    error
}

// NewStubDB registers a fresh driver and opens a sql.DB on it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := "farmvault-stub-" + strconv.FormatInt(driverSeq.Add(1), 10)
	sql.Register(name, stubDriver{conn: conn})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct{ conn *StubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn. Only the context variants are supported.
func (c *StubConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements driver.ConnBeginTx. Transactions are not isolated.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, errors.New("stub: begin failed")
	}
	return stubTx{conn: c}, nil
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailExec {
		return errors.New("stub: ping failed")
	}
	return nil
}

func (c *StubConn) failTable(table string) error {
	if c.FailTables[table] {
		return fmt.Errorf("stub: table %s unavailable", table)
	}
	return nil
}

// ExecContext implements driver.ExecerContext for INSERT (with optional
// ON CONFLICT) and single-column DELETE. Other statements are accepted as
// no-ops.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, errors.New("stub: exec failed")
	}
	if m := insertRe.FindStringSubmatch(query); m != nil {
		return c.insert(strings.ToLower(m[1]), columns(m[2]), strings.ToLower(m[3]), strings.EqualFold(m[4], "nothing"), args)
	}
	if m := deleteRe.FindStringSubmatch(query); m != nil {
		if len(args) != 1 {
			return nil, fmt.Errorf("stub: delete wants one argument, got %d", len(args))
		}
		return c.delete(strings.ToLower(m[1]), strings.ToLower(m[2]), args[0].Value)
	}
	return driver.RowsAffected(0), nil
}

func (c *StubConn) insert(table string, cols []string, conflict string, skip bool, args []driver.NamedValue) (driver.Result, error) {
	if err := c.failTable(table); err != nil {
		return nil, err
	}
	if len(cols) != len(args) {
		return nil, fmt.Errorf("stub: %s has %d columns and %d arguments", table, len(cols), len(args))
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	if conflict != "" {
		i := slices.IndexFunc(c.Tables[table], func(r map[string]any) bool { return r[conflict] == row[conflict] })
		switch {
		case i >= 0 && skip:
			return driver.RowsAffected(0), nil
		case i >= 0:
			c.Tables[table][i] = row
			return driver.RowsAffected(1), nil
		}
	}
	c.Tables[table] = append(c.Tables[table], row)
	return driver.RowsAffected(1), nil
}

func (c *StubConn) delete(table, col string, value any) (driver.Result, error) {
	if err := c.failTable(table); err != nil {
		return nil, err
	}
	before := len(c.Tables[table])
	c.Tables[table] = slices.DeleteFunc(c.Tables[table], func(r map[string]any) bool { return r[col] == value })
	return driver.RowsAffected(before - len(c.Tables[table])), nil
}

// QueryContext implements driver.QueryerContext. A single ORDER BY column,
// DESC and LIMIT are honoured.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	m := selectRe.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("stub: unsupported query: %s", query)
	}
	cols, table, orderBy := columns(m[1]), strings.ToLower(m[2]), strings.ToLower(m[3])
	if err := c.failTable(table); err != nil {
		return nil, err
	}
	rows := slices.Clone(c.Tables[table])
	if orderBy != "" {
		desc := m[4] != ""
		slices.SortStableFunc(rows, func(a, b map[string]any) int {
			n := compare(a[orderBy], b[orderBy])
			if desc {
				return -n
			}
			return n
		})
	}
	if m[5] != "" {
		if limit, _ := strconv.Atoi(m[5]); limit < len(rows) {
			rows = rows[:limit]
		}
	}
	out := &stubRows{cols: cols, err: c.RowsErr}
	for _, r := range rows {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = r[col]
		}
		out.rows = append(out.rows, vals)
	}
	return out, nil
}

func compare(a, b any) int {
	switch x := a.(type) {
	case time.Time:
		y, _ := b.(time.Time)
		return x.Compare(y)
	case int64:
		y, _ := b.(int64)
		return cmp.Compare(x, y)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func columns(list string) []string {
	var out []string
	for _, col := range strings.Split(list, ",") {
		out = append(out, strings.ToLower(strings.TrimSpace(col)))
	}
	return out
}

type stubTx struct{ conn *StubConn }

func (t stubTx) Commit() error {
	if t.conn.FailCommit {
		return errors.New("stub: commit failed")
	}
	return nil
}

func (stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	next int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }

func (r *stubRows) Close() error { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.next == len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.next])
	r.next++
	return nil
}
