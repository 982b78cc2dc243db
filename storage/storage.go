/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package storage implements the relational store shared by the aggregation engine.
//
// Both an embedded sqlite3 database and a postgres server are supported, selected by
// the scheme of a database url. Queries are written with `?` placeholders and rebound
// for the active dialect. Every call is bounded by the configured query timeout and
// failures are surfaced to the caller without retries.
//
// The sqlite3 driver only guarantees the safety of concurrent readers, so a sqlite3
// store is restricted to a single open connection. Code running inside a transaction
// must only use the transaction, never the store, or it will block forever.
package storage

import (
	"context"
	"database/sql"
	"time"

	sqlite3 "github.com/CovenantSQL/go-sqlite3-encrypt"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/pkg/errors"
	"github.com/xo/dburl"
	gorp "gopkg.in/gorp.v2"

	"github.com/CovenantSQL/trustindex/utils/log"
)

// Dialect defines the sql flavor of the store.
type Dialect int

const (
	// DialectSQLite is the embedded sqlite3 dialect.
	DialectSQLite Dialect = iota
	// DialectPostgres is the postgres dialect.
	DialectPostgres
)

func (d Dialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite3"
	case DialectPostgres:
		return "postgres"
	}
	return "unknown"
}

const (
	sqliteDriver   = "sqlite3-trustindex"
	postgresDriver = "pgx"
)

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(c *sqlite3.SQLiteConn) (err error) {
			_, err = c.Exec("PRAGMA foreign_keys=OFF", nil)
			return
		},
	})
}

// Querier is the set of bounded operations shared by a Store and a Tx.
type Querier interface {
	Dialect() Dialect
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectOne(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectInt(ctx context.Context, query string, args ...interface{}) (int64, error)
	Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Insert(ctx context.Context, rows ...interface{}) error
	Update(ctx context.Context, rows ...interface{}) (int64, error)
	Columns(row interface{}) ([]string, error)
}

type executor struct {
	dbMap   *gorp.DbMap
	with    func(ctx context.Context) gorp.SqlExecutor
	dialect Dialect
	timeout time.Duration
}

func (e *executor) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return context.WithCancel(ctx)
}

// Dialect returns the sql dialect.
func (e *executor) Dialect() Dialect {
	return e.dialect
}

// Select runs a query and fills dest, which must be a pointer to a slice.
func (e *executor) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) (err error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()
	if _, err = e.with(ctx).Select(dest, Rebind(e.dialect, query), args...); err != nil {
		err = errors.Wrap(err, "select failed")
	}
	return
}

// SelectOne runs a query returning exactly one row, sql.ErrNoRows is returned as cause if absent.
func (e *executor) SelectOne(ctx context.Context, dest interface{}, query string, args ...interface{}) (err error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()
	if err = e.with(ctx).SelectOne(dest, Rebind(e.dialect, query), args...); err != nil {
		err = errors.Wrap(err, "select one failed")
	}
	return
}

// SelectInt runs a query returning a single integer.
func (e *executor) SelectInt(ctx context.Context, query string, args ...interface{}) (v int64, err error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()
	if v, err = e.with(ctx).SelectInt(Rebind(e.dialect, query), args...); err != nil {
		err = errors.Wrap(err, "select int failed")
	}
	return
}

// Exec runs a statement.
func (e *executor) Exec(ctx context.Context, query string, args ...interface{}) (r sql.Result, err error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()
	if r, err = e.with(ctx).Exec(Rebind(e.dialect, query), args...); err != nil {
		err = errors.Wrap(err, "exec failed")
	}
	return
}

// Insert inserts rows into their registered tables.
func (e *executor) Insert(ctx context.Context, rows ...interface{}) (err error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()
	if err = e.with(ctx).Insert(rows...); err != nil {
		err = errors.Wrap(err, "insert failed")
	}
	return
}

// Update updates rows in their registered tables by primary key.
func (e *executor) Update(ctx context.Context, rows ...interface{}) (n int64, err error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()
	if n, err = e.with(ctx).Update(rows...); err != nil {
		err = errors.Wrap(err, "update failed")
	}
	return
}

// Columns returns the column names of the table registered for row.
func (e *executor) Columns(row interface{}) ([]string, error) {
	return columnsOf(e.dbMap, row)
}

// Store is the relational store.
type Store struct {
	executor
	db *sql.DB
}

// Open opens a store from a database url, e.g. sqlite3:/path/index.db or postgres://host/db.
func Open(rawURL string, queryTimeout time.Duration) (s *Store, err error) {
	var u *dburl.URL
	if u, err = dburl.Parse(rawURL); err != nil {
		err = errors.Wrapf(err, "parse database url")
		return
	}

	switch u.Driver {
	case "sqlite3":
		return OpenSQLite(u.DSN, queryTimeout)
	case "postgres":
		return OpenPostgres(u.DSN, queryTimeout)
	default:
		err = errors.Wrapf(ErrUnsupportedDriver, "driver %s", u.Driver)
		return
	}
}

// OpenSQLite opens a sqlite3 store, the dsn is a file name or a file: uri.
func OpenSQLite(dsn string, queryTimeout time.Duration) (s *Store, err error) {
	var d *DSN
	if d, err = NewDSN(dsn); err != nil {
		return
	}
	if !d.IsMemory() {
		d.SetDefaultParam("_journal_mode", "WAL")
	}
	d.SetDefaultParam("_busy_timeout", "10000")

	var db *sql.DB
	if db, err = sql.Open(sqliteDriver, d.Format()); err != nil {
		err = errors.Wrap(err, "open sqlite3 database")
		return
	}
	db.SetMaxOpenConns(1)

	s = newStore(db, DialectSQLite, queryTimeout)
	log.WithFields(log.Fields{"dsn": d.Format()}).Debug("sqlite3 store opened")
	return
}

// OpenPostgres opens a postgres store through the pgx driver.
func OpenPostgres(dsn string, queryTimeout time.Duration) (s *Store, err error) {
	var db *sql.DB
	if db, err = sql.Open(postgresDriver, dsn); err != nil {
		err = errors.Wrap(err, "open postgres database")
		return
	}

	s = newStore(db, DialectPostgres, queryTimeout)
	return
}

func newStore(db *sql.DB, dialect Dialect, timeout time.Duration) *Store {
	dbMap := &gorp.DbMap{Db: db}
	switch dialect {
	case DialectPostgres:
		dbMap.Dialect = gorp.PostgresDialect{}
	default:
		dbMap.Dialect = gorp.SqliteDialect{}
	}
	addTables(dbMap)

	return &Store{
		executor: executor{
			dbMap: dbMap,
			with: func(ctx context.Context) gorp.SqlExecutor {
				return dbMap.WithContext(ctx)
			},
			dialect: dialect,
			timeout: timeout,
		},
		db: db,
	}
}

// SetMaxOpenConns limits the open connections of a postgres store, sqlite3 is fixed to one.
func (s *Store) SetMaxOpenConns(n int) {
	if s.dialect == DialectPostgres && n > 0 {
		s.db.SetMaxOpenConns(n)
	}
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return errors.Wrap(s.db.PingContext(ctx), "ping failed")
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx is a store transaction.
type Tx struct {
	executor
	tx *gorp.Transaction
}

// Transaction runs fn inside a transaction, committed if fn returns nil and rolled back otherwise.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	var tx *gorp.Transaction
	if tx, err = s.dbMap.Begin(); err != nil {
		err = errors.Wrap(err, "begin transaction failed")
		return
	}

	t := &Tx{
		executor: executor{
			dbMap: s.dbMap,
			with: func(ctx context.Context) gorp.SqlExecutor {
				return tx.WithContext(ctx)
			},
			dialect: s.dialect,
			timeout: s.timeout,
		},
		tx: tx,
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(t); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.WithError(rbErr).Warning("rollback transaction failed")
		}
		return
	}

	if err = ctx.Err(); err != nil {
		_ = tx.Rollback()
		return
	}

	err = errors.Wrap(tx.Commit(), "commit transaction failed")
	return
}
