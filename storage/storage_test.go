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

package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/CovenantSQL/trustindex/types"
)

func openMemoryStore() (*Store, error) {
	return OpenSQLite("file:"+uuid.Must(uuid.NewV4()).String()+"?mode=memory&cache=shared", 10*time.Second)
}

func TestDSN(t *testing.T) {
	Convey("dsn should parse and format", t, func() {
		dsn, err := NewDSN("file:test.db?p2=v2&p1=v1")
		So(err, ShouldBeNil)
		So(dsn.FileName(), ShouldEqual, "test.db")
		So(dsn.Format(), ShouldEqual, "file:test.db?p1=v1&p2=v2")
		So(dsn.IsMemory(), ShouldBeFalse)

		dsn.AddParam("p1", "")
		_, ok := dsn.GetParam("p1")
		So(ok, ShouldBeFalse)
		dsn.SetDefaultParam("p2", "other")
		v, _ := dsn.GetParam("p2")
		So(v, ShouldEqual, "v2")

		dsn, err = NewDSN(":memory:")
		So(err, ShouldBeNil)
		So(dsn.IsMemory(), ShouldBeTrue)
		So(dsn.Format(), ShouldEqual, "file::memory:")

		_, err = NewDSN("file:test.db?p1")
		So(errors.Cause(err), ShouldEqual, ErrInvalidDSN)
	})
}

func TestRebind(t *testing.T) {
	Convey("placeholders should be rebound for postgres only", t, func() {
		q := "SELECT * FROM permissions WHERE id = ? AND grantee <> '?' AND schema_id IN (?, ?)"
		So(Rebind(DialectSQLite, q), ShouldEqual, q)
		So(Rebind(DialectPostgres, q), ShouldEqual,
			"SELECT * FROM permissions WHERE id = $1 AND grantee <> '?' AND schema_id IN ($2, $3)")
		So(In(3), ShouldEqual, "?, ?, ?")
		So(In(0), ShouldEqual, "NULL")
		So(Chunk([]int64{1, 2, 3, 4, 5}, 2), ShouldResemble, [][]int64{{1, 2}, {3, 4}, {5}})
		So(Chunk(nil, 2), ShouldBeEmpty)
		So(ColumnList("h", []string{"id", "height"}), ShouldEqual, "h.id, h.height")
		So(Int64Args([]int64{7}), ShouldResemble, []interface{}{int64(7)})
	})
}

func TestDDL(t *testing.T) {
	Convey("ddl should be rendered per dialect", t, func() {
		for _, stmt := range DDL(DialectPostgres) {
			So(stmt, ShouldNotContainSubstring, "{{")
			So(stmt, ShouldNotContainSubstring, "AUTOINCREMENT")
		}
		So(DDL(DialectSQLite)[0], ShouldContainSubstring, "CREATE TABLE IF NOT EXISTS trust_registries")
	})
}

func TestStore(t *testing.T) {
	Convey("store should bootstrap and map rows", t, func() {
		ctx := context.Background()
		st, err := openMemoryStore()
		So(err, ShouldBeNil)
		defer st.Close()
		So(st.Dialect(), ShouldEqual, DialectSQLite)
		So(st.Ping(ctx), ShouldBeNil)
		So(st.Bootstrap(ctx), ShouldBeNil)
		// idempotent
		So(st.Bootstrap(ctx), ShouldBeNil)

		now := time.Now().UTC().Truncate(time.Second)
		validator := int64(1)
		p := &types.Permission{
			ID: 2,
			PermissionFields: types.PermissionFields{
				SchemaID:        10,
				Type:            types.PermissionIssuer,
				Grantee:         "grantee",
				ValidatorPermID: &validator,
				Created:         now,
				Modified:        now,
				EffectiveFrom:   &now,
				Deposit:         "1000",
				VPState:         types.VPValidated,
			},
		}
		p.Weight = types.NewAmount(1000)
		So(st.Insert(ctx, p), ShouldBeNil)

		cols, err := st.Columns(p)
		So(err, ShouldBeNil)
		So(cols, ShouldContain, "weight")
		So(cols, ShouldContain, "validator_perm_id")
		name, err := st.TableName(&[]*types.PermissionHistory{})
		So(err, ShouldBeNil)
		So(name, ShouldEqual, TablePermissionHistory)
		_, err = st.Columns(struct{}{})
		So(errors.Cause(err), ShouldEqual, ErrUnknownTable)

		var got types.Permission
		So(st.SelectOne(ctx, &got, "SELECT "+ColumnList("", cols)+" FROM permissions WHERE id = ?", 2), ShouldBeNil)
		So(got.Grantee, ShouldEqual, "grantee")
		So(*got.ValidatorPermID, ShouldEqual, 1)
		So(got.EffectiveFrom.Equal(now), ShouldBeTrue)
		So(got.Extended, ShouldBeNil)
		So(got.Weight.Equal(types.NewAmount(1000)), ShouldBeTrue)

		err = st.SelectOne(ctx, &got, "SELECT "+ColumnList("", cols)+" FROM permissions WHERE id = ?", 3)
		So(errors.Cause(err), ShouldEqual, sql.ErrNoRows)

		h := p.History(types.HistoryRecord{
			EventType: types.EventCreatePermission,
			Height:    5,
			CreatedAt: now,
			Changes:   types.FieldChanges{"deposit": {Old: "0", New: "1000"}},
		})
		So(st.Insert(ctx, h), ShouldBeNil)
		So(h.ID, ShouldBeGreaterThan, 0)

		var hs []*types.PermissionHistory
		hcols, err := st.Columns(h)
		So(err, ShouldBeNil)
		So(st.Select(ctx, &hs, "SELECT "+ColumnList("", hcols)+" FROM permission_history WHERE permission_id = ?", 2), ShouldBeNil)
		So(hs, ShouldHaveLength, 1)
		So(hs[0].Height, ShouldEqual, 5)
		So(hs[0].Changes, ShouldContainKey, "deposit")
		So(hs[0].Changes["deposit"].New, ShouldEqual, "1000")

		Convey("transaction should roll back on error", func() {
			boom := errors.New("boom")
			err := st.Transaction(ctx, func(tx *Tx) error {
				if _, err := tx.Exec(ctx, "UPDATE permissions SET participants = 9 WHERE id = ?", 2); err != nil {
					return err
				}
				return boom
			})
			So(err, ShouldEqual, boom)
			n, err := st.SelectInt(ctx, "SELECT participants FROM permissions WHERE id = ?", 2)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)

			err = st.Transaction(ctx, func(tx *Tx) error {
				_, err := tx.Exec(ctx, "UPDATE permissions SET participants = 9 WHERE id = ?", 2)
				return err
			})
			So(err, ShouldBeNil)
			n, err = st.SelectInt(ctx, "SELECT participants FROM permissions WHERE id = ?", 2)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 9)
		})
	})
	Convey("open should select the driver by url scheme", t, func() {
		_, err := Open("mysql://user@localhost/db", time.Second)
		So(errors.Cause(err), ShouldEqual, ErrUnsupportedDriver)
	})
}
