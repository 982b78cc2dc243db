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

package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/CovenantSQL/trustindex/utils"
)

func TestActionSet(t *testing.T) {
	Convey("action sets should be sorted and unique", t, func() {
		s := NewActionSet(ActionVPSetValidated, ActionPermSlash, ActionPermExtend, ActionPermSlash)
		So(s, ShouldResemble, ActionSet{ActionPermExtend, ActionPermSlash, ActionVPSetValidated})
		So(s.Contains(ActionPermSlash), ShouldBeTrue)
		So(s.Contains(ActionPermRepay), ShouldBeFalse)
		So(NewActionSet(), ShouldBeEmpty)
		So(PermissionIssuerGrantor.IsIssuerLike(), ShouldBeTrue)
		So(PermissionVerifier.IsVerifierLike(), ShouldBeTrue)
		So(PermissionHolder.IsIssuerLike(), ShouldBeFalse)
	})
}

func TestAggregate(t *testing.T) {
	Convey("aggregates should add field-wise", t, func() {
		a := Aggregate{Weight: NewAmount(10), Participants: 1, Issued: 2, NetworkSlashEvents: 1,
			NetworkSlashedAmount: NewAmount(5)}
		b := Aggregate{Weight: NewAmount(5), Participants: 2, Verified: 3,
			EcosystemSlashedAmountRepaid: NewAmount(1)}
		c := a.Add(b)
		So(c.Weight.String(), ShouldEqual, "15")
		So(c.Participants, ShouldEqual, 3)
		So(c.Issued, ShouldEqual, 2)
		So(c.Verified, ShouldEqual, 3)
		So(c.NetworkSlashEvents, ShouldEqual, 1)
		So(c.NetworkSlashedAmount.String(), ShouldEqual, "5")
		So(c.EcosystemSlashedAmountRepaid.String(), ShouldEqual, "1")

		j, err := json.Marshal(c)
		So(err, ShouldBeNil)
		So(string(j), ShouldContainSubstring, `"weight":"15"`)
		So(string(j), ShouldContainSubstring, `"ecosystem_slashed_amount":"0"`)
	})
}

func TestBlobs(t *testing.T) {
	Convey("session authz lists should round trip through the blob column", t, func() {
		issuer := int64(3)
		l := SessionAuthzList{{IssuerPermID: &issuer}, {}}
		v, err := l.Value()
		So(err, ShouldBeNil)

		var out SessionAuthzList
		So(out.Scan(v), ShouldBeNil)
		So(out, ShouldHaveLength, 2)
		So(*out[0].IssuerPermID, ShouldEqual, 3)
		So(out[0].VerifierPermID, ShouldBeNil)
		So(out[1].IssuerPermID, ShouldBeNil)

		var empty SessionAuthzList
		v, err = empty.Value()
		So(err, ShouldBeNil)
		So(v, ShouldBeNil)
		So(out.Scan(nil), ShouldBeNil)
		So(errors.Cause(out.Scan(42)), ShouldEqual, ErrInvalidBlob)
		So(errors.Cause(out.Scan([]byte{0xc1})), ShouldEqual, ErrInvalidBlob)
	})
	Convey("field changes should keep old and new values", t, func() {
		c := FieldChanges{"deposit": {Old: "1", New: "2"}, "revoked": {Old: nil, New: "2024-01-01T00:00:00Z"}}
		v, err := c.Value()
		So(err, ShouldBeNil)

		var out FieldChanges
		So(out.Scan(v), ShouldBeNil)
		So(out["deposit"].Old, ShouldEqual, "1")
		So(out["deposit"].New, ShouldEqual, "2")
		So(out["revoked"].Old, ShouldBeNil)

		v, err = FieldChanges(nil).Value()
		So(err, ShouldBeNil)
		So(v, ShouldBeNil)
	})
	Convey("snapshot payload should decode to global metrics", t, func() {
		m := &GlobalMetrics{ActiveSchemas: 2}
		m.Weight = NewAmount(1200)
		m.NetworkSlashedAmount = NewAmount(150)
		payload, err := utils.EncodeMsgPack(m)
		So(err, ShouldBeNil)

		s := &GlobalMetricsSnapshot{Payload: payload}
		out, err := s.DecodePayload()
		So(err, ShouldBeNil)
		So(out.ActiveSchemas, ShouldEqual, 2)
		So(out.Weight.String(), ShouldEqual, "1200")
		So(out.NetworkSlashedAmount.String(), ShouldEqual, "150")

		s.Payload = []byte{0xc1}
		_, err = s.DecodePayload()
		So(errors.Cause(err), ShouldEqual, ErrInvalidBlob)
	})
}

func TestHistoryConversion(t *testing.T) {
	Convey("permissions should convert to and from history rows", t, func() {
		at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		p := &Permission{ID: 5, PermissionFields: PermissionFields{SchemaID: 1, Type: PermissionIssuer, Created: at}}
		h := p.History(HistoryRecord{EventType: EventCreatePermission, Height: 3, CreatedAt: at})
		So(h.PermissionID, ShouldEqual, 5)
		So(h.Record().Height, ShouldEqual, 3)
		So(h.AsPermission().ID, ShouldEqual, 5)
		So(h.AsPermission().Type, ShouldEqual, PermissionIssuer)
		So(h.IsRoot(), ShouldBeTrue)

		validator := int64(1)
		p.ValidatorPermID = &validator
		So(p.IsRoot(), ShouldBeFalse)
		p.Type = PermissionEcosystem
		So(p.IsRoot(), ShouldBeTrue)

		snap := p.History(HistoryRecord{Height: 4})
		validator = 2
		So(*snap.ValidatorPermID, ShouldEqual, 1)
		So(snap.Created, ShouldResemble, at)

		cs := &CredentialSchema{ID: 9}
		So(cs.History(HistoryRecord{}).CsID, ShouldEqual, 9)
		tr := &TrustRegistry{ID: 4}
		So(tr.History(HistoryRecord{}).TrID, ShouldEqual, 4)
		issuer := int64(5)
		s := &PermissionSession{ID: "s1"}
		s.Authz = SessionAuthzList{{IssuerPermID: &issuer}}
		sh := s.History(HistoryRecord{})
		So(sh.SessionID, ShouldEqual, "s1")
		issuer = 6
		So(*sh.Authz[0].IssuerPermID, ShouldEqual, 5)
	})
}
