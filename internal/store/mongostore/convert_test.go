package mongostore

import (
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nerrad567/tenantgate/internal/store"
)

func TestToBSONFilter(t *testing.T) {
	oid := primitive.NewObjectID()

	got, err := toBSONFilter(store.Filter{
		"_id":     oid.Hex(),
		"orgId":   "o1",
		"deleted": store.Filter{"$ne": true},
		"qty":     store.Filter{"$gte": 1, "$lt": 10},
	})
	if err != nil {
		t.Fatalf("toBSONFilter() error = %v", err)
	}

	if id := got["_id"].(bson.M)["$eq"]; id != oid {
		t.Errorf("_id = %v (%T), want ObjectID", id, id)
	}
	if got["orgId"].(bson.M)["$eq"] != "o1" {
		t.Errorf("orgId = %v", got["orgId"])
	}
	if got["deleted"].(bson.M)["$ne"] != true {
		t.Errorf("deleted = %v", got["deleted"])
	}
	qty := got["qty"].(bson.M)
	if qty["$gte"] != 1 || qty["$lt"] != 10 {
		t.Errorf("qty = %v", qty)
	}
}

func TestToBSONFilter_IDList(t *testing.T) {
	oid := primitive.NewObjectID()
	got, err := toBSONFilter(store.Filter{"_id": store.Filter{"$in": []any{oid.Hex(), "legacy-id"}}})
	if err != nil {
		t.Fatalf("toBSONFilter() error = %v", err)
	}
	list := got["_id"].(bson.M)["$in"].([]any)
	if list[0] != oid || list[1] != "legacy-id" {
		t.Errorf("$in = %v", list)
	}
}

func TestToBSONFilter_Invalid(t *testing.T) {
	if _, err := toBSONFilter(store.Filter{"$where": "1"}); !errors.Is(err, store.ErrInvalidQuery) {
		t.Errorf("error = %v, want ErrInvalidQuery", err)
	}
}

func TestToBSONSort(t *testing.T) {
	got, err := toBSONSort([]store.SortField{{Field: "createdAt", Desc: true}})
	if err != nil {
		t.Fatalf("toBSONSort() error = %v", err)
	}
	want := bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}
	if len(got) != len(want) {
		t.Fatalf("sort = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sort[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestToBSONPipeline(t *testing.T) {
	p := store.Pipeline{
		store.MatchStage{Filter: store.Filter{"orgId": "o1"}},
		store.GroupStage{
			Key: []store.GroupKey{{Field: "status"}},
			Accumulators: []store.Accumulator{
				{Name: "n", Op: store.AccSum, Constant: 1},
				{Name: "avg", Op: store.AccAvg, Field: "amount"},
			},
		},
		store.SortStage{Fields: []store.SortField{{Field: "n", Desc: true}}},
		store.LimitStage{N: 3},
	}

	got, err := toBSONPipeline(p)
	if err != nil {
		t.Fatalf("toBSONPipeline() error = %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("stages = %d, want 4", len(got))
	}

	group := got[1][0].Value.(bson.D)
	if group[0].Key != "_id" || group[0].Value != "$status" {
		t.Errorf("group id = %v", group[0])
	}
	if acc := group[1].Value.(bson.D); acc[0].Key != "$sum" || acc[0].Value != 1.0 {
		t.Errorf("count accumulator = %v", acc)
	}
	if acc := group[2].Value.(bson.D); acc[0].Key != "$avg" || acc[0].Value != "$amount" {
		t.Errorf("avg accumulator = %v", acc)
	}
	if got[3][0].Key != "$limit" || got[3][0].Value != int64(3) {
		t.Errorf("limit stage = %v", got[3])
	}
}

func TestGroupDocument_Compound(t *testing.T) {
	doc := groupDocument(store.GroupStage{Key: []store.GroupKey{{Name: "s", Field: "status"}, {Name: "r", Field: "region"}}})
	id := doc[0].Value.(bson.D)
	if id[0] != (bson.E{Key: "s", Value: "$status"}) || id[1] != (bson.E{Key: "r", Value: "$region"}) {
		t.Errorf("compound id = %v", id)
	}

	doc = groupDocument(store.GroupStage{})
	if doc[0].Value != nil {
		t.Errorf("null group id = %v", doc[0].Value)
	}
}

func TestFromBSON(t *testing.T) {
	oid := primitive.NewObjectID()
	when := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	doc := fromBSON(bson.M{
		"_id":   oid,
		"count": int32(4),
		"big":   int64(9),
		"at":    primitive.NewDateTimeFromTime(when),
		"tags":  bson.A{"a", int32(1)},
		"meta":  bson.M{"owner": oid},
		"pairs": bson.D{{Key: "k", Value: "v"}},
	})

	if doc.ID() != oid.Hex() {
		t.Errorf("_id = %v, want hex", doc["_id"])
	}
	if doc["count"] != 4.0 || doc["big"] != 9.0 {
		t.Errorf("ints not widened: %v %v", doc["count"], doc["big"])
	}
	if doc["at"] != "2026-03-01T09:30:00.000Z" {
		t.Errorf("at = %v", doc["at"])
	}
	if tags := doc["tags"].([]any); tags[1] != 1.0 {
		t.Errorf("tags = %v", tags)
	}
	if meta := doc["meta"].(map[string]any); meta["owner"] != oid.Hex() {
		t.Errorf("meta = %v", meta)
	}
	if pairs := doc["pairs"].(map[string]any); pairs["k"] != "v" {
		t.Errorf("pairs = %v", pairs)
	}
}

func TestIDHelpers(t *testing.T) {
	oid := primitive.NewObjectID()
	if toObjectID(oid.Hex()) != oid {
		t.Error("hex id not converted")
	}
	if toObjectID("not-hex") != "not-hex" {
		t.Error("non-hex id should pass through")
	}
	if idString(oid) != oid.Hex() || idString("x") != "x" {
		t.Error("idString mismatch")
	}
}
