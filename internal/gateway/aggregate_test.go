package gateway

import (
	"context"
	"testing"

	"github.com/nerrad567/tenantgate/internal/auth"
	"github.com/nerrad567/tenantgate/internal/observer"
)

func TestAggregate_ScopedToTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, f.acme, "open", 2)
	f.order(t, f.acme, "open", 3)
	f.order(t, f.acme, "shipped", 5)
	f.order(t, f.globex, "open", 100)
	gone := f.order(t, f.acme, "open", 50)
	if err := f.gw.Delete(ctx, f.admin, "orders", gone); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	docs, err := f.gw.Aggregate(ctx, f.admin, "orders", []map[string]any{
		{"$group": map[string]any{"_id": "$status", "total": map[string]any{"$sum": "$quantity"}, "n": map[string]any{"$sum": 1.0}}},
		{"$sort": map[string]any{"_id": 1.0}},
	})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("Aggregate() = %v, want 2 groups", docs)
	}
	if docs[0]["_id"] != "open" || docs[0]["total"] != 5.0 || docs[0]["n"] != 2.0 {
		t.Errorf("open group = %v, want total 5 over 2 orders", docs[0])
	}
	if docs[1]["_id"] != "shipped" || docs[1]["total"] != 5.0 {
		t.Errorf("shipped group = %v", docs[1])
	}

	events := f.events.byOperation(observer.OpAggregate)
	if len(events) != 1 || events[0].Items != 2 || !events[0].Succeeded() {
		t.Errorf("aggregate events = %+v", events)
	}
}

func TestAggregate_ResultCap(t *testing.T) {
	f := newFixture(t)
	f.gw.cfg.MaxAggregateResults = 2
	for i := 0; i < 5; i++ {
		f.order(t, f.acme, "open", float64(i))
	}

	docs, err := f.gw.Aggregate(context.Background(), f.admin, "orders", []map[string]any{
		{"$match": map[string]any{"status": "open"}},
	})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("Aggregate() returned %d documents, want 2", len(docs))
	}
}

func TestAggregate_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		token      string
		collection string
		pipeline   []map[string]any
		want       Kind
	}{
		{"no token", "", "orders", nil, KindAuthentication},
		{"missing capability", f.clerk, "products", nil, KindAuthorization},
		{"unknown stage", f.admin, "orders", []map[string]any{{"$lookup": map[string]any{}}}, KindValidation},
		{"two operators", f.admin, "orders", []map[string]any{{"$match": map[string]any{}, "$limit": 1.0}}, KindValidation},
		{"group on hash", f.admin, auth.CollectionUsers, []map[string]any{
			{"$group": map[string]any{"_id": "$passwordHash"}},
		}, KindValidation},
		{"match on salt", f.admin, auth.CollectionUsers, []map[string]any{
			{"$match": map[string]any{"salt": "x"}},
		}, KindValidation},
		{"accumulate password", f.admin, auth.CollectionUsers, []map[string]any{
			{"$group": map[string]any{"_id": nil, "m": map[string]any{"$max": "$password"}}},
		}, KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := f.gw.Aggregate(ctx, tt.token, tt.collection, tt.pipeline)
			if docs != nil {
				t.Errorf("Aggregate() = %v, want nil", docs)
			}
			wantKind(t, err, tt.want)
		})
	}
}

func TestAggregate_StripsSensitiveFields(t *testing.T) {
	f := newFixture(t)

	docs, err := f.gw.Aggregate(context.Background(), f.admin, auth.CollectionUsers, []map[string]any{
		{"$sort": map[string]any{"username": 1.0}},
	})
	if err != nil {
		t.Fatalf("Aggregate(users) error = %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("Aggregate(users) = %d documents, want the 3 acme users", len(docs))
	}
	for _, d := range docs {
		if _, ok := d[auth.FieldSalt]; ok {
			t.Errorf("user %v exposes salt", d)
		}
	}
}
