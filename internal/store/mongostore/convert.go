package mongostore

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nerrad567/tenantgate/internal/store"
)

// toObjectID converts a hex id to an ObjectID. Other strings are kept
// as-is so documents inserted with non-hex ids stay addressable.
func toObjectID(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

func idString(v any) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	}
	return fmt.Sprint(v)
}

// toBSONFilter translates a validated filter. "_id" values are converted
// to ObjectIDs.
func toBSONFilter(f store.Filter) (bson.M, error) {
	conds, err := f.Conditions()
	if err != nil {
		return nil, err
	}

	out := bson.M{}
	for _, c := range conds {
		v := c.Value
		if c.Field == store.IDField {
			v = convertIDValue(v)
		}
		ops, ok := out[c.Field].(bson.M)
		if !ok {
			ops = bson.M{}
			out[c.Field] = ops
		}
		ops[c.Op] = v
	}
	return out, nil
}

func convertIDValue(v any) any {
	switch id := v.(type) {
	case string:
		return toObjectID(id)
	case []any:
		out := make([]any, len(id))
		for i, item := range id {
			out[i] = convertIDValue(item)
		}
		return out
	}
	return v
}

func toBSONSort(fields []store.SortField) (bson.D, error) {
	out := make(bson.D, 0, len(fields)+1)
	hasID := false
	for _, f := range fields {
		if !store.ValidField(f.Field) {
			return nil, fmt.Errorf("%w: sort field %q", store.ErrInvalidQuery, f.Field)
		}
		dir := 1
		if f.Desc {
			dir = -1
		}
		out = append(out, bson.E{Key: f.Field, Value: dir})
		hasID = hasID || f.Field == store.IDField
	}
	if !hasID {
		out = append(out, bson.E{Key: store.IDField, Value: 1})
	}
	return out, nil
}

func toBSONPipeline(p store.Pipeline) (mongo.Pipeline, error) {
	out := make(mongo.Pipeline, 0, len(p))
	for _, stage := range p {
		switch st := stage.(type) {
		case store.MatchStage:
			f, err := toBSONFilter(st.Filter)
			if err != nil {
				return nil, err
			}
			out = append(out, bson.D{{Key: store.StageMatch, Value: f}})
		case store.GroupStage:
			out = append(out, bson.D{{Key: store.StageGroup, Value: groupDocument(st)}})
		case store.SortStage:
			sortDoc := make(bson.D, 0, len(st.Fields))
			for _, f := range st.Fields {
				dir := 1
				if f.Desc {
					dir = -1
				}
				sortDoc = append(sortDoc, bson.E{Key: f.Field, Value: dir})
			}
			out = append(out, bson.D{{Key: store.StageSort, Value: sortDoc}})
		case store.LimitStage:
			out = append(out, bson.D{{Key: store.StageLimit, Value: int64(st.N)}})
		default:
			return nil, fmt.Errorf("%w: unsupported stage %T", store.ErrInvalidQuery, stage)
		}
	}
	return out, nil
}

func groupDocument(g store.GroupStage) bson.D {
	var id any
	switch {
	case len(g.Key) == 1 && g.Key[0].Name == "":
		id = "$" + g.Key[0].Field
	case len(g.Key) > 0:
		keys := make(bson.D, 0, len(g.Key))
		for _, k := range g.Key {
			keys = append(keys, bson.E{Key: k.Name, Value: "$" + k.Field})
		}
		id = keys
	}

	doc := bson.D{{Key: store.IDField, Value: id}}
	for _, acc := range g.Accumulators {
		var arg any = "$" + acc.Field
		if acc.Field == "" {
			arg = acc.Constant
		}
		doc = append(doc, bson.E{Key: acc.Name, Value: bson.D{{Key: string(acc.Op), Value: arg}}})
	}
	return doc
}

// fromBSON converts a decoded BSON document to the driver-neutral form:
// ObjectIDs become hex strings, datetimes become TimeLayout strings and
// integers become float64 like JSON numbers.
func fromBSON(m bson.M) store.Document {
	doc := make(store.Document, len(m))
	for k, v := range m {
		doc[k] = fromBSONValue(v)
	}
	return doc
}

func fromBSONValue(v any) any {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return store.Timestamp(val.Time())
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case bson.M:
		return map[string]any(fromBSON(val))
	case map[string]any:
		return map[string]any(fromBSON(val))
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = fromBSONValue(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = fromBSONValue(item)
		}
		return out
	}
	return v
}
