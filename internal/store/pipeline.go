package store

import (
	"fmt"
	"sort"
	"strings"
)

// Pipeline stage names.
const (
	StageMatch = "$match"
	StageGroup = "$group"
	StageSort  = "$sort"
	StageLimit = "$limit"
)

// Stage is one typed aggregation step. The concrete types are MatchStage,
// GroupStage, SortStage and LimitStage.
type Stage interface {
	stageName() string
}

// Pipeline is an ordered list of stages.
type Pipeline []Stage

// MatchStage keeps documents satisfying Filter.
type MatchStage struct {
	Filter Filter
}

// GroupStage buckets documents and computes accumulators per bucket.
//
// The output "_id" is nil when Key is empty, the field value when Key has a
// single unnamed entry, and an object of named values otherwise.
type GroupStage struct {
	Key          []GroupKey
	Accumulators []Accumulator
}

// GroupKey names one component of the group id.
type GroupKey struct {
	// Name is the key inside a compound "_id"; empty for a scalar "_id".
	Name  string
	Field string
}

// AccumulatorOp is a closed set of group reducers.
type AccumulatorOp string

// Supported accumulators.
const (
	AccSum AccumulatorOp = "$sum"
	AccAvg AccumulatorOp = "$avg"
	AccMin AccumulatorOp = "$min"
	AccMax AccumulatorOp = "$max"
)

// Accumulator writes Op over Field into output field Name. For $sum with
// an empty Field, Constant is added per document (count when 1).
type Accumulator struct {
	Name     string
	Op       AccumulatorOp
	Field    string
	Constant float64
}

// SortStage orders documents.
type SortStage struct {
	Fields []SortField
}

// LimitStage truncates the stream.
type LimitStage struct {
	N int
}

func (MatchStage) stageName() string { return StageMatch }
func (GroupStage) stageName() string { return StageGroup }
func (SortStage) stageName() string  { return StageSort }
func (LimitStage) stageName() string { return StageLimit }

// ParsePipeline decodes the JSON form of a pipeline:
//
//	[{"$match": {...}}, {"$group": {"_id": "$status", "n": {"$sum": 1}}},
//	 {"$sort": {"n": -1}}, {"$limit": 10}]
//
// A $sort object with several keys is applied in key name order since JSON
// objects carry no order once decoded.
func ParsePipeline(raw []map[string]any) (Pipeline, error) {
	p := make(Pipeline, 0, len(raw))
	for i, st := range raw {
		if len(st) != 1 {
			return nil, fmt.Errorf("%w: stage %d must have exactly one operator", ErrInvalidQuery, i)
		}
		for name, body := range st {
			stage, err := parseStage(name, body)
			if err != nil {
				return nil, fmt.Errorf("stage %d: %w", i, err)
			}
			p = append(p, stage)
		}
	}
	return p, nil
}

func parseStage(name string, body any) (Stage, error) {
	switch name {
	case StageMatch:
		m, ok := body.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: $match needs an object", ErrInvalidQuery)
		}
		f := Filter(m)
		if _, err := f.Conditions(); err != nil {
			return nil, err
		}
		return MatchStage{Filter: f}, nil
	case StageGroup:
		m, ok := body.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: $group needs an object", ErrInvalidQuery)
		}
		return parseGroup(m)
	case StageSort:
		m, ok := body.(map[string]any)
		if !ok || len(m) == 0 {
			return nil, fmt.Errorf("%w: $sort needs a non-empty object", ErrInvalidQuery)
		}
		return parseSort(m)
	case StageLimit:
		n, ok := toFloat(body)
		if !ok || n < 1 || n != float64(int(n)) {
			return nil, fmt.Errorf("%w: $limit needs a positive integer", ErrInvalidQuery)
		}
		return LimitStage{N: int(n)}, nil
	}
	return nil, fmt.Errorf("%w: unsupported stage %q", ErrInvalidQuery, name)
}

func parseGroup(m map[string]any) (GroupStage, error) {
	var g GroupStage
	rawID, ok := m[IDField]
	if !ok {
		return g, fmt.Errorf("%w: $group needs an _id", ErrInvalidQuery)
	}
	switch id := rawID.(type) {
	case nil:
	case string:
		field, err := fieldRef(id)
		if err != nil {
			return g, err
		}
		g.Key = []GroupKey{{Field: field}}
	case map[string]any:
		for _, name := range sortedKeys(id) {
			ref, isStr := id[name].(string)
			if !isStr {
				return g, fmt.Errorf("%w: $group _id.%s must be a field reference", ErrInvalidQuery, name)
			}
			field, err := fieldRef(ref)
			if err != nil {
				return g, err
			}
			if !ValidField(name) {
				return g, fmt.Errorf("%w: $group key name %q", ErrInvalidQuery, name)
			}
			g.Key = append(g.Key, GroupKey{Name: name, Field: field})
		}
	default:
		return g, fmt.Errorf("%w: $group _id must be null, a field reference or an object", ErrInvalidQuery)
	}

	for _, out := range sortedKeys(m) {
		if out == IDField {
			continue
		}
		if !ValidField(out) || strings.Contains(out, ".") {
			return g, fmt.Errorf("%w: $group output name %q", ErrInvalidQuery, out)
		}
		spec, isObj := m[out].(map[string]any)
		if !isObj || len(spec) != 1 {
			return g, fmt.Errorf("%w: $group output %q needs one accumulator", ErrInvalidQuery, out)
		}
		for op, arg := range spec {
			acc := Accumulator{Name: out, Op: AccumulatorOp(op)}
			switch acc.Op {
			case AccSum, AccAvg, AccMin, AccMax:
			default:
				return g, fmt.Errorf("%w: unsupported accumulator %q", ErrInvalidQuery, op)
			}
			if n, isNum := toFloat(arg); isNum && acc.Op == AccSum {
				acc.Constant = n
			} else {
				ref, isStr := arg.(string)
				if !isStr {
					return g, fmt.Errorf("%w: accumulator %q needs a field reference", ErrInvalidQuery, out)
				}
				field, err := fieldRef(ref)
				if err != nil {
					return g, err
				}
				acc.Field = field
			}
			g.Accumulators = append(g.Accumulators, acc)
		}
	}
	return g, nil
}

func parseSort(m map[string]any) (SortStage, error) {
	var s SortStage
	for _, field := range sortedKeys(m) {
		if !ValidField(field) {
			return s, fmt.Errorf("%w: sort field %q", ErrInvalidQuery, field)
		}
		dir, ok := toFloat(m[field])
		if !ok || (dir != 1 && dir != -1) {
			return s, fmt.Errorf("%w: sort direction for %q must be 1 or -1", ErrInvalidQuery, field)
		}
		s.Fields = append(s.Fields, SortField{Field: field, Desc: dir < 0})
	}
	return s, nil
}

func fieldRef(ref string) (string, error) {
	field, ok := strings.CutPrefix(ref, "$")
	if !ok || !ValidField(field) {
		return "", fmt.Errorf("%w: %q is not a field reference", ErrInvalidQuery, ref)
	}
	return field, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Apply evaluates p over docs in memory. Backends without native
// aggregation use it for the stages they cannot push down.
func Apply(docs []Document, p Pipeline) ([]Document, error) {
	out := docs
	for _, stage := range p {
		switch st := stage.(type) {
		case MatchStage:
			conds, err := st.Filter.Conditions()
			if err != nil {
				return nil, err
			}
			kept := make([]Document, 0, len(out))
			for _, d := range out {
				if matchConditions(d, conds) {
					kept = append(kept, d)
				}
			}
			out = kept
		case GroupStage:
			out = applyGroup(out, st)
		case SortStage:
			sorted := make([]Document, len(out))
			copy(sorted, out)
			SortDocuments(sorted, st.Fields)
			out = sorted
		case LimitStage:
			if len(out) > st.N {
				out = out[:st.N]
			}
		default:
			return nil, fmt.Errorf("%w: unsupported stage %T", ErrInvalidQuery, stage)
		}
	}
	return out, nil
}

type groupState struct {
	id     any
	sums   []float64
	counts []int
	mins   []any
	maxs   []any
}

func applyGroup(docs []Document, g GroupStage) []Document {
	var order []string
	groups := make(map[string]*groupState)

	for _, d := range docs {
		id := groupID(d, g.Key)
		key := fmt.Sprintf("%#v", id)
		st, ok := groups[key]
		if !ok {
			n := len(g.Accumulators)
			st = &groupState{
				id:     id,
				sums:   make([]float64, n),
				counts: make([]int, n),
				mins:   make([]any, n),
				maxs:   make([]any, n),
			}
			groups[key] = st
			order = append(order, key)
		}
		for i, acc := range g.Accumulators {
			if acc.Field == "" {
				st.sums[i] += acc.Constant
				st.counts[i]++
				continue
			}
			v, present := Lookup(d, acc.Field)
			if !present || v == nil {
				continue
			}
			if f, isNum := toFloat(v); isNum {
				st.sums[i] += f
				st.counts[i]++
			}
			if st.mins[i] == nil || less(v, st.mins[i]) {
				st.mins[i] = v
			}
			if st.maxs[i] == nil || less(st.maxs[i], v) {
				st.maxs[i] = v
			}
		}
	}

	out := make([]Document, 0, len(order))
	for _, key := range order {
		st := groups[key]
		doc := Document{IDField: st.id}
		for i, acc := range g.Accumulators {
			switch acc.Op {
			case AccSum:
				doc[acc.Name] = st.sums[i]
			case AccAvg:
				if st.counts[i] == 0 {
					doc[acc.Name] = nil
				} else {
					doc[acc.Name] = st.sums[i] / float64(st.counts[i])
				}
			case AccMin:
				doc[acc.Name] = st.mins[i]
			case AccMax:
				doc[acc.Name] = st.maxs[i]
			}
		}
		out = append(out, doc)
	}
	return out
}

func groupID(d Document, keys []GroupKey) any {
	if len(keys) == 0 {
		return nil
	}
	if len(keys) == 1 && keys[0].Name == "" {
		v, _ := Lookup(d, keys[0].Field)
		return v
	}
	id := make(map[string]any, len(keys))
	for _, k := range keys {
		v, _ := Lookup(d, k.Field)
		id[k.Name] = v
	}
	return id
}

// SortDocuments orders docs in place. Missing and null values sort first,
// then numbers, strings and booleans. Ties keep their input order.
func SortDocuments(docs []Document, fields []SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			a, _ := Lookup(docs[i], f.Field)
			b, _ := Lookup(docs[j], f.Field)
			c := order(a, b)
			if c == 0 {
				continue
			}
			if f.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func less(a, b any) bool {
	return order(a, b) < 0
}

func order(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	c, _ := Compare(a, b)
	return c
}

func rank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := toFloat(v); ok {
		return 1
	}
	switch v.(type) {
	case string:
		return 2
	case bool:
		return 3
	}
	return 4
}
