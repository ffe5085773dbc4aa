package store

import (
	"fmt"
	"sort"
)

// Accumulator operations.
const (
	OpCount = "count"
	OpSum   = "sum"
	OpAvg   = "avg"
	OpMin   = "min"
	OpMax   = "max"
)

// Stage is one step of an aggregation pipeline. Exactly one member is set.
type Stage struct {
	Match Filter
	Group *Group
	Sort  []SortField
	Limit int
}

// Group buckets records by the By path and computes Fields per bucket. The
// bucket key is written to _id; an empty By puts every record in one bucket
// with a nil key.
type Group struct {
	By     string
	Fields map[string]Accumulator
}

// Accumulator folds one field over a bucket. Number converts a field value
// to a number; when nil only numeric values count.
type Accumulator struct {
	Op     string
	Field  string
	Number func(v any) (float64, bool)
}

// SortField orders by a path, ascending unless Desc.
type SortField struct {
	Field string
	Desc  bool
}

func MatchStage(f Filter) Stage           { return Stage{Match: f} }
func GroupStage(g Group) Stage            { return Stage{Group: &g} }
func SortStage(fields ...SortField) Stage { return Stage{Sort: fields} }
func LimitStage(n int) Stage              { return Stage{Limit: n} }

func (s Stage) validate() error {
	set := 0
	if s.Match != nil {
		set++
	}
	if s.Group != nil {
		set++
	}
	if len(s.Sort) > 0 {
		set++
	}
	if s.Limit != 0 {
		set++
	}
	if set != 1 {
		return fmt.Errorf("%w: a stage needs exactly one of match, group, sort or limit", ErrInvalidStage)
	}
	if s.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrInvalidStage, s.Limit)
	}
	return nil
}

// Run applies stages to records. Records are not modified.
func Run(records []Record, stages []Stage) ([]Record, error) {
	cur := records
	for i, st := range stages {
		if err := st.validate(); err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		var err error
		switch {
		case st.Match != nil:
			cur, err = filterRecords(cur, st.Match, 0)
		case st.Group != nil:
			cur, err = group(cur, *st.Group)
		case len(st.Sort) > 0:
			cur = sortRecords(cur, st.Sort)
		default:
			if len(cur) > st.Limit {
				cur = cur[:st.Limit]
			}
		}
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
	}
	return cur, nil
}

func filterRecords(records []Record, f Filter, limit int) ([]Record, error) {
	out := make([]Record, 0)
	for _, r := range records {
		ok, err := Matches(r, f)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type bucket struct {
	key     any
	records []Record
}

func group(records []Record, g Group) ([]Record, error) {
	for name, acc := range g.Fields {
		switch acc.Op {
		case OpCount:
		case OpSum, OpAvg, OpMin, OpMax:
			if acc.Field == "" {
				return nil, fmt.Errorf("%w: accumulator %q needs a field", ErrInvalidStage, name)
			}
		default:
			return nil, fmt.Errorf("%w: accumulator %q has unknown op %q", ErrInvalidStage, name, acc.Op)
		}
	}

	buckets := make([]*bucket, 0)
	for _, r := range records {
		var key any
		if g.By != "" {
			key, _ = getPath(r, g.By)
		}
		var b *bucket
		for _, existing := range buckets {
			if equal(existing.key, key) {
				b = existing
				break
			}
		}
		if b == nil {
			b = &bucket{key: key}
			buckets = append(buckets, b)
		}
		b.records = append(b.records, r)
	}

	out := make([]Record, 0, len(buckets))
	for _, b := range buckets {
		row := Record{IDField: b.key}
		for name, acc := range g.Fields {
			row[name] = accumulate(b.records, acc)
		}
		out = append(out, row)
	}
	return out, nil
}

func accumulate(records []Record, acc Accumulator) any {
	if acc.Op == OpCount {
		return float64(len(records))
	}
	number := acc.Number
	if number == nil {
		number = func(v any) (float64, bool) {
			n, ok := v.(float64)
			return n, ok
		}
	}

	var (
		sum   float64
		count int
		best  float64
	)
	for _, r := range records {
		v, ok := getPath(r, acc.Field)
		if !ok {
			continue
		}
		n, ok := number(v)
		if !ok {
			continue
		}
		if count == 0 ||
			(acc.Op == OpMin && n < best) ||
			(acc.Op == OpMax && n > best) {
			best = n
		}
		sum += n
		count++
	}

	switch acc.Op {
	case OpSum:
		return sum
	case OpAvg:
		if count == 0 {
			return nil
		}
		return sum / float64(count)
	default:
		if count == 0 {
			return nil
		}
		return best
	}
}

// sortRecords returns a sorted copy. Missing and incomparable values sort
// first in ascending order.
func sortRecords(records []Record, fields []SortField) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		for _, f := range fields {
			a, _ := getPath(out[i], f.Field)
			b, _ := getPath(out[j], f.Field)
			c := orderOf(a, b)
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
	return out
}

func orderOf(a, b any) int {
	if c, ok := compare(a, b); ok {
		return c
	}
	ra, rb := rank(a), rank(b)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case float64:
		return 1
	case string:
		return 2
	case bool:
		return 3
	}
	return 4
}
