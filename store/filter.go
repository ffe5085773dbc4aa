package store

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Matches reports whether r satisfies f.
func Matches(r Record, f Filter) (bool, error) {
	for key, cond := range f {
		var (
			ok  bool
			err error
		)
		switch key {
		case "$or":
			ok, err = matchAny(r, cond)
		case "$and":
			ok, err = matchAll(r, cond)
		default:
			if strings.HasPrefix(key, "$") {
				return false, fmt.Errorf("%w: unsupported operator %q", ErrInvalidFilter, key)
			}
			v, present := getPath(r, key)
			ok, err = matchField(v, present, cond)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func subFilters(cond any) ([]Filter, error) {
	var out []Filter
	switch c := cond.(type) {
	case []Filter:
		out = c
	case []map[string]any:
		for _, m := range c {
			out = append(out, Filter(m))
		}
	case []any:
		for _, item := range c {
			switch m := item.(type) {
			case Filter:
				out = append(out, m)
			case map[string]any:
				out = append(out, Filter(m))
			default:
				return nil, fmt.Errorf("%w: logical operand must be an object, got %T", ErrInvalidFilter, item)
			}
		}
	default:
		return nil, fmt.Errorf("%w: logical operator needs a list, got %T", ErrInvalidFilter, cond)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: logical operator needs at least one filter", ErrInvalidFilter)
	}
	return out, nil
}

func matchAny(r Record, cond any) (bool, error) {
	filters, err := subFilters(cond)
	if err != nil {
		return false, err
	}
	for _, f := range filters {
		ok, err := Matches(r, f)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func matchAll(r Record, cond any) (bool, error) {
	filters, err := subFilters(cond)
	if err != nil {
		return false, err
	}
	for _, f := range filters {
		ok, err := Matches(r, f)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func operators(cond any) (map[string]any, bool) {
	var m map[string]any
	switch c := cond.(type) {
	case map[string]any:
		m = c
	case Filter:
		m = c
	default:
		return nil, false
	}
	if len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func isOperatorObject(v any) bool {
	_, ok := operators(v)
	return ok
}

func matchField(v any, present bool, cond any) (bool, error) {
	ops, ok := operators(cond)
	if !ok {
		want, err := normalize(cond)
		if err != nil {
			return false, err
		}
		return equalOrContains(v, want), nil
	}

	for op, arg := range ops {
		var (
			res bool
			err error
		)
		switch op {
		case "$eq":
			want, nerr := normalize(arg)
			if nerr != nil {
				return false, nerr
			}
			res = equalOrContains(v, want)
		case "$ne":
			want, nerr := normalize(arg)
			if nerr != nil {
				return false, nerr
			}
			res = !equalOrContains(v, want)
		case "$exists":
			want, isBool := arg.(bool)
			if !isBool {
				return false, fmt.Errorf("%w: $exists needs a bool", ErrInvalidFilter)
			}
			res = present == want
		case "$in", "$nin":
			list, nerr := normalize(arg)
			if nerr != nil {
				return false, nerr
			}
			items, isList := list.([]any)
			if !isList {
				return false, fmt.Errorf("%w: %s needs a list", ErrInvalidFilter, op)
			}
			for _, item := range items {
				if equalOrContains(v, item) {
					res = true
					break
				}
			}
			if op == "$nin" {
				res = !res
			}
		case "$gt", "$gte", "$lt", "$lte":
			want, nerr := normalize(arg)
			if nerr != nil {
				return false, nerr
			}
			c, comparable := compare(v, want)
			if !comparable || !present {
				res = false
				break
			}
			switch op {
			case "$gt":
				res = c > 0
			case "$gte":
				res = c >= 0
			case "$lt":
				res = c < 0
			case "$lte":
				res = c <= 0
			}
		case "$regex":
			res, err = matchRegex(v, arg, ops["$options"])
		case "$options":
			res = true
		default:
			return false, fmt.Errorf("%w: unsupported operator %q", ErrInvalidFilter, op)
		}
		if err != nil || !res {
			return false, err
		}
	}
	return true, nil
}

func matchRegex(v, pattern, options any) (bool, error) {
	p, ok := pattern.(string)
	if !ok {
		return false, fmt.Errorf("%w: $regex needs a string", ErrInvalidFilter)
	}
	if opts, _ := options.(string); strings.Contains(opts, "i") {
		p = "(?i)" + p
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	switch s := v.(type) {
	case string:
		return re.MatchString(s), nil
	case []any:
		for _, item := range s {
			if str, ok := item.(string); ok && re.MatchString(str) {
				return true, nil
			}
		}
	}
	return false, nil
}

// equalOrContains follows document-store semantics: a list field matches a
// scalar when any element equals it.
func equalOrContains(v, want any) bool {
	if equal(v, want) {
		return true
	}
	if list, ok := v.([]any); ok {
		if _, wantList := want.([]any); !wantList {
			for _, item := range list {
				if equal(item, want) {
					return true
				}
			}
		}
	}
	return false
}

func equal(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, present := bv[k]
			if !present || !equal(x, y) {
				return false
			}
		}
		return true
	}
	return false
}

// compare orders two numbers or two strings.
func compare(a, b any) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	}
	return 0, false
}

// normalize converts a Go value to the JSON shape records hold.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, float64:
		return x, nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case time.Time:
		return x.UTC().Format(TimeFormat), nil
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		return x.UTC().Format(TimeFormat), nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case Record:
		return normalize(map[string]any(x))
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize %T: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("normalize %T: %w", v, err)
	}
	return out, nil
}

func getPath(r map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = r
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			if rec, isRec := cur.(Record); isRec {
				m = rec
			} else {
				return nil, false
			}
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(r map[string]any, path string, v any) {
	parts := strings.Split(path, ".")
	m := r
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = v
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}

func cloneRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}
