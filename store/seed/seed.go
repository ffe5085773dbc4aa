package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"foodbridge/store"
)

// Fixture maps collection names to the documents to insert.
type Fixture map[string][]map[string]any

var ErrUnknownFormat = errors.New("unknown fixture format")

// Options controls Load.
type Options struct {
	// Replace empties each fixture collection before inserting.
	Replace bool
}

// Decode parses fixture data. The format comes from the name's extension:
// .json, .yaml or .yml.
func Decode(name string, data []byte) (Fixture, error) {
	var fx Fixture
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		if err := json.Unmarshal(data, &fx); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fx); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, name)
	}
	return fx, nil
}

// Load reads src and inserts its documents into s, returning the number of
// documents inserted per collection.
func Load(ctx context.Context, s store.Store, src Source, opts Options) (map[string]int, error) {
	data, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load seed %s: %w", src.Name(), err)
	}
	fx, err := Decode(src.Name(), data)
	if err != nil {
		return nil, err
	}

	collections := make([]string, 0, len(fx))
	for c := range fx {
		collections = append(collections, c)
	}
	sort.Strings(collections)

	counts := make(map[string]int, len(fx))
	for _, c := range collections {
		if opts.Replace {
			removed, err := s.Delete(ctx, c, store.Filter{})
			if err != nil {
				return counts, fmt.Errorf("clear %s: %w", c, err)
			}
			slog.Debug("STORE: cleared collection", "collection", c, "removed", removed)
		}
		for i, doc := range fx[c] {
			if _, err := s.Insert(ctx, c, store.Record(doc)); err != nil {
				return counts, fmt.Errorf("insert %s[%d]: %w", c, i, err)
			}
			counts[c]++
		}
		slog.Info("STORE: seeded collection", "collection", c, "documents", counts[c])
	}
	return counts, nil
}
