// Package store is a registry of entity store implementations,
// each creatable from a configuration map.
package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/es"
)

// Factory creates a store from its configuration.
type Factory func(context.Context, map[string]interface{}) (es.Store, error)

var registry = make(map[string]Factory)

// Register makes a store type available to Create.
// It is normally called from an init function.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create creates a store of the type named by key.
func Create(ctx context.Context, key string, conf map[string]interface{}) (es.Store, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}

// Types lists the registered store types.
func Types() []string {
	var out []string
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Nested creates the store described by the "nested" table of conf,
// for store types that wrap another.
func Nested(ctx context.Context, conf map[string]interface{}) (es.Store, error) {
	nested, ok := conf["nested"].(map[string]interface{})
	if !ok {
		return nil, errors.New(`missing "nested" parameter`)
	}
	nestedType, ok := nested["type"].(string)
	if !ok {
		return nil, errors.New(`"nested" parameter missing "type"`)
	}
	s, err := Create(ctx, nestedType, nested)
	return s, errors.Wrap(err, "creating nested store")
}

// String gets a required string parameter from conf.
func String(conf map[string]interface{}, name string) (string, error) {
	s, ok := conf[name].(string)
	if !ok {
		return "", fmt.Errorf(`missing "%s" parameter`, name)
	}
	return s, nil
}

// Int gets an integer parameter from conf,
// returning def if it is absent.
// Configuration decoders disagree about integer types,
// so any Go integer or float type is accepted.
func Int(conf map[string]interface{}, name string, def int) (int, error) {
	v, ok := conf[name]
	if !ok {
		return def, nil
	}
	switch v := v.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf(`"%s" parameter is not an integer`, name)
		}
		return int(v), nil
	}
	return 0, fmt.Errorf(`"%s" parameter has type %T, want integer`, name, v)
}

// Bool gets a boolean parameter from conf,
// returning false if it is absent.
func Bool(conf map[string]interface{}, name string) bool {
	b, _ := conf[name].(bool)
	return b
}

// Clock is the source of the current time for stores that track expiry.
type Clock func() time.Time
