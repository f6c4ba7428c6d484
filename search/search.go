// Package search finds derived artifacts by tag
// and navigates from them back to their originals.
package search

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bobg/es"
	"github.com/bobg/es/query"
	"github.com/bobg/es/schema"
)

// ByTag selects the thumbnails in namespace ns
// whose comma-separated tag list contains term.
// A single space is allowed on either side of each comma.
func ByTag(ns, term string) query.Expr {
	var (
		q     = query.QuoteMeta(term)
		terms = []query.Expr{query.Str(schema.KeyTag, term)}
	)
	for _, before := range []string{"", "*,", "*, "} {
		for _, after := range []string{"", ",*", " ,*"} {
			if before == "" && after == "" {
				continue
			}
			terms = append(terms, query.MustGlob(schema.KeyTag, before+q+after))
		}
	}
	return query.All(
		query.Str(schema.KeyType, schema.TypeThumbnail),
		query.Str(schema.KeyApp, ns),
		query.Any(terms...),
	)
}

// FindByTag returns the keys of the thumbnails matching ByTag(ns, term),
// in the order the store reports them.
func FindByTag(ctx context.Context, g es.Getter, ns, term string) ([]es.Key, error) {
	return keys(ctx, g, ByTag(ns, term))
}

// Thumbnails returns the keys of all the thumbnails in namespace ns.
func Thumbnails(ctx context.Context, g es.Getter, ns string) ([]es.Key, error) {
	return keys(ctx, g, schema.TypeQuery(ns, schema.TypeThumbnail))
}

func keys(ctx context.Context, g es.Getter, q query.Expr) ([]es.Key, error) {
	results, err := g.Query(ctx, q.String())
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", q)
	}
	out := make([]es.Key, 0, len(results))
	for _, r := range results {
		out = append(out, r.Key)
	}
	return out, nil
}

// Parent returns the root key named by the "parent" annotation
// of the entity at key.
// It returns an error matching es.ErrNotFound
// if the entity does not exist or has no parent.
func Parent(ctx context.Context, g es.Getter, key es.Key) (es.Key, error) {
	annots, _, err := g.Get(ctx, key)
	if err != nil {
		return es.Zero, errors.Wrapf(err, "getting %s", key)
	}
	p, ok := annots.StringValue(schema.KeyParent)
	if !ok {
		return es.Zero, errors.Wrapf(es.ErrNotFound, "no parent annotation on %s", key)
	}
	return es.ParseKey(p)
}
