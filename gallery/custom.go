package gallery

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/bobg/es"
	"github.com/bobg/es/query"
	"github.com/bobg/es/schema"
)

// CustomAnnotations are caller-supplied annotations for an uploaded blob's root entity,
// mapping annotation key to value.
// Values consisting only of decimal digits become numeric annotations;
// all others are string annotations.
type CustomAnnotations map[string]string

// BadAnnotationError reports an invalid custom annotation.
type BadAnnotationError struct {
	Key, Reason string
}

func (e *BadAnnotationError) Error() string {
	return fmt.Sprintf("custom annotation %q: %s", e.Key, e.Reason)
}

// Annotations validates c as a unit and converts it,
// in key order.
// Keys must be nonempty identifiers usable in queries
// and must not be any of the keys in package schema.
// Values must be nonempty.
func (c CustomAnnotations) Annotations() (es.Annotations, error) {
	var a es.Annotations

	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := c[k]
		switch {
		case k == "":
			return a, &BadAnnotationError{Key: k, Reason: "empty key"}
		case !query.IsIdent(k):
			return a, &BadAnnotationError{Key: k, Reason: "key is not an identifier"}
		case schema.Reserved(k):
			return a, &BadAnnotationError{Key: k, Reason: "reserved key"}
		case v == "":
			return a, &BadAnnotationError{Key: k, Reason: "empty value"}
		}
		if isDigits(v) {
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				a.AddNumeric(k, n)
				continue
			}
		}
		a.AddString(k, v)
	}
	return a, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
