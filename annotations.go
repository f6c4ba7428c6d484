package es

type (
	// StringAnnotation is a text-valued annotation.
	StringAnnotation struct {
		Key   string `cbor:"1,keyasint"`
		Value string `cbor:"2,keyasint"`
	}

	// NumericAnnotation is an unsigned-integer-valued annotation.
	NumericAnnotation struct {
		Key   string `cbor:"1,keyasint"`
		Value uint64 `cbor:"2,keyasint"`
	}

	// Annotations is the metadata attached to an entity.
	// Keys may repeat within each list.
	Annotations struct {
		Strings  []StringAnnotation  `cbor:"10,keyasint,omitempty"`
		Numerics []NumericAnnotation `cbor:"11,keyasint,omitempty"`
	}
)

// StringValue returns the first string annotation with the given key.
func (a Annotations) StringValue(key string) (string, bool) {
	for _, s := range a.Strings {
		if s.Key == key {
			return s.Value, true
		}
	}
	return "", false
}

// StringOr returns the first string annotation with the given key,
// or def if there is none.
func (a Annotations) StringOr(key, def string) string {
	if v, ok := a.StringValue(key); ok {
		return v
	}
	return def
}

// StringValues returns every string annotation value with the given key, in order.
func (a Annotations) StringValues(key string) []string {
	var out []string
	for _, s := range a.Strings {
		if s.Key == key {
			out = append(out, s.Value)
		}
	}
	return out
}

// NumericValue returns the first numeric annotation with the given key.
func (a Annotations) NumericValue(key string) (uint64, bool) {
	for _, n := range a.Numerics {
		if n.Key == key {
			return n.Value, true
		}
	}
	return 0, false
}

// NumericValues returns every numeric annotation value with the given key, in order.
func (a Annotations) NumericValues(key string) []uint64 {
	var out []uint64
	for _, n := range a.Numerics {
		if n.Key == key {
			out = append(out, n.Value)
		}
	}
	return out
}

// AddString appends a string annotation.
func (a *Annotations) AddString(key, value string) {
	a.Strings = append(a.Strings, StringAnnotation{Key: key, Value: value})
}

// AddNumeric appends a numeric annotation.
func (a *Annotations) AddNumeric(key string, value uint64) {
	a.Numerics = append(a.Numerics, NumericAnnotation{Key: key, Value: value})
}

// Clone returns a deep copy of a.
func (a Annotations) Clone() Annotations {
	var out Annotations
	if a.Strings != nil {
		out.Strings = append([]StringAnnotation(nil), a.Strings...)
	}
	if a.Numerics != nil {
		out.Numerics = append([]NumericAnnotation(nil), a.Numerics...)
	}
	return out
}
