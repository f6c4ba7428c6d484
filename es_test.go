package es

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseKey(t *testing.T) {
	hex64 := strings.Repeat("ab", KeySize)

	cases := []struct {
		in      string
		wantErr bool
	}{
		{in: "0x" + hex64},
		{in: "0X" + hex64},
		{in: hex64},
		{in: strings.ToUpper(hex64)},
		{in: "", wantErr: true},
		{in: "0x", wantErr: true},
		{in: "0x" + hex64[:62], wantErr: true},
		{in: "0x" + hex64 + "00", wantErr: true},
		{in: "0x" + strings.Repeat("zz", KeySize), wantErr: true},
	}

	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got, err := ParseKey(c.in)
			if c.wantErr {
				if !errors.Is(err, ErrMalformedKey) {
					t.Fatalf("got error %v, want ErrMalformedKey", err)
				}
				var mk *MalformedKeyError
				if !errors.As(err, &mk) || mk.Input != c.in {
					t.Errorf("got %#v, want a *MalformedKeyError for %q", err, c.in)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.String() != "0x"+hex64 {
				t.Errorf("got %s, want 0x%s", got, hex64)
			}
		})
	}
}

func TestKeyRoundTrip(t *testing.T) {
	k := NewKey([]byte("nonce"), 3, []byte("payload"))
	if k.IsZero() {
		t.Fatal("minted a zero key")
	}
	got, err := ParseKey(k.String())
	if err != nil {
		t.Fatal(err)
	}
	if got != k {
		t.Errorf("got %s, want %s", got, k)
	}

	var scanned Key
	v, err := k.Value()
	if err != nil {
		t.Fatal(err)
	}
	if err = scanned.Scan(v); err != nil {
		t.Fatal(err)
	}
	if scanned != k {
		t.Errorf("scanned %s, want %s", scanned, k)
	}
}

func TestNewKey(t *testing.T) {
	a := NewKey([]byte("n"), 0, []byte("x"))
	if b := NewKey([]byte("n"), 0, []byte("x")); a != b {
		t.Errorf("NewKey not deterministic: %s vs %s", a, b)
	}
	if b := NewKey([]byte("n"), 1, []byte("x")); a == b {
		t.Error("index does not affect key")
	}
	if b := NewKey([]byte("m"), 0, []byte("x")); a == b {
		t.Error("nonce does not affect key")
	}
	// Length-prefixing keeps nonce and payload from running together.
	if b := NewKey([]byte("nx"), 0, nil); a == b {
		t.Error("nonce/payload boundary is ambiguous")
	}
}

func TestExpiry(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if exp := Expiry(created, 0); !exp.IsZero() {
		t.Errorf("BTL 0 gave expiry %s, want never", exp)
	}

	exp := Expiry(created, 25)
	if want := created.Add(50 * time.Second); !exp.Equal(want) {
		t.Errorf("got %s, want %s", exp, want)
	}
	if Expired(exp, exp.Add(-time.Nanosecond)) {
		t.Error("expired too early")
	}
	if !Expired(exp, exp) {
		t.Error("not expired at expiry time")
	}
	if Expired(time.Time{}, created.Add(100*365*24*time.Hour)) {
		t.Error("entity with no expiry expired")
	}
}

func TestAnnotations(t *testing.T) {
	var a Annotations
	a.AddString("tag", "x")
	a.AddString("tag", "y")
	a.AddNumeric("part", 2)

	if v, ok := a.StringValue("tag"); !ok || v != "x" {
		t.Errorf("got %q, %v; want x, true", v, ok)
	}
	if got := a.StringValues("tag"); len(got) != 2 || got[1] != "y" {
		t.Errorf("got %v, want [x y]", got)
	}
	if got := a.StringOr("filename", "image"); got != "image" {
		t.Errorf("got %q, want default", got)
	}
	if v, ok := a.NumericValue("part"); !ok || v != 2 {
		t.Errorf("got %d, %v; want 2, true", v, ok)
	}
	if _, ok := a.NumericValue("part-of"); ok {
		t.Error("found absent numeric annotation")
	}

	c := a.Clone()
	c.Strings[0].Value = "changed"
	if a.Strings[0].Value != "x" {
		t.Error("Clone shares storage with original")
	}
}

func TestUnavailable(t *testing.T) {
	if Unavailable(nil) != nil {
		t.Error("Unavailable(nil) is not nil")
	}
	cause := errors.New("connection refused")
	err := Unavailable(cause)
	if !errors.Is(err, ErrUnavailable) {
		t.Error("does not match ErrUnavailable")
	}
	if !errors.Is(err, cause) {
		t.Error("does not unwrap to cause")
	}
}
