package identifier

import (
	"errors"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "ascii", raw: "acme-1", want: "acme-1"},
		{name: "underscore", raw: "shop_42", want: "shop_42"},
		{name: "umlaut", raw: "bäckerei-müller", want: "bäckerei-müller"},
		{name: "percent-encoded umlaut", raw: "b%C3%A4ckerei", want: "bäckerei"},
		{name: "latin-1 accents", raw: "café-Ørsted", want: "café-Ørsted"},
		{name: "minimum length", raw: "ab", want: "ab"},
		{name: "maximum length", raw: strings.Repeat("a", 100), want: strings.Repeat("a", 100)},
		{name: "maximum length multibyte", raw: strings.Repeat("ü", 100), want: strings.Repeat("ü", 100)},
		{name: "empty", raw: "", wantErr: true},
		{name: "too short", raw: "a", wantErr: true},
		{name: "too long", raw: strings.Repeat("a", 101), wantErr: true},
		{name: "slash", raw: "a/b", wantErr: true},
		{name: "encoded slash", raw: "a%2Fb", wantErr: true},
		{name: "space", raw: "a b", wantErr: true},
		{name: "dot", raw: "a.b", wantErr: true},
		{name: "multiplication sign", raw: "a×b", wantErr: true},
		{name: "division sign", raw: "a÷b", wantErr: true},
		{name: "cyrillic", raw: "абв", wantErr: true},
		{name: "bad escape kept raw", raw: "ab%zz", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Validate(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Fatalf("Validate(%q) error = %v, want ErrInvalid", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("Validate(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestErrInvalid_Message(t *testing.T) {
	t.Parallel()

	if ErrInvalid.Error() != `Missing or invalid "id" query parameter.` {
		t.Errorf("unexpected message %q", ErrInvalid.Error())
	}
}

func TestDecode_KeepsRawOnError(t *testing.T) {
	t.Parallel()

	if got := Decode("abc%"); got != "abc%" {
		t.Errorf("Decode() = %q, want raw input", got)
	}
}

func TestValidate_AcceptsGrammar(t *testing.T) {
	alphabet := []rune("abcXYZ019_-ÄÖÜäöüßÀÖØöøÿ")
	rapid.Check(t, func(t *rapid.T) {
		runes := rapid.SliceOfN(rapid.SampledFrom(alphabet), MinLength, MaxLength).Draw(t, "id")
		id := string(runes)
		got, err := Validate(id)
		if err != nil {
			t.Fatalf("Validate(%q) error = %v", id, err)
		}
		if got != id {
			t.Fatalf("Validate(%q) = %q", id, got)
		}
	})
}
