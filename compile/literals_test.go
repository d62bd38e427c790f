package compile

import (
	"testing"
)

func TestPrefixLiterals(t *testing.T) {
	tests := []struct {
		pattern string
		want    []string
		ok      bool
	}{
		{"abc.*", []string{"abc"}, true},
		{"(?<=x)foo", []string{"foo"}, true},
		{"(?<=a|b)foo|bar", []string{"foo", "bar"}, true},
		{"a+b", []string{"a"}, true},
		{"(ab)c", []string{"ab"}, true},
		{`\bword`, []string{"word"}, true},
		{"^anchored", []string{"anchored"}, true},
		// No mandatory prefix: class, optional lead, fold, dot.
		{"[ab]c", nil, false},
		{"a?b", nil, false},
		{"(?i)abc", nil, false},
		{".x", nil, false},
		{"a*", nil, false},
		// One alternative without a literal prefix poisons the set.
		{"foo|[xy]z", nil, false},
		{"a|", nil, false},
		// Each top-level alternative contributes its own prefix even
		// when lookarounds are involved.
		{"q(?!u)|z", []string{"q", "z"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, ok := PrefixLiterals(tt.pattern)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v (lits %q)", ok, tt.ok, got)
			}
			if !ok {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
			for i := range got {
				if string(got[i]) != tt.want[i] {
					t.Errorf("literal %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
