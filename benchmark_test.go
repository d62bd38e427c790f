package lookback

import (
	"bytes"
	"strings"
	"testing"
)

// Benchmarks for the lookbehind-heavy patterns the engine exists for,
// plus a prefiltered scan over a large haystack.

func BenchmarkLookbehindHit(b *testing.B) {
	re := MustCompile(`(?<=USD )\d+`)
	input := []byte("invoice total: USD 2500 net")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := re.FindIndex(input); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLookbehindMiss(b *testing.B) {
	re := MustCompile(`(?<=USD )\d+`)
	input := []byte(strings.Repeat("no currency amounts here ", 40))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := re.FindIndex(input); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPrefilteredScan(b *testing.B) {
	re := MustCompile(`(?<=id=)needle\d+`)
	input := bytes.Repeat([]byte("padding padding padding "), 200)
	input = append(input, []byte("id=needle42")...)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := re.FindIndex(input); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkReverseQuantifier(b *testing.B) {
	re := MustCompile(`(?<=a+)b`)
	input := []byte(strings.Repeat("a", 64) + "b")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := re.FindIndex(input); err != nil {
			b.Fatal(err)
		}
	}
}
