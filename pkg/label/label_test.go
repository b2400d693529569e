package label

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "x = 1", "x = 1"},
		{"double quotes", `print("hi")`, "print(#quot;hi#quot;)"},
		{"braces", "d = {1: 2}", "d = #123;1: 2#125;"},
		{"angle brackets", "if a < b > c", "if a #lt; b #gt; c"},
		{"newline", "foo(a,\nb)", "foo(a, b)"},
		{"crlf", "foo(a,\r\nb)", "foo(a, b)"},
		{"tab", "a\t= 1", "a = 1"},
		{"surrounding space", "  return x  ", "return x"},
		{"single quotes kept", "print('hi')", "print('hi')"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitize_NoStructuralCharactersSurvive(t *testing.T) {
	out := Sanitize("x = {\"k\": \"v\"}\nprint(x)")
	for _, bad := range []string{`"`, "{", "}", "\n"} {
		assert.False(t, strings.Contains(out, bad), "found %q in %q", bad, out)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 0))
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "abcd...", Truncate("abcdefghij", 7))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "héll...", Truncate("héllo wörld", 7))
}

func TestUnescape(t *testing.T) {
	in := `if d == {"a": x < 1 > 2}:`
	assert.Equal(t, in, Unescape(Sanitize(in)))
	assert.Equal(t, "plain", Unescape("plain"))
}
