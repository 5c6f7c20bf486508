package search

import (
	"testing"

	"pkg.world.dev/world-engine/foundry/assert"
)

func TestCQL_ParseAndPrint(t *testing.T) {
	cases := []struct{ in, want string }{
		{"ALL()", "ALL()"},
		{"EXACT(a,b)", "EXACT(a, b)"},
		{"!CONTAINS(a) | (EXACT(b)&ALL())", "!(CONTAINS(a)) | (EXACT(b) & ALL())"},
	}
	for _, tc := range cases {
		term, err := cqlParser.ParseString("", tc.in)
		assert.NilError(t, err)
		assert.Equal(t, tc.want, term.String())
	}
}
