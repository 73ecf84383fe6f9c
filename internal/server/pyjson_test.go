package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestASCIIJSONString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", `"hello"`},
		{"café", `"caf\u00e9"`},
		{"ligne 1\nligne 2\t\"x\"", `"ligne 1\nligne 2\t\"x\""`},
		{`a\b`, `"a\\b"`},
		{"😀", `"\ud83d\ude00"`},
		{"\x01\x7f", `"\u0001\u007f"`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := asciiJSONString(tt.in)
			assert.Equal(t, tt.want, got)

			var back string
			require.NoError(t, json.Unmarshal([]byte(got), &back))
			assert.Equal(t, tt.in, back)
		})
	}
}

func TestChatName(t *testing.T) {
	assert.Equal(t, "un deux trois quatre cinq", chatName("un deux  trois\nquatre cinq six"))
	assert.Equal(t, "Nouvelle conversation", chatName("   "))
}
