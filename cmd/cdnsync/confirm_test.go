package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmClean(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		interactive bool
		yes         bool
		want        bool
		wantOut     string
	}{
		{name: "yes flag skips prompt", yes: true, want: true},
		{name: "no terminal keeps files", wantOut: "pass --yes"},
		{name: "answer y", input: "y\n", interactive: true, want: true, wantOut: "Delete 3"},
		{name: "answer YES", input: " YES \n", interactive: true, want: true},
		{name: "answer n", input: "n\n", interactive: true},
		{name: "empty answer", input: "\n", interactive: true},
		{name: "eof", input: "", interactive: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := confirmClean(strings.NewReader(tt.input), &out, tt.interactive, tt.yes, 3)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), tt.wantOut)
		})
	}
}
