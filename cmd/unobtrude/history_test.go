// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatTally(t *testing.T) {
	tests := []struct {
		name  string
		tally map[string]int
		want  string
	}{
		{"empty", nil, ""},
		{"single", map[string]int{"text/html": 2}, "text/html=2"},
		{"sorted by type", map[string]int{"text/plain": 1, "application/zip": 3, "text/html": 2},
			"application/zip=3, text/html=2, text/plain=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatTally(tt.tally))
		})
	}
}
