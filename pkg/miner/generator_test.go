package miner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicGenerator(t *testing.T) {
	g, err := NewHeuristicGenerator(nil, nil)
	require.NoError(t, err)

	tests := []struct {
		line     string
		expected string
	}{
		{"Connection from 10.0.0.1 port 22", "Connection from {variables} port {variables}"},
		{"Session 123e4567-e89b-12d3-a456-426614174000 expired", "Session {variables} expired"},
		{"mail sent to ops@example.com", "mail sent to {variables}"},
		{"fault at 0x7ffee3a0", "fault at {variables}"},
		{"service started", "service started"},
		{"42", "42"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := g.Generate(context.Background(), tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, err = g.Generate(context.Background(), "")
	assert.True(t, errors.Is(err, ErrNoTemplate))
}
