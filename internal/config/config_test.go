package config

import (
	"testing"

	"github.com/kumarabd/ingestion-plane/miner/pkg/merge"
	"github.com/kumarabd/ingestion-plane/miner/pkg/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBuildsComponents(t *testing.T) {
	cfg := Default()

	tok, err := token.New(cfg.Tokenizer)
	require.NoError(t, err)

	_, err = merge.New(cfg.Merge, tok)
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.Merge.NoisePatterns)
	assert.Equal(t, 0.5, cfg.Merge.WildcardRatio)
	assert.Equal(t, 0, cfg.Trie.MaxSearchSteps)
	assert.Equal(t, cfg.Ingest.MaxMessageBytes, cfg.Server.HTTP.Bounds.MaxMessageBytes)
}
