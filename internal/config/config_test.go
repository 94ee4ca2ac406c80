package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axiomforge/internal/config"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Greater(t, cfg.Graph.NodeCap, 0)
	assert.Equal(t, 0.5, cfg.MCTS.CoverageWeight)
}

func TestValidate_RejectsBadNodeCap(t *testing.T) {
	cfg := config.Default()
	cfg.Graph.NodeCap = 0
	assert.Error(t, cfg.Validate())
}

func TestSessionParams_ToToTLimits(t *testing.T) {
	p := config.SessionParams{BranchingFactor: 3, MaxDepth: 5}
	limits := p.ToToTLimits()
	assert.Equal(t, 5, limits.MaxDepth)
	assert.Equal(t, 3, limits.MaxChildrenPerNode)
}

func TestSessionParams_FallsBackToDefaultsWhenUnset(t *testing.T) {
	p := config.SessionParams{}
	limits := p.ToToTLimits()
	assert.Greater(t, limits.MaxDepth, 0)
	assert.Greater(t, limits.MaxChildrenPerNode, 0)
}
