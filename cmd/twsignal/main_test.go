package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TWSignal/internal/domain/models"
)

func TestValidate_AppliesDefaultsAndTickerRule(t *testing.T) {
	ctx := context.Background()

	req := &models.BacktestRequest{Tickers: []string{"2330", "6488.TWO"}}
	require.NoError(t, validate(ctx, req))
	assert.Equal(t, "1y", req.Period)
	assert.Equal(t, "model", req.Strategy)
	assert.Equal(t, 0.6, req.BuyThreshold)

	err := validate(ctx, &models.BacktestRequest{Tickers: []string{"TSMC"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Taiwan code")

	err = validate(ctx, &models.BacktestRequest{Tickers: []string{"2330"}, From: "2024/01/02"})
	assert.Error(t, err)
}

func TestRoot_RejectsUnknownFormat(t *testing.T) {
	c := &cli{}
	root := c.rootCmd()
	root.SetArgs([]string{"--format", "xml", "universe", "list"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--format")
	assert.Nil(t, c.svc, "services are not wired on bad flags")
}
