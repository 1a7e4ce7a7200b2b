package main

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/txpulse/txpulse/service/analytics"
)

func resultAsJQInput(t *testing.T, r *analytics.Result) interface{} {
	t.Helper()
	raw, err := json.Marshal(r)
	require.NoError(t, err)
	var input interface{}
	require.NoError(t, json.Unmarshal(raw, &input))
	return input
}

func TestEvalJQ_ExtractsBalance(t *testing.T) {
	balance := decimal.RequireFromString("4.5")
	input := resultAsJQInput(t, &analytics.Result{
		Intent:  analytics.IntentCurrentBalance,
		Wallet:  "Main Treasury",
		Balance: &balance,
	})

	outputs, err := evalJQ(".balance", input)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "4.5", outputs[0])
}

func TestEvalJQ_IteratesTransactions(t *testing.T) {
	input := map[string]interface{}{
		"transactions": []interface{}{
			map[string]interface{}{"id": "sig1"},
			map[string]interface{}{"id": "sig2"},
		},
	}

	outputs, err := evalJQ(".transactions[].id", input)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"sig1", "sig2"}, outputs)
}

func TestEvalJQ_InvalidFilter(t *testing.T) {
	_, err := evalJQ(".[invalid", map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse jq filter")
}

func TestEvalJQ_MissingFieldYieldsNull(t *testing.T) {
	outputs, err := evalJQ(".nope", map[string]interface{}{"intent": "count"})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Nil(t, outputs[0])
}
