package main

import (
	"bytes"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopay-tips/internal/domain"
)

func TestSuggestionOutput_None(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, suggestionOutput(42, nil)))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, float64(42), got["now"])
	assert.Equal(t, "0", got["tip"])
	assert.NotContains(t, got, "query_id")
	assert.Equal(t, []interface{}{}, got["feed_ids"])
}

func TestSuggestionOutput(t *testing.T) {
	rec := &domain.Recommendation{
		QueryID:    domain.QueryID{0xab},
		QueryData:  []byte{0x01},
		TipAmount:  big.NewInt(30),
		FeedTip:    big.NewInt(10),
		OneTimeTip: big.NewInt(20),
		FeedIDs:    []domain.FeedID{{0xcd}},
	}

	out := suggestionOutput(7, rec)
	assert.Equal(t, rec.QueryID.Hex(), out.QueryID)
	assert.Equal(t, "0x01", out.QueryData)
	assert.Equal(t, "30", out.Tip)
	assert.Equal(t, "10", out.FeedTip)
	assert.Equal(t, "20", out.OneTimeTip)
	assert.Equal(t, []string{rec.FeedIDs[0].Hex()}, out.FeedIDs)
}

func TestQueryTipOutput_NilAmounts(t *testing.T) {
	out := queryTipOutput(7, &domain.QueryTotal{
		Query:   domain.Query{Type: "SpotPrice", Data: []byte{0x02}},
		FeedTip: big.NewInt(5),
	})
	assert.Equal(t, "5", out.Tip)
	assert.Equal(t, "0", out.OneTimeTip)
	assert.Equal(t, "SpotPrice", out.Type)
}
