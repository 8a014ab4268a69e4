package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"plastic_surgery", CategoryPlasticSurgery},
		{" Dermatology ", CategoryDermatology},
		{"unclassified", Unclassified},
		{"dentistry", Unclassified},
		{"", Unclassified},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseCategory(tt.in), "input %q", tt.in)
	}
	assert.True(t, CategoryDermatology.Reportable())
	assert.False(t, Unclassified.Reportable())
}

func TestParseCTALevel(t *testing.T) {
	assert.Equal(t, CTAHot, ParseCTALevel("HOT"))
	assert.Equal(t, CTAWarm, ParseCTALevel(" warm"))
	assert.Equal(t, CTACool, ParseCTALevel("lukewarm"))
	assert.Less(t, CTACool.Rank(), CTAWarm.Rank())
	assert.Less(t, CTAWarm.Rank(), CTAHot.Rank())
}

func TestIntentNormalize_EmptyListsSerializeAsArrays(t *testing.T) {
	in := Intent{HospitalMentions: []HospitalMention{{Name: "A"}}}
	in.Normalize()

	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	for _, key := range []string{"main_concerns", "unwanted", "mentioned_procedures", "body_parts", "keywords", "hospital_mentions"} {
		_, ok := m[key].([]any)
		assert.True(t, ok, "expected %s to be an array", key)
	}
	hm := m["hospital_mentions"].([]any)[0].(map[string]any)
	assert.Equal(t, []any{}, hm["procedures"])
}
