package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefenseClass(t *testing.T) {
	tests := []struct {
		input   string
		want    DefenseClass
		wantErr bool
	}{
		{"HEDGE", ClassHedge, false},
		{"hedge", ClassHedge, false},
		{"  Defensive ", ClassDefensive, false},
		{"MODERATE", ClassModerate, false},
		{"cyclical", ClassCyclical, false},
		{"AMPLIFIER", ClassAmplifier, false},
		{"", "", true},
		{"BOND", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDefenseClass(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefenseClass_RegimeAdjustment(t *testing.T) {
	assert.Equal(t, 5, ClassHedge.RegimeAdjustment())
	assert.Equal(t, 3, ClassDefensive.RegimeAdjustment())
	assert.Equal(t, 0, ClassModerate.RegimeAdjustment())
	assert.Equal(t, -3, ClassCyclical.RegimeAdjustment())
	assert.Equal(t, -5, ClassAmplifier.RegimeAdjustment())
	assert.Equal(t, 0, DefenseClass("UNKNOWN").RegimeAdjustment())
}

func TestDefenseClass_Valid(t *testing.T) {
	for _, c := range DefenseClasses() {
		assert.True(t, c.Valid(), string(c))
	}
	assert.False(t, DefenseClass("hedge").Valid())
	assert.False(t, DefenseClass("").Valid())
}

func TestBacktestResult_ClassCounts(t *testing.T) {
	result := NewBacktestResult(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
	result.Classifications["GLD"] = ClassificationRecord{Classification: ClassHedge, Source: SourceOverride}
	result.Classifications["XLU"] = ClassificationRecord{Classification: ClassDefensive, Source: SourceBacktest}
	result.Classifications["XLP"] = ClassificationRecord{Classification: ClassDefensive, Source: SourceBacktest}

	counts := result.ClassCounts()
	assert.Equal(t, 1, counts[ClassHedge])
	assert.Equal(t, 2, counts[ClassDefensive])
	assert.Equal(t, 0, counts[ClassAmplifier])
	assert.Len(t, counts, 5)
}

func TestClassificationRecord_JSONNullMetrics(t *testing.T) {
	rec := ClassificationRecord{Classification: ClassHedge, Source: SourceOverride}

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"classification":"HEDGE","metrics":null,"source":"override"}`, string(data))
}
