package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFakeIndicators(t *testing.T) {
	tests := []struct {
		name   string
		report Report
		want   FakeIndicators
		score  float64
	}{
		{
			name:   "complete report",
			report: Report{Title: "Flood in downtown area", Needs: []string{"water"}, DisasterType: "flood"},
			want:   FakeIndicators{},
			score:  0,
		},
		{
			name:   "short title",
			report: Report{Title: "help!!", Needs: []string{"water"}, DisasterType: "fire"},
			want:   FakeIndicators{ShortTitle: true},
			score:  1.0 / 3,
		},
		{
			name:   "title counted in characters",
			report: Report{Title: "Повінь!!", Needs: []string{"boats"}, DisasterType: "flood"},
			want:   FakeIndicators{ShortTitle: true},
			score:  1.0 / 3,
		},
		{
			name:   "disaster type case ignored",
			report: Report{Title: "Flood in downtown area", Needs: []string{"water"}, DisasterType: " Flood "},
			want:   FakeIndicators{},
			score:  0,
		},
		{
			name:   "no needs and unknown type",
			report: Report{Title: "Something happened here", DisasterType: "alien invasion"},
			want:   FakeIndicators{NoNeeds: true, UnknownDisasterType: true},
			score:  2.0 / 3,
		},
		{
			name:   "empty report",
			report: Report{},
			want:   FakeIndicators{ShortTitle: true, NoNeeds: true, UnknownDisasterType: true},
			score:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectFakeIndicators(tt.report)
			assert.Equal(t, tt.want, got)
			assert.InDelta(t, tt.score, got.Score(), 1e-12)
		})
	}
}

func TestLikelyAuthentic(t *testing.T) {
	assert.True(t, LikelyAuthentic(0.3, 0, 0.3), "at threshold")
	assert.True(t, LikelyAuthentic(0.9, 2.0/3, 0.3), "two of three indicators is still below the limit")
	assert.False(t, LikelyAuthentic(0.9, 1, 0.3), "all indicators raised")
	assert.False(t, LikelyAuthentic(0.29, 0, 0.3))
	assert.False(t, LikelyAuthentic(0, 0, 0), "zero similarity never qualifies")
}
