package businessflow

import (
	"testing"

	"github.com/amirphl/Kiriban/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMilestone(t *testing.T) {
	tests := []struct {
		name  string
		kind  models.MilestoneKind
		count int64
		want  bool
	}{
		{"A below threshold", models.MilestoneRoundOrRepdigit100, 99, false},
		{"A threshold", models.MilestoneRoundOrRepdigit100, 100, true},
		{"A repdigit", models.MilestoneRoundOrRepdigit100, 111, true},
		{"A plain", models.MilestoneRoundOrRepdigit100, 150, false},
		{"A round thousands", models.MilestoneRoundOrRepdigit100, 5000, true},
		{"A round large", models.MilestoneRoundOrRepdigit100, 700000, true},
		{"A repdigit large", models.MilestoneRoundOrRepdigit100, 7777, true},
		{"A two digit repdigit", models.MilestoneRoundOrRepdigit100, 22, false},
		{"A trailing zeros only", models.MilestoneRoundOrRepdigit100, 1010, false},
		{"A zero", models.MilestoneRoundOrRepdigit100, 0, false},
		{"A negative", models.MilestoneRoundOrRepdigit100, -100, false},
		{"B single digit", models.MilestoneRoundOrRepdigit10, 9, false},
		{"B threshold", models.MilestoneRoundOrRepdigit10, 10, true},
		{"B repdigit", models.MilestoneRoundOrRepdigit10, 22, true},
		{"B plain", models.MilestoneRoundOrRepdigit10, 21, false},
		{"B round", models.MilestoneRoundOrRepdigit10, 300, true},
		{"B single digit repdigit", models.MilestoneRoundOrRepdigit10, 7, false},
		{"unknown kind behaves as A", models.MilestoneKind("other"), 22, false},
		{"unknown kind threshold", models.MilestoneKind("other"), 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMilestone(tt.kind, tt.count))
			assert.Equal(t, tt.want, IsMilestone(tt.kind, tt.count), "classification is deterministic")
		})
	}
}

func TestIsMilestone_SingleDigitsNeverQualify(t *testing.T) {
	for _, kind := range []models.MilestoneKind{models.MilestoneRoundOrRepdigit100, models.MilestoneRoundOrRepdigit10} {
		for c := int64(0); c < 10; c++ {
			assert.False(t, IsMilestone(kind, c), "kind=%s count=%d", kind, c)
		}
	}
}

func TestParseMilestoneKind(t *testing.T) {
	kind, err := ParseMilestoneKind("")
	require.NoError(t, err)
	assert.Equal(t, models.MilestoneRoundOrRepdigit100, kind)

	kind, err = ParseMilestoneKind("round_or_repdigit_10")
	require.NoError(t, err)
	assert.Equal(t, models.MilestoneRoundOrRepdigit10, kind)

	_, err = ParseMilestoneKind("primes")
	assert.ErrorIs(t, err, ErrInvalidMilestoneKind)
}
