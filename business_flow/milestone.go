package businessflow

import (
	"strconv"

	"github.com/amirphl/Kiriban/models"
)

// IsMilestone reports whether count is a kiriban under the given rule.
// A milestone has at least two digits, reaches the rule's threshold and is
// either round (leading digit followed only by zeros) or a repdigit.
// Unknown kinds are treated as MilestoneRoundOrRepdigit100.
func IsMilestone(kind models.MilestoneKind, count int64) bool {
	if count < milestoneThreshold(kind) {
		return false
	}
	digits := strconv.FormatInt(count, 10)
	return isRound(digits) || isRepdigit(digits)
}

func milestoneThreshold(kind models.MilestoneKind) int64 {
	if kind == models.MilestoneRoundOrRepdigit10 {
		return 10
	}
	return 100
}

func isRound(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != '0' {
			return false
		}
	}
	return true
}

func isRepdigit(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}

// ParseMilestoneKind validates a kind supplied by a caller; empty selects the default
func ParseMilestoneKind(s string) (models.MilestoneKind, error) {
	switch models.MilestoneKind(s) {
	case "":
		return models.MilestoneRoundOrRepdigit100, nil
	case models.MilestoneRoundOrRepdigit100, models.MilestoneRoundOrRepdigit10:
		return models.MilestoneKind(s), nil
	default:
		return "", ErrInvalidMilestoneKind
	}
}
