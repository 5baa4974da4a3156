package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Exercise categories used by the catalog.
const (
	CategoryLegs      = "legs"
	CategoryCore      = "core"
	CategoryFullBody  = "full_body"
	CategoryChest     = "chest"
	CategoryBack      = "back"
	CategoryShoulders = "shoulders"
	CategoryArms      = "arms"
)

// NormalizeDifficulty folds free-form difficulty labels onto beginner,
// intermediate or advanced. Unrecognised labels map to "".
func NormalizeDifficulty(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "beginner", "novice":
		return "beginner"
	case "intermediate":
		return "intermediate"
	case "advanced", "expert", "master", "grand master", "legendary":
		return "advanced"
	default:
		return ""
	}
}

var categoryHints = []struct {
	category string
	keywords []string
}{
	{CategoryChest, []string{"pectoralis", "chest"}},
	{CategoryBack, []string{"latissimus", "trapezi", "rhombo", "erector", "back"}},
	{CategoryShoulders, []string{"deltoid", "shoulder", "rotator"}},
	{CategoryArms, []string{"biceps", "triceps", "forearm", "wrist", "brachii"}},
}

// InferCategory derives a catalog category from the body region and the
// muscles an exercise works.
func InferCategory(bodyRegion string, muscles ...string) string {
	switch strings.ToLower(strings.TrimSpace(bodyRegion)) {
	case "lower body":
		return CategoryLegs
	case "core":
		return CategoryCore
	case "full body":
		return CategoryFullBody
	}

	hint := strings.ToLower(strings.Join(muscles, " "))
	for _, h := range categoryHints {
		for _, kw := range h.keywords {
			if strings.Contains(hint, kw) {
				return h.category
			}
		}
	}
	if strings.EqualFold(strings.TrimSpace(bodyRegion), "upper body") {
		return CategoryArms
	}
	return CategoryFullBody
}

// StableExerciseID returns an id that stays the same across imports of the
// same catalog key.
func StableExerciseID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("functional-fitness:"+key)).String()
}

// DedupeFold trims values and drops blanks and case-insensitive duplicates,
// keeping the first spelling seen.
func DedupeFold(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
