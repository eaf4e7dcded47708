package goal

import (
	"fmt"
	"strings"
)

// signatureSeparator joins the normalized fields of a signature.
// A field containing this sequence can in principle manufacture a
// false-positive match; accepted as a known limitation of the format.
const signatureSeparator = "|"

// Signature derives a deterministic content fingerprint from a goal's
// semantic fields, independent of any assigned identifier. Two goals
// with equal signatures are the same logical goal regardless of which
// device or store produced them.
//
// Normalization is lower-case and trim; an absent description is
// identical to an empty one. Milestone count and the first three
// milestone tasks participate, so structurally different goals with
// the same title are kept apart.
func Signature(g *Goal) string {
	parts := []string{
		normalize(g.Title),
		normalize(g.Description),
		normalize(g.Timeline),
		fmt.Sprintf("%d", len(g.Milestones)),
	}

	for i := 0; i < 3 && i < len(g.Milestones); i++ {
		parts = append(parts, normalize(g.Milestones[i].Task))
	}

	return strings.Join(parts, signatureSeparator)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
