package domain

type ConfidenceBand string

const (
	BandTrusted   ConfidenceBand = "trusted"
	BandProbable  ConfidenceBand = "probable"
	BandTentative ConfidenceBand = "tentative"
	BandUnrated   ConfidenceBand = "unrated"
)

// ComputeBand buckets a confidence for display. Only the trusted band is
// assertable, and only when the fact is also VALIDATED.
func ComputeBand(confidence float64) ConfidenceBand {
	switch {
	case confidence >= AssertionThreshold:
		return BandTrusted
	case confidence >= 0.70:
		return BandProbable
	case confidence > 0:
		return BandTentative
	default:
		return BandUnrated
	}
}

// BandReason names the bounds of the band confidence falls in.
func BandReason(confidence float64) string {
	switch ComputeBand(confidence) {
	case BandTrusted:
		return "confidence >= 0.85"
	case BandProbable:
		return "0.70 <= confidence < 0.85"
	case BandTentative:
		return "0 < confidence < 0.70"
	default:
		return "confidence = 0"
	}
}

// AllBands lists the bands from most to least confident.
func AllBands() []ConfidenceBand {
	return []ConfidenceBand{BandTrusted, BandProbable, BandTentative, BandUnrated}
}
