package cognitive

import "github.com/anacreon-labs/factledger/internal/domain"

// SelectMode picks the mode for a turn. Teaching always goes through
// review; questions are answered only from trusted knowledge.
func SelectMode(intent domain.IntentType, hasTrustedKnowledge bool) domain.CognitiveMode {
	switch intent {
	case domain.IntentCodeRequest:
		return domain.ModeCodeAnalysis
	case domain.IntentSearchRequest:
		return domain.ModeInvestigation
	case domain.IntentTeaching, domain.IntentValidationResponse:
		return domain.ModeValidation
	case domain.IntentQuestion:
		if hasTrustedKnowledge {
			return domain.ModeAnswer
		}
		return domain.ModeInvestigation
	default:
		return domain.ModeAnswer
	}
}
