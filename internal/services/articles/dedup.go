package articles

import "github.com/NickHafner/scraper/internal/models"

// Outcome classifies an extracted article against the ledger.
type Outcome string

const (
	// OutcomeNew means no article exists for the URL.
	OutcomeNew Outcome = "new"
	// OutcomeUnchanged means the URL exists and the content fingerprint
	// matches the stored one.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeUpdated means the URL exists but the content fingerprint
	// differs from the stored one.
	OutcomeUpdated Outcome = "updated"
)

// Decide compares a freshly computed content fingerprint against the
// existing ledger entry for the same URL. existing is nil when the URL
// has never been seen. The decision depends only on its inputs.
func Decide(existing *models.Article, fingerprint string) Outcome {
	if existing == nil {
		return OutcomeNew
	}
	if existing.ContentHash == fingerprint {
		return OutcomeUnchanged
	}
	return OutcomeUpdated
}
