package domain

// Location resolution tiers, lower = more exact.
const (
	TierExact  = 1 // direct name or alias hit in the region table
	TierFuzzy  = 2 // trigram-similar name above the similarity floor
	TierParent = 3 // borough-level fallback without a specific region
	TierLLM    = 4 // LLM-assisted candidate generation
)

// RegionCandidate is one possible region for an ambiguous location phrase.
type RegionCandidate struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Borough string `json:"borough,omitempty"`
}

// ResolvedLocation is the outcome of resolving a location phrase.
// Resolved=true implies RegionID != nil or Borough != "" (a borough-level
// match without a specific region is valid).
type ResolvedLocation struct {
	RegionID              *int64            `json:"region_id,omitempty"`
	RegionName            string            `json:"region_name,omitempty"`
	Borough               string            `json:"borough,omitempty"`
	Resolved              bool              `json:"resolved"`
	Tier                  int               `json:"tier,omitempty"`
	RequiresClarification bool              `json:"requires_clarification,omitempty"`
	Candidates            []RegionCandidate `json:"candidates,omitempty"`
}

// LocationNotFound is the terminal "could not resolve" state.
func LocationNotFound() ResolvedLocation {
	return ResolvedLocation{}
}

// NotFound reports whether resolution terminated without a region and
// without ambiguous candidates to offer.
func (l ResolvedLocation) NotFound() bool {
	return !l.Resolved && !l.RequiresClarification
}
