package model

// Proposal is the working document under deliberation. The resolver and the
// conditionality gate amend it; evaluations never do.
type Proposal struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Body             string           `json:"body"`
	Amendments       []string         `json:"amendments,omitempty"`
	MechanismPatches []MechanismPatch `json:"mechanism_patches,omitempty"`
}

// Amend appends an amendment. Amendments are append-only; the original body
// is never rewritten in place.
func (p *Proposal) Amend(text string) {
	p.Amendments = append(p.Amendments, text)
}

// MergePatch merges a mechanism patch into the proposal. Patch integration
// cannot be refused; it can only be applied.
func (p *Proposal) MergePatch(patch MechanismPatch) {
	p.MechanismPatches = append(p.MechanismPatches, patch)
}

// Context is the active scope a deliberation runs under. Waiver scope
// matching compares against these fields.
type Context struct {
	Market      string `json:"market,omitempty" yaml:"market,omitempty"`
	Industry    string `json:"industry,omitempty" yaml:"industry,omitempty"`
	CompanySize string `json:"company_size,omitempty" yaml:"company_size,omitempty"`
}
