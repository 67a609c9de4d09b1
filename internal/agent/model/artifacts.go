package model

// Risk is one generated or registered risk entry.
type Risk struct {
	ID             string   `json:"id"`
	RiskID         string   `json:"risk_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	Likelihood     string   `json:"likelihood"`
	Impact         string   `json:"impact"`
	Treatment      string   `json:"treatment"`
	Owner          string   `json:"owner"`
	LinkedControls []string `json:"linked_controls,omitempty"`
}

// Control is one security control, optionally mapped to an Annex A reference.
type Control struct {
	ID            string   `json:"id"`
	ControlID     string   `json:"control_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	AnnexAMap     []string `json:"annexA_map,omitempty"`
	LinkedRiskIDs []string `json:"linked_risk_ids,omitempty"`
	Status        string   `json:"status,omitempty"`
}

// ScaleLevel is one labelled level on a likelihood or impact scale.
type ScaleLevel struct {
	Level       int    `json:"level"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// MatrixContext captures the organisation facts a matrix recommendation is
// derived from.
type MatrixContext struct {
	OrganizationName string `json:"organization_name"`
	Industry         string `json:"industry"`
	Size             string `json:"size"`
	RiskAppetite     string `json:"risk_appetite"`
}

// MatrixCategory is one risk category row with its scoring guidance.
type MatrixCategory struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// MatrixRecommendation is a full risk matrix proposal: dimensions, level
// scales and the category set.
type MatrixRecommendation struct {
	Size             int              `json:"size"`
	LikelihoodLevels []ScaleLevel     `json:"likelihood_levels"`
	ImpactLevels     []ScaleLevel     `json:"impact_levels"`
	Categories       []MatrixCategory `json:"categories"`
	Rationale        string           `json:"rationale"`
	Context          MatrixContext    `json:"context"`
}
