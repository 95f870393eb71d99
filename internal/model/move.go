package model

type MoveOptions struct {
	ValidateConstraints  bool   `json:"validate_constraints" yaml:"validate_constraints"`
	UpdateDependentItems bool   `json:"update_dependent_items" yaml:"update_dependent_items"`
	BatchSize            int    `json:"batch_size" yaml:"batch_size" validate:"gte=0,lte=10000"`
	DryRun               bool   `json:"dry_run" yaml:"dry_run"`
	Reason               string `json:"reason" yaml:"reason" validate:"max=500"`
	// ExpectedVersion, when set, must equal the moving node's current version.
	ExpectedVersion *int64 `json:"expected_version,omitempty" yaml:"expected_version" validate:"omitempty,gte=1"`
}

type MoveRequest struct {
	NodeID      string  `json:"node_id" yaml:"node_id" validate:"required"`
	NewParentID *string `json:"new_parent_id" yaml:"new_parent_id"`
	// ExpectedVersion guards this move only. Batches reject the options-level field.
	ExpectedVersion *int64 `json:"expected_version,omitempty" yaml:"expected_version" validate:"omitempty,gte=1"`
}

type ValidationResult struct {
	IsValid  bool    `json:"is_valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

func (r *ValidationResult) AddError(issue Issue) {
	r.Errors = append(r.Errors, issue)
	r.IsValid = false
}

func (r *ValidationResult) AddWarning(issue Issue) {
	r.Warnings = append(r.Warnings, issue)
}

// HasCode reports whether any error or warning carries code.
func (r ValidationResult) HasCode(code string) bool {
	for _, issue := range r.Errors {
		if issue.Code == code {
			return true
		}
	}
	for _, issue := range r.Warnings {
		if issue.Code == code {
			return true
		}
	}
	return false
}

type MoveResult struct {
	NodeID        string  `json:"node_id"`
	OldParentID   *string `json:"old_parent_id"`
	NewParentID   *string `json:"new_parent_id"`
	OldPath       string  `json:"old_path,omitempty"`
	NewPath       string  `json:"new_path,omitempty"`
	OldDepth      int     `json:"old_depth"`
	NewDepth      int     `json:"new_depth"`
	AffectedNodes int     `json:"affected_categories"`
	AffectedItems int     `json:"affected_items"`
	DryRun        bool    `json:"dry_run"`
	Committed     bool    `json:"committed"`
	AuditID       string  `json:"audit_id,omitempty"`
	Errors        []Issue `json:"errors"`
	Warnings      []Issue `json:"warnings"`
}

type BatchResult struct {
	DryRun    bool         `json:"dry_run"`
	Results   []MoveResult `json:"results"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	// Skipped counts requests never attempted because an earlier one failed.
	Skipped int `json:"skipped"`
}

// Limits bounds the cost and shape of structural edits.
type Limits struct {
	MaxDepth         int     `json:"max_depth"`
	BatchSize        int     `json:"batch_size"`
	BatchConcurrency int     `json:"batch_concurrency"`
	BatchRate        float64 `json:"batch_rate"`
	WarnChildren     int     `json:"warn_children"`
	WarnDescendants  int     `json:"warn_descendants"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxDepth:         10,
		BatchSize:        100,
		BatchConcurrency: 8,
		WarnChildren:     100,
		WarnDescendants:  1000,
	}
}
