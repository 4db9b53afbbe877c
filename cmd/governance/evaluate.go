package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/upb/governance-engine/internal/policy"
	"github.com/upb/governance-engine/models"
	"github.com/upb/governance-engine/services/compliance"
	"gopkg.in/yaml.v3"
)

// policiesFile is the offline policy document
type policiesFile struct {
	Policies []*models.Policy `yaml:"policies"`
}

// evaluateOutput mirrors the compliance check response without persistence
type evaluateOutput struct {
	ActivityID        uuid.UUID               `json:"activity_id"`
	OrganizationID    uuid.UUID               `json:"organization_id"`
	PoliciesChecked   int                     `json:"policies_checked"`
	ViolationsFound   int                     `json:"violations_found"`
	AlertsGenerated   int                     `json:"alerts_generated"`
	ComplianceResults models.ComplianceResult `json:"compliance_results"`
	Alerts            []models.Alert          `json:"alerts"`
}

func newEvaluateCmd() *cobra.Command {
	var (
		activityPath string
		policiesPath string
		catalogPath  string
		orgID        string
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate one activity against a policy file without a database",
		RunE: func(cmd *cobra.Command, args []string) error {
			activity, err := loadActivity(activityPath)
			if err != nil {
				return err
			}

			policies, err := loadPolicies(policiesPath)
			if err != nil {
				return err
			}

			catalog, err := policy.LoadCatalog(catalogPath)
			if err != nil {
				return err
			}

			org, err := organizationFor(orgID, policies)
			if err != nil {
				return err
			}

			out := evaluate(policy.NewEvaluator(catalog), activity, org, policies)
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&activityPath, "activity", "", "Path to the activity JSON document")
	cmd.Flags().StringVar(&policiesPath, "policies", "", "Path to the policies YAML document")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Optional YAML overriding keyword and vendor lists")
	cmd.Flags().StringVar(&orgID, "organization", "", "Organization id recorded on checks (defaults to the first policy's)")
	_ = cmd.MarkFlagRequired("activity")
	_ = cmd.MarkFlagRequired("policies")

	return cmd
}

func evaluate(evaluator *policy.Evaluator, activity *models.Activity, org uuid.UUID, policies []*models.Policy) evaluateOutput {
	for _, p := range policies {
		if p.OrganizationID == uuid.Nil {
			p.OrganizationID = org
		}
	}

	eval := compliance.Evaluate(evaluator, compliance.Input{
		Activity:       activity,
		OrganizationID: org,
		CheckType:      models.CheckTypeManual,
		Now:            time.Now().UTC(),
	}, policies)

	checked := 0
	for _, p := range policies {
		if p.IsActive() {
			checked++
		}
	}

	return evaluateOutput{
		ActivityID:        activity.ID,
		OrganizationID:    org,
		PoliciesChecked:   checked,
		ViolationsFound:   len(eval.Result.Violations),
		AlertsGenerated:   len(eval.Alerts),
		ComplianceResults: eval.Result,
		Alerts:            eval.Alerts,
	}
}

func loadActivity(path string) (*models.Activity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var activity models.Activity
	if err := json.Unmarshal(data, &activity); err != nil {
		return nil, fmt.Errorf("cannot parse activity %s: %w", path, err)
	}
	if activity.ID == uuid.Nil {
		activity.ID = uuid.New()
	}
	return &activity, nil
}

// loadPolicies accepts either a top-level list or a document with a policies key.
// Policies without a status are treated as active.
func loadPolicies(path string) ([]*models.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var policies []*models.Policy
	if err := yaml.Unmarshal(data, &policies); err != nil {
		var doc policiesFile
		if docErr := yaml.Unmarshal(data, &doc); docErr != nil {
			return nil, fmt.Errorf("cannot parse policies %s: %w", path, docErr)
		}
		policies = doc.Policies
	}

	for _, p := range policies {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if p.Status == "" {
			p.Status = models.PolicyStatusActive
		}
		for i := range p.Rules {
			if p.Rules[i].ID == uuid.Nil {
				p.Rules[i].ID = uuid.New()
			}
			p.Rules[i].PolicyID = p.ID
			p.Rules[i].Position = i
		}
	}
	return policies, nil
}

func organizationFor(flag string, policies []*models.Policy) (uuid.UUID, error) {
	if flag != "" {
		id, err := uuid.Parse(flag)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid --organization: %w", err)
		}
		return id, nil
	}
	for _, p := range policies {
		if p.OrganizationID != uuid.Nil {
			return p.OrganizationID, nil
		}
	}
	return uuid.New(), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
