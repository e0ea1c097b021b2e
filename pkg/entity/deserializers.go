package entity

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Wire format of the remote provisioning API: kebab-case JSON, nested
// as {"workspace-list": [{"workbench-list": [...]}, ...]}.
type (
	workspaceListWire struct {
		WorkspaceList []workspaceWire `json:"workspace-list"`
	}

	workspaceWire struct {
		GCPUserID     string          `json:"userid"`
		Region        string          `json:"region"`
		GCPProjectID  string          `json:"gcp-project-id"`
		BillingID     string          `json:"billing-id"`
		Email         string          `json:"email-id"`
		SetupStatus   string          `json:"workspace-setup-status"`
		WorkbenchList []workbenchWire `json:"workbench-list"`
	}

	workbenchWire struct {
		ID          string `json:"id"`
		Dataset     string `json:"dataset"` // legacy key, superseded by Group
		Group       string `json:"group-granting-data-access"`
		Region      string `json:"region"`
		MachineType string `json:"machine-type"`
		Type        string `json:"type"`
		Status      string `json:"status"` // legacy key
		SetupStatus string `json:"workbench-setup-status"`
		BucketName  string `json:"bucket-name"`
		URL         string `json:"url"`
		VersionURL  string `json:"version-url"` // RStudio sends version-url
	}
)

// DeserializeEnvironments flattens the workspace list into research
// environments. Unknown regions and machine types are hard failures;
// unknown types and statuses default to their Unknown variants.
func DeserializeEnvironments(data []byte) ([]ResearchEnvironment, error) {
	var wire workspaceListWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("workspace list: %w", err)
	}

	environments := make([]ResearchEnvironment, 0)
	for i := range wire.WorkspaceList {
		for _, wb := range wire.WorkspaceList[i].WorkbenchList {
			env, err := deserializeWorkbench(&wb)
			if err != nil {
				return nil, err
			}
			environments = append(environments, env)
		}
	}
	return environments, nil
}

func deserializeWorkbench(wb *workbenchWire) (ResearchEnvironment, error) {
	region, err := ParseRegion(wb.Region)
	if err != nil {
		return ResearchEnvironment{}, fmt.Errorf("workbench %s: %w", wb.ID, err)
	}
	instanceType, err := ParseInstanceType(wb.MachineType)
	if err != nil {
		return ResearchEnvironment{}, fmt.Errorf("workbench %s: %w", wb.ID, err)
	}

	group := wb.Group
	if group == "" {
		group = wb.Dataset
	}

	url := wb.URL
	if url == "" {
		url = wb.VersionURL
	}
	if url != "" && !strings.Contains(url, "://") {
		url = "https://" + url
	}

	status := wb.SetupStatus
	if status == "" {
		status = wb.Status
	}

	return ResearchEnvironment{
		ID:           wb.ID,
		Group:        group,
		Region:       region,
		InstanceType: instanceType,
		Type:         ParseEnvironmentType(wb.Type),
		Status:       ParseEnvironmentStatus(status),
		BucketName:   wb.BucketName,
		URL:          url,
	}, nil
}

// DeserializeWorkspaces extracts the per-region workspace descriptors
// from the same wire structure, without descending into workbenches.
func DeserializeWorkspaces(data []byte) ([]ResearchWorkspace, error) {
	var wire workspaceListWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("workspace list: %w", err)
	}

	workspaces := make([]ResearchWorkspace, 0, len(wire.WorkspaceList))
	for i := range wire.WorkspaceList {
		ws, err := deserializeWorkspace(&wire.WorkspaceList[i])
		if err != nil {
			return nil, err
		}
		workspaces = append(workspaces, ws)
	}
	return workspaces, nil
}

func deserializeWorkspace(w *workspaceWire) (ResearchWorkspace, error) {
	region, err := ParseRegion(w.Region)
	if err != nil {
		return ResearchWorkspace{}, fmt.Errorf("workspace for %s: %w", w.GCPUserID, err)
	}
	return ResearchWorkspace{
		GCPUserID:    w.GCPUserID,
		Region:       region,
		GCPProjectID: w.GCPProjectID,
		BillingID:    w.BillingID,
		Email:        w.Email,
		Status:       ParseWorkspaceStatus(w.SetupStatus),
	}, nil
}
