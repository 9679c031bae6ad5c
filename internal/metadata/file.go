package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileProvider reads records saved from `aws cloudformation describe-stack-resources`.
// The file is read on every Fetch so edits are picked up between runs.
type FileProvider struct {
	Path string
}

// NewFileProvider creates a provider backed by the JSON file at path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{Path: path}
}

// Fetch implements Provider. Records for other stacks in the file are skipped.
func (p *FileProvider) Fetch(_ context.Context, stack string, logicalIDs ...string) ([]DeploymentRecord, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var out DescribeStackResourcesOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode metadata file %s: %w", p.Path, err)
	}

	records := make([]DeploymentRecord, 0, len(out.StackResources))
	for _, r := range out.StackResources {
		if stack != "" && r.StackName != "" && r.StackName != stack {
			continue
		}
		records = append(records, r)
	}
	return filter(records, logicalIDs), nil
}
