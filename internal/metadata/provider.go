// Package metadata supplies live deployment records for a CloudFormation stack.
package metadata

import (
	"context"
	"encoding/json"
)

// DeploymentRecord is one deployed stack resource, shaped like the
// describe-stack-resources output.
type DeploymentRecord struct {
	StackName          string `json:"StackName"`
	StackID            string `json:"StackId"`
	LogicalResourceID  string `json:"LogicalResourceId"`
	PhysicalResourceID string `json:"PhysicalResourceId"`
	ResourceType       string `json:"ResourceType"`
	// Timestamp and ResourceStatus are passed through as reported.
	Timestamp      string `json:"Timestamp,omitempty"`
	ResourceStatus string `json:"ResourceStatus"`
	// DriftInformation is passed through untouched.
	DriftInformation json.RawMessage `json:"DriftInformation,omitempty"`
}

// DescribeStackResourcesOutput is the document returned by
// `aws cloudformation describe-stack-resources`.
type DescribeStackResourcesOutput struct {
	StackResources []DeploymentRecord `json:"StackResources"`
}

// Provider fetches deployment records for a stack. With no logical ids it returns every
// resource of the stack. Transport failures are returned as errors, never as an empty result.
type Provider interface {
	Fetch(ctx context.Context, stack string, logicalIDs ...string) ([]DeploymentRecord, error)
}

// Lookup returns the record whose logical id equals logicalID.
func Lookup(records []DeploymentRecord, logicalID string) (DeploymentRecord, bool) {
	for _, r := range records {
		if r.LogicalResourceID == logicalID {
			return r, true
		}
	}
	return DeploymentRecord{}, false
}

// filter keeps the records named in logicalIDs, or all of them when none are given.
func filter(records []DeploymentRecord, logicalIDs []string) []DeploymentRecord {
	if len(logicalIDs) == 0 {
		return records
	}
	want := make(map[string]struct{}, len(logicalIDs))
	for _, id := range logicalIDs {
		want[id] = struct{}{}
	}
	out := make([]DeploymentRecord, 0, len(logicalIDs))
	for _, r := range records {
		if _, ok := want[r.LogicalResourceID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// StaticProvider serves a fixed set of records regardless of stack.
type StaticProvider []DeploymentRecord

// Fetch implements Provider.
func (p StaticProvider) Fetch(_ context.Context, _ string, logicalIDs ...string) ([]DeploymentRecord, error) {
	return filter(p, logicalIDs), nil
}
