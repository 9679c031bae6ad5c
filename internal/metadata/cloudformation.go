package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"go.uber.org/zap"
)

// CloudFormationProvider queries live stack resources.
type CloudFormationProvider struct {
	client cloudformation.ListStackResourcesAPIClient
	logger *zap.Logger
}

// NewCloudFormationProvider loads the default AWS configuration for region.
func NewCloudFormationProvider(ctx context.Context, region string, logger *zap.Logger) (*CloudFormationProvider, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewCloudFormationProviderWithClient(cloudformation.NewFromConfig(cfg), logger), nil
}

// NewCloudFormationProviderWithClient wraps an existing client.
func NewCloudFormationProviderWithClient(client cloudformation.ListStackResourcesAPIClient, logger *zap.Logger) *CloudFormationProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloudFormationProvider{client: client, logger: logger}
}

// Fetch implements Provider. Every page of the stack's resources is listed and filtered
// locally; DescribeStackResources stops at 100 resources and rejects unknown logical ids.
func (p *CloudFormationProvider) Fetch(ctx context.Context, stack string, logicalIDs ...string) ([]DeploymentRecord, error) {
	p.logger.Info("Refreshing stack metadata", zap.String("stack", stack))

	paginator := cloudformation.NewListStackResourcesPaginator(p.client, &cloudformation.ListStackResourcesInput{
		StackName: aws.String(stack),
	})

	var records []DeploymentRecord
	pages := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list-stack-resources %s: %w", stack, err)
		}
		pages++
		for _, summary := range page.StackResourceSummaries {
			records = append(records, recordFromSummary(stack, summary))
		}
	}
	p.logger.Debug("Listed stack resources",
		zap.String("stack", stack),
		zap.Int("pages", pages),
		zap.Int("resources", len(records)))

	return filter(records, logicalIDs), nil
}

func recordFromSummary(stack string, s types.StackResourceSummary) DeploymentRecord {
	r := DeploymentRecord{
		StackName:          stack,
		LogicalResourceID:  aws.ToString(s.LogicalResourceId),
		PhysicalResourceID: aws.ToString(s.PhysicalResourceId),
		ResourceType:       aws.ToString(s.ResourceType),
		ResourceStatus:     string(s.ResourceStatus),
	}
	if s.LastUpdatedTimestamp != nil {
		r.Timestamp = s.LastUpdatedTimestamp.UTC().Format(time.RFC3339Nano)
	}
	if d := s.DriftInformation; d != nil {
		drift := struct {
			StackResourceDriftStatus string     `json:"StackResourceDriftStatus"`
			LastCheckTimestamp       *time.Time `json:"LastCheckTimestamp,omitempty"`
		}{string(d.StackResourceDriftStatus), d.LastCheckTimestamp}
		if raw, err := json.Marshal(drift); err == nil {
			r.DriftInformation = raw
		}
	}
	return r
}
