// Package resolver joins the construct tree, the stack template and live deployment metadata
// to turn a construct name into a deployed resource.
package resolver

import (
	"context"

	"go.uber.org/zap"

	"cdkop/internal/construct"
	"cdkop/internal/document"
	"cdkop/internal/metadata"
	"cdkop/internal/template"
	cdkerrors "cdkop/pkg/errors"
)

// DefaultChild is the id CDK gives the CloudFormation resource inside an L2 construct.
const DefaultChild = "Resource"

// Config controls how names are matched.
type Config struct {
	// StackType is the construct FQN used to locate the stack node.
	StackType string
	// DefaultChild is appended to the construct path to form the template's aws:cdk:path.
	DefaultChild string
	// Strict reports AmbiguousMatch when more than one construct path ends with the query
	// instead of taking the first one in tree order.
	Strict bool
	// Stack selects the stack names are resolved in.
	Stack StackRef
}

// StackRef identifies one stack of a multi-stack app.
type StackRef struct {
	// ID is the stack's construct id or path (the cloud assembly artifact id). Empty selects
	// the first stack in the tree.
	ID string
	// Name is the deployed CloudFormation stack name. Empty uses the stack's construct id.
	Name string
}

// DefaultConfig returns the configuration matching `cdk synth` output.
func DefaultConfig() Config {
	return Config{
		StackType:    construct.DefaultStackType,
		DefaultChild: DefaultChild,
	}
}

// Resource is a construct joined with its template entry and deployment record.
type Resource struct {
	Stack construct.Node `json:"stack"`
	// StackName is the deployed stack name the record was fetched with.
	StackName  string                    `json:"stackName"`
	Construct  construct.Node            `json:"construct"`
	Template   template.Entry            `json:"template"`
	Deployment metadata.DeploymentRecord `json:"deployment"`
}

// PhysicalID returns the deployed resource's physical id.
func (r *Resource) PhysicalID() string {
	return r.Deployment.PhysicalResourceID
}

// FQN returns the construct type used to select operator commands.
func (r *Resource) FQN() string {
	return r.Construct.FQN()
}

// Resolver resolves construct names. It holds no per-call state.
type Resolver struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a resolver. Empty config fields take their defaults.
func New(cfg Config, logger *zap.Logger) *Resolver {
	if cfg.StackType == "" {
		cfg.StackType = construct.DefaultStackType
	}
	if cfg.DefaultChild == "" {
		cfg.DefaultChild = DefaultChild
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cfg: cfg, logger: logger}
}

// Resolve finds the construct whose path ends with nameOrPath inside the selected stack, its
// template entry and its deployment record. Every failure is a *errors.ResolveError naming
// the stage and the value that could not be located. ctx is only handed to the provider.
func (r *Resolver) Resolve(ctx context.Context, nameOrPath string, tree, tmpl document.Value, provider metadata.Provider) (*Resource, error) {
	constructs := construct.NewIndex(tree)

	stack, err := r.findStack(constructs)
	if err != nil {
		return nil, err
	}
	stackName := r.cfg.Stack.Name
	if stackName == "" {
		stackName = stack.ID
	}
	r.logger.Debug("Found stack", zap.String("stack", stack.ID), zap.String("path", stack.Path), zap.String("stack_name", stackName))

	node, err := r.findConstruct(stack.Subtree(), nameOrPath)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Found construct", zap.String("query", nameOrPath), zap.String("path", node.Path), zap.String("fqn", node.FQN()))

	targetPath := node.Path + "/" + r.cfg.DefaultChild
	entry, ok := template.NewIndex(tmpl).FindByMetadataPath(targetPath)
	if !ok {
		return nil, cdkerrors.NewTemplateEntryNotFoundError(targetPath)
	}
	r.logger.Debug("Found template entry", zap.String("logical_id", entry.LogicalID), zap.String("type", entry.Type))

	records, err := provider.Fetch(ctx, stackName, entry.LogicalID)
	if err != nil {
		return nil, cdkerrors.NewProviderUnavailableError(entry.LogicalID, err)
	}
	record, ok := metadata.Lookup(records, entry.LogicalID)
	if !ok {
		return nil, cdkerrors.NewDeploymentRecordNotFoundError(entry.LogicalID)
	}
	r.logger.Debug("Found deployment record",
		zap.String("logical_id", record.LogicalResourceID),
		zap.String("physical_id", record.PhysicalResourceID),
		zap.String("status", record.ResourceStatus))

	return &Resource{
		Stack:      stack,
		StackName:  stackName,
		Construct:  node,
		Template:   entry,
		Deployment: record,
	}, nil
}

func (r *Resolver) findStack(constructs *construct.Index) (construct.Node, error) {
	stack, ok := constructs.FindStack(r.cfg.StackType, r.cfg.Stack.ID)
	if ok {
		return stack, nil
	}
	if r.cfg.Stack.ID == "" {
		return construct.Node{}, cdkerrors.NewStackNotFoundError(r.cfg.StackType)
	}

	stacks := constructs.FindAllByType(r.cfg.StackType)
	ids := make([]string, len(stacks))
	for i, s := range stacks {
		ids[i] = s.ID
	}
	return construct.Node{}, cdkerrors.NewNamedStackNotFoundError(r.cfg.Stack.ID, ids)
}

func (r *Resolver) findConstruct(constructs *construct.Index, nameOrPath string) (construct.Node, error) {
	if !r.cfg.Strict {
		node, ok := constructs.FindByPath(nameOrPath)
		if !ok {
			return construct.Node{}, cdkerrors.NewConstructNotFoundError(nameOrPath)
		}
		return node, nil
	}

	nodes := constructs.FindAllByPath(nameOrPath)
	switch len(nodes) {
	case 0:
		return construct.Node{}, cdkerrors.NewConstructNotFoundError(nameOrPath)
	case 1:
		return nodes[0], nil
	default:
		paths := make([]string, len(nodes))
		for i, n := range nodes {
			paths[i] = n.Path
		}
		return construct.Node{}, cdkerrors.NewAmbiguousMatchError(nameOrPath, paths)
	}
}
