// cdkop - run operator commands against deployed CDK constructs
//
// Usage:
//
//	cdkop [options] RESOURCE                 list commands for a construct
//	cdkop [options] RESOURCE COMMAND [ARGS]  run a command against it
//	cdkop --json RESOURCE                    print the resolved resource
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"cdkop/internal/assembly"
	"cdkop/internal/commands"
	"cdkop/internal/config"
	"cdkop/internal/resolver"
	cdkerrors "cdkop/pkg/errors"
	"cdkop/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes
const (
	ExitSuccess                  = 0
	ExitCommandFailed            = 1
	ExitUsage                    = 2
	ExitConstructNotFound        = 10
	ExitTemplateEntryNotFound    = 11
	ExitDeploymentRecordNotFound = 12
	ExitAmbiguousMatch           = 13
	ExitProviderUnavailable      = 20
	ExitUnsupportedCommand       = 30
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "cdkop",
		Usage:     "Run an operator command on your CDK app constructs",
		UsageText: "cdkop [options] RESOURCE [COMMAND] [ARGS...]\n\nRESOURCE is the name of a construct, or a full path to the construct.\nRun with COMMAND \"help\" for a list of available operations.",
		Version:   fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		HideHelpCommand: true,

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to a cdkop config file (default: .cdkop.yaml in . or $HOME)",
			},
			&cli.StringFlag{
				Name:    "app",
				Aliases: []string{"a"},
				Usage:   "Path to cdk.out",
				EnvVars: []string{"CDK_APP_DIR"},
			},
			&cli.StringFlag{
				Name:  "stack",
				Usage: "Stack artifact or stack name when the app has several stacks",
			},
			&cli.StringFlag{
				Name:    "region",
				Usage:   "AWS region of the deployed stack",
				EnvVars: []string{"AWS_REGION", "AWS_DEFAULT_REGION"},
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Fail when the name matches more than one construct",
			},
			&cli.StringFlag{
				Name:  "default-child",
				Usage: "Id of the CloudFormation resource inside a construct",
			},
			&cli.StringFlag{
				Name:  "metadata-file",
				Usage: "Read stack resources from saved describe-stack-resources JSON instead of AWS",
			},
			&cli.StringFlag{
				Name:  "commands",
				Usage: "YAML file with extra or overriding commands",
			},
			&cli.StringFlag{
				Name:  "cache-dsn",
				Usage: "Cache stack metadata in SQL (postgres://, sqlite3://, clickhouse://)",
			},
			&cli.StringFlag{
				Name:  "redis-addr",
				Usage: "Cache stack metadata in Redis at host:port",
			},
			&cli.DurationFlag{
				Name:  "cache-ttl",
				Usage: "How long cached stack metadata is used",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"CDKOP_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print the command instead of running it",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the resolved resource as JSON",
			},
			&cli.BoolFlag{
				Name:  "pick",
				Usage: "Choose the command interactively when none is given",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output (also NO_COLOR)",
			},
		},

		Action: run,
	}
}

func run(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowAppHelpAndExit(c, ExitUsage)
	}
	if c.Bool("no-color") || platform.GetEnvBool("NO_COLOR", false) {
		color.NoColor = true
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := platform.InitLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	asm, err := assembly.NewLoader(logger).Load(ctx, cfg.App, cfg.Stack)
	if err != nil {
		return fmt.Errorf("failed to load cloud assembly: %w", err)
	}
	region := cfg.ResolveRegion(asm.Region)

	provider, closeProvider, err := buildProvider(ctx, cfg, region, logger)
	if err != nil {
		return err
	}
	defer closeProvider()

	rcfg := cfg.ResolverConfig()
	rcfg.Stack = resolver.StackRef{ID: asm.Stack, Name: asm.StackName}

	args := c.Args().Slice()
	res, err := resolver.New(rcfg, logger).Resolve(ctx, args[0], asm.Tree, asm.Template, provider)
	if err != nil {
		return err
	}
	logger.Info("Resolved resource",
		zap.String("path", res.Construct.Path),
		zap.String("logical_id", res.Template.LogicalID),
		zap.String("physical_id", res.PhysicalID()))

	if c.Bool("json") {
		return printResource(c.App.Writer, res, region)
	}

	table, err := loadTable(cfg.CommandsFile)
	if err != nil {
		return err
	}

	subcommand := ""
	if len(args) > 1 {
		subcommand = args[1]
	}
	if subcommand == "" && c.Bool("pick") {
		if subcommand, err = pickCommand(table, res); err != nil {
			return err
		}
	}
	if subcommand == "" || subcommand == "help" {
		return displayAvailableCommands(c.App.Writer, table, res)
	}

	tmpl, err := table.Lookup(res.FQN(), subcommand)
	if err != nil {
		return err
	}
	var rest []string
	if len(args) > 2 {
		rest = args[2:]
	}
	command := commands.Render(tmpl, commands.Substitution{
		PhysicalID: res.PhysicalID(),
		Region:     region,
	}, rest)

	if c.Bool("dry-run") {
		fmt.Fprintln(c.App.Writer, command)
		return nil
	}
	return commands.NewDispatcher(region, logger).Run(ctx, command)
}

// applyFlags overrides file and environment configuration with explicitly set flags.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("app") {
		cfg.App = c.String("app")
	}
	if c.IsSet("stack") {
		cfg.Stack = c.String("stack")
	}
	if c.IsSet("region") {
		cfg.Region = c.String("region")
	}
	if c.IsSet("strict") {
		cfg.Strict = c.Bool("strict")
	}
	if c.IsSet("default-child") {
		cfg.DefaultChild = c.String("default-child")
	}
	if c.IsSet("metadata-file") {
		cfg.MetadataFile = c.String("metadata-file")
	}
	if c.IsSet("commands") {
		cfg.CommandsFile = c.String("commands")
	}
	if c.IsSet("cache-dsn") {
		cfg.Cache.DSN = c.String("cache-dsn")
	}
	if c.IsSet("redis-addr") {
		cfg.Cache.RedisAddr = c.String("redis-addr")
	}
	if c.IsSet("cache-ttl") {
		cfg.Cache.TTL = c.Duration("cache-ttl")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
}

func loadTable(extra string) (*commands.Table, error) {
	table, err := commands.Default()
	if err != nil {
		return nil, err
	}
	if extra != "" {
		overrides, err := commands.LoadFile(extra)
		if err != nil {
			return nil, err
		}
		table.Merge(overrides)
	}
	return table, nil
}

func displayAvailableCommands(w io.Writer, table *commands.Table, res *resolver.Resource) error {
	names, err := table.Commands(res.FQN())
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Available commands for %s (%s):\n", res.Construct.Path, res.FQN())
	for _, name := range names {
		fmt.Fprintf(w, " * %s\n", name)
	}
	return nil
}

func pickCommand(table *commands.Table, res *resolver.Resource) (string, error) {
	names, err := table.Commands(res.FQN())
	if err != nil {
		return "", err
	}
	var choice string
	prompt := &survey.Select{
		Message: fmt.Sprintf("Command for %s:", res.Construct.Path),
		Options: names,
	}
	if err := survey.AskOne(prompt, &choice, survey.WithStdio(os.Stdin, os.Stderr, os.Stderr)); err != nil {
		return "", err
	}
	return choice, nil
}

type resourceView struct {
	Stack             string `json:"stack"`
	StackName         string `json:"stackName"`
	Path              string `json:"path"`
	FQN               string `json:"fqn"`
	LogicalID         string `json:"logicalId"`
	Type              string `json:"type"`
	PhysicalID        string `json:"physicalId"`
	EncodedPhysicalID string `json:"encodedPhysicalId"`
	Status            string `json:"status"`
	Region            string `json:"region"`
}

func printResource(w io.Writer, res *resolver.Resource, region string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resourceView{
		Stack:             res.Stack.ID,
		StackName:         res.StackName,
		Path:              res.Construct.Path,
		FQN:               res.FQN(),
		LogicalID:         res.Template.LogicalID,
		Type:              res.Template.Type,
		PhysicalID:        res.PhysicalID(),
		EncodedPhysicalID: commands.EncodeURIComponent(res.PhysicalID()),
		Status:            res.Deployment.ResourceStatus,
		Region:            region,
	})
}

// exitCode maps a failure to the process exit code.
func exitCode(err error) int {
	var re *cdkerrors.ResolveError
	if errors.As(err, &re) {
		switch re.Kind {
		case cdkerrors.KindConstructNotFound:
			return ExitConstructNotFound
		case cdkerrors.KindTemplateEntryNotFound:
			return ExitTemplateEntryNotFound
		case cdkerrors.KindDeploymentRecordNotFound:
			return ExitDeploymentRecordNotFound
		case cdkerrors.KindAmbiguousMatch:
			return ExitAmbiguousMatch
		case cdkerrors.KindProviderUnavailable:
			return ExitProviderUnavailable
		}
	}
	if errors.Is(err, commands.ErrUnsupportedType) || errors.Is(err, commands.ErrUnknownCommand) {
		return ExitUnsupportedCommand
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) && ee.ExitCode() > 0 {
		return ee.ExitCode()
	}
	return ExitCommandFailed
}
