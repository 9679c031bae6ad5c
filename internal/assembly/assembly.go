// Package assembly loads the documents of a synthesized CDK cloud assembly (cdk.out).
package assembly

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cdkop/internal/document"
)

const (
	manifestFile      = "manifest.json"
	defaultTreeFile   = "tree.json"
	templateSuffix    = ".template.json"
	artifactStack     = "aws:cloudformation:stack"
	artifactTree      = "cdk:tree"
	environmentPrefix = "aws://"
	unknownRegion     = "unknown-region"
)

// ErrNoTemplate is returned when the assembly contains no stack template.
var ErrNoTemplate = errors.New("no stack template found in cloud assembly")

// CloudAssembly is the parsed output of `cdk synth`.
type CloudAssembly struct {
	Dir string
	// Stack is the artifact id of the selected stack. Without a manifest it is the template
	// file name without its suffix.
	Stack string
	// StackName is the deployed CloudFormation stack name, the artifact id unless the
	// manifest sets stackName.
	StackName    string
	TemplateFile string
	TreeFile     string
	// Region is taken from the stack artifact's environment; "" when environment agnostic.
	Region string

	Tree     document.Value
	Template document.Value
}

// Loader reads cloud assemblies from disk.
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a loader.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// Load reads the assembly in dir. stack selects a stack artifact by artifact id or stack
// name; empty selects the first stack in the manifest.
func (l *Loader) Load(ctx context.Context, dir, stack string) (*CloudAssembly, error) {
	asm := &CloudAssembly{Dir: dir, TreeFile: defaultTreeFile}

	if err := l.readManifest(asm, stack); err != nil {
		return nil, err
	}
	if asm.TemplateFile == "" {
		file, err := firstTemplate(dir, stack)
		if err != nil {
			return nil, err
		}
		asm.TemplateFile = file
		asm.Stack = strings.TrimSuffix(file, templateSuffix)
		asm.StackName = asm.Stack
	}
	l.logger.Debug("Selected stack template",
		zap.String("dir", dir),
		zap.String("stack", asm.Stack),
		zap.String("stack_name", asm.StackName),
		zap.String("template", asm.TemplateFile))

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, err := parseFile(filepath.Join(dir, asm.TreeFile))
		if err != nil {
			return err
		}
		asm.Tree = doc
		return nil
	})
	g.Go(func() error {
		doc, err := parseFile(filepath.Join(dir, asm.TemplateFile))
		if err != nil {
			return err
		}
		asm.Template = doc
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return asm, nil
}

func (l *Loader) readManifest(asm *CloudAssembly, stack string) error {
	path := filepath.Join(asm.Dir, manifestFile)
	doc, err := parseFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		l.logger.Debug("No manifest in cloud assembly", zap.String("dir", asm.Dir))
		return nil
	}
	if err != nil {
		return err
	}

	root, ok := doc.(*document.Mapping)
	if !ok {
		return fmt.Errorf("%s: expected an object", path)
	}
	artifacts, ok := root.Mapping("artifacts")
	if !ok {
		return nil
	}

	for _, e := range artifacts.Entries() {
		art, ok := e.Value.(*document.Mapping)
		if !ok {
			continue
		}
		typ, _ := art.String("type")
		props, _ := art.Mapping("properties")

		switch typ {
		case artifactTree:
			if props != nil {
				if file, ok := props.String("file"); ok {
					asm.TreeFile = file
				}
			}
		case artifactStack:
			if asm.TemplateFile != "" || props == nil {
				continue
			}
			stackName, ok := props.String("stackName")
			if !ok {
				stackName = e.Key
			}
			if stack != "" && stack != e.Key && stack != stackName {
				continue
			}
			file, ok := props.String("templateFile")
			if !ok {
				continue
			}
			asm.Stack = e.Key
			asm.StackName = stackName
			asm.TemplateFile = file
			if env, ok := art.String("environment"); ok {
				asm.Region = regionFromEnvironment(env)
			}
		}
	}

	if stack != "" && asm.TemplateFile == "" {
		return fmt.Errorf("stack %q not found in %s", stack, path)
	}
	return nil
}

// firstTemplate picks a *.template.json file when there is no usable manifest.
func firstTemplate(dir, stack string) (string, error) {
	if stack != "" {
		file := stack + templateSuffix
		if _, err := os.Stat(filepath.Join(dir, file)); err != nil {
			return "", fmt.Errorf("stack %q: %w", stack, err)
		}
		return file, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read cloud assembly: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), templateSuffix) {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%s: %w", dir, ErrNoTemplate)
	}
	sort.Strings(files)
	return files[0], nil
}

// regionFromEnvironment extracts the region of "aws://<account>/<region>".
func regionFromEnvironment(env string) string {
	rest, ok := strings.CutPrefix(env, environmentPrefix)
	if !ok {
		return ""
	}
	_, region, ok := strings.Cut(rest, "/")
	if !ok || region == unknownRegion {
		return ""
	}
	return region
}

func parseFile(path string) (document.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	doc, err := document.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return doc, nil
}
