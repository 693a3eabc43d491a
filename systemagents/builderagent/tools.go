package builderagent

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/hupe1980/adkservice/agentconfig"
	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/tool"
)

// ProjectRootKey is the session state key holding the directory the file
// tools are confined to. The working directory is used when it is unset.
const ProjectRootKey = "project_root"

const (
	maxConfigFileSize = 1 << 20
	maxListedFiles    = 200
)

// Tool names registered by this package.
const (
	ListConfigFilesName = "list_config_files"
	ReadConfigFileName  = "read_config_file"
	WriteConfigFileName = "write_config_file"
	ValidateConfigName  = "validate_config"
)

// ErrOutsideProject is returned for paths that leave the project root.
var ErrOutsideProject = errors.New("path is outside the project root")

type pathArgs struct {
	Path string `json:"path" description:"Config file path relative to the project root"`
}

type listArgs struct {
	Pattern string `json:"pattern,omitempty" description:"Glob over paths relative to the project root, default **.yaml"`
}

type writeArgs struct {
	Path    string `json:"path" description:"Config file path relative to the project root, ending in .yaml or .yml"`
	Content string `json:"content" description:"Complete YAML content of the agent config"`
}

// Tools returns fresh instances of the builder's file tools.
func Tools() []tool.Tool {
	return []tool.Tool{
		tool.NewTypedTool(ListConfigFilesName,
			"List YAML files in the project whose relative path matches a glob pattern.", listConfigFiles),
		tool.NewTypedTool(ReadConfigFileName,
			"Read an agent config file from the project.", readConfigFile),
		tool.NewTypedTool(WriteConfigFileName,
			"Validate and write an agent config file to the project. Fails without writing if the config is invalid.",
			writeConfigFile),
		tool.NewTypedTool(ValidateConfigName,
			"Validate an agent config file in the project and report every problem.", validateConfig),
	}
}

func init() {
	for _, t := range Tools() {
		tool.DefaultRegistry().MustRegister(t)
	}
}

// projectRoot returns the absolute project root for the invocation.
func projectRoot(tc *core.ToolContext) (string, error) {
	if v, ok := tc.GetState(ProjectRootKey); ok {
		if root, ok := v.(string); ok && root != "" {
			return filepath.Abs(root)
		}
	}

	return os.Getwd()
}

// project is the file system view of the tools. Every access goes through
// an *os.Root, so neither ".." nor symlinks can reach outside the root.
type project struct {
	dir  string
	root *os.Root
}

func openProject(tc *core.ToolContext) (*project, error) {
	dir, err := projectRoot(tc)
	if err != nil {
		return nil, err
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open project root: %w", err)
	}

	return &project{dir: dir, root: root}, nil
}

func (p *project) Close() error { return p.root.Close() }

// local converts a tool supplied path into a clean path relative to the root.
func (p *project) local(path string) (string, error) {
	if path == "" {
		return "", errors.New("path must not be empty")
	}

	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(p.dir, path)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrOutsideProject, path)
		}
		path = rel
	}

	path = filepath.Clean(path)
	if !filepath.IsLocal(path) {
		return "", fmt.Errorf("%w: %s", ErrOutsideProject, path)
	}

	return path, nil
}

func (p *project) readFile(rel string) ([]byte, error) {
	f, err := p.root.Open(rel)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", rel)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("%s is larger than %d bytes", rel, maxConfigFileSize)
	}

	return io.ReadAll(io.LimitReader(f, maxConfigFileSize))
}

func (p *project) writeFile(rel string, data []byte) error {
	if err := p.mkdirAll(filepath.Dir(rel)); err != nil {
		return err
	}

	f, err := p.root.OpenFile(rel, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

func (p *project) mkdirAll(dir string) error {
	if dir == "." {
		return nil
	}

	if err := p.mkdirAll(filepath.Dir(dir)); err != nil {
		return err
	}

	if err := p.root.Mkdir(dir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}

	return nil
}

func listConfigFiles(tc *core.ToolContext, args listArgs) (any, error) {
	pattern := args.Pattern
	if pattern == "" {
		pattern = "**.yaml"
	}

	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, tool.NewToolError(ListConfigFilesName, "invalid pattern: "+err.Error(), tool.CodeValidation)
	}

	p, err := openProject(tc)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	var files []string
	truncated := false

	err = fs.WalkDir(p.root.FS(), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}

		if ext := filepath.Ext(path); ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if g.Match(path) {
			if len(files) == maxListedFiles {
				truncated = true
				return fs.SkipAll
			}
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)

	return map[string]any{"files": files, "truncated": truncated}, nil
}

func readConfigFile(tc *core.ToolContext, args pathArgs) (any, error) {
	p, err := openProject(tc)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	rel, err := p.local(args.Path)
	if err != nil {
		return nil, err
	}

	data, err := p.readFile(rel)
	if err != nil {
		return nil, err
	}

	return map[string]any{"path": filepath.ToSlash(rel), "content": string(data)}, nil
}

func writeConfigFile(tc *core.ToolContext, args writeArgs) (any, error) {
	p, err := openProject(tc)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	rel, err := p.local(args.Path)
	if err != nil {
		return nil, err
	}

	if ext := filepath.Ext(rel); ext != ".yaml" && ext != ".yml" {
		return nil, tool.NewToolError(WriteConfigFileName, "config files must end in .yaml or .yml", tool.CodeValidation)
	}

	cfg, err := agentconfig.Parse([]byte(args.Content))
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		return nil, &tool.ToolError{
			Tool:    WriteConfigFileName,
			Message: "config is invalid, nothing was written: " + err.Error(),
			Code:    tool.CodeValidation,
			Details: problems(err),
		}
	}

	if err := p.writeFile(rel, []byte(args.Content)); err != nil {
		return nil, err
	}

	rel = filepath.ToSlash(rel)

	tc.Logger().Info("builder.config.written", "path", rel, "agent", cfg.Name, "bytes", len(args.Content))

	return map[string]any{"path": rel, "bytes": len(args.Content), "agent": cfg.Name}, nil
}

func validateConfig(tc *core.ToolContext, args pathArgs) (any, error) {
	p, err := openProject(tc)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	rel, err := p.local(args.Path)
	if err != nil {
		return nil, err
	}

	data, err := p.readFile(rel)
	if err != nil {
		return nil, err
	}

	cfg, err := agentconfig.Parse(data)
	if err == nil {
		err = cfg.Validate()
	}

	rel = filepath.ToSlash(rel)

	if err != nil {
		return map[string]any{"path": rel, "valid": false, "errors": problems(err)}, nil
	}

	return map[string]any{"path": rel, "valid": true, "errors": []string{}}, nil
}

// problems flattens joined errors into one message per violation.
func problems(err error) []string {
	var ce *agentconfig.ConfigError
	if errors.As(err, &ce) {
		err = ce.Err
	}

	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}

	return []string{err.Error()}
}
