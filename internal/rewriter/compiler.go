package rewriter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jmylchreest/topicrelay/internal/plugin/executor"
)

// DefaultCompiler is the toolchain binary used when none is configured.
const DefaultCompiler = "go"

// Compiler builds the template into an artifact for one fingerprint. The
// template source never changes; everything schema specific is passed as
// linker definitions.
type Compiler struct {
	// Path is the toolchain binary.
	Path string

	// Template is the template main.go.
	Template string

	// Header is the module file the template is compiled against.
	Header string

	// SearchPaths are baked into the artifact so it can find definitions.
	SearchPaths []string

	Runner executor.ProcessRunner
}

// CompileResult records one compiler invocation.
type CompileResult struct {
	Dir    string
	Path   string
	Args   []string
	Stdout []byte
	Stderr []byte
}

// CommandLine renders the invocation the way a shell would accept it.
func (r *CompileResult) CommandLine() string {
	parts := make([]string, 0, len(r.Args)+1)
	parts = append(parts, quoteArg(r.Path))
	for _, arg := range r.Args {
		parts = append(parts, quoteArg(arg))
	}
	return strings.Join(parts, " ")
}

// Args returns the compiler arguments that build fp into output.
func (c *Compiler) Args(output string, fp Fingerprint, pkg, typ string) []string {
	high, low := fp.HashHalves()

	defs := []string{
		define("main.msgInclude", fp.Schema),
		define("main.msgPackage", pkg),
		define("main.msgType", typ),
		define("main.msgHashHigh", high),
		define("main.msgHashLow", low),
		define("main.searchPath", strings.Join(c.SearchPaths, string(os.PathListSeparator))),
	}

	return []string{
		"build",
		"-o", output,
		"-trimpath",
		"-modfile", c.Header,
		"-ldflags", strings.Join(defs, " "),
		filepath.Base(c.Template),
	}
}

// Compile runs the compiler in the template directory. A nonzero exit status
// is returned as an error together with the captured output.
func (c *Compiler) Compile(ctx context.Context, output string, fp Fingerprint, pkg, typ string) (*CompileResult, error) {
	result := &CompileResult{
		Dir:  filepath.Dir(c.Template),
		Path: c.Path,
		Args: c.Args(output, fp, pkg, typ),
	}

	stdout, stderr, err := c.Runner.Run(ctx, result.Dir, result.Path, result.Args, nil)
	result.Stdout = stdout
	result.Stderr = stderr
	if err != nil {
		return result, fmt.Errorf("%s: %w", c.Path, err)
	}
	return result, nil
}

// define renders one -X linker definition. The linker splits its flags on
// whitespace unless quoted, so values containing whitespace are quoted.
func define(name, value string) string {
	def := name + "=" + value
	if !strings.ContainsAny(def, " \t\n'\"") {
		return "-X " + def
	}
	if strings.Contains(def, "'") {
		return `-X "` + def + `"`
	}
	return "-X '" + def + "'"
}

func quoteArg(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\n'\"\\$") {
		return arg
	}
	return strconv.Quote(arg)
}
