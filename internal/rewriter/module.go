package rewriter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/modfile"

	"github.com/jmylchreest/topicrelay/internal/plugin/executor"
)

// ModulePath is the module the template imports its codec and plugin
// interface from.
const ModulePath = "github.com/jmylchreest/topicrelay"

// ErrTemplateNotInstalled means the template's module file points at a
// topicrelay source tree that does not exist.
var ErrTemplateNotInstalled = errors.New("rewriter template not installed")

// sumPath returns the checksum file the toolchain pairs with a module file
// passed through -modfile.
func sumPath(header string) string {
	return strings.TrimSuffix(header, ".mod") + ".sum"
}

// buildReference returns the newest modification time among the template,
// its module file and, when present, the module's checksum file.
func buildReference(template, header string) (time.Time, error) {
	ref, err := freshnessReference(template, header)
	if err != nil {
		return time.Time{}, err
	}
	if info, err := os.Stat(sumPath(header)); err == nil && info.ModTime().After(ref) {
		ref = info.ModTime()
	}
	return ref, nil
}

// CheckModule verifies that the module file the template is compiled
// against can resolve ModulePath. A directory replacement must point at a
// tree whose go.mod declares ModulePath; relative targets are resolved
// against the module file's directory, as the toolchain does.
func CheckModule(header string) error {
	f, err := parseModFile(header)
	if err != nil {
		return err
	}

	for _, r := range f.Replace {
		if r.Old.Path != ModulePath || !modfile.IsDirectoryPath(r.New.Path) {
			continue
		}

		target := r.New.Path
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(header), target)
		}
		if err := checkModuleRoot(target); err != nil {
			return fmt.Errorf("%w: %s replaces %s with %s: %w", ErrTemplateNotInstalled, header, ModulePath, r.New.Path, err)
		}
	}
	return nil
}

// InstallOptions configures Install.
type InstallOptions struct {
	// Source is the directory holding the template main.go and go.mod.
	Source string

	// ModuleRoot is the topicrelay source tree the template builds against.
	ModuleRoot string

	// ShareRoot receives the template under rewriter/.
	ShareRoot string

	// Compiler is the toolchain binary, DefaultCompiler if empty.
	Compiler string

	Runner executor.ProcessRunner
}

// Install copies the template into the share root, points its module file at
// ModuleRoot with an absolute replacement and has the toolchain write the
// go.sum next to it. It returns the installed template directory.
func Install(ctx context.Context, opts InstallOptions) (string, error) {
	root, err := filepath.Abs(opts.ModuleRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve module root: %w", err)
	}
	if err := checkModuleRoot(root); err != nil {
		return "", err
	}

	source, err := os.ReadFile(filepath.Join(opts.Source, "main.go")) // #nosec G304 -- operator supplied template directory
	if err != nil {
		return "", fmt.Errorf("failed to read template: %w", err)
	}

	header, err := parseModFile(filepath.Join(opts.Source, "go.mod"))
	if err != nil {
		return "", err
	}
	if err := header.DropReplace(ModulePath, ""); err != nil {
		return "", fmt.Errorf("failed to edit template module: %w", err)
	}
	if err := header.AddReplace(ModulePath, "", root, ""); err != nil {
		return "", fmt.Errorf("failed to edit template module: %w", err)
	}
	header.Cleanup()
	mod, err := header.Format()
	if err != nil {
		return "", fmt.Errorf("failed to format template module: %w", err)
	}

	dir := filepath.Join(opts.ShareRoot, "rewriter")
	if err := os.MkdirAll(dir, 0o755); err != nil { // #nosec G301 -- the share directory is read by every relay user
		return "", fmt.Errorf("failed to create template directory: %w", err)
	}

	files := map[string][]byte{"main.go": source, "go.mod": mod}
	if sum, err := os.ReadFile(filepath.Join(opts.Source, "go.sum")); err == nil { // #nosec G304 -- operator supplied template directory
		files["go.sum"] = sum
	}
	for name, data := range files {
		if err := writeFileAtomic(filepath.Join(dir, name), data); err != nil {
			return "", err
		}
	}

	compiler := opts.Compiler
	if compiler == "" {
		compiler = DefaultCompiler
	}
	runner := opts.Runner
	if runner == nil {
		runner = executor.NewRealProcessRunner()
	}

	args := []string{"mod", "tidy"}
	if _, stderr, err := runner.Run(ctx, dir, compiler, args, nil); err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", compiler, strings.Join(args, " "), err, strings.TrimSpace(string(stderr)))
	}
	if _, err := os.Stat(sumPath(filepath.Join(dir, "go.mod"))); err != nil {
		return "", fmt.Errorf("%s %s did not write go.sum: %w", compiler, strings.Join(args, " "), err)
	}

	return dir, nil
}

func parseModFile(path string) (*modfile.File, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- module file of the configured template
	if err != nil {
		return nil, fmt.Errorf("failed to read module file: %w", err)
	}
	f, err := modfile.Parse(path, data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse module file: %w", err)
	}
	return f, nil
}

// checkModuleRoot requires dir/go.mod to declare ModulePath.
func checkModuleRoot(dir string) error {
	f, err := parseModFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		return err
	}
	if f.Module == nil || f.Module.Mod.Path != ModulePath {
		return fmt.Errorf("%s is not the %s source tree", dir, ModulePath)
	}
	return nil
}

// writeFileAtomic stages data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	staged, err := stage(filepath.Dir(path))
	if err != nil {
		return err
	}
	if err := os.WriteFile(staged, data, 0o644); err != nil { // #nosec G306 -- template sources are world readable
		_ = os.Remove(staged)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(staged, 0o644); err != nil { // #nosec G302 -- template sources are world readable
		_ = os.Remove(staged)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(staged, path); err != nil {
		_ = os.Remove(staged)
		return fmt.Errorf("failed to install %s: %w", filepath.Base(path), err)
	}
	return nil
}
