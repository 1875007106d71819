// Package stage materializes an extracted artifact bundle into an on-disk
// build workspace the toolchain can run make in. Staging is all-or-nothing:
// files land in a hidden temp dir that is renamed into place only once every
// write succeeded.
package stage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"utforge/internal/csrc"
	"utforge/internal/extract"
	"utforge/internal/logging"
)

// SourceFile is one uploaded C source or header, held in memory until
// staging writes it out verbatim.
type SourceFile struct {
	Filename string
	Content  string
	Size     int64
}

// StagingError wraps any failure during workspace construction. The partial
// directory is already removed by the time it is returned.
type StagingError struct {
	Path string
	Err  error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("staging %s: %v", e.Path, e.Err)
}

func (e *StagingError) Unwrap() error { return e.Err }

// Workspace is one fully staged build directory.
type Workspace struct {
	Dir           string
	Sources       []string // staged .c files, Makefile SRCS order
	KeepArtifacts bool
}

// Cleanup removes the workspace directory unless artifacts are kept.
func (w *Workspace) Cleanup() error {
	if w == nil || w.Dir == "" || w.KeepArtifacts {
		return nil
	}
	return os.RemoveAll(w.Dir)
}

// Stager builds workspaces under a configured root directory.
type Stager struct {
	root          string
	keepArtifacts bool
}

// NewStager creates a stager rooted at dir. The directory is created on
// first Stage call, not here.
func NewStager(root string, keepArtifacts bool) *Stager {
	return &Stager{root: root, keepArtifacts: keepArtifacts}
}

// Stage writes sources, the test runner, and the Makefile into a fresh
// workspace. funcs is the scanned function inventory of the sources, used
// for the runner banner; it may be nil.
func (s *Stager) Stage(bundle *extract.TestArtifactBundle, sources []SourceFile, funcs []csrc.CFunction) (*Workspace, error) {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return nil, &StagingError{Path: s.root, Err: err}
	}

	tmp, err := os.MkdirTemp(s.root, ".staging-*")
	if err != nil {
		return nil, &StagingError{Path: s.root, Err: err}
	}

	ws, err := s.populate(tmp, bundle, sources, funcs)
	if err != nil {
		os.RemoveAll(tmp)
		return nil, err
	}

	final := filepath.Join(s.root, "run_"+uuid.NewString())
	if err := os.Rename(tmp, final); err != nil {
		os.RemoveAll(tmp)
		return nil, &StagingError{Path: final, Err: err}
	}
	ws.Dir = final

	logging.Stage("workspace staged at %s (%d sources, %d test cases)",
		final, len(sources), len(bundle.TestCases))
	return ws, nil
}

func (s *Stager) populate(dir string, bundle *extract.TestArtifactBundle, sources []SourceFile, funcs []csrc.CFunction) (*Workspace, error) {
	ws := &Workspace{KeepArtifacts: s.keepArtifacts}

	var headers []string
	for _, src := range sources {
		name := filepath.Base(src.Filename)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src.Content), 0644); err != nil {
			return nil, &StagingError{Path: name, Err: err}
		}
		switch {
		case strings.HasSuffix(name, ".c"):
			ws.Sources = append(ws.Sources, name)
		case strings.HasSuffix(name, ".h"):
			headers = append(headers, name)
		}
	}
	sort.Strings(ws.Sources)
	sort.Strings(headers)

	runner, suite := runnerFiles(bundle, headers, funcs)
	if suite != "" {
		if err := os.WriteFile(filepath.Join(dir, "test_suite.c"), []byte(suite), 0644); err != nil {
			return nil, &StagingError{Path: "test_suite.c", Err: err}
		}
		ws.Sources = append(ws.Sources, "test_suite.c")
	}
	if err := os.WriteFile(filepath.Join(dir, "test_runner.c"), []byte(runner), 0644); err != nil {
		return nil, &StagingError{Path: "test_runner.c", Err: err}
	}
	ws.Sources = append(ws.Sources, "test_runner.c")

	makefile := bundle.BuildScript
	if strings.TrimSpace(makefile) == "" {
		makefile = synthesizeMakefile(ws.Sources)
	}
	if err := os.WriteFile(filepath.Join(dir, "Makefile"), []byte(makefile), 0644); err != nil {
		return nil, &StagingError{Path: "Makefile", Err: err}
	}

	return ws, nil
}

// runnerFiles decides what C files the bundle's tests become. With an
// extracted runner the test bodies go to test_suite.c alongside it;
// otherwise one synthesized test_runner.c carries both.
func runnerFiles(bundle *extract.TestArtifactBundle, headers []string, funcs []csrc.CFunction) (runner, suite string) {
	if bundle.RunnerScript != "" {
		return bundle.RunnerScript, synthesizeSuite(bundle, headers)
	}
	return synthesizeRunner(bundle, headers, funcs), ""
}
