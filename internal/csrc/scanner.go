// Package csrc extracts function inventories from C source files under test.
// It uses Tree-sitter for accurate AST parsing; a file that does not parse
// contributes nothing rather than failing the scan.
package csrc

import (
	"context"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"

	"utforge/internal/logging"
)

// CFunction is one function definition found in a source file.
type CFunction struct {
	Name      string
	File      string
	StartLine int // 1-based
	EndLine   int
}

// Scanner walks C source for function definitions.
type Scanner struct {
	parser *sitter.Parser
}

// NewScanner creates a scanner with the C grammar loaded.
func NewScanner() *Scanner {
	parser := sitter.NewParser()
	parser.SetLanguage(c.GetLanguage())
	return &Scanner{parser: parser}
}

// ScanFunctions extracts every function definition from the given files,
// keyed filename -> content. Parse failures are logged and skipped; the
// result is whatever was recoverable, possibly empty.
func (s *Scanner) ScanFunctions(files map[string]string) []CFunction {
	var funcs []CFunction
	for name, content := range files {
		if !strings.HasSuffix(name, ".c") && !strings.HasSuffix(name, ".h") {
			continue
		}
		found, err := s.scanFile(name, []byte(content))
		if err != nil {
			logging.Pipeline("source scan skipped %s: %v", name, err)
			continue
		}
		funcs = append(funcs, found...)
	}
	sort.Slice(funcs, func(i, j int) bool {
		if funcs[i].File != funcs[j].File {
			return funcs[i].File < funcs[j].File
		}
		return funcs[i].StartLine < funcs[j].StartLine
	})
	return funcs
}

func (s *Scanner) scanFile(path string, content []byte) ([]CFunction, error) {
	tree, err := s.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var funcs []CFunction
	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() != "function_definition" {
			continue
		}
		name := functionName(child, content)
		if name == "" {
			continue
		}
		funcs = append(funcs, CFunction{
			Name:      name,
			File:      path,
			StartLine: int(child.StartPoint().Row) + 1,
			EndLine:   int(child.EndPoint().Row) + 1,
		})
	}
	return funcs, nil
}

// functionName digs the identifier out of a function_definition's declarator.
// Pointer returns and parenthesized declarators nest, so descend until the
// function_declarator, then take its declarator identifier.
func functionName(def *sitter.Node, content []byte) string {
	decl := def.ChildByFieldName("declarator")
	for decl != nil {
		switch decl.Type() {
		case "function_declarator":
			inner := decl.ChildByFieldName("declarator")
			if inner != nil && inner.Type() == "identifier" {
				return string(content[inner.StartByte():inner.EndByte()])
			}
			decl = inner
		case "pointer_declarator":
			decl = decl.ChildByFieldName("declarator")
			if decl == nil {
				return ""
			}
		case "parenthesized_declarator":
			decl = decl.NamedChild(0)
			if decl == nil {
				return ""
			}
		case "identifier":
			return string(content[decl.StartByte():decl.EndByte()])
		default:
			return ""
		}
	}
	return ""
}
