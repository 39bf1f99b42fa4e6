// Package discovery scans a test source tree and builds the registry
// of test cases. Parsing is best-effort: a file that cannot be parsed
// is logged and skipped, never aborting the scan.
package discovery

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/testpilot/testpilot/model"
)

// DirectivePrefix introduces a metadata annotation in a comment directly
// above a test function, e.g.
//
//	//testpilot:category=api priority=low parallel=false auth=true
const DirectivePrefix = "testpilot:"

var testFuncRe = regexp.MustCompile(`(?m)^func (Test[A-Za-z0-9_]*)\(\w+ \*testing\.T\)`)

// Scanner discovers test cases under a source root.
type Scanner struct {
	logger zerolog.Logger
}

// New returns a scanner logging through the given logger.
func New(logger zerolog.Logger) *Scanner {
	return &Scanner{logger: logger}
}

// Scan walks root for *_test.go files and returns the populated
// registry. Files are visited in lexical order and functions in source
// order, so repeated scans of an unchanged tree yield identical
// registries.
func (s *Scanner) Scan(root string) (*model.Registry, error) {
	reg := model.NewRegistry()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if name != "." && (strings.HasPrefix(name, ".") || name == "vendor" || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), "_test.go") {
			return nil
		}
		if err := s.scanFile(reg, path); err != nil {
			s.logger.Warn().Err(err).Str("file", path).Msg("Skipping unparsable test file")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	return reg, nil
}

func (s *Scanner) scanFile(reg *model.Registry, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := s.scanAST(reg, path, src); err != nil {
		s.logger.Debug().Err(err).Str("file", path).Msg("AST parse failed, falling back to pattern scan")
		return s.scanFallback(reg, path, src)
	}
	return nil
}

// scanAST extracts test functions and their directives via go/parser.
func (s *Scanner) scanAST(reg *model.Registry, path string, src []byte) error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	if err != nil {
		return err
	}

	suite := file.Name.Name
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil || !isTestFunc(fn) {
			continue
		}

		tc := model.TestCase{
			ID:           suite + "." + fn.Name.Name,
			Suite:        suite,
			Name:         fn.Name.Name,
			File:         path,
			Line:         fset.Position(fn.Pos()).Line,
			ParallelSafe: true,
		}
		if fn.Doc != nil {
			for _, c := range fn.Doc.List {
				s.applyDirective(&tc, c.Text)
			}
		}
		s.register(reg, tc)
	}
	return nil
}

// scanFallback recovers test identities from files go/parser rejects,
// matching function declarations line by line.
func (s *Scanner) scanFallback(reg *model.Registry, path string, src []byte) error {
	suite := filepath.Base(filepath.Dir(path))
	lines := strings.Split(string(src), "\n")

	found := false
	for i, line := range lines {
		m := testFuncRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		found = true

		tc := model.TestCase{
			ID:           suite + "." + m[1],
			Suite:        suite,
			Name:         m[1],
			File:         path,
			Line:         i + 1,
			ParallelSafe: true,
		}
		// Directives sit on the comment lines immediately above.
		for j := i - 1; j >= 0 && strings.HasPrefix(strings.TrimSpace(lines[j]), "//"); j-- {
			s.applyDirective(&tc, strings.TrimSpace(lines[j]))
		}
		s.register(reg, tc)
	}

	if !found {
		return fmt.Errorf("no test functions recognized")
	}
	return nil
}

func (s *Scanner) register(reg *model.Registry, tc model.TestCase) {
	if err := reg.Add(tc); err != nil {
		s.logger.Warn().Err(err).Str("file", tc.File).Msg("Skipping duplicate test")
	}
}

// applyDirective parses a //testpilot: comment into the test case.
// Unknown keys and malformed values are logged and ignored.
func (s *Scanner) applyDirective(tc *model.TestCase, comment string) {
	text := strings.TrimPrefix(comment, "//")
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, DirectivePrefix) {
		return
	}
	text = strings.TrimPrefix(text, DirectivePrefix)

	for _, pair := range strings.Fields(text) {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			s.logger.Warn().Str("test", tc.ID).Str("pair", pair).Msg("Ignoring malformed directive")
			continue
		}
		switch key {
		case "category":
			cat := model.Category(value)
			if !cat.Valid() {
				s.logger.Warn().Str("test", tc.ID).Str("category", value).Msg("Ignoring unknown category")
				continue
			}
			tc.Category = cat
			tc.CategoryAnnotated = true
		case "priority":
			p, err := parsePriority(value)
			if err != nil {
				s.logger.Warn().Str("test", tc.ID).Str("priority", value).Msg("Ignoring unknown priority")
				continue
			}
			tc.Priority = p
			tc.PriorityAnnotated = true
		case "parallel":
			tc.ParallelSafe = value == "true"
		case "auth":
			tc.RequiresAuth = value == "true"
		case "network":
			tc.RequiresNetwork = value == "true"
		default:
			s.logger.Warn().Str("test", tc.ID).Str("key", key).Msg("Ignoring unknown directive key")
		}
	}
}

func parsePriority(value string) (model.Priority, error) {
	switch value {
	case "critical":
		return model.PriorityCritical, nil
	case "high":
		return model.PriorityHigh, nil
	case "medium":
		return model.PriorityMedium, nil
	case "low":
		return model.PriorityLow, nil
	}
	return 0, fmt.Errorf("unknown priority %q", value)
}

func isTestFunc(fn *ast.FuncDecl) bool {
	if !strings.HasPrefix(fn.Name.Name, "Test") {
		return false
	}
	if fn.Type.Params == nil || len(fn.Type.Params.List) != 1 {
		return false
	}
	// The single parameter must be *testing.T
	star, ok := fn.Type.Params.List[0].Type.(*ast.StarExpr)
	if !ok {
		return false
	}
	sel, ok := star.X.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	pkg, ok := sel.X.(*ast.Ident)
	return ok && pkg.Name == "testing" && sel.Sel.Name == "T"
}
