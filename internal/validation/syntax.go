package validation

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
)

// syntaxChecker parses fenced code blocks in the languages we can check
// locally. Go goes through the standard parser; Python and JavaScript go
// through tree-sitter. Unknown languages pass, the gate is best-effort.
type syntaxChecker struct {
	mu       sync.Mutex
	pyParser *sitter.Parser
	jsParser *sitter.Parser
}

func newSyntaxChecker() *syntaxChecker {
	py := sitter.NewParser()
	py.SetLanguage(python.GetLanguage())
	js := sitter.NewParser()
	js.SetLanguage(javascript.GetLanguage())
	return &syntaxChecker{pyParser: py, jsParser: js}
}

func (c *syntaxChecker) check(lang, code string) error {
	if strings.TrimSpace(code) == "" {
		return nil
	}
	switch lang {
	case "go", "golang":
		return checkGo(code)
	case "python", "py":
		return c.checkSitter(c.pyParser, code)
	case "javascript", "js", "jsx":
		return c.checkSitter(c.jsParser, code)
	}
	return nil
}

// checkGo accepts whole files, declaration lists, and bare statement
// sequences, in that order of preference.
func checkGo(code string) error {
	fset := token.NewFileSet()
	if _, err := parser.ParseFile(fset, "block.go", code, 0); err == nil {
		return nil
	}
	wrapped := "package p\n" + code
	if _, err := parser.ParseFile(fset, "block.go", wrapped, 0); err == nil {
		return nil
	}
	stmts := "package p\nfunc _() {\n" + code + "\n}"
	if _, err := parser.ParseFile(fset, "block.go", stmts, 0); err != nil {
		return err
	}
	return nil
}

func (c *syntaxChecker) checkSitter(p *sitter.Parser, code string) error {
	// tree-sitter parsers are not safe for concurrent use.
	c.mu.Lock()
	defer c.mu.Unlock()
	tree, err := p.ParseCtx(context.Background(), nil, []byte(code))
	if err != nil {
		return err
	}
	defer tree.Close()
	if tree.RootNode().HasError() {
		return fmt.Errorf("syntax error at %s", firstErrorPos(tree.RootNode()))
	}
	return nil
}

// firstErrorPos locates the first ERROR node for the violation message.
func firstErrorPos(node *sitter.Node) string {
	var walk func(n *sitter.Node) *sitter.Node
	walk = func(n *sitter.Node) *sitter.Node {
		if n.IsError() {
			return n
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if found := walk(n.Child(i)); found != nil {
				return found
			}
		}
		return nil
	}
	if errNode := walk(node); errNode != nil {
		pt := errNode.StartPoint()
		return fmt.Sprintf("line %d, column %d", pt.Row+1, pt.Column+1)
	}
	return "unknown position"
}
