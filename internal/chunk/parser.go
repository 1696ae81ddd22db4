package chunk

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Parser wraps tree-sitter for AST parsing.
type Parser struct {
	parser   *sitter.Parser
	registry *LanguageRegistry
}

// NewParser creates a new parser with the default language registry.
func NewParser() *Parser {
	return &Parser{
		parser:   sitter.NewParser(),
		registry: DefaultRegistry(),
	}
}

// NewParserWithRegistry creates a new parser with a custom registry.
func NewParserWithRegistry(registry *LanguageRegistry) *Parser {
	return &Parser{
		parser:   sitter.NewParser(),
		registry: registry,
	}
}

// Parse parses source code and returns our AST representation.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	tsLang, ok := p.registry.GetTreeSitterLanguage(language)
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", language)
	}

	p.parser.SetLanguage(tsLang)

	tsTree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("failed to parse source: nil tree")
	}

	root := convertTree(tsTree.RootNode())

	return &Tree{
		Root:     root,
		Source:   source,
		Language: language,
	}, nil
}

// Close releases parser resources.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

// convertTree converts a tree-sitter tree to our Node type using an
// explicit worklist instead of recursion (spec.md §9: iterative
// cursor, so pathological nesting in generated code cannot exhaust
// the call stack).
func convertTree(tsRoot *sitter.Node) *Node {
	if tsRoot == nil {
		return nil
	}

	type work struct {
		ts     *sitter.Node
		parent *Node
	}

	root := newNodeFrom(tsRoot, nil)
	stack := []work{{tsRoot, root}}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		count := int(item.ts.ChildCount())
		item.parent.Children = make([]*Node, 0, count)
		for i := 0; i < count; i++ {
			tsChild := item.ts.Child(i)
			if tsChild == nil {
				continue
			}
			child := newNodeFrom(tsChild, item.parent)
			item.parent.Children = append(item.parent.Children, child)
			stack = append(stack, work{tsChild, child})
		}
	}

	return root
}

func newNodeFrom(tsNode *sitter.Node, parent *Node) *Node {
	return &Node{
		Type:      tsNode.Type(),
		StartByte: tsNode.StartByte(),
		EndByte:   tsNode.EndByte(),
		StartPoint: Point{
			Row:    tsNode.StartPoint().Row,
			Column: tsNode.StartPoint().Column,
		},
		EndPoint: Point{
			Row:    tsNode.EndPoint().Row,
			Column: tsNode.EndPoint().Column,
		},
		HasError: tsNode.HasError(),
		Parent:   parent,
	}
}
