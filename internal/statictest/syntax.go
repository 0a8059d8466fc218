package statictest

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/forgeworks/appforge/internal/domain"
)

// checkSyntax parses every Python file and emits one patch request per
// file that fails to parse, reason = parser error with location.
func (r *Runner) checkSyntax(ctx context.Context, b domain.CodeBundle) []domain.FilePatchRequest {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	var patches []domain.FilePatchRequest
	for _, path := range b.Paths() {
		if !strings.HasSuffix(path, ".py") {
			continue
		}
		tree, err := parser.ParseCtx(ctx, nil, []byte(b[path]))
		if err != nil {
			patches = append(patches, domain.FilePatchRequest{
				Path:         path,
				Reason:       "parser error: " + err.Error(),
				Instructions: "Rewrite the file with valid Python syntax, preserving its intended behavior.",
			})
			continue
		}
		root := tree.RootNode()
		if root.HasError() {
			row, col := firstErrorLocation(root)
			patches = append(patches, domain.FilePatchRequest{
				Path:         path,
				Reason:       fmt.Sprintf("parser error at line %d, column %d", row+1, col+1),
				Instructions: "Rewrite the file with valid Python syntax, preserving its intended behavior.",
			})
		}
		tree.Close()
	}
	return patches
}

// firstErrorLocation finds the first ERROR or missing node in the tree
func firstErrorLocation(node *sitter.Node) (uint32, uint32) {
	if node.IsError() || node.IsMissing() {
		pt := node.StartPoint()
		return pt.Row, pt.Column
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil || !child.HasError() {
			continue
		}
		return firstErrorLocation(child)
	}
	pt := node.StartPoint()
	return pt.Row, pt.Column
}
