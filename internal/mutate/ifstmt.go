package mutate

import (
	"go/ast"
	"go/token"

	"github.com/shinji-kodama/mutafix/internal/model"
)

// ifRewrite produces the edits that mutate a single if-statement.
type ifRewrite func(src *source, stmt *ast.IfStmt) []Edit

// ifMutator picks one if-statement and applies rewrite to it.
type ifMutator struct {
	opts    Options
	rewrite ifRewrite
	newName string

	// accept filters candidates. Nil accepts every if-statement.
	accept func(*ast.IfStmt) bool
}

func (m *ifMutator) Mutate(path string) (model.MutationResult, error) {
	src, err := load(path)
	if err != nil || src == nil {
		return model.Unchanged(path), err
	}

	var candidates []*ast.IfStmt
	ast.Inspect(src.file, func(n ast.Node) bool {
		if stmt, ok := n.(*ast.IfStmt); ok && (m.accept == nil || m.accept(stmt)) {
			candidates = append(candidates, stmt)
		}
		return true
	})
	if len(candidates) == 0 {
		return model.Unchanged(path), nil
	}

	target := Pick(candidates, m.opts.PickIndex, m.opts.RandomSeed)
	if err := src.commit(m.rewrite(src, target)); err != nil {
		return model.Unchanged(path), err
	}
	return model.MutationResult{File: path, OldName: "if", NewName: m.newName, Changed: true}, nil
}

// flipIf negates the condition and swaps the branches:
//
//	if C { A } else { B }   →  if !(C) { B } else { A }
//	if C { A }              →  if !(C) {} else { A }
//	if C { A } else if D {} →  if !(C) { if D {} } else { A }
func flipIf(src *source, stmt *ast.IfStmt) []Edit {
	cond := src.replace(stmt.Cond, "!("+src.text(stmt.Cond)+")")
	thenText := src.text(stmt.Body)

	switch els := stmt.Else.(type) {
	case nil:
		return []Edit{cond, src.replace(stmt.Body, "{\n} else "+thenText)}
	case *ast.BlockStmt:
		return []Edit{
			cond,
			src.replace(stmt.Body, src.text(els)),
			src.replace(els, thenText),
		}
	default:
		// else-if chain: wrap it in a block so it can become the then-branch.
		return []Edit{
			cond,
			src.replace(stmt.Body, "{\n"+src.text(els)+"\n}"),
			src.replace(els, thenText),
		}
	}
}

// doubleNegate wraps the condition in two negations: if C → if !(!(C)).
func doubleNegate(src *source, stmt *ast.IfStmt) []Edit {
	return []Edit{src.replace(stmt.Cond, "!(!("+src.text(stmt.Cond)+"))")}
}

// simplifyNegation removes pairs of stacked negations from the condition.
// An even number of negations leaves the bare operand; an odd number keeps
// exactly one.
func simplifyNegation(src *source, stmt *ast.IfStmt) []Edit {
	depth, inner := stripNegations(stmt.Cond)
	text := src.text(inner)
	if depth%2 == 1 {
		text = "!(" + text + ")"
	}
	return []Edit{src.replace(stmt.Cond, text)}
}

// negationDepth counts the logical negations stacked on top of expr,
// looking through parentheses.
func negationDepth(expr ast.Expr) int {
	depth, _ := stripNegations(expr)
	return depth
}

// stripNegations removes parentheses and leading ! operators from expr and
// returns how many negations were removed together with the operand.
func stripNegations(expr ast.Expr) (int, ast.Expr) {
	depth := 0
	for {
		switch e := expr.(type) {
		case *ast.ParenExpr:
			expr = e.X
		case *ast.UnaryExpr:
			if e.Op != token.NOT {
				return depth, expr
			}
			depth++
			expr = e.X
		default:
			return depth, expr
		}
	}
}
