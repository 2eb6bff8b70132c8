package mutate

import (
	"go/ast"
	"go/token"
	"go/types"
	"strings"

	"github.com/shinji-kodama/mutafix/internal/model"
)

// localRenamer renames one local variable declared inside a function body.
type localRenamer struct {
	opts Options
}

// paramRenamer renames one named parameter of a function or function
// literal that has a body.
type paramRenamer struct {
	opts Options
}

func (m *localRenamer) Mutate(path string) (model.MutationResult, error) {
	return renameOne(path, m.opts, collectLocals)
}

func (m *paramRenamer) Mutate(path string) (model.MutationResult, error) {
	return renameOne(path, m.opts, collectParams)
}

// collector returns the declaring identifiers eligible for renaming, in
// source order.
type collector func(file *ast.File, info *types.Info) []*ast.Ident

func renameOne(path string, opts Options, collect collector) (model.MutationResult, error) {
	src, err := load(path)
	if err != nil || src == nil {
		return model.Unchanged(path), err
	}

	info := src.typeInfo()
	candidates := collect(src.file, info)
	if len(candidates) == 0 {
		return model.Unchanged(path), nil
	}

	decl := Pick(candidates, opts.PickIndex, opts.RandomSeed)
	oldName := decl.Name
	newName := oldName + model.RenameSuffix

	var edits []Edit
	for _, id := range references(src.file, info, decl) {
		edits = append(edits, src.replace(id, newName))
	}

	if err := src.commit(edits); err != nil {
		return model.Unchanged(path), err
	}
	return model.MutationResult{File: path, OldName: oldName, NewName: newName, Changed: true}, nil
}

// eligible reports whether a declared name may be renamed.
func eligible(id *ast.Ident) bool {
	return id != nil && id.Name != "_" && !strings.HasSuffix(id.Name, model.RenameSuffix)
}

// collectLocals finds variables introduced by :=, var declarations and
// range clauses. Only identifiers for which the checker recorded a new
// definition count; a := that reuses an existing variable is skipped.
func collectLocals(file *ast.File, info *types.Info) []*ast.Ident {
	var out []*ast.Ident
	add := func(id *ast.Ident) {
		if !eligible(id) {
			return
		}
		if _, ok := info.Defs[id].(*types.Var); ok {
			out = append(out, id)
		}
	}

	ast.Inspect(file, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.AssignStmt:
			if n.Tok == token.DEFINE {
				for _, lhs := range n.Lhs {
					if id, ok := lhs.(*ast.Ident); ok {
						add(id)
					}
				}
			}
		case *ast.DeclStmt:
			if gen, ok := n.Decl.(*ast.GenDecl); ok && gen.Tok == token.VAR {
				for _, spec := range gen.Specs {
					for _, id := range spec.(*ast.ValueSpec).Names {
						add(id)
					}
				}
			}
		case *ast.RangeStmt:
			if n.Tok == token.DEFINE {
				if id, ok := n.Key.(*ast.Ident); ok {
					add(id)
				}
				if id, ok := n.Value.(*ast.Ident); ok {
					add(id)
				}
			}
		}
		return true
	})
	return out
}

// collectParams finds named parameters of bodied functions and literals.
// Receivers and named results are not parameters and are left alone.
func collectParams(file *ast.File, info *types.Info) []*ast.Ident {
	var out []*ast.Ident
	addFields := func(fields *ast.FieldList) {
		if fields == nil {
			return
		}
		for _, field := range fields.List {
			for _, id := range field.Names {
				if eligible(id) && info.Defs[id] != nil {
					out = append(out, id)
				}
			}
		}
	}

	ast.Inspect(file, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncDecl:
			if n.Body != nil {
				addFields(n.Type.Params)
			}
		case *ast.FuncLit:
			addFields(n.Type.Params)
		}
		return true
	})
	return out
}

// references returns decl plus every identifier that refers to the same
// object. When the checker recorded no object, it falls back to matching
// the name inside the innermost block or function that encloses decl.
func references(file *ast.File, info *types.Info, decl *ast.Ident) []*ast.Ident {
	obj := info.Defs[decl]
	if obj == nil {
		return nameMatchesInScope(file, decl)
	}

	var out []*ast.Ident
	ast.Inspect(file, func(n ast.Node) bool {
		id, ok := n.(*ast.Ident)
		if !ok {
			return true
		}
		if info.Defs[id] == obj || info.Uses[id] == obj {
			out = append(out, id)
		}
		return true
	})
	return out
}

// nameMatchesInScope collects identifiers named like decl within the
// smallest function or block containing it. Selector field names and
// composite-literal keys are skipped because they never refer to locals.
func nameMatchesInScope(file *ast.File, decl *ast.Ident) []*ast.Ident {
	var scope ast.Node = file
	ast.Inspect(file, func(n ast.Node) bool {
		if n == nil || decl.Pos() < n.Pos() || decl.Pos() >= n.End() {
			return false
		}
		switch n.(type) {
		case *ast.BlockStmt, *ast.FuncDecl, *ast.FuncLit:
			scope = n
		}
		return true
	})

	skip := make(map[*ast.Ident]bool)
	var out []*ast.Ident
	ast.Inspect(scope, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.SelectorExpr:
			skip[n.Sel] = true
		case *ast.KeyValueExpr:
			if key, ok := n.Key.(*ast.Ident); ok {
				skip[key] = true
			}
		case *ast.Ident:
			if n.Name == decl.Name && !skip[n] {
				out = append(out, n)
			}
		}
		return true
	})
	return out
}
