// Package golang is a demonstration front end: it lowers Go functions into
// the block/action form the analysis consumes. It recognizes address-of
// assignments as borrows and plain assignments as overwrites, which is
// enough to exercise the pipeline end to end; it is not a borrow checker
// for Go.
package golang

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	gocfg "golang.org/x/tools/go/cfg"

	"github.com/viant/afs"
	"github.com/viant/borrowck/action"
	"github.com/viant/borrowck/analysis"
	"github.com/viant/borrowck/cfg"
	"github.com/viant/borrowck/graph"
	"golang.org/x/mod/modfile"
)

// Procedure is one lowered function: its control-flow shape and the graph
// edits its statements emit.
type Procedure struct {
	Name    string
	Body    *cfg.Body
	actions map[cfg.Block][]action.Action
}

// ActionsFor returns the edits for one block.
func (p *Procedure) ActionsFor(block cfg.Block) []action.Action {
	return p.actions[block]
}

// Analyze runs the borrow analysis over the procedure.
func (p *Procedure) Analyze(options ...analysis.Option) (*analysis.Result, error) {
	return analysis.New(p.Body, p, options...).Run()
}

// ModulePath reads the module identity from the go.mod under the given URL,
// so procedure names are qualified the way the rest of the toolchain names
// them. Empty when no module file is found.
func ModulePath(ctx context.Context, location string) string {
	fs := afs.New()
	goModPath := strings.TrimRight(location, "/") + "/go.mod"
	if content, _ := fs.DownloadWithURL(ctx, goModPath); len(content) > 0 {
		if mod, _ := modfile.Parse(goModPath, content, nil); mod != nil && mod.Module != nil {
			return mod.Module.Mod.Path
		}
	}
	return ""
}

// Load parses Go source and lowers every function with a body. The optional
// module path qualifies procedure names.
func Load(source []byte, filename, module string) ([]*Procedure, error) {
	fileSet := token.NewFileSet()
	file, err := parser.ParseFile(fileSet, filename, source, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %v: %w", filename, err)
	}
	var result []*Procedure
	for _, decl := range file.Decls {
		function, ok := decl.(*ast.FuncDecl)
		if !ok || function.Body == nil {
			continue
		}
		name := function.Name.Name
		if module != "" {
			name = module + "." + name
		}
		result = append(result, lower(name, function))
	}
	return result, nil
}

// lower maps the function's control-flow graph onto block indices and walks
// each block's statements for borrow-relevant effects.
func lower(name string, function *ast.FuncDecl) *Procedure {
	flow := gocfg.New(function.Body, func(*ast.CallExpr) bool { return true })

	succs := make([][]cfg.Block, len(flow.Blocks))
	for i, block := range flow.Blocks {
		for _, succ := range block.Succs {
			succs[i] = append(succs[i], cfg.Block(succ.Index))
		}
	}
	procedure := &Procedure{
		Name:    name,
		Body:    cfg.NewBody(name, succs),
		actions: map[cfg.Block][]action.Action{},
	}

	emitter := &emitter{procedure: procedure}
	for i, block := range flow.Blocks {
		for statement, node := range block.Nodes {
			emitter.statement(cfg.Block(i), statement, node)
		}
	}
	return procedure
}

type emitter struct {
	procedure *Procedure
	regions   int
}

// statement emits actions for one lowered node. An `lhs = &rhs` assignment
// becomes a borrow edge; any other assignment to a known name becomes an
// overwrite (latest-snapshot update plus relabelling of surviving borrows).
func (e *emitter) statement(block cfg.Block, statement int, node ast.Node) {
	assign, ok := node.(*ast.AssignStmt)
	if !ok || len(assign.Lhs) != 1 || len(assign.Rhs) != 1 {
		return
	}
	target, ok := assign.Lhs[0].(*ast.Ident)
	if !ok || target.Name == "_" {
		return
	}
	at := cfg.Point{Block: block, Statement: statement}

	if borrowed, access, ok := borrowOperand(assign.Rhs[0]); ok {
		assigned := graph.Tok(graph.Loc(target.Name).Deref(), e.freshRegion())
		e.emit(block, action.AddEdge{
			Edge: graph.NewEdge(graph.Borrow{
				Blocked:  borrowed,
				Assigned: assigned,
				Access:   access,
				Origin:   at,
			}),
			Why: fmt.Sprintf("%v borrows %v", target.Name, borrowed),
		})
		return
	}

	location := graph.Loc(target.Name)
	e.emit(block, action.SetLatest{Location: location, At: at, Why: target.Name + " overwritten"})
	e.emit(block, action.MakeOld{Location: location, Why: "surviving borrows keep the old value"})
}

// borrowOperand recognizes &x and &x.f operands.
func borrowOperand(expr ast.Expr) (graph.Location, graph.Access, bool) {
	unary, ok := expr.(*ast.UnaryExpr)
	if !ok || unary.Op != token.AND {
		return graph.Location{}, 0, false
	}
	location, ok := operandLocation(unary.X)
	if !ok {
		return graph.Location{}, 0, false
	}
	return location, graph.AccessShared, true
}

func operandLocation(expr ast.Expr) (graph.Location, bool) {
	switch actual := expr.(type) {
	case *ast.Ident:
		return graph.Loc(actual.Name), true
	case *ast.SelectorExpr:
		base, ok := operandLocation(actual.X)
		if !ok {
			return graph.Location{}, false
		}
		return base.Project(actual.Sel.Name), true
	case *ast.StarExpr:
		base, ok := operandLocation(actual.X)
		if !ok {
			return graph.Location{}, false
		}
		return base.Deref(), true
	}
	return graph.Location{}, false
}

func (e *emitter) emit(block cfg.Block, act action.Action) {
	e.procedure.actions[block] = append(e.procedure.actions[block], act)
}

func (e *emitter) freshRegion() string {
	region := fmt.Sprintf("'%d", e.regions)
	e.regions++
	return region
}
