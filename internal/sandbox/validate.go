package sandbox

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrSyntax is returned when source does not parse as Go.
	ErrSyntax = errors.New("syntax error")

	// ErrSignature is returned when source does not declare exactly the expected function.
	ErrSignature = errors.New("invalid tool function")

	// ErrForbiddenImport is returned when source imports a package outside the allowlist.
	ErrForbiddenImport = errors.New("forbidden import")

	// ErrSourceTooLarge is returned when source exceeds the configured size limit.
	ErrSourceTooLarge = errors.New("source too large")

	// ErrForbiddenStmt is returned when the function body starts work on
	// another goroutine, where a panic cannot be recovered by the sandbox.
	ErrForbiddenStmt = errors.New("forbidden statement")
)

// Unit is a parsed tool source.
type Unit struct {
	Name    string
	Imports []string
	// ReturnsString is false when the function returns interface{}.
	ReturnsString bool
}

// Parse checks source without executing it. Source is a Go function
// declaration optionally preceded by imports, with no package clause.
// It must declare exactly one top-level function named name taking one
// map[string]interface{} parameter and returning string or interface{},
// and import only allowlisted packages.
func Parse(name, source string, allowed map[string]bool) (*Unit, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "tool.go", "package main\n\n"+source, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	unit := &Unit{Name: name}
	var forbidden []string
	locals := make(map[string]string, len(file.Imports))
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: bad import %s", ErrSyntax, imp.Path.Value)
		}
		if imp.Name != nil && (imp.Name.Name == "." || imp.Name.Name == "_") {
			return nil, fmt.Errorf("%w: %s import of %q not allowed", ErrForbiddenImport, imp.Name.Name, path)
		}
		if !allowed[path] {
			forbidden = append(forbidden, path)
		}
		local := path[strings.LastIndex(path, "/")+1:]
		if imp.Name != nil {
			local = imp.Name.Name
		}
		if local == hostAlias {
			return nil, fmt.Errorf("%w: import name %s is reserved by the sandbox", ErrForbiddenImport, local)
		}
		locals[local] = path
		unit.Imports = append(unit.Imports, path)
	}
	if len(forbidden) > 0 {
		return nil, fmt.Errorf("%w: %s (allowed: %s)", ErrForbiddenImport, strings.Join(forbidden, ", "), allowedList(allowed))
	}

	var fn *ast.FuncDecl
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			if d.Tok != token.IMPORT {
				return nil, fmt.Errorf("%w: only imports and the function %s may be declared, found %s", ErrSignature, name, d.Tok)
			}
		case *ast.FuncDecl:
			if fn != nil {
				return nil, fmt.Errorf("%w: exactly one function must be declared, found %s and %s", ErrSignature, fn.Name.Name, d.Name.Name)
			}
			fn = d
		}
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: no function declared", ErrSignature)
	}
	if name == hostAlias || name == invokeFunc {
		return nil, fmt.Errorf("%w: %s is reserved by the sandbox", ErrSignature, name)
	}
	if fn.Name.Name != name {
		return nil, fmt.Errorf("%w: function is named %s, want %s", ErrSignature, fn.Name.Name, name)
	}
	if path, ok := locals[name]; ok {
		return nil, fmt.Errorf("%w: %s shadows the imported package %q", ErrSignature, name, path)
	}
	if fn.Recv != nil {
		return nil, fmt.Errorf("%w: %s must not be a method", ErrSignature, name)
	}
	if fn.Type.TypeParams != nil {
		return nil, fmt.Errorf("%w: %s must not be generic", ErrSignature, name)
	}
	if fn.Body == nil {
		return nil, fmt.Errorf("%w: %s has no body", ErrSignature, name)
	}

	params := fn.Type.Params.List
	if len(params) != 1 || len(params[0].Names) > 1 || !isParamBag(params[0].Type) {
		return nil, fmt.Errorf("%w: %s must take a single map[string]interface{} parameter", ErrSignature, name)
	}

	results := fn.Type.Results
	if results == nil || len(results.List) != 1 || len(results.List[0].Names) > 1 {
		return nil, fmt.Errorf("%w: %s must return a single string", ErrSignature, name)
	}
	switch {
	case isIdent(results.List[0].Type, "string"):
		unit.ReturnsString = true
	case isEmptyInterface(results.List[0].Type):
	default:
		return nil, fmt.Errorf("%w: %s must return a single string", ErrSignature, name)
	}

	if err := checkBody(fn.Body, locals); err != nil {
		return nil, err
	}
	return unit, nil
}

// checkBody rejects go statements and time.AfterFunc, both of which run
// code on a goroutine the interpreter does not own.
func checkBody(body *ast.BlockStmt, locals map[string]string) error {
	var err error
	ast.Inspect(body, func(n ast.Node) bool {
		if err != nil {
			return false
		}
		switch x := n.(type) {
		case *ast.GoStmt:
			err = fmt.Errorf("%w: go statements are not allowed", ErrForbiddenStmt)
		case *ast.SelectorExpr:
			if pkg, ok := x.X.(*ast.Ident); ok && locals[pkg.Name] == "time" && x.Sel.Name == "AfterFunc" {
				err = fmt.Errorf("%w: %s.AfterFunc is not allowed", ErrForbiddenStmt, pkg.Name)
			}
		}
		return err == nil
	})
	return err
}

func isParamBag(expr ast.Expr) bool {
	m, ok := expr.(*ast.MapType)
	return ok && isIdent(m.Key, "string") && isEmptyInterface(m.Value)
}

func isIdent(expr ast.Expr, name string) bool {
	id, ok := expr.(*ast.Ident)
	return ok && id.Name == name
}

func isEmptyInterface(expr ast.Expr) bool {
	if isIdent(expr, "any") {
		return true
	}
	it, ok := expr.(*ast.InterfaceType)
	return ok && (it.Methods == nil || len(it.Methods.List) == 0)
}

func allowedList(allowed map[string]bool) string {
	list := make([]string, 0, len(allowed))
	for p, ok := range allowed {
		if ok {
			list = append(list, p)
		}
	}
	sort.Strings(list)
	return strings.Join(list, ", ")
}
