package runtime

import (
	"regexp"
	"strings"

	"github.com/dop251/goja"

	"github.com/jstz-dev/jstz/internal/jstzerrors"
)

// importPattern flags any ES import statement; the runtime only ever
// loads a single self-contained module body, so imports are rejected at
// validation time rather than silently ignored.
var importPattern = regexp.MustCompile(`(^|\n)\s*import\s`)

// defaultExportPattern captures the expression following a top-level
// "export default".
var defaultExportPattern = regexp.MustCompile(`export\s+default\s+`)

// stripDefaultExport validates that code is a single module with no
// imports and exactly one default export, and returns the exported
// expression as plain script text, IIFE-ready. This mirrors the
// deploy-time module shape checks: no imports, exactly one default
// export, and (checked by the caller once invoked) a callable result.
func stripDefaultExport(code string) (string, error) {
	if importPattern.MatchString(code) {
		return "", jstzerrors.New(jstzerrors.CodeInvalidModule, "module imports are not supported")
	}

	matches := defaultExportPattern.FindAllStringIndex(code, -1)
	if len(matches) == 0 {
		return "", jstzerrors.New(jstzerrors.CodeInvalidModule, "module has no default export")
	}
	if len(matches) > 1 {
		return "", jstzerrors.New(jstzerrors.CodeInvalidModule, "module has more than one default export")
	}

	loc := matches[0]
	before := strings.TrimSpace(code[:loc[0]])
	after := code[loc[1]:]
	expr := strings.TrimSpace(after)
	expr = strings.TrimSuffix(expr, ";")
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", jstzerrors.New(jstzerrors.CodeInvalidModule, "module default export is empty")
	}

	if before == "" {
		return expr, nil
	}
	// Preamble (helper declarations above the default export) is kept in
	// scope by wrapping it together with the exported expression in an
	// immediately invoked function that returns the expression's value.
	return "(function(){ " + before + "\n return (" + expr + "); })()", nil
}

// ValidateModule rejects code that is not a single, importless module
// with a callable default export, without invoking it against a real
// request. This backs the deploy-time module shape check: reject if it
// is not a valid module, has imports, lacks a default export, or the
// default export is not callable.
func ValidateModule(code string) error {
	body, err := stripDefaultExport(code)
	if err != nil {
		return err
	}

	vm := goja.New()
	if _, err := vm.RunString(preludeSource); err != nil {
		return jstzerrors.Wrap(jstzerrors.CodeInvalidModule, "module failed to load", err)
	}
	val, err := vm.RunString("(" + body + ")")
	if err != nil {
		return jstzerrors.Wrap(jstzerrors.CodeInvalidModule, "module failed to evaluate", err)
	}
	if _, ok := goja.AssertFunction(val); !ok {
		return jstzerrors.New(jstzerrors.CodeInvalidModule, "default export is not callable")
	}
	return nil
}
