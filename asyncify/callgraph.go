package asyncify

import (
	"sort"

	"github.com/wippyai/wasm-dualgen/wasm"
)

// CallGraph maps each function name to the functions it calls directly.
type CallGraph map[string][]string

// BuildCallGraph collects the direct calls of every function.
func BuildCallGraph(funcs []Function) CallGraph {
	cg := make(CallGraph)
	for _, fn := range funcs {
		cg[fn.Name] = nil
		visit := func(instrs []wasm.Instruction) {
			for _, instr := range instrs {
				if name, ok := instr.CallName(); ok {
					cg[fn.Name] = appendUnique(cg[fn.Name], name)
				}
			}
		}
		for _, st := range fn.Statements {
			visit(st.Instrs)
		}
		visit(fn.Tail)
	}
	return cg
}

// TransitiveCallers finds all functions that transitively call any of the
// targets. The targets themselves are included.
func (cg CallGraph) TransitiveCallers(targets map[string]bool) map[string]bool {
	result := make(map[string]bool, len(targets))
	for t := range targets {
		result[t] = true
	}

	changed := true
	for changed {
		changed = false
		for caller, callees := range cg {
			if result[caller] {
				continue
			}
			for _, callee := range callees {
				if result[callee] {
					result[caller] = true
					changed = true
					break
				}
			}
		}
	}

	return result
}

// Suspending returns a matcher for every function that can reach a root.
func (cg CallGraph) Suspending(roots map[string]bool) *FunctionNameMatcher {
	reach := cg.TransitiveCallers(roots)
	names := make([]string, 0, len(reach))
	for name := range reach {
		names = append(names, name)
	}
	sort.Strings(names)
	return NewFunctionNameMatcher(names)
}

func appendUnique(slice []string, val string) []string {
	for _, v := range slice {
		if v == val {
			return slice
		}
	}
	return append(slice, val)
}
