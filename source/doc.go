// Package source loads function declarations from YAML and compiles them
// into a module.
//
// A declaration file lists host imports and functions. Function bodies are
// statements of text-format instructions; calls name their target:
//
//	module: demo
//	imports:
//	  - {module: env, name: sleep, params: [u32], result: u32, suspend: true}
//	functions:
//	  - name: f
//	    params: [{name: n, type: u32}]
//	    result: u32
//	    inline_suspend: true
//	    locals: [{name: t, type: i32}]
//	    body:
//	      - code: [local.get 0, call sleep, local.set 1]
//	    return: [local.get 1]
//
// Compile finds every function that can reach a suspending import and
// rewrites it for asyncify. Functions marked inline_suspend also get a
// private straight-line copy named f$$forInline.
package source
