// Package wasm provides the WebAssembly binary model and encoder used to
// assemble generated modules.
//
// The package covers the subset of the core format that generated code needs:
// function types, imports, functions, one linear memory, globals, exports,
// code and custom sections, plus the "name" section.
//
// # Building
//
//	m := &wasm.Module{}
//	typeIdx := m.EnsureType(wasm.FuncType{
//	    Params:  []wasm.ValType{wasm.ValI32},
//	    Results: []wasm.ValType{wasm.ValI32},
//	})
//	m.Funcs = append(m.Funcs, typeIdx)
//
// # Instructions
//
// Instructions carry typed immediates and are encoded with EncodeInstructions:
//
//	code, err := wasm.EncodeInstructions([]wasm.Instruction{
//	    {Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}},
//	    {Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 1}},
//	    {Opcode: wasm.OpI32Add},
//	    {Opcode: wasm.OpEnd},
//	})
//
// LookupOpcode maps text-format mnemonics ("local.get", "i32.add") to opcode
// info, including the immediate kind and fixed stack effect.
//
// # Encoding
//
//	bin := m.Encode()
package wasm
