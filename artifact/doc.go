// Package artifact assembles generated functions into a WebAssembly module.
//
// Builder implements codegen.Allocator. Each allocated slot gets a
// FunctionWriter, an emit.FuncSink that records header events as metadata
// and content events as the function body. Bodies call other functions by
// name; Encode resolves the names once every index is known.
//
// Function index space:
//
//	host imports        Import, in declaration order
//	abstract functions  imported from Config.ImportModule
//	defined functions   allocation order, exported unless private
//	asyncify helpers    when EnableAsyncify was called
//
// Besides the "name" section, Encode writes four custom sections:
//
//	dualgen.annotations  header and content annotations, with nested values
//	dualgen.attributes   opaque attributes per function
//	dualgen.lines        (instruction position, source line) per function
//	dualgen.synthetic    indices of synthetic functions
package artifact
