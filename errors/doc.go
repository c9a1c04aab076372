// Package errors provides structured error types for the wasm-corecc library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: field path, offending value, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindDeepStack).
//		Value(256).
//		Detail("virtual stack slots exceed limit of %d", 255).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotFound(errors.PhaseLinking, "import function", "env.log")
//	err := errors.OutOfBounds(errors.PhaseLinking, nil, 10, 5)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
