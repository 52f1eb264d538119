// Package scripting runs a user supplied Lua transform once per row.
//
// A Step holds the validated configuration. Each parallel copy is a Worker
// owning one Session: a sandboxed interpreter scope built on the first row,
// where the transform, start, end and auxiliary scripts are compiled exactly
// once, the output shape is derived from the FieldSpecs and the reserved
// globals are seeded.
//
// Per row the worker binds the input fields the transform mentions, runs the
// transform, reads trans_Status and either emits an assembled output row,
// drops the row, routes it to the error channel or halts. Teardown runs the
// end script and releases the scope.
//
// Scripts see these globals besides the field variables:
//
//	trans_Status            row disposition set by the script
//	SKIP_TRANSFORMATION     1, drop the row
//	ABORT_TRANSFORMATION    -1, stop without error
//	ERROR_TRANSFORMATION    -2, stop with error
//	CONTINUE_TRANSFORMATION 0
//	row, rowMeta            raw values and shape of the current row
//	_step_                  worker handle (getStepName, getCopy, logBasic, ...)
//	_TransformationName_    pipeline name
//	null                    the null value
package scripting
