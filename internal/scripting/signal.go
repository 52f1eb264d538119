package scripting

// Signal is the row disposition a script requests through trans_Status.
type Signal int

const (
	Continue Signal = 0
	Skip     Signal = 1
	Abort    Signal = -1
	Error    Signal = -2
)

func (s Signal) String() string {
	switch s {
	case Continue:
		return "CONTINUE"
	case Skip:
		return "SKIP"
	case Abort:
		return "ABORT"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// signalOf maps a raw trans_Status number. Anything unrecognised continues.
func signalOf(n float64) Signal {
	switch s := Signal(int(n)); s {
	case Skip, Abort, Error:
		if float64(s) == n {
			return s
		}
	}
	return Continue
}

// Reserved global names in the script scope. Fields may not use them.
const (
	statusVar       = "trans_Status"
	rowVar          = "row"
	rowMetaVar      = "rowMeta"
	stepVar         = "_step_"
	pipelineNameVar = "_TransformationName_"
	nullVar         = "null"
)

var signalConstants = map[string]Signal{
	"SKIP_TRANSFORMATION":     Skip,
	"ABORT_TRANSFORMATION":    Abort,
	"ERROR_TRANSFORMATION":    Error,
	"CONTINUE_TRANSFORMATION": Continue,
}

func isReserved(name string) bool {
	switch name {
	case statusVar, rowVar, rowMetaVar, stepVar, pipelineNameVar, nullVar:
		return true
	}
	_, ok := signalConstants[name]
	return ok
}
