package constants

// RunStatus is the canonical status for rows in extraction_runs.
type RunStatus string

// Stable values (store these exact strings in DB).
const (
	RunStatusRunning   RunStatus = "RUNNING"   // in progress
	RunStatusSucceeded RunStatus = "SUCCEEDED" // every unit merged
	RunStatusFailed    RunStatus = "FAILED"    // terminal failure, partial record kept
)

// NotProvided is the sentinel the model is told to use for facts absent from every document.
const NotProvided = "Not Provided"
