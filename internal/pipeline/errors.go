package pipeline

import (
	"fmt"

	"github.com/cleared-dev/finscan/internal/model"
)

// ConfigurationError fails a batch before any row is processed because no
// row can be trusted under the mapping.
type ConfigurationError struct {
	MappingID int64
	Problems  model.ValidationErrors
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("mapping %d is unusable: %v", e.MappingID, e.Problems)
}

func (e *ConfigurationError) Unwrap() error { return e.Problems }

// InfrastructureError aborts the rest of a batch. Rows already committed stay
// committed; re-running the batch skips them as duplicates.
type InfrastructureError struct {
	Committed int
	Err       error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("import aborted after %d committed rows: %v", e.Committed, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }
