package order

import "fmt"

// Stage is a step of order placement.
type Stage string

// Placement stages in execution order.
const (
	StageValidating          Stage = "validating"
	StagePricing             Stage = "pricing"
	StageReserving           Stage = "reserving"
	StagePersisting          Stage = "persisting"
	StageAggregatingCustomer Stage = "aggregating_customer"
	StageDone                Stage = "done"
)

// StageError tags a placement failure with the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("place order: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(s Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: s, Err: err}
}
