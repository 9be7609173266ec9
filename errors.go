package qnet

// errors.go holds the error values the simulator reports.  Loss of a qubit
// in a channel is not among them: loss is a modeled outcome, carried in a
// ShotResult, and never surfaces as an error.

import (
	"errors"
	"strings"
)

var (
	// ErrConstruction marks a malformed topology: a port bound twice, a port
	// that a pair source transmits on but that has no channel, unknown or
	// duplicated names.  A topology that fails construction is never run.
	ErrConstruction = errors.New("topology construction error")

	// ErrDomain marks a configuration value outside its domain, e.g. a negative
	// link length or a non-positive shot count.  Reported before any shot executes.
	ErrDomain = errors.New("configuration domain error")

	// ErrIncompleteSwap marks an entanglement swap attempted when one of its
	// input pairs was not delivered.  The scheduler turns it into a lost shot.
	ErrIncompleteSwap = errors.New("incomplete swap")

	// ErrNotDelivered is returned when fidelity is asked of a qubit that is not
	// held at an endpoint in the current shot.
	ErrNotDelivered = errors.New("qubit not delivered")

	// ErrNotEntangled is returned when fidelity is asked of two qubits that are
	// not the two ends of one pair.
	ErrNotEntangled = errors.New("qubits are not the ends of one pair")
)

// ReportErrs transforms a list of errors and transforms the non-nil ones into a single error
// with comma-separated report of all the constituent errors, and returns it.
// The sentinel kinds of the constituents remain visible to errors.Is.
func ReportErrs(errs []error) error {
	errMsg := make([]string, 0)
	kept := make([]error, 0)
	for _, err := range errs {
		if err != nil {
			errMsg = append(errMsg, err.Error())
			kept = append(kept, err)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	if len(kept) == 1 {
		return kept[0]
	}

	return &joinedErr{msg: strings.Join(errMsg, ","), errs: kept}
}

type joinedErr struct {
	msg  string
	errs []error
}

func (je *joinedErr) Error() string   { return je.msg }
func (je *joinedErr) Unwrap() []error { return je.errs }
