package qnet

// ComposeFidelity gives the fidelity of the pair produced by swapping two
// pairs of fidelity f1 and f2.  The Bell-state measurement is taken to be
// ideal, so the result is the product of the inputs.
func ComposeFidelity(f1, f2 float64) float64 {
	return f1 * f2
}

// ComposeChain folds ComposeFidelity over the link fidelities of a chain,
// the end-to-end fidelity after len(fs)-1 swaps.  An empty chain composes to 1.
func ComposeChain(fs ...float64) float64 {
	composed := 1.0
	for _, f := range fs {
		composed = ComposeFidelity(composed, f)
	}
	return composed
}
