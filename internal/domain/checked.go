package domain

// Checked carries a value read from an untrusted source together with the
// outcome of validating it. When validation fails the read path keeps going
// with a best-effort value (Trusted == false) instead of aborting, so
// callers can tell "validated" apart from "raw fallback".
type Checked[T any] struct {
	Value   T
	Trusted bool
	Problem error
}

// Trusted wraps a value that passed validation.
func Trusted[T any](v T) Checked[T] {
	return Checked[T]{Value: v, Trusted: true}
}

// Fallback wraps a best-effort value together with the validation problem.
func Fallback[T any](v T, problem error) Checked[T] {
	return Checked[T]{Value: v, Problem: problem}
}
