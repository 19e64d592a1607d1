package bboltx

// PanicSentinel is the value panicked by Must().
type PanicSentinel struct {
	// Cause is the error passed to Must().
	Cause error
}

// Must panics with a PanicSentinel if err is non-nil.
func Must(err error) {
	if err != nil {
		panic(PanicSentinel{err})
	}
}

// Recover assigns the cause of a PanicSentinel panic to *err.
//
// It must be deferred directly by a transaction function. Any other panic is
// re-raised.
func Recover(err *error) {
	if err == nil {
		panic("err must be a non-nil pointer")
	}

	r := recover()
	if r == nil {
		return
	}

	if s, ok := r.(PanicSentinel); ok {
		*err = s.Cause
		return
	}

	panic(r)
}
