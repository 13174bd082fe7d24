package ribosome

// These errors are user errors: a call named a zome or function the
// DNA doesn't have.  They terminate the call, not the instance.

// UnknownZome occurs when a call names a zome not in the DNA.
type UnknownZome struct {
	DNA  string
	Zome string
}

func (e *UnknownZome) Error() string {
	return `zome "` + e.Zome + `" not found in dna "` + e.DNA + `"`
}

// UnknownFunction occurs when a call names a function the zome
// doesn't declare or define.
type UnknownFunction struct {
	Zome     string
	Function string
}

func (e *UnknownFunction) Error() string {
	return `function "` + e.Function + `" not found in zome "` + e.Zome + `"`
}
