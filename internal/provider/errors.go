package provider

// Error is a provider-layer failure carrying a machine-readable kind that
// survives to the API boundary.
type Error struct {
	Kind string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

var (
	// ErrNoPrice means every configured provider was exhausted without a
	// finite price.
	ErrNoPrice = &Error{Kind: "no_price", Msg: "no price available"}

	// ErrNoResult means the chart payload carried no result block.
	ErrNoResult = &Error{Kind: "no_result", Msg: "no chart result"}

	// ErrOutOfOrder means a chart payload violated the time-ordering the
	// upstream promises. Surfaced, never silently re-sorted.
	ErrOutOfOrder = &Error{Kind: "out_of_order", Msg: "chart timestamps not in order"}

	// ErrMissingKey means a provider requiring a credential was called
	// without one configured.
	ErrMissingKey = &Error{Kind: "missing_hg_key", Msg: "provider credential not configured"}
)
