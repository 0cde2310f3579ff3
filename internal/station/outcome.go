package station

// OutcomeKind classifies one attempt inside Process.
type OutcomeKind int

const (
	// OutcomeOK carries a validated value.
	OutcomeOK OutcomeKind = iota
	// OutcomeRetryable means the reply was unusable; the same prompt may be sent again.
	OutcomeRetryable
	// OutcomeFatal stops the station immediately.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	}
	return "unknown"
}

// Outcome is the tagged result of a single attempt.
type Outcome struct {
	Kind   OutcomeKind
	Value  Output
	Text   string
	Reason string
	Err    error
}

func ok(value Output) Outcome { return Outcome{Kind: OutcomeOK, Value: value} }

func okText(text string) Outcome { return Outcome{Kind: OutcomeOK, Text: text} }

func retryable(reason string, err error) Outcome {
	return Outcome{Kind: OutcomeRetryable, Reason: reason, Err: err}
}

func fatal(err error) Outcome { return Outcome{Kind: OutcomeFatal, Err: err} }
