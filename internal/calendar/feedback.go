package calendar

// Feedback collects the messages produced while handling a single request so
// they can be returned to the visitor with the rendered view or carried to
// the next one.
type Feedback struct {
	Successes []string
	Failures  []string
}

func (f *Feedback) Succeed(msg string) {
	if msg != "" {
		f.Successes = append(f.Successes, msg)
	}
}

func (f *Feedback) Fail(msg string) {
	if msg != "" {
		f.Failures = append(f.Failures, msg)
	}
}

func (f *Feedback) FailAll(msgs []string) {
	for _, m := range msgs {
		f.Fail(m)
	}
}

func (f *Feedback) Empty() bool {
	return len(f.Successes) == 0 && len(f.Failures) == 0
}
