package mark

// Result summarises the engine state after a run. Symbol and diagnostic
// counts cover the engine's lifetime; Dequeued covers the last run.
// References counts every distinct reference ever queued.
type Result struct {
	Errors     int `json:"errors"`
	Warnings   int `json:"warnings"`
	Suppressed int `json:"suppressed"`
	Dequeued   int `json:"dequeued"`
	References int `json:"references"`
	Classes    int `json:"classes"`
	Methods    int `json:"methods"`
	Fields     int `json:"fields"`
}

// OK reports whether no Error diagnostic was delivered.
func (r *Result) OK() bool { return r.Errors == 0 }

// Err returns ErrErrorsFound when the run delivered errors.
func (r *Result) Err() error {
	if r.OK() {
		return nil
	}
	return ErrErrorsFound
}

func (e *Engine) result() *Result {
	return &Result{
		Errors:     e.counter.Errors(),
		Warnings:   e.counter.Warnings(),
		Suppressed: e.counter.Suppressed(),
		References: e.queued.Len(),
		Classes:    int(e.classes.Load()),
		Methods:    int(e.methods.Load()),
		Fields:     int(e.fields.Load()),
	}
}
