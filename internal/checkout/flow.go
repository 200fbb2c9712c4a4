package checkout

import "context"

// Processor is the Processing stage, satisfied by *Orchestrator.
type Processor interface {
	Checkout(ctx context.Context, req Request) (Result, error)
}

// Flow drives a Session through Processing.
type Flow struct {
	Session   *Session
	Processor Processor
}

// Confirm moves Payment -> Processing -> Completed. A fatal failure sends the
// session back to Payment with LastError set so the shopper can retry
// without re-entering shipping details.
func (f *Flow) Confirm(ctx context.Context) (Result, error) {
	s := f.Session
	if err := s.expect(StagePayment); err != nil {
		return Result{}, err
	}
	if err := ValidatePayment(s.Payment); err != nil {
		s.LastError, _ = AsError(err)
		return Result{}, err
	}

	s.Stage = StageProcessing
	res, err := f.Processor.Checkout(ctx, s.Request())
	if err != nil {
		ce, ok := AsError(err)
		if !ok {
			ce = newError(KindPersistence, "processing", "checkout failed, please retry", err)
		}
		s.LastError = ce
		s.Stage = StagePayment
		return Result{}, ce
	}
	s.Stage = StageCompleted
	s.LastError = nil
	s.Result = &res
	return res, nil
}
