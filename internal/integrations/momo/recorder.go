package momo

import "sync"

// RecordedCredit is one settlement captured by the Recorder.
type RecordedCredit struct {
	Handle    string
	Amount    int64
	Reference string
}

// Recorder is an in-memory settler for development mode and tests.
// It records every credit and can be told to fail.
type Recorder struct {
	mu      sync.Mutex
	credits []RecordedCredit
	failErr error
}

// NewRecorder creates an always-succeeding recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes subsequent credits fail with err; nil restores success.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

// Credit records the settlement or returns the configured failure.
func (r *Recorder) Credit(handle string, amount int64, reference string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	r.credits = append(r.credits, RecordedCredit{Handle: handle, Amount: amount, Reference: reference})
	return nil
}

// Credits returns a copy of all recorded settlements.
func (r *Recorder) Credits() []RecordedCredit {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedCredit, len(r.credits))
	copy(out, r.credits)
	return out
}

// Total sums recorded amounts credited to handle.
func (r *Recorder) Total(handle string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, credit := range r.credits {
		if credit.Handle == handle {
			total += credit.Amount
		}
	}
	return total
}
