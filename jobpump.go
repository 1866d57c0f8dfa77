package jsbridge

import "fmt"

// ExecutePendingJobs runs promise jobs until the queue is empty. The engine
// never drains the queue on its own, so promise callbacks only fire once a
// host pumps it. It returns the number of jobs executed and stops at the
// first job that throws.
func (r *Runtime) ExecutePendingJobs() (int, error) {
	if r.closed {
		return 0, ErrRuntimeClosed
	}
	count := 0
	for {
		ret, c := r.ExecutePendingJob()
		if ret == 0 {
			return count, nil
		}
		if ret < 0 {
			if c == nil {
				return count, fmt.Errorf("running promise job: job threw in an unknown context")
			}
			return count, fmt.Errorf("running promise job: %w", c.ExceptionError())
		}
		count++
	}
}
