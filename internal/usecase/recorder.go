package usecase

// Recorder receives tracking and enforcement counters.
// Implementation: infra.Metrics (Prometheus).
type Recorder interface {
	Accrued(seconds float64)
	Redirected()
	EffectorFailed(effector string)
}

type nopRecorder struct{}

func (nopRecorder) Accrued(float64)       {}
func (nopRecorder) Redirected()           {}
func (nopRecorder) EffectorFailed(string) {}
