package policy

// Outcome kinds, used as log and metric labels.
const (
	KindAccept = "accept"
	KindReject = "reject"
	KindMutate = "mutate"
)

// Outcome is the result of one decision: Accept, Reject or Mutate.
type Outcome interface {
	Kind() string
	isOutcome()
}

// Accept admits the workload unchanged.
type Accept struct{}

// Reject refuses the workload. Message names the offending value.
type Reject struct {
	Message string
}

// Mutate admits a modified copy of the workload.
type Mutate struct {
	Workload *Workload
}

func (Accept) Kind() string { return KindAccept }
func (Reject) Kind() string { return KindReject }
func (Mutate) Kind() string { return KindMutate }

func (Accept) isOutcome() {}
func (Reject) isOutcome() {}
func (Mutate) isOutcome() {}
