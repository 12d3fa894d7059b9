package harness

// TraceEvent records the outcome of one scenario step.
type TraceEvent struct {
	Step    int    `json:"step"`
	Action  string `json:"action"`
	Replica string `json:"replica,omitempty"`
	ID      string `json:"id,omitempty"`

	// Balance is the replica's balance after the step.
	Balance string `json:"balance,omitempty"`

	// Pushed and Pulled count records moved by a sync step.
	Pushed int64 `json:"pushed,omitempty"`
	Pulled int64 `json:"pulled,omitempty"`

	// Error is the step's error, when it was expected to fail.
	Error string `json:"error,omitempty"`
}

// TransactionState is one listed transaction in the final state.
type TransactionState struct {
	ID       string `json:"id"`
	Amount   string `json:"amount"`
	Type     string `json:"type"`
	Merchant string `json:"merchant"`
	Category string `json:"category"`
	Date     string `json:"date"`
}

// ReplicaState is a replica's final state.
type ReplicaState struct {
	Balance      string             `json:"balance"`
	Pending      int64              `json:"pending"`
	Transactions []TransactionState `json:"transactions"`
}

// RemoteState is one record stored on the remote.
type RemoteState struct {
	ID      string `json:"id"`
	Amount  string `json:"amount"`
	Type    string `json:"type"`
	Deleted bool   `json:"deleted"`
}

// State is the final state of every replica and the remote.
type State struct {
	Replicas map[string]ReplicaState `json:"replicas"`
	Remote   []RemoteState           `json:"remote"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every step behaved as expected and
	// every assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final state assertions are evaluated against.
	State State `json:"state"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State: State{
			Replicas: make(map[string]ReplicaState),
			Remote:   []RemoteState{},
		},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
