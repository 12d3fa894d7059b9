package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/frugalflow/internal/ledger"
	"github.com/roach88/frugalflow/internal/record"
	"github.com/roach88/frugalflow/internal/remote"
	"github.com/roach88/frugalflow/internal/replication"
	"github.com/roach88/frugalflow/internal/store"
	"github.com/roach88/frugalflow/internal/testutil"
)

// stepTimeout bounds every step, so a wedged replica fails the scenario
// instead of hanging it.
const stepTimeout = 10 * time.Second

// replica is one simulated device.
type replica struct {
	name   string
	store  *store.Store
	ledger *ledger.Service
	engine *replication.Engine
}

// Harness is the scenario execution engine.
// Replicas share one remote and one clock; replication runs only in sync
// steps.
type Harness struct {
	clock    *testutil.FakeClock
	remote   *remote.Memory
	replicas map[string]*replica
	order    []string
}

// Run executes a scenario and returns the result.
//
// Each run gets fresh stores in a temporary directory that is removed
// afterwards. An error is returned only when the harness itself cannot
// run; scenario failures are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "frugalflow-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	start := scenario.Start
	if start.IsZero() {
		start = DefaultStart
	}

	h := &Harness{
		clock:    testutil.NewFakeClock(start),
		remote:   remote.NewMemory(),
		replicas: make(map[string]*replica),
	}
	defer h.close()

	ctx := context.Background()
	for _, name := range scenario.Replicas {
		if err := h.addReplica(ctx, dir, name); err != nil {
			return nil, err
		}
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}
		h.clock.Advance(time.Second)
	}

	if err := h.snapshot(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to capture final state: %w", err)
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) addReplica(ctx context.Context, dir, name string) error {
	st, err := store.Open(filepath.Join(dir, name+".db"), store.WithClock(h.clock))
	if err != nil {
		return fmt.Errorf("replica %s: %w", name, err)
	}

	svc, err := ledger.New(st,
		ledger.WithClock(h.clock),
		ledger.WithIDGenerator(testutil.NewSequentialGenerator(name)),
	)
	if err != nil {
		st.Close()
		return fmt.Errorf("replica %s: %w", name, err)
	}
	if err := svc.Start(ctx); err != nil {
		st.Close()
		return fmt.Errorf("replica %s: %w", name, err)
	}

	h.replicas[name] = &replica{
		name:   name,
		store:  st,
		ledger: svc,
		engine: replication.New(st, h.remote, replication.Settings{}, replication.WithClock(h.clock)),
	}
	h.order = append(h.order, name)
	return nil
}

func (h *Harness) close() {
	for _, name := range h.order {
		r := h.replicas[name]
		r.ledger.Stop()
		r.store.Close()
	}
}

// execute runs one step and records it in result. A step error that the
// scenario expected is traced; an unexpected one fails the result. The
// returned error is reserved for harness faults.
func (h *Harness) execute(ctx context.Context, index int, step Step, result *Result) error {
	ctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	ev := TraceEvent{Step: index, Action: step.Action, Replica: step.Replica, ID: step.ID}

	var stepErr error
	switch step.Action {
	case ActionAdd:
		stepErr = h.add(ctx, step, &ev)
	case ActionSync:
		stepErr = h.sync(ctx, step, &ev)
	case ActionOffline:
		h.remote.SetOffline(true)
	case ActionOnline:
		h.remote.SetOffline(false)
	case ActionRemotePut:
		stepErr = h.remotePut(ctx, step)
	case ActionRemoteDelete:
		stepErr = h.remoteDelete(ctx, step)
	case ActionAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}

	switch {
	case stepErr == nil && step.ExpectError != "":
		result.AddError(fmt.Sprintf("step %d (%s): expected error containing %q, got success",
			index, step.Action, step.ExpectError))
	case stepErr != nil && step.ExpectError == "":
		result.AddError(fmt.Sprintf("step %d (%s): unexpected error: %v", index, step.Action, stepErr))
		ev.Error = stepErr.Error()
	case stepErr != nil && !strings.Contains(stepErr.Error(), step.ExpectError):
		result.AddError(fmt.Sprintf("step %d (%s): expected error containing %q, got %v",
			index, step.Action, step.ExpectError, stepErr))
		ev.Error = stepErr.Error()
	case stepErr != nil:
		ev.Error = stepErr.Error()
	}

	if r, ok := h.replicas[step.Replica]; ok {
		bal, err := h.balance(ctx, r)
		if err != nil {
			return err
		}
		ev.Balance = bal.String()
	}

	result.AddTrace(ev)
	return nil
}

func (h *Harness) add(ctx context.Context, step Step, ev *TraceEvent) error {
	r := h.replicas[step.Replica]

	in := ledger.Input{
		Amount:   step.Amount,
		Merchant: step.Merchant,
		Category: step.Category,
		Type:     record.Type(step.Type),
	}
	if step.Date != "" {
		date, err := time.Parse(dateLayout, step.Date)
		if err != nil {
			return err
		}
		in.Date = date
	}

	rec, err := r.ledger.AddTransaction(ctx, in)
	if err != nil {
		return err
	}
	ev.ID = rec.ID
	return nil
}

func (h *Harness) sync(ctx context.Context, step Step, ev *TraceEvent) error {
	r := h.replicas[step.Replica]

	before := r.engine.CurrentStatus()
	err := r.engine.SyncOnce(ctx)
	after := r.engine.CurrentStatus()

	ev.Pushed = after.Pushed - before.Pushed
	ev.Pulled = after.Pulled - before.Pulled
	return err
}

// remoteRecord builds a remote version of step stamped with the clock.
func (h *Harness) remoteRecord(step Step) (record.Record, error) {
	amount, err := ledger.ParseAmount(step.Amount)
	if err != nil {
		return record.Record{}, err
	}
	now := h.clock.Now()

	rec := record.Record{
		ID:        step.ID,
		Amount:    amount,
		Merchant:  step.Merchant,
		Category:  step.Category,
		Type:      record.Type(step.Type),
		Date:      now,
		UpdatedAt: now,
	}
	if rec.Merchant == "" {
		rec.Merchant = record.DefaultMerchant
	}
	if rec.Category == "" {
		rec.Category = record.DefaultCategory
	}
	if rec.Type == "" {
		rec.Type = record.DefaultType
	}
	if step.Date != "" {
		if rec.Date, err = time.Parse(dateLayout, step.Date); err != nil {
			return record.Record{}, err
		}
	}
	return rec, nil
}

func (h *Harness) remotePut(ctx context.Context, step Step) error {
	rec, err := h.remoteRecord(step)
	if err != nil {
		return err
	}
	return h.remote.Upsert(ctx, []record.Record{rec})
}

func (h *Harness) remoteDelete(ctx context.Context, step Step) error {
	rec, ok := h.remote.Get(step.ID)
	if !ok {
		return fmt.Errorf("remote record %q not found", step.ID)
	}
	rec.Deleted = true
	rec.UpdatedAt = h.clock.Now()
	return h.remote.Upsert(ctx, []record.Record{rec})
}

// balance returns the replica's published balance once it reflects every
// commit.
func (h *Harness) balance(ctx context.Context, r *replica) (decimal.Decimal, error) {
	if err := r.ledger.Settle(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("replica %s: %w", r.name, err)
	}
	bal, ok := r.ledger.CurrentBalance()
	if !ok {
		return decimal.Zero, errors.New("replica " + r.name + ": no balance published")
	}
	return bal, nil
}

// snapshot records the final state of every replica and the remote.
func (h *Harness) snapshot(ctx context.Context, result *Result) error {
	for _, name := range h.order {
		r := h.replicas[name]

		bal, err := h.balance(ctx, r)
		if err != nil {
			return err
		}
		recs, err := r.ledger.ListTransactions(ctx)
		if err != nil {
			return err
		}
		stats, err := r.ledger.Stats(ctx)
		if err != nil {
			return err
		}

		state := ReplicaState{
			Balance:      bal.String(),
			Pending:      stats.Pending,
			Transactions: make([]TransactionState, len(recs)),
		}
		for i, rec := range recs {
			state.Transactions[i] = TransactionState{
				ID:       rec.ID,
				Amount:   rec.Amount.String(),
				Type:     string(rec.Type),
				Merchant: rec.Merchant,
				Category: rec.Category,
				Date:     rec.Date.Format(time.RFC3339),
			}
		}
		result.State.Replicas[name] = state
	}

	for _, rec := range h.remote.All() {
		result.State.Remote = append(result.State.Remote, RemoteState{
			ID:      rec.ID,
			Amount:  rec.Amount.String(),
			Type:    string(rec.Type),
			Deleted: rec.Deleted,
		})
	}
	return nil
}
