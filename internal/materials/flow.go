package materials

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/oneman/oneman-backend/pkg/types"
)

// FlowState is a step of the add/remove material submission.
type FlowState string

const (
	StateIdle          FlowState = "idle"
	StateAmountEntered FlowState = "amount_entered"
	StateSourceChosen  FlowState = "source_chosen"
	StateSubmitting    FlowState = "submitting"
	StateDone          FlowState = "done"
	StateFailed        FlowState = "failed"
)

// SubmitFunc performs the ledger write once amount and counterpart are known.
// A nil counterpart means no source (add) or no destination (remove).
type SubmitFunc func(ctx context.Context, amount decimal.Decimal, counterpart *types.GroupRef) error

// Flow sequences one material submission:
// Idle -> AmountEntered -> SourceChosen -> Submitting -> Done | Failed.
// A failed flow keeps its amount and counterpart so it can be retried.
type Flow struct {
	mu          sync.Mutex
	state       FlowState
	amount      decimal.Decimal
	counterpart *types.GroupRef
	err         error
}

// NewFlow starts a flow in Idle.
func NewFlow() *Flow {
	return &Flow{state: StateIdle}
}

func (f *Flow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Err is the error of the last failed submission.
func (f *Flow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *Flow) Amount() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.amount
}

func (f *Flow) Counterpart() *types.GroupRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counterpart
}

func (f *Flow) invalid(action string) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, action, f.state)
}

// EnterAmount parses raw and moves to AmountEntered. Editing the amount after
// a source was chosen clears the source.
func (f *Flow) EnterAmount(raw string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case StateIdle, StateAmountEntered, StateSourceChosen, StateFailed:
	default:
		return f.invalid("enter amount")
	}
	amount, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	f.amount = amount
	f.counterpart = nil
	f.err = nil
	f.state = StateAmountEntered
	return nil
}

// ChooseSource records the counterpart group; nil selects "none".
func (f *Flow) ChooseSource(ref *types.GroupRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case StateAmountEntered, StateSourceChosen:
	default:
		return f.invalid("choose source")
	}
	if ref != nil {
		if !ref.Valid() {
			return fmt.Errorf("%w: source group is incomplete", ErrInvalidMaterial)
		}
		copied := *ref
		ref = &copied
	}
	f.counterpart = ref
	f.state = StateSourceChosen
	return nil
}

// Submit runs fn once. A second Submit while the first is running fails with
// ErrInvalidTransition.
func (f *Flow) Submit(ctx context.Context, fn SubmitFunc) error {
	f.mu.Lock()
	if f.state != StateSourceChosen {
		err := f.invalid("submit")
		f.mu.Unlock()
		return err
	}
	f.state = StateSubmitting
	amount, counterpart := f.amount, f.counterpart
	f.mu.Unlock()

	err := fn(ctx, amount, counterpart)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.state = StateFailed
		f.err = err
		return err
	}
	f.state = StateDone
	f.err = nil
	return nil
}

// Retry returns a failed flow to SourceChosen with its inputs intact.
func (f *Flow) Retry() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateFailed {
		return f.invalid("retry")
	}
	f.state = StateSourceChosen
	return nil
}

// Reset returns to Idle from any state except Submitting.
func (f *Flow) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateSubmitting {
		return f.invalid("reset")
	}
	f.state = StateIdle
	f.amount = decimal.Zero
	f.counterpart = nil
	f.err = nil
	return nil
}
