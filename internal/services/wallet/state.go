package wallet

import "fmt"

type State string

const (
	StateReceived        State = "received"
	StateValidated       State = "validated"
	StateNormalized      State = "normalized"
	StateDispatched      State = "dispatched"
	StateBetApplied      State = "bet_applied"
	StateWinApplied      State = "win_applied"
	StateRefundApplied   State = "refund_applied"
	StateBalanceReturned State = "balance_returned"
	StateResponded       State = "responded"
	StateRejected        State = "rejected"
)

// transitions lists every legal next state. Normalized may go straight to
// Responded when the transaction is a replay.
var transitions = map[State][]State{
	StateReceived:        {StateValidated, StateRejected},
	StateValidated:       {StateNormalized, StateRejected},
	StateNormalized:      {StateDispatched, StateResponded, StateRejected},
	StateDispatched:      {StateBetApplied, StateWinApplied, StateRefundApplied, StateBalanceReturned, StateRejected},
	StateBetApplied:      {StateResponded},
	StateWinApplied:      {StateResponded},
	StateRefundApplied:   {StateResponded},
	StateBalanceReturned: {StateResponded},
	StateRejected:        {StateResponded},
}

// machine records the visited states and refuses illegal moves.
type machine struct {
	trace []State
}

func newMachine() *machine {
	return &machine{trace: []State{StateReceived}}
}

func (m *machine) current() State {
	return m.trace[len(m.trace)-1]
}

func (m *machine) advance(next State) error {
	cur := m.current()

	for _, s := range transitions[cur] {
		if s == next {
			m.trace = append(m.trace, next)

			return nil
		}
	}

	return fmt.Errorf("illegal transition %s -> %s", cur, next)
}
