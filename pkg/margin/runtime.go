package margin

import (
	"fmt"
	"time"
)

// Clock supplies chain time to instruction handlers.
type Clock interface {
	Now() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }

// ManualClock is a settable clock for tests and simulations.
type ManualClock struct {
	Unix int64
}

func (c *ManualClock) Now() int64 { return c.Unix }

// Advance moves the clock forward by d seconds.
func (c *ManualClock) Advance(d int64) { c.Unix += d }

// Instruction is one step of a transaction. Program and Name are visible to
// introspection; Exec performs the state transition.
type Instruction struct {
	Program string
	Name    string
	Exec    func(tc *TxContext) error
}

// Transaction is an ordered instruction sequence executed atomically.
type Transaction struct {
	Instructions []Instruction
}

// NewTransaction builds a transaction from instructions.
func NewTransaction(ixs ...Instruction) *Transaction {
	return &Transaction{Instructions: ixs}
}

// Append adds instructions to the end of the transaction.
func (tx *Transaction) Append(ixs ...Instruction) *Transaction {
	tx.Instructions = append(tx.Instructions, ixs...)
	return tx
}

// TxContext is handed to each instruction as it runs. It carries the journaled
// state, the ledger view over it, the clock, and read-only introspection over
// the enclosing transaction.
type TxContext struct {
	State  *State
	Ledger *Ledger
	Clock  Clock

	tx    *Transaction
	index int
}

// Now returns the current chain time.
func (tc *TxContext) Now() int64 { return tc.Clock.Now() }

// CurrentIndex returns the index of the executing instruction.
func (tc *TxContext) CurrentIndex() int { return tc.index }

// InstructionCount returns the number of instructions in the transaction.
func (tc *TxContext) InstructionCount() int { return len(tc.tx.Instructions) }

// InstructionAt exposes the program id and selector of the instruction at i.
func (tc *TxContext) InstructionAt(i int) (program string, selector [8]byte) {
	ix := tc.tx.Instructions[i]
	return ix.Program, Selector(ix.Name)
}

// Runtime executes transactions against a single state, mirroring a host chain
// that serializes conflicting transactions: one at a time, all-or-nothing.
type Runtime struct {
	state *State
	clock Clock
}

// NewRuntime creates a runtime over the state with the given clock.
func NewRuntime(state *State, clock Clock) *Runtime {
	return &Runtime{state: state, clock: clock}
}

// Execute runs every instruction of tx in order. The first error discards all
// journaled writes, including those of earlier instructions and of any external
// call sandwiched between them; success commits the journal as one batch.
func (rt *Runtime) Execute(tx *Transaction) error {
	if rt.state.Dirty() {
		rt.state.Discard()
	}
	for i := range tx.Instructions {
		tc := &TxContext{
			State:  rt.state,
			Ledger: NewLedger(rt.state),
			Clock:  rt.clock,
			tx:     tx,
			index:  i,
		}
		if err := tx.Instructions[i].Exec(tc); err != nil {
			rt.state.Discard()
			return fmt.Errorf("instruction %d (%s): %w", i, tx.Instructions[i].Name, err)
		}
	}
	return rt.state.Commit()
}

// Introspection checks used by the bracket protocol.

// validateSetupPlacement enforces the transaction shape required of a Setup
// instruction: no earlier instruction of this program other than whitelisted
// cleanup names, and a matching cleanup selector strictly after the current
// index. This is the sole defense against a Setup submitted without its paired
// Cleanup, or with foreign program instructions smuggled ahead of it.
func validateSetupPlacement(tc *TxContext, cleanupName string, allowedBefore ...string) error {
	allowed := make(map[[8]byte]bool, len(allowedBefore))
	for _, name := range allowedBefore {
		allowed[Selector(name)] = true
	}
	for i := 0; i < tc.CurrentIndex(); i++ {
		program, sel := tc.InstructionAt(i)
		if program != ProgramID {
			continue
		}
		if !allowed[sel] {
			return fmt.Errorf("%w: program instruction before setup", ErrUnpermittedIx)
		}
	}
	want := Selector(cleanupName)
	for i := tc.CurrentIndex() + 1; i < tc.InstructionCount(); i++ {
		program, sel := tc.InstructionAt(i)
		if program == ProgramID && sel == want {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrMissingCleanup, cleanupName)
}

// validateFirstInstruction requires the executing instruction to be index 0.
func validateFirstInstruction(tc *TxContext) error {
	if tc.CurrentIndex() != 0 {
		return fmt.Errorf("%w: must be first instruction", ErrUnpermittedIx)
	}
	return nil
}

// validateLastProgramInstruction requires that no instruction of this program
// follows the executing one.
func validateLastProgramInstruction(tc *TxContext) error {
	for i := tc.CurrentIndex() + 1; i < tc.InstructionCount(); i++ {
		program, _ := tc.InstructionAt(i)
		if program == ProgramID {
			return fmt.Errorf("%w: program instruction after cleanup", ErrUnpermittedIx)
		}
	}
	return nil
}
