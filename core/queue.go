package core

// Queue is the FIFO of instructions consumed by the Controller. It is shared
// between the polled context (producers) and the event context (the state
// machine); every access runs inside a critical section.
type Queue struct {
	head   *Instruction // in flight, or next to run
	tail   *Instruction
	active *Instruction // latched by the controller until the transaction ends
	count  int
	limit  int // 0 means unbounded
}

// NewQueue creates an empty queue. A positive limit caps the number of queued
// instructions; Enqueue reports ErrAllocation beyond it.
func NewQueue(limit int) *Queue {
	if limit < 0 {
		limit = 0
	}
	return &Queue{limit: limit}
}

// Enqueue appends a transaction. Writes copy buf; reads keep buf and fill it
// in place, so the caller must keep it until Contains reports false.
func (q *Queue) Enqueue(addr I2CAddress, dir Direction, buf []byte) (*Instruction, error) {
	return q.EnqueueFunc(addr, dir, buf, nil)
}

// EnqueueFunc is Enqueue with a completion callback.
func (q *Queue) EnqueueFunc(addr I2CAddress, dir Direction, buf []byte, done CompletionFunc) (*Instruction, error) {
	// Build (and copy) outside the critical section
	inst, err := newInstruction(addr, dir, buf, done)
	if err != nil {
		return nil, err
	}

	state := disableInterrupts()
	defer restoreInterrupts(state)

	if q.limit > 0 && q.count >= q.limit {
		return nil, ErrAllocation
	}
	q.pushLocked(inst)

	return inst, nil
}

// pushLocked links inst at the tail. Caller holds the critical section.
func (q *Queue) pushLocked(inst *Instruction) {
	inst.next = nil
	if q.tail != nil {
		q.tail.next = inst
	} else {
		q.head = inst
	}
	q.tail = inst
	q.count++
}

// popLocked unlinks the head without releasing it. Caller holds the critical section.
func (q *Queue) popLocked() *Instruction {
	inst := q.head
	if inst == nil {
		return nil
	}

	q.head = inst.next
	if q.head == nil {
		q.tail = nil
	}
	q.count--
	inst.next = nil

	return inst
}

// Advance discards the head instruction, releasing its owned buffer, and
// returns the new head (nil when the queue is empty). It is the
// transaction-termination step; the controller goes through finish, which
// additionally checks that the head is still the instruction it drove.
func (q *Queue) Advance() *Instruction {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if inst := q.popLocked(); inst != nil {
		inst.release()
	}
	return q.head
}

// Head returns the instruction in flight or next to run.
func (q *Queue) Head() *Instruction {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	return q.head
}

// claimHead latches the head as the instruction in flight, so later steps
// keep driving it even if the queue is rotated underneath.
func (q *Queue) claimHead() *Instruction {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	q.active = q.head
	return q.head
}

// Contains reports whether inst is still queued.
func (q *Queue) Contains(inst *Instruction) bool {
	if inst == nil {
		return false
	}

	state := disableInterrupts()
	defer restoreInterrupts(state)

	for it := q.head; it != nil; it = it.next {
		if it == inst {
			return true
		}
	}
	return false
}

// Remove unlinks a queued instruction other than the head. Removing the head
// or the instruction in flight is refused.
func (q *Queue) Remove(inst *Instruction) bool {
	return q.Withdraw(inst) == nil
}

// Withdraw is Remove with the reason for a refusal: ErrInvalidRemoval for
// the head or the instruction in flight, ErrNotQueued for an instruction that
// is not in the queue.
func (q *Queue) Withdraw(inst *Instruction) error {
	if inst == nil {
		return ErrNotQueued
	}

	state := disableInterrupts()
	defer restoreInterrupts(state)

	if inst == q.head || inst == q.active {
		return ErrInvalidRemoval
	}
	if !q.unlinkLocked(inst) {
		return ErrNotQueued
	}
	return nil
}

// WithdrawAll removes the still-queued members of insts in one critical
// section and returns how many it removed. If any member is the head or in
// flight nothing is removed and ErrInvalidRemoval is returned.
func (q *Queue) WithdrawAll(insts []*Instruction) (int, error) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for _, inst := range insts {
		if inst != nil && (inst == q.head || inst == q.active) {
			return 0, ErrInvalidRemoval
		}
	}

	removed := 0
	for _, inst := range insts {
		if inst != nil && q.unlinkLocked(inst) {
			removed++
		}
	}
	return removed, nil
}

// unlinkLocked removes a non-head instruction and releases it. Caller holds
// the critical section.
func (q *Queue) unlinkLocked(inst *Instruction) bool {
	for prev := q.head; prev != nil; prev = prev.next {
		if prev.next != inst {
			continue
		}

		prev.next = inst.next
		if q.tail == inst {
			q.tail = prev
		}
		q.count--
		inst.next = nil
		inst.release()
		return true
	}
	return false
}

// finish removes inst, the instruction the state machine latched. It is
// normally still the head; if the queue was rotated underneath the
// transaction it is unlinked from wherever it now sits, and the new head is
// left alone.
func (q *Queue) finish(inst *Instruction) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if q.active == inst {
		q.active = nil
	}
	if q.head == inst {
		q.popLocked().release()
		return
	}

	q.unlinkLocked(inst)
}

// RequeueHeadToBack moves the head instruction to the tail in one step,
// keeping its buffer. Size is unchanged. While a transaction is in flight use
// Controller.RequeueHead, which refuses the rotation.
func (q *Queue) RequeueHeadToBack() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if q.head == nil || q.head == q.tail {
		return
	}
	q.pushLocked(q.popLocked())
}

// Size returns the number of queued instructions.
func (q *Queue) Size() int {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	return q.count
}

// Each calls fn for a snapshot of the queue, head first. fn runs outside the
// critical section.
func (q *Queue) Each(fn func(inst *Instruction)) {
	state := disableInterrupts()
	snapshot := make([]*Instruction, 0, q.count)
	for it := q.head; it != nil; it = it.next {
		snapshot = append(snapshot, it)
	}
	restoreInterrupts(state)

	for _, inst := range snapshot {
		fn(inst)
	}
}
