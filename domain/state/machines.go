package state

var (
	Pending    = State{Name: "pending", Category: InBacklog}
	InProgress = State{Name: "in_progress", Category: InProcess}
	Paused     = State{Name: "paused", Category: InProcess}
	Completed  = State{Name: "completed", Category: Done}
	Cancelled  = State{Name: "cancelled", Category: Done}

	// work orders and their processes move forward only, paused is reversible with in_progress
	WorkOrderLattice = NewStateMachine(
		[]State{Pending, InProgress, Paused, Completed, Cancelled},
		[]Transition{
			{Name: "start", From: Pending, To: InProgress},
			{Name: "finish", From: Pending, To: Completed},
			{Name: "cancel", From: Pending, To: Cancelled},
			{Name: "pause", From: InProgress, To: Paused},
			{Name: "finish", From: InProgress, To: Completed},
			{Name: "resume", From: Paused, To: InProgress},
			{Name: "finish", From: Paused, To: Completed},
		})
)

var (
	Approved = State{Name: "approved", Category: Done}
	Rejected = State{Name: "rejected", Category: Done}

	ApprovalMachine = NewStateMachine(
		[]State{Pending, Approved, Rejected, Cancelled},
		[]Transition{
			{Name: "approve", From: Pending, To: Approved},
			{Name: "reject", From: Pending, To: Rejected},
			{Name: "cancel", From: Pending, To: Cancelled},
		})
)

var (
	OnsiteIdle    = State{Name: "idle", Category: InBacklog}
	OnsiteRunning = State{Name: "running", Category: InProcess}
	OnsitePaused  = State{Name: "paused", Category: InProcess}
	OnsiteDone    = State{Name: "done", Category: Done}

	OnsiteMachine = NewStateMachine(
		[]State{OnsiteIdle, OnsiteRunning, OnsitePaused, OnsiteDone},
		[]Transition{
			{Name: "start", From: OnsiteIdle, To: OnsiteRunning},
			{Name: "pause", From: OnsiteRunning, To: OnsitePaused},
			{Name: "resume", From: OnsitePaused, To: OnsiteRunning},
			{Name: "complete", From: OnsiteRunning, To: OnsiteDone},
			{Name: "complete", From: OnsitePaused, To: OnsiteDone},
			// a completed instance is closed, the next start opens a new instance
			{Name: "start", From: OnsiteDone, To: OnsiteRunning},
		})
)
