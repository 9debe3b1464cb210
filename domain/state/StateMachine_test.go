package state_test

import (
	"shopfloor/domain/state"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("StateMachine", func() {
	var (
		stateMachine *state.StateMachine
	)

	BeforeEach(func() {
		//         PENDING      DOING         DONE
		// PENDING   -            V (begin)   V (close)
		// DOING     V (cancel)   -           V (finish)
		// DONE      X            X           -
		stateMachine = state.NewStateMachine(
			[]state.State{{Name: "PENDING"}, {Name: "DOING"}, {Name: "DONE"}},
			[]state.Transition{
				{Name: "begin", From: state.State{Name: "PENDING"}, To: state.State{Name: "DOING"}},
				{Name: "close", From: state.State{Name: "PENDING"}, To: state.State{Name: "DONE"}},
				{Name: "cancel", From: state.State{Name: "DOING"}, To: state.State{Name: "PENDING"}},
				{Name: "finish", From: state.State{Name: "DOING"}, To: state.State{Name: "DONE"}},
			})
	})

	Describe("AvailableTransitions", func() {
		It("should filter transitions by both ends", func() {
			Ω(stateMachine.AvailableTransitions("PENDING", "")).Should(Equal([]state.Transition{
				{Name: "begin", From: state.State{Name: "PENDING"}, To: state.State{Name: "DOING"}},
				{Name: "close", From: state.State{Name: "PENDING"}, To: state.State{Name: "DONE"}},
			}))
			Ω(stateMachine.AvailableTransitions("DOING", "DONE")).Should(Equal([]state.Transition{
				{Name: "finish", From: state.State{Name: "DOING"}, To: state.State{Name: "DONE"}},
			}))
			Ω(stateMachine.AvailableTransitions("UNKNOWN", "")).Should(BeEmpty())
		})
	})

	Describe("Fire", func() {
		It("should return the target of a named transition", func() {
			to, ok := stateMachine.Fire("DOING", "finish")
			Expect(ok).To(BeTrue())
			Expect(to.Name).To(Equal("DONE"))

			_, ok = stateMachine.Fire("DONE", "begin")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("CanMove and IsTerminal", func() {
		It("should accept staying and single steps only", func() {
			Expect(stateMachine.CanMove("DONE", "DONE")).To(BeTrue())
			Expect(stateMachine.CanMove("PENDING", "DONE")).To(BeTrue())
			Expect(stateMachine.CanMove("DONE", "PENDING")).To(BeFalse())
			Expect(stateMachine.IsTerminal("DONE")).To(BeTrue())
			Expect(stateMachine.IsTerminal("DOING")).To(BeFalse())
		})
	})
})

var _ = Describe("WorkOrderLattice", func() {
	It("should only move forward, with paused reversible", func() {
		m := state.WorkOrderLattice
		Expect(m.CanMove("pending", "in_progress")).To(BeTrue())
		Expect(m.CanMove("pending", "completed")).To(BeTrue())
		Expect(m.CanMove("pending", "cancelled")).To(BeTrue())
		Expect(m.CanMove("in_progress", "paused")).To(BeTrue())
		Expect(m.CanMove("paused", "in_progress")).To(BeTrue())
		Expect(m.CanMove("paused", "completed")).To(BeTrue())

		Expect(m.CanMove("in_progress", "pending")).To(BeFalse())
		Expect(m.CanMove("in_progress", "cancelled")).To(BeFalse())
		Expect(m.IsTerminal("completed")).To(BeTrue())
		Expect(m.IsTerminal("cancelled")).To(BeTrue())
	})
})

var _ = Describe("ApprovalMachine", func() {
	It("should leave pending exactly once", func() {
		m := state.ApprovalMachine
		for _, name := range []string{"approve", "reject", "cancel"} {
			_, ok := m.Fire("pending", name)
			Expect(ok).To(BeTrue(), name)
		}
		for _, from := range []string{"approved", "rejected", "cancelled"} {
			Expect(m.IsTerminal(from)).To(BeTrue(), from)
		}
	})
})

var _ = Describe("OnsiteMachine", func() {
	It("should follow start pause resume complete", func() {
		m := state.OnsiteMachine
		s := "idle"
		for _, ev := range []string{"start", "pause", "resume", "pause", "complete", "start", "complete"} {
			to, ok := m.Fire(s, ev)
			Expect(ok).To(BeTrue(), s+" "+ev)
			s = to.Name
		}
		Expect(s).To(Equal("done"))

		_, ok := m.Fire("idle", "complete")
		Expect(ok).To(BeFalse())
		_, ok = m.Fire("running", "resume")
		Expect(ok).To(BeFalse())
		_, ok = m.Fire("running", "start")
		Expect(ok).To(BeFalse())
	})
})
