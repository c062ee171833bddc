package memory

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("State", func() {
	Describe("Valid", func() {
		It("accepts the four lifecycle states", func() {
			for _, s := range []State{StateProposed, StateCommitted, StateRejected, StateSuperseded} {
				Expect(s.Valid()).To(BeTrue(), string(s))
			}
		})

		It("refuses unknown states", func() {
			Expect(State("archived").Valid()).To(BeFalse())
			Expect(State("").Valid()).To(BeFalse())
		})
	})

	Describe("CanTransition", func() {
		It("allows proposed to committed and rejected", func() {
			Expect(StateProposed.CanTransition(StateCommitted)).To(BeTrue())
			Expect(StateProposed.CanTransition(StateRejected)).To(BeTrue())
		})

		It("allows committed to superseded only", func() {
			Expect(StateCommitted.CanTransition(StateSuperseded)).To(BeTrue())
			Expect(StateCommitted.CanTransition(StateProposed)).To(BeFalse())
			Expect(StateCommitted.CanTransition(StateRejected)).To(BeFalse())
		})

		It("treats rejected as terminal", func() {
			for _, next := range []State{StateProposed, StateCommitted, StateRejected, StateSuperseded} {
				Expect(StateRejected.CanTransition(next)).To(BeFalse(), string(next))
			}
		})

		It("treats superseded as terminal", func() {
			for _, next := range []State{StateProposed, StateCommitted, StateRejected, StateSuperseded} {
				Expect(StateSuperseded.CanTransition(next)).To(BeFalse(), string(next))
			}
		})

		It("never allows a state to transition to itself", func() {
			for _, s := range []State{StateProposed, StateCommitted, StateRejected, StateSuperseded} {
				Expect(s.CanTransition(s)).To(BeFalse(), string(s))
			}
		})
	})
})

var _ = Describe("Policy", func() {
	Describe("Valid", func() {
		It("accepts the three ingestion policies", func() {
			for _, p := range []Policy{PolicyOpaque, PolicyControlled, PolicyHybrid} {
				Expect(p.Valid()).To(BeTrue(), string(p))
			}
		})

		It("refuses unknown policies", func() {
			Expect(Policy("strict").Valid()).To(BeFalse())
		})
	})

	Describe("IngestState", func() {
		It("stages controlled facts as proposed", func() {
			Expect(PolicyControlled.IngestState()).To(Equal(StateProposed))
		})

		It("commits opaque and hybrid facts immediately", func() {
			Expect(PolicyOpaque.IngestState()).To(Equal(StateCommitted))
			Expect(PolicyHybrid.IngestState()).To(Equal(StateCommitted))
		})
	})
})

var _ = Describe("FactRecord", func() {
	Describe("Clone", func() {
		It("returns nil for a nil record", func() {
			var record *FactRecord
			Expect(record.Clone()).To(BeNil())
		})

		It("deep-copies pointer fields", func() {
			updated := time.Now().UTC()
			by := "replacement-id"
			record := &FactRecord{
				ID:           "fact-1",
				Content:      "prefers window seats",
				State:        StateSuperseded,
				UpdatedAt:    &updated,
				SupersededBy: &by,
			}

			clone := record.Clone()
			*clone.SupersededBy = "other"
			*clone.UpdatedAt = updated.Add(time.Hour)

			Expect(*record.SupersededBy).To(Equal("replacement-id"))
			Expect(*record.UpdatedAt).To(Equal(updated))
		})
	})
})
