package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vmips-go/vmips/timing/pipeline"
)

var _ = Describe("BranchPredictor", func() {
	var bp *pipeline.BranchPredictor

	BeforeEach(func() {
		bp = pipeline.NewBranchPredictor()
	})

	Describe("two-bit saturating counters", func() {
		It("should walk the full transition table", func() {
			pc := uint32(0x1000)

			// The pattern table seeds weakly-taken, so a fresh PC
			// predicts taken.
			Expect(bp.Predict(pc)).To(BeTrue())

			// WT -f-> WNT -f-> SNT, saturating.
			bp.Update(pc, false, 0)
			Expect(bp.Predict(pc)).To(BeFalse())
			bp.Update(pc, false, 0)
			bp.Update(pc, false, 0)
			Expect(bp.Predict(pc)).To(BeFalse())

			// SNT -t-> WNT -t-> WT -t-> ST, saturating.
			bp.Update(pc, true, 0x2000)
			Expect(bp.Predict(pc)).To(BeFalse())
			bp.Update(pc, true, 0x2000)
			Expect(bp.Predict(pc)).To(BeTrue())
			bp.Update(pc, true, 0x2000)
			bp.Update(pc, true, 0x2000)
			Expect(bp.Predict(pc)).To(BeTrue())

			// ST -f-> WT still predicts taken.
			bp.Update(pc, false, 0)
			Expect(bp.Predict(pc)).To(BeTrue())
		})
	})

	Describe("global history fallback", func() {
		It("should predict an unseen PC from the pattern table", func() {
			trained := uint32(0x100)
			bp.Update(trained, false, 0)
			bp.Update(trained, false, 0)

			// History is now 0b0000 again after two not-taken shifts, and
			// PHT[0] has been driven to strongly-not-taken.
			Expect(bp.Predict(0x9999)).To(BeFalse())
		})
	})

	Describe("BTB", func() {
		It("should record the last observed target of a taken branch", func() {
			_, ok := bp.Target(0x100)
			Expect(ok).To(BeFalse())

			bp.Update(0x100, true, 0x4000)
			target, ok := bp.Target(0x100)
			Expect(ok).To(BeTrue())
			Expect(target).To(Equal(uint32(0x4000)))

			bp.Update(0x100, false, 0)
			target, _ = bp.Target(0x100)
			Expect(target).To(Equal(uint32(0x4000)))
		})
	})

	Describe("accuracy accounting", func() {
		It("should score outcomes against the pre-update state", func() {
			pc := uint32(0x100)

			// Fresh state is weakly-taken: a taken outcome is correct, a
			// not-taken outcome afterwards (now strongly-taken) is not.
			bp.Update(pc, true, 0x200)
			Expect(bp.Stats().Correct).To(Equal(uint64(1)))
			Expect(bp.Stats().Mispredictions).To(Equal(uint64(0)))

			bp.Update(pc, false, 0)
			Expect(bp.Stats().Correct).To(Equal(uint64(1)))
			Expect(bp.Stats().Mispredictions).To(Equal(uint64(1)))
		})
	})

	Describe("Reset", func() {
		It("should clear all state and counters", func() {
			bp.Update(0x100, true, 0x200)
			bp.Predict(0x100)
			bp.Reset()

			Expect(bp.Stats().Predictions).To(BeZero())
			_, ok := bp.Target(0x100)
			Expect(ok).To(BeFalse())
		})
	})
})
