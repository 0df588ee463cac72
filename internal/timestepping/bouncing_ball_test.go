package timestepping

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/nssim/internal/integrators"
	"github.com/san-kum/nssim/internal/nsds"
)

var _ = Describe("Bouncing ball", func() {
	const h = 0.005

	var (
		g     *nsds.Graph
		ball  *nsds.LagrangianLinearDS
		floor nsds.InteractionID
		ts    *TimeStepping
	)

	build := func(q0, v0, e, finalT float64) {
		var err error
		g, ball, floor, err = buildBall(q0, v0, e)
		Expect(err).NotTo(HaveOccurred())
		ts, err = newSimulation(g, integrators.NewMoreauJean(0.5), h, finalT, DefaultOptions())
		Expect(err).NotTo(HaveOccurred())
	}

	Context("in free flight", func() {
		BeforeEach(func() { build(1, 0, 0.9, 0.3) })

		It("keeps the contact inactive and the multipliers at zero", func() {
			for ts.Clock().HasNextEvent() {
				Expect(ts.AdvanceToEvent()).To(Succeed())
				Expect(ts.IndexSet(1).Len()).To(BeZero())
				Expect(g.Interaction(floor).Lambda[1]).To(Equal(nsds.Vector{0}))
				ts.NextStep()
			}
			Expect(ball.Q[0]).To(BeNumerically("~", 1-0.5*gravity*0.3*0.3, 1e-9))
			Expect(ball.V[0]).To(BeNumerically("~", -gravity*0.3, 1e-9))
		})
	})

	Context("dropped from one metre", func() {
		var impact float64

		BeforeEach(func() {
			build(1, 0, 0.9, 2)
			impact = math.Sqrt(2 * gravity)
		})

		It("satisfies the impact law whenever an impulse is applied", func() {
			inter := g.Interaction(floor)
			touched := false
			for ts.Clock().HasNextEvent() {
				qk, vk := ball.QMemory(0)[0], ball.VMemory(0)[0]
				Expect(ts.AdvanceToEvent()).To(Succeed())

				lambda := inter.Lambda[1][0]
				Expect(lambda).To(BeNumerically(">=", 0))
				Expect(ball.Q[0]).To(BeNumerically(">=", -h*impact*1.1))
				if qk+0.5*h*vk > ts.ActivationTolerance() {
					Expect(lambda).To(BeZero())
				}
				if lambda > 0 {
					touched = true
					y := nsds.Vector{inter.Y[1][0] + 0.9*vk}
					Expect(inter.Law.Admissible(y, inter.Lambda[1], 1e-6)).To(BeTrue())
				}
				Expect(ts.IndexSets().CheckNested()).To(Succeed())
				ts.NextStep()
			}
			Expect(touched).To(BeTrue())
		})

		It("never rises above the drop height", func() {
			peak := 0.0
			ts.AddObserver(ObserverFunc(func(*TimeStepping, StepReport) {
				peak = math.Max(peak, ball.Q[0])
			}))
			Expect(ts.Run(context.Background())).To(Succeed())
			Expect(peak).To(BeNumerically("<=", 1+1e-9))
		})
	})

	Context("with a plastic impact", func() {
		BeforeEach(func() { build(0.2, 0, 0, 1) })

		It("comes to rest on the floor", func() {
			// multipliers are reset when the clock moves on, so read them
			// while the step is reported
			var impulse float64
			ts.AddObserver(ObserverFunc(func(*TimeStepping, StepReport) {
				impulse = g.Interaction(floor).Lambda[1][0]
			}))
			Expect(ts.Run(context.Background())).To(Succeed())
			Expect(ball.V[0]).To(BeNumerically("~", 0, 1e-8))
			Expect(ball.Q[0]).To(BeNumerically("~", 0, 0.01))
			Expect(ts.IndexSet(1).Contains(floor)).To(BeTrue())
			Expect(impulse).To(BeNumerically("~", gravity*h, 1e-8))
			Expect(g.Interaction(floor).Lambda[1][0]).To(BeZero())
		})
	})

	Context("in the nonlinear mode", func() {
		It("settles the contact status within three iterations", func() {
			var err error
			g, ball, floor, err = buildBall(0.05, -1, 0.5)
			Expect(err).NotTo(HaveOccurred())
			opts := DefaultOptions()
			opts.NewtonMode = ModeNonlinear
			ts, err = newSimulation(g, integrators.NewMoreauJean(0.5), h, 0.2, opts)
			Expect(err).NotTo(HaveOccurred())

			ts.AddObserver(ObserverFunc(func(ts *TimeStepping, r StepReport) {
				Expect(r.Status).To(Equal(Converged))
				Expect(r.NewtonIterations).To(BeNumerically("<=", 3))
			}))
			Expect(ts.Run(context.Background())).To(Succeed())
			Expect(ts.Stats().NonConvergedSteps).To(BeZero())
		})
	})
})
