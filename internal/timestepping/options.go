package timestepping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/san-kum/nssim/internal/nsds"
	"github.com/san-kum/nssim/internal/solver"
)

// NewtonMode selects the convergence test of the Newton loop.
type NewtonMode int

const (
	// ModeLinear runs exactly one iteration; the step is solved exactly by
	// construction.
	ModeLinear NewtonMode = iota
	// ModeLinearImplicit also runs one iteration.
	ModeLinearImplicit
	// ModeNonlinear iterates until every tracked residual is below the
	// tolerance or the iteration budget is spent.
	ModeNonlinear
)

var modeNames = [...]string{"linear", "linear_implicit", "nonlinear"}

func (m NewtonMode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("NewtonMode(%d)", int(m))
	}
	return modeNames[m]
}

func ParseNewtonMode(s string) (NewtonMode, error) {
	for i, name := range modeNames {
		if strings.EqualFold(s, name) {
			return NewtonMode(i), nil
		}
	}
	return 0, nsds.Configf("newton_mode", "unknown mode %q", s)
}

// Options is the configuration surface of the orchestrator.
type Options struct {
	NewtonTolerance    float64    `validate:"gt=0"`
	NewtonMaxIteration int        `validate:"gte=1"`
	NewtonMode         NewtonMode `validate:"gte=0,lte=2"`

	// ResetLambdas zeroes every multiplier at the start of each step.
	ResetLambdas bool
	// SkipLastUpdateOutput and SkipLastUpdateInput drop the output refresh
	// and the post-index-set input refresh of the iteration that terminates
	// the loop. The input used by the state correction is always rebuilt.
	SkipLastUpdateOutput bool
	SkipLastUpdateInput  bool

	WarnOnNonConvergence bool
	WarnOnSolverFailure  bool

	ComputeResiduY bool
	ComputeResiduR bool

	// ActivationTolerance is used both by the index-set rules and as the
	// feasibility tolerance handed to the solver.
	ActivationTolerance float64 `validate:"gt=0"`

	ProjectionMaxIteration int `validate:"gte=1"`
	// Workers bounds the per-system fan-out; 0 means GOMAXPROCS.
	Workers int `validate:"gte=0"`
}

func DefaultOptions() Options {
	return Options{
		NewtonTolerance:        1e-6,
		NewtonMaxIteration:     50,
		NewtonMode:             ModeLinear,
		ResetLambdas:           true,
		WarnOnNonConvergence:   true,
		WarnOnSolverFailure:    false,
		ComputeResiduY:         true,
		ComputeResiduR:         true,
		ActivationTolerance:    solver.DefaultTolerance,
		ProjectionMaxIteration: 20,
	}
}

var validate = validator.New()

// Validate reports the first out-of-range option as a ConfigError.
func (o Options) Validate() error {
	err := validate.Struct(o)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return nsds.Configf("options", "%s=%v violates %s=%s", fe.Field(), fe.Value(), fe.Tag(), fe.Param())
	}
	return nsds.Configf("options", "%v", err)
}
