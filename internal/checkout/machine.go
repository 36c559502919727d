package checkout

import "errors"

// ErrNoLines is returned when the summary step has nothing to check out.
var ErrNoLines = errors.New("cart is empty")

// Validator checks one step.
type Validator func(step Step) error

// Machine walks the checkout steps. Continue is gated by the step's validator;
// Previous always succeeds and clears the step's error display.
type Machine struct {
	steps      []Step
	current    int
	validate   Validator
	showErrors map[Step]bool
	lastErr    error
}

// NewMachine starts a checkout for lines at the summary step.
func NewMachine(lines []Line, validate Validator) *Machine {
	return &Machine{
		steps:      Steps(lines),
		validate:   validate,
		showErrors: make(map[Step]bool),
	}
}

// Steps returns the sequence this checkout walks.
func (m *Machine) Steps() []Step {
	return append([]Step(nil), m.steps...)
}

// Current returns the step the customer is on.
func (m *Machine) Current() Step {
	if m.current >= len(m.steps) {
		return StepSubmitted
	}
	return m.steps[m.current]
}

// Continue validates the current step and advances on success. Leaving the
// payment step submits the checkout.
func (m *Machine) Continue() error {
	step := m.Current()
	if step == StepSubmitted {
		return nil
	}
	if m.validate != nil {
		if err := m.validate(step); err != nil {
			m.showErrors[step] = true
			m.lastErr = err
			return err
		}
	}
	m.showErrors[step] = false
	m.lastErr = nil
	m.current++
	return nil
}

// Previous moves back one step without validation. A submitted checkout stays submitted.
func (m *Machine) Previous() {
	if m.current == 0 || m.current >= len(m.steps) {
		return
	}
	m.showErrors[m.steps[m.current]] = false
	m.current--
}

// ShowErrors reports whether step should display its validation errors.
func (m *Machine) ShowErrors(step Step) bool {
	return m.showErrors[step]
}

// Err returns the error of the last failed Continue.
func (m *Machine) Err() error {
	return m.lastErr
}

// Run continues until the checkout is submitted or a step fails.
func (m *Machine) Run() (Step, error) {
	for m.Current() != StepSubmitted {
		if err := m.Continue(); err != nil {
			return m.Current(), err
		}
	}
	return StepSubmitted, nil
}
