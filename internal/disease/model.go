package disease

import (
	"fmt"
	"time"

	"nosos/internal/machine"
	"nosos/internal/population"
	"nosos/internal/randomness"
	"nosos/internal/sim"
	"nosos/internal/values"
)

// ModelConfig assembles a disease model.
type ModelConfig struct {
	// Cause names the disease and the population column the model drives.
	Cause string
	// States is the full state space, in declaration order.
	States []machine.State
	// Initial names the entry state. Default susceptible_to_<Cause>.
	Initial string
	// Resolver supplies measure data for states and transitions that carry
	// no explicit overrides.
	Resolver Resolver
	// CSMR, when set, is this cause's mortality rate. It is subtracted from
	// the background column of the mortality aggregate so the cause's deaths
	// are not counted twice.
	CSMR values.Source
	// AssignByPrevalence distributes the initial population across the
	// prevalent disease states instead of placing everyone in the initial
	// state.
	AssignByPrevalence bool
}

// DiseaseModel drives one disease's state machine through the engine: it
// initializes the state column, resolves transitions for living simulants
// each time step, and contributes the machine's entry counts to metrics.
type DiseaseModel struct {
	cause   string
	machine *machine.Machine
	initial string
	csmr    values.Source
	assign  bool

	stream *randomness.Stream
	view   *population.View
}

// NewDiseaseModel validates cfg, builds the machine and hands the resolver
// to every state that takes one.
func NewDiseaseModel(cfg ModelConfig) (*DiseaseModel, error) {
	if cfg.Cause == "" {
		return nil, fmt.Errorf("disease: model cause is required")
	}
	m, err := machine.NewMachine(cfg.Cause, cfg.States...)
	if err != nil {
		return nil, err
	}
	initial := cfg.Initial
	if initial == "" {
		initial = "susceptible_to_" + cfg.Cause
	}
	if _, ok := m.State(initial); !ok {
		return nil, fmt.Errorf("disease: model %s has no initial state %q", cfg.Cause, initial)
	}
	for _, st := range cfg.States {
		if ru, ok := st.(resolverUser); ok {
			ru.useResolver(cfg.Resolver)
		}
	}
	return &DiseaseModel{
		cause:   cfg.Cause,
		machine: m,
		initial: initial,
		csmr:    cfg.CSMR,
		assign:  cfg.AssignByPrevalence,
	}, nil
}

// Name implements sim.Component.
func (d *DiseaseModel) Name() string { return d.cause }

// Cause returns the disease name, which is also the population column.
func (d *DiseaseModel) Cause() string { return d.cause }

// Machine returns the underlying state machine.
func (d *DiseaseModel) Machine() *machine.Machine { return d.machine }

// Setup wires the machine, the model's randomness stream and its time step
// hooks into the engine.
func (d *DiseaseModel) Setup(b *sim.Builder) error {
	if err := d.machine.Setup(b); err != nil {
		return err
	}
	d.view = b.Population(d.cause, sim.ColumnAlive)
	stream, err := b.Randomness(d.cause + ".initial_states")
	if err != nil {
		return err
	}
	d.stream = stream
	if d.csmr != nil {
		b.Values().RegisterFrameModifier(MortalityRateTable, d.deleteCSMR)
	}
	b.RegisterSimulantInitializer(d.initializeSimulants)
	b.RegisterTimeStepListener(sim.PhaseTimeStep, 5, d.onTimeStep)
	b.Values().RegisterMetricsModifier(d.metrics)
	return nil
}

func (d *DiseaseModel) initializeSimulants(idx population.Index) error {
	if err := d.machine.LoadPopulationColumns(idx, d.initial); err != nil {
		return err
	}
	if !d.assign {
		return nil
	}
	return d.assignByPrevalence(idx)
}

// assignByPrevalence redistributes the initial population across the
// prevalent disease states, leaving the remainder in the initial state.
// Direct column writes: initial placement is not an entry event.
func (d *DiseaseModel) assignByPrevalence(idx population.Index) error {
	var ids []string
	var sources []values.Source
	for _, st := range d.machine.States() {
		if st.ID() == d.initial {
			continue
		}
		ds, ok := st.(interface{ Prevalence() values.Source })
		if !ok {
			continue
		}
		src := ds.Prevalence()
		if src == nil {
			continue
		}
		ids = append(ids, st.ID())
		sources = append(sources, src)
	}
	if len(ids) == 0 {
		return nil
	}

	weights := make([][]float64, len(idx))
	for i := range weights {
		weights[i] = make([]float64, len(ids)+1)
	}
	for j, src := range sources {
		vals, err := src(idx)
		if err != nil {
			return fmt.Errorf("disease: %s prevalence: %w", ids[j], err)
		}
		if len(vals) != len(idx) {
			return fmt.Errorf("disease: %s prevalence returned %d values for %d ids", ids[j], len(vals), len(idx))
		}
		for i := range idx {
			weights[i][j] = vals[i]
		}
	}
	for i, row := range weights {
		total := 0.0
		for _, w := range row[:len(ids)] {
			total += w
		}
		remainder := 1 - total
		if remainder < 0 {
			if remainder < -1e-9 {
				return fmt.Errorf("disease: %s prevalences sum to %v for simulant %d", d.cause, total, idx[i])
			}
			remainder = 0
		}
		row[len(ids)] = remainder
	}

	choices := make([]string, 0, len(ids)+1)
	choices = append(choices, ids...)
	choices = append(choices, d.initial)
	picked, err := d.stream.Choice(idx, choices, weights)
	if err != nil {
		return err
	}
	groups := make(map[string]population.Index)
	for i, id := range idx {
		if picked[i] != d.initial {
			groups[picked[i]] = append(groups[picked[i]], id)
		}
	}
	for stateID, group := range groups {
		if err := d.view.SetStrings(d.cause, group, stateID); err != nil {
			return err
		}
	}
	return nil
}

// onTimeStep resolves transitions for living simulants.
func (d *DiseaseModel) onTimeStep(idx population.Index, eventTime time.Time) error {
	living, err := d.view.FilterString(sim.ColumnAlive, idx, sim.StatusAlive)
	if err != nil {
		return err
	}
	return d.machine.Transition(living, eventTime)
}

// deleteCSMR removes this cause's mortality from the background column so
// its excess mortality states do not double count deaths.
func (d *DiseaseModel) deleteCSMR(idx population.Index, frame *values.Frame) (*values.Frame, error) {
	csmr, err := d.csmr(idx)
	if err != nil {
		return nil, err
	}
	if len(csmr) != len(idx) {
		return nil, fmt.Errorf("disease: %s csmr returned %d values for %d ids", d.cause, len(csmr), len(idx))
	}
	base, ok := frame.Column(OtherCausesColumn)
	if !ok {
		return frame, nil
	}
	for i := range idx {
		base[i] -= csmr[i]
		if base[i] < 0 {
			base[i] = 0
		}
	}
	return frame, nil
}

func (d *DiseaseModel) metrics(idx population.Index, metrics map[string]float64) error {
	return d.machine.Metrics(idx, metrics)
}
