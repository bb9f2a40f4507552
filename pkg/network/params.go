package network

import (
	"errors"
	"sort"
	"sync/atomic"

	"github.com/holiman/uint256"

	"github.com/LICODX/rnr-network/pkg/core"
	"github.com/LICODX/rnr-network/pkg/statedb"
	"github.com/LICODX/rnr-network/pkg/utils"
)

// Parameters is an immutable snapshot of the admin-owned tunables. Every
// operation reads one snapshot at its start; SetParameter publishes a new
// snapshot once its transaction commits.
type Parameters struct {
	RegistrationCost          *uint256.Int
	DecayRate                 *uint256.Int
	CycleDuration             *uint256.Int
	BaseInfluencePerUnitStake *uint256.Int
	ActionResourceCost        *uint256.Int
	ActionInfluenceCost       *uint256.Int
}

// ParamSource hands out the current parameter snapshot.
type ParamSource interface {
	Params() *Parameters
}

func DefaultParameters() *Parameters {
	return &Parameters{
		RegistrationCost:          core.NewAmount(core.DefaultRegistrationCost),
		DecayRate:                 core.NewAmount(core.DefaultDecayRate),
		CycleDuration:             core.NewAmount(core.DefaultCycleDuration),
		BaseInfluencePerUnitStake: core.NewAmount(core.DefaultBaseInfluencePerUnitStake),
		ActionResourceCost:        core.NewAmount(core.DefaultActionResourceCost),
		ActionInfluenceCost:       core.NewAmount(core.DefaultActionInfluenceCost),
	}
}

// ParameterNames lists every parameter in a stable order.
func ParameterNames() []string {
	names := []string{
		core.ParamRegistrationCost,
		core.ParamDecayRate,
		core.ParamCycleDuration,
		core.ParamBaseInfluencePerUnitStake,
		core.ParamActionResourceCost,
		core.ParamActionInfluenceCost,
	}
	sort.Strings(names)
	return names
}

func (p *Parameters) field(name string) (**uint256.Int, error) {
	switch name {
	case core.ParamRegistrationCost:
		return &p.RegistrationCost, nil
	case core.ParamDecayRate:
		return &p.DecayRate, nil
	case core.ParamCycleDuration:
		return &p.CycleDuration, nil
	case core.ParamBaseInfluencePerUnitStake:
		return &p.BaseInfluencePerUnitStake, nil
	case core.ParamActionResourceCost:
		return &p.ActionResourceCost, nil
	case core.ParamActionInfluenceCost:
		return &p.ActionInfluenceCost, nil
	}
	return nil, utils.Wrapf(utils.ErrUnknownParameter, "%q", name)
}

// Get returns a copy of the named value.
func (p *Parameters) Get(name string) (*uint256.Int, error) {
	f, err := p.field(name)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(*f), nil
}

// With returns a copy of p with one value replaced. p itself is not touched.
func (p *Parameters) With(name string, value *uint256.Int) (*Parameters, error) {
	if err := validateParameter(name, value); err != nil {
		return nil, err
	}
	next := *p
	f, err := next.field(name)
	if err != nil {
		return nil, err
	}
	*f = new(uint256.Int).Set(value)
	return &next, nil
}

func validateParameter(name string, value *uint256.Int) error {
	if value == nil {
		return utils.Wrapf(utils.ErrInvalidParameter, "%s: missing value", name)
	}
	if err := core.CheckAmount(value); err != nil {
		return err
	}
	switch name {
	case core.ParamDecayRate:
		if value.IsZero() {
			return utils.Wrapf(utils.ErrInvalidParameter, "%s must be non-zero", name)
		}
	case core.ParamCycleDuration:
		if value.IsZero() || !value.IsUint64() || value.Uint64() > core.MaxCycleDuration {
			return utils.Wrapf(utils.ErrInvalidParameter, "%s must be between 1 and %d seconds", name, uint64(core.MaxCycleDuration))
		}
	}
	return nil
}

func (p *Parameters) validate() error {
	for _, name := range ParameterNames() {
		v, err := p.field(name)
		if err != nil {
			return err
		}
		if err := validateParameter(name, *v); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parameters) store(w statedb.Writer) {
	for _, name := range ParameterNames() {
		v, _ := p.Get(name)
		w.Put(paramKey(name), encodeAmount(v))
	}
}

func loadParameters(r statedb.Reader) (*Parameters, error) {
	p := DefaultParameters()
	for _, name := range ParameterNames() {
		raw, err := r.Get(paramKey(name))
		if errors.Is(err, statedb.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		f, _ := p.field(name)
		*f = decodeAmount(raw)
	}
	return p, p.validate()
}

// paramStore publishes parameter snapshots to concurrent readers.
type paramStore struct {
	cur atomic.Pointer[Parameters]
}

func newParamStore(p *Parameters) *paramStore {
	ps := &paramStore{}
	ps.cur.Store(p)
	return ps
}

func (ps *paramStore) Params() *Parameters {
	return ps.cur.Load()
}

func (ps *paramStore) publish(p *Parameters) {
	ps.cur.Store(p)
}
