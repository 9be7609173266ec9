package qnet

// config.go holds the experiment configuration: what topology to build, the link
// lengths and repeater counts to sweep, the loss model, and the shot count.
// Configurations are read from and written to yaml or json, and validated
// through struct tags before any shot runs.

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// validate is a singleton validator instance
var validate *validator.Validate = validator.New()

// ExpCfg describes an experiment, a sweep over link lengths and repeater counts
type ExpCfg struct {
	// name of the experiment, used in traces and random stream names
	Name string `json:"name" yaml:"name" validate:"required"`

	Topology TopoKind `json:"topology" yaml:"topology" validate:"required,oneof=chain star two-hop midpoint custom"`

	// description file of a custom topology
	TopoFile string `json:"topofile,omitempty" yaml:"topofile,omitempty" validate:"required_if=Topology custom"`

	Shots int `json:"shots" yaml:"shots" validate:"gt=0"`

	// channel lengths to sweep, meters
	LengthsM []float64 `json:"lengths_m" yaml:"lengths_m" validate:"required,min=1,dive,gte=0"`

	LossDBPerKm     float64 `json:"loss_db_per_km" yaml:"loss_db_per_km" validate:"gte=0"`
	InitialLossProb float64 `json:"initial_loss_prob" yaml:"initial_loss_prob" validate:"gte=0,lte=1"`

	// repeater counts to sweep; chains only
	Repeaters []int `json:"repeaters,omitempty" yaml:"repeaters,omitempty" validate:"dive,gte=0"`

	// star only
	Clients    int   `json:"clients,omitempty" yaml:"clients,omitempty" validate:"gte=0"`
	SwitchPair []int `json:"switch_pair,omitempty" yaml:"switch_pair,omitempty" validate:"omitempty,len=2,dive,gte=0"`

	// fidelity of freshly generated pairs; 0 means 1
	SourceFidelity float64 `json:"source_fidelity,omitempty" yaml:"source_fidelity,omitempty" validate:"gte=0,lte=1"`

	// nil selects unseeded random streams
	Seed *int64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	// shots run concurrently; 0 means one per CPU
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty" validate:"gte=0"`

	ChannelParams []ChannelParam `json:"channel_params,omitempty" yaml:"channel_params,omitempty"`
}

// CreateExpCfg is a constructor.  The result describes 100 shots over a single
// zero-length link at 0.2 dB/km.
func CreateExpCfg(name string) *ExpCfg {
	return &ExpCfg{Name: name, Topology: KindChain, Shots: 100, LengthsM: []float64{0.0},
		LossDBPerKm: 0.2, Repeaters: []int{0}, Clients: 2, SwitchPair: []int{0, 1},
		ChannelParams: make([]ChannelParam, 0)}
}

// AddChannelParam validates a channel override and adds it to the configuration
func (cfg *ExpCfg) AddChannelParam(attribute, param, value string) error {
	cp, err := CreateChannelParam(attribute, param, value)
	if err != nil {
		return err
	}
	cfg.ChannelParams = append(cfg.ChannelParams, *cp)
	return nil
}

// Validate checks the configuration.  Every problem found is reported, each wrapping ErrDomain.
func (cfg *ExpCfg) Validate() error {
	if cfg == nil {
		return fmt.Errorf("%w: nil configuration", ErrDomain)
	}
	errs := []error{}
	if err := validate.Struct(cfg); err != nil {
		errs = append(errs, formatValidationErrors(err)...)
	}

	if cfg.Topology == KindStar {
		if cfg.Clients < 2 {
			errs = append(errs, fmt.Errorf("%w: Clients: star needs at least 2, got %d", ErrDomain, cfg.Clients))
		}
		a, b := cfg.switchPair()
		if a == b || a >= cfg.Clients || b >= cfg.Clients {
			errs = append(errs, fmt.Errorf("%w: SwitchPair: (%d,%d) with %d clients", ErrDomain, a, b, cfg.Clients))
		}
	}
	for _, cp := range cfg.ChannelParams {
		if err := ValidateChannelParam(cp.Attribute, cp.Param); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := channelParamValue(cp); err != nil {
			errs = append(errs, err)
		}
	}
	return ReportErrs(errs)
}

// formatValidationErrors converts validator errors to a more readable form, one per failed field
func formatValidationErrors(err error) []error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return []error{fmt.Errorf("%w: %v", ErrDomain, err)}
	}

	errs := make([]error, 0, len(validationErrs))
	for _, e := range validationErrs {
		field := e.Namespace()
		param := e.Param()

		switch e.Tag() {
		case "required", "required_if":
			errs = append(errs, fmt.Errorf("%w: %s: field is required", ErrDomain, field))
		case "gt":
			errs = append(errs, fmt.Errorf("%w: %s: must be greater than %s", ErrDomain, field, param))
		case "gte", "min":
			errs = append(errs, fmt.Errorf("%w: %s: must be at least %s", ErrDomain, field, param))
		case "lte", "max":
			errs = append(errs, fmt.Errorf("%w: %s: must not exceed %s", ErrDomain, field, param))
		case "oneof":
			errs = append(errs, fmt.Errorf("%w: %s: must be one of %s", ErrDomain, field, param))
		case "len":
			errs = append(errs, fmt.Errorf("%w: %s: must have length %s", ErrDomain, field, param))
		default:
			errs = append(errs, fmt.Errorf("%w: %s: validation failed (%s)", ErrDomain, field, e.Tag()))
		}
	}
	return errs
}

func (cfg *ExpCfg) switchPair() (int, int) {
	if len(cfg.SwitchPair) != 2 {
		return 0, 1
	}
	return cfg.SwitchPair[0], cfg.SwitchPair[1]
}

// LossModel returns the loss model every channel starts from
func (cfg *ExpCfg) LossModel() LossModel {
	return LossModel{LossDBPerKm: cfg.LossDBPerKm, InitialLossProb: cfg.InitialLossProb}
}

// Points expands the configuration into its sweep points: every link length, crossed
// with every repeater count for a chain.  A custom topology is read from its file
// here, and each length is applied to it as a wildcard length override ahead of the
// configured overrides.
func (cfg *ExpCfg) Points() ([]PointCfg, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var desc *TopoDesc
	if cfg.Topology == KindCustom {
		var err error
		desc, err = ReadTopoDesc(cfg.TopoFile, UseYAMLExt(cfg.TopoFile), []byte{})
		if err != nil {
			return nil, fmt.Errorf("%w: custom topology %s: %v", ErrConstruction, cfg.TopoFile, err)
		}
	}

	repeaters := []int{0}
	if cfg.Topology == KindChain && len(cfg.Repeaters) > 0 {
		repeaters = cfg.Repeaters
	}
	a, b := cfg.switchPair()

	points := []PointCfg{}
	for _, lengthM := range cfg.LengthsM {
		for _, nRep := range repeaters {
			params := TopoParams{Repeaters: nRep, Clients: cfg.Clients, SwitchPair: [2]int{a, b},
				LengthM: lengthM, Loss: cfg.LossModel(), Desc: desc}
			if desc != nil {
				params.Overrides = append(params.Overrides,
					ChannelParam{Attribute: "*", Param: "length", Value: strconv.FormatFloat(lengthM, 'g', -1, 64)})
			}
			params.Overrides = append(params.Overrides, cfg.ChannelParams...)

			points = append(points, PointCfg{
				Name:           cfg.Name,
				Kind:           cfg.Topology,
				Params:         params,
				Shots:          cfg.Shots,
				SourceFidelity: cfg.SourceFidelity,
				Seed:           cfg.Seed,
				Workers:        cfg.Workers,
			})
		}
	}
	return points, nil
}

// WriteToFile stores the ExpCfg struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (cfg *ExpCfg) WriteToFile(filename string) error {
	return writeSerialized(filename, *cfg)
}

// ReadExpCfg deserializes a byte slice holding a representation of an ExpCfg struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.  The result is not validated.
func ReadExpCfg(filename string, useYAML bool, dict []byte) (*ExpCfg, error) {
	example := ExpCfg{}
	if err := readSerialized(filename, useYAML, dict, &example); err != nil {
		return nil, err
	}
	return &example, nil
}
