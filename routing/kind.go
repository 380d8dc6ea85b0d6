// Package routing holds the forwarding policies a core.Router can run:
// epidemic flooding, spray-and-wait, PRoPHET, MaxProp and the
// cluster-based exemplar policy.
package routing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/signalsfoundry/dtn-simulator/contactbook"
	"github.com/signalsfoundry/dtn-simulator/core"
)

// ErrUnknownKind is returned for an unrecognised policy name.
var ErrUnknownKind = errors.New("unknown routing policy")

// Kind names a forwarding policy.
type Kind int

const (
	KindEpidemic Kind = iota
	KindSprayAndWait
	KindProphet
	KindMaxProp
	KindClusterBased
)

func (k Kind) String() string {
	switch k {
	case KindEpidemic:
		return "epidemic"
	case KindSprayAndWait:
		return "spray_and_wait"
	case KindProphet:
		return "prophet"
	case KindMaxProp:
		return "maxprop"
	case KindClusterBased:
		return "cluster"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a configuration name to a Kind.
func ParseKind(name string) (Kind, error) {
	switch name = strings.ToLower(strings.TrimSpace(name)); name {
	case "epidemic", "":
		return KindEpidemic, nil
	case "spray_and_wait", "sprayandwait", "snw":
		return KindSprayAndWait, nil
	case "prophet":
		return KindProphet, nil
	case "maxprop":
		return KindMaxProp, nil
	case "cluster", "cluster_based", "clusterbased":
		return KindClusterBased, nil
	default:
		return 0, fmt.Errorf("%w: %s is not a valid algorithm name", ErrUnknownKind, name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Config selects a policy and carries the settings of every kind. Only
// the fields of the selected kind are read.
type Config struct {
	Kind Kind `yaml:"kind" json:"kind"`

	// SummaryVectors makes epidemic consult a bloom filter of the peer's
	// buffer taken at contact start instead of asking the peer directly.
	SummaryVectors bool `yaml:"summary_vectors" json:"summary_vectors"`

	InitialCopies int  `yaml:"initial_copies" json:"initial_copies"`
	BinaryMode    bool `yaml:"binary_mode" json:"binary_mode"`

	Prophet ProphetParams `yaml:"prophet" json:"prophet"`

	Cluster contactbook.Params `yaml:"cluster" json:"cluster"`
	// ExemplarRelay lets any two exemplars exchange messages.
	ExemplarRelay bool `yaml:"exemplar_relay" json:"exemplar_relay"`
}

// DefaultConfig returns epidemic with the stock parameters of every kind.
func DefaultConfig() Config {
	return Config{
		Kind:          KindEpidemic,
		InitialCopies: 6,
		BinaryMode:    true,
		Prophet:       DefaultProphetParams(),
		Cluster:       contactbook.DefaultParams(),
		ExemplarRelay: true,
	}
}

// Validate checks the settings of the selected kind.
func (c Config) Validate() error {
	switch c.Kind {
	case KindEpidemic, KindMaxProp:
		return nil
	case KindSprayAndWait:
		if c.InitialCopies < 1 {
			return fmt.Errorf("spray_and_wait: initial copies must be at least 1, got %d", c.InitialCopies)
		}
	case KindProphet:
		return c.Prophet.Validate()
	case KindClusterBased:
		return c.Cluster.Validate()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, c.Kind)
	}
	return nil
}

// New returns a fresh policy instance for one router.
func New(c Config) (core.ForwardingPolicy, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Kind {
	case KindSprayAndWait:
		return NewSprayAndWait(c.InitialCopies, c.BinaryMode), nil
	case KindProphet:
		return NewProphet(c.Prophet), nil
	case KindMaxProp:
		return NewMaxProp(), nil
	case KindClusterBased:
		return NewCluster(c.Cluster, c.ExemplarRelay), nil
	default:
		return NewEpidemic(c.SummaryVectors), nil
	}
}
