package signature

import (
	"math"

	"github.com/sitesim/reactor/pkg/types/chem"
)

// avogadro is Avogadro's constant, used by the inter-molecular rate derivation
// below. Concentrations here are taken in molar, volumes in liters.
const avogadro = 6.02214076e23

// Parameters carries the subset of the %par parameter-file directives needed
// to derive stochastic rate constants from a Signature's
// declared affinities. It is intentionally a plain value type with no
// behavior of its own; the parameter-file parser is what populates it.
type Parameters struct {
	Volume            float64 // liters
	Temperature        float64 // degrees Celsius
	ReferenceVolume   float64
	ReferenceTemp     float64
	KdWeak            float64
	KdMedium          float64
	KdStrong          float64
	KOn               float64
	ResizeVolume      float64
	RescaleTemp       float64 // must be > 0; exponent base for k_off and ring-closure scaling
	RingClosureFactor float64
}

// Kinetics holds the derived, run-constant stochastic rate constants for one
// simulation: the inter- and intra-molecular binding rates, and the per-bond-
// type dissociation rate k_off. These never change after derivation; the
// Mixture and Molecule packages treat a *Kinetics as read-only, same as a
// *Signature.
type Kinetics struct {
	KOnInter float64
	KOnIntra float64
	koff     map[chem.BondType]float64
	defaultKd float64
}

// KOff returns the dissociation rate constant for bt, falling back to the
// rate derived from the run's default (medium) Kd if bt was never declared
// in the signature — mirroring the source format's "def" categorical affinity.
func (k *Kinetics) KOff(bt chem.BondType) float64 {
	if v, ok := k.koff[bt]; ok {
		return v
	}
	return k.defaultKd
}

// DeriveKinetics computes a Kinetics value from this Signature's declared
// bond-type affinities and a set of run Parameters, per the formulas:
//
//	k_on_inter = k_on / (Avogadro · Volume)
//	k_on_intra = RingClosureFactor' · k_on_inter,
//	  where RingClosureFactor' = RingClosureFactor · ResizeVolume · RescaleTemp^1.5
//	k_off(bt)  = k_on · Kd(bt)^(1/RescaleTemp)
//
// Kd values are the numeric affinities read via Signature.Affinity; a bond
// type that declares none uses KdMedium (the source format's "def" default).
// The signature parser accepts only numeric "$Kd" annotations, so the
// categorical affinities "w"/"m"/"s"/"def" are not recognized, and KdWeak
// and KdStrong are not used by this derivation.
func (s *Signature) DeriveKinetics(p Parameters) *Kinetics {
	kOnInter := p.KOn / (avogadro * p.Volume)
	ringClosure := p.RingClosureFactor * p.ResizeVolume * math.Pow(p.RescaleTemp, 1.5)
	kOnIntra := ringClosure * kOnInter

	koff := make(map[chem.BondType]float64, len(s.bondTypes))
	for _, bt := range s.bondTypes {
		kd, ok := s.Affinity(bt)
		if !ok {
			kd = p.KdMedium
		}
		koff[bt] = p.KOn * math.Pow(kd, 1/p.RescaleTemp)
	}

	return &Kinetics{
		KOnInter:  kOnInter,
		KOnIntra:  kOnIntra,
		koff:      koff,
		defaultKd: p.KOn * math.Pow(p.KdMedium, 1/p.RescaleTemp),
	}
}
