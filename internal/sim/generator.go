package sim

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"omega-ahrs/internal/ahrs"
	"omega-ahrs/internal/quat"
)

// Measurement is one simulated step: the truth plus the noisy sensor sample
// derived from it.
type Measurement struct {
	Step        int
	Time        time.Duration
	Truth       quat.Quat
	Rate        quat.Vec3
	Bias        quat.Vec3
	Disturbance quat.Vec3
	Sample      ahrs.Sample
}

// Generator produces the deterministic measurement sequence of a Scenario.
// The truth is advanced by one step before each sample is taken.
type Generator struct {
	scn *Scenario
	ref ahrs.Reference
	q   quat.Quat
	n   int

	gyroNoise distuv.Normal
	accNoise  distuv.Normal
	magNoise  distuv.Normal
}

// NewGenerator seeds the noise sources from the scenario seed. The same
// scenario and reference always yield the same sequence.
func NewGenerator(scn *Scenario, ref ahrs.Reference) *Generator {
	src := rand.NewPCG(scn.script.Seed, scn.script.Seed^0x9e3779b97f4a7c15)
	noise := func(variance float64) distuv.Normal {
		return distuv.Normal{Mu: 0, Sigma: math.Sqrt(variance), Src: src}
	}
	return &Generator{
		scn:       scn,
		ref:       ref,
		q:         scn.InitialAttitude(),
		gyroNoise: noise(scn.script.Noise.Gyro),
		accNoise:  noise(scn.script.Noise.Acc),
		magNoise:  noise(scn.script.Noise.Mag),
	}
}

// Next returns the next measurement, or false once Steps() have been produced.
func (g *Generator) Next() (Measurement, bool) {
	if g.n >= g.scn.steps {
		return Measurement{}, false
	}
	t := g.scn.TimeAt(g.n)
	dt := g.scn.script.DT.Seconds()

	rate := g.scn.RateAt(t)
	g.q = quat.IntegrateOmega(g.q, rate, dt).Normalize()

	bias := g.scn.GyroBias()
	dist := g.scn.DisturbanceAt(t)

	acc := addNoise(quat.FrameRotation(g.q, g.ref.Gravity), g.accNoise).Add(dist)
	mag := addNoise(quat.FrameRotation(g.q, g.ref.Mag), g.magNoise)
	gyro := addNoise(rate, g.gyroNoise).Add(bias)

	m := Measurement{
		Step:        g.n,
		Time:        t,
		Truth:       g.q,
		Rate:        rate,
		Bias:        bias,
		Disturbance: dist,
		Sample:      ahrs.Sample{Gyro: gyro, Acc: acc, Mag: mag},
	}
	g.n++
	return m, true
}

func addNoise(v quat.Vec3, d distuv.Normal) quat.Vec3 {
	for i := range v {
		v[i] += d.Rand()
	}
	return v
}
