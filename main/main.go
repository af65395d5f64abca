package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/phil-mansfield/table"
	"gonum.org/v1/gonum/floats"
	"gopkg.in/gcfg.v1"

	"slicedpme"
	"slicedpme/direct"
	"slicedpme/recip"
	"slicedpme/slice"
)

const exampleEvaluateFile = `[Evaluate]

#######################
# Required Parameters #
#######################

# Particle table with whitespace-separated columns:
# x y z charge sigma epsilon subset
# Positions in nm, charges in e, sigma in nm, epsilon in kJ/mol.
Particles = path/to/particles.txt

# Number of particle subsets. Every subset index in the particle table
# must be smaller than this.
Subsets = 2

# Periodic box edge lengths in nm.
BoxX = 4.0
BoxY = 4.0
BoxZ = 4.0

#######################
# Optional Parameters #
#######################

# Exception table with columns: particle1 particle2 chargeProd sigma
# epsilon. A pair with zero chargeProd and epsilon is fully excluded.
# Exceptions = path/to/exceptions.txt

# Direct-space cutoff in nm and relative Ewald error tolerance.
# Cutoff = 1.0
# EwaldTolerance = 0.0005

# Evaluate the dispersion (LJPME) grids alongside the electrostatic
# ones.
# UseDispersion = false

# Skip the direct-space exception terms and report only the
# reciprocal-space part.
# SkipDirectSpace = false

# Scaling parameters, one per line: name subset1 subset2 channel
# value, where channel is coulomb, lj, or both.
# ScalingParameter = lambda_01 0 1 coulomb 0.5

# Scaling parameters to report dE/dlambda for.
# Derivative = lambda_01

# Per-slice energy report, written as CSV.
# Report = slices.csv`

func main() {
	var (
		evaluateStr, exampleConfig string
		workers                    int
	)

	flag.IntVar(
		&workers, "Threads", runtime.NumCPU(),
		"Number of threads used. Default is the number of logical cores.",
	)
	flag.StringVar(
		&evaluateStr, "Evaluate", "",
		"Configuration file for [Evaluate] mode.",
	)
	flag.StringVar(
		&exampleConfig, "ExampleConfig", "",
		"Prints an example configuration file of the specified type to "+
			"stdout. The only accepted argument is 'Evaluate'.",
	)

	flag.Parse()

	switch {
	case exampleConfig != "":
		if exampleConfig != "Evaluate" {
			log.Fatalf("Unrecognized config type '%s'.", exampleConfig)
		}
		fmt.Println(exampleEvaluateFile)

	case evaluateStr != "":
		wrap := defaultEvaluateWrapper()
		if err := gcfg.ReadFileInto(wrap, evaluateStr); err != nil {
			log.Fatal(err.Error())
		}
		con := &wrap.Evaluate

		if con.Particles == "" {
			log.Fatal("Invalid/non-existent 'Particles' value.")
		} else if con.Subsets < 1 {
			log.Fatal("Invalid/non-existent 'Subsets' value.")
		} else if con.BoxX <= 0 || con.BoxY <= 0 || con.BoxZ <= 0 {
			log.Fatal("Box edge lengths must all be positive.")
		}
		evaluateMain(con, workers)

	default:
		log.Fatal(
			"You must select a mode with either -Evaluate or -ExampleConfig.",
		)
	}
}

type evaluateWrapper struct {
	Evaluate evaluateConfig
}

type evaluateConfig struct {
	Particles  string
	Exceptions string

	Subsets          int
	BoxX, BoxY, BoxZ float64

	Cutoff          float64
	EwaldTolerance  float64
	UseDispersion   bool
	SkipDirectSpace bool

	ScalingParameter []string
	Derivative       []string

	Report string
}

func defaultEvaluateWrapper() *evaluateWrapper {
	return &evaluateWrapper{evaluateConfig{
		Cutoff:         slicedpme.DefaultCutoff,
		EwaldTolerance: slicedpme.DefaultEwaldTolerance,
	}}
}

// sliceRow is one line of the per-slice CSV report.
type sliceRow struct {
	Slice   int `csv:"slice"`
	Subset1 int `csv:"subset1"`
	Subset2 int `csv:"subset2"`

	LambdaCoulomb float64 `csv:"lambda_coulomb"`
	LambdaLJ      float64 `csv:"lambda_lj"`

	RecipCoulomb  float64 `csv:"recip_coulomb"`
	RecipLJ       float64 `csv:"recip_lj"`
	DirectCoulomb float64 `csv:"direct_coulomb"`
	DirectLJ      float64 `csv:"direct_lj"`

	Scaled float64 `csv:"scaled_total"`
}

func evaluateMain(con *evaluateConfig, workers int) {
	box, err := slicedpme.NewOrthorhombicBox(con.BoxX, con.BoxY, con.BoxZ)
	if err != nil {
		log.Fatal(err.Error())
	}

	force, pos := readParticles(con)
	force.SetCutoff(con.Cutoff)
	force.SetEwaldTolerance(con.EwaldTolerance)
	force.SetUseDispersion(con.UseDispersion)
	force.SetIncludeDirectSpace(!con.SkipDirectSpace)
	if con.Exceptions != "" {
		readExceptions(con.Exceptions, force)
	}
	addScalingParameters(con, force)

	recipEv, err := recip.NewEvaluator(force, box, workers)
	if err != nil {
		log.Fatal(err.Error())
	}
	directEv, err := direct.NewEvaluator(
		force, box, recipEv.PMEParameters().Alpha,
	)
	if err != nil {
		log.Fatal(err.Error())
	}

	forces := make([][3]float64, force.NumParticles())
	opts := recip.Options{IncludeEnergy: true, IncludeForces: true}
	eRecip, dRecip, err := recipEv.Execute(pos, forces, opts, nil)
	if err != nil {
		log.Fatal(err.Error())
	}
	eDirect := 0.0
	var dDirect map[string]float64
	if force.IncludeDirectSpace() {
		eDirect, dDirect, err = directEv.Execute(
			pos, forces,
			direct.Options{IncludeEnergy: true, IncludeForces: true}, nil,
		)
		if err != nil {
			log.Fatal(err.Error())
		}
	}

	spec := recipEv.PMEParameters()
	fmt.Printf("alpha = %.6g 1/nm, grid = %d x %d x %d\n",
		spec.Alpha, spec.Nx, spec.Ny, spec.Nz)
	fmt.Printf("reciprocal-space energy = %.8g kJ/mol\n", eRecip)
	fmt.Printf("direct-space energy     = %.8g kJ/mol\n", eDirect)
	fmt.Printf("total energy            = %.8g kJ/mol\n", eRecip+eDirect)
	for _, name := range force.ScalingParameterDerivativeNames() {
		fmt.Printf("dE/d(%s) = %.8g kJ/mol\n", name, dRecip[name]+dDirect[name])
	}

	if con.Report != "" {
		writeReport(con.Report, force, recipEv, directEv)
	}
}

func readParticles(con *evaluateConfig) (*slicedpme.Force, [][3]float64) {
	cols, err := table.ReadTable(con.Particles, []int{0, 1, 2, 3, 4, 5, 6}, nil)
	if err != nil {
		log.Fatal(err.Error())
	}
	xs, ys, zs := cols[0], cols[1], cols[2]
	qs, sigmas, epsilons, subsets := cols[3], cols[4], cols[5], cols[6]

	// A net charge interacts with its own periodic images through the
	// implicit neutralizing background; usually a sign of a bad table.
	if net := floats.Sum(qs); net > 1e-6 || net < -1e-6 {
		log.Printf("Warning: system carries a net charge of %g e.", net)
	}

	force, err := slicedpme.NewForce(con.Subsets)
	if err != nil {
		log.Fatal(err.Error())
	}
	pos := make([][3]float64, len(xs))
	for i := range xs {
		pos[i] = [3]float64{xs[i], ys[i], zs[i]}
		_, err := force.AddParticle(
			qs[i], sigmas[i], epsilons[i], int(subsets[i]),
		)
		if err != nil {
			log.Fatalf("particle %d: %s", i, err.Error())
		}
	}
	return force, pos
}

func readExceptions(fname string, force *slicedpme.Force) {
	cols, err := table.ReadTable(fname, []int{0, 1, 2, 3, 4}, nil)
	if err != nil {
		log.Fatal(err.Error())
	}
	for i := range cols[0] {
		_, err := force.AddException(slicedpme.Exception{
			Particle1:  int(cols[0][i]),
			Particle2:  int(cols[1][i]),
			ChargeProd: cols[2][i],
			Sigma:      cols[3][i],
			Epsilon:    cols[4][i],
		}, false)
		if err != nil {
			log.Fatalf("exception %d: %s", i, err.Error())
		}
	}
}

// addScalingParameters parses lines of the form
// "name subset1 subset2 channel value".
func addScalingParameters(con *evaluateConfig, force *slicedpme.Force) {
	for _, line := range con.ScalingParameter {
		fields := strings.Fields(line)
		if len(fields) != 5 {
			log.Fatalf("Can't parse ScalingParameter line '%s'.", line)
		}
		name := fields[0]
		s1, err1 := strconv.Atoi(fields[1])
		s2, err2 := strconv.Atoi(fields[2])
		value, err3 := strconv.ParseFloat(fields[4], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			log.Fatalf("Can't parse ScalingParameter line '%s'.", line)
		}

		coulomb, lj := false, false
		switch strings.ToLower(fields[3]) {
		case "coulomb":
			coulomb = true
		case "lj":
			lj = true
		case "both":
			coulomb, lj = true, true
		default:
			log.Fatalf("Unrecognized channel '%s'.", fields[3])
		}

		if _, err := force.AddGlobalParameter(name, value); err != nil {
			log.Fatal(err.Error())
		}
		if _, err := force.AddScalingParameter(name, s1, s2, coulomb, lj); err != nil {
			log.Fatal(err.Error())
		}
	}
	for _, name := range con.Derivative {
		if err := force.AddScalingParameterDerivative(name); err != nil {
			log.Fatal(err.Error())
		}
	}
}

func writeReport(
	fname string, force *slicedpme.Force,
	recipEv *recip.Evaluator, directEv *direct.Evaluator,
) {
	recipC, recipL := recipEv.RawSliceEnergies()
	directC, directL := directEv.RawSliceEnergies()
	lambdaC, lambdaL := recipEv.SliceLambdas()

	rows := make([]*sliceRow, force.NumSlices())
	for s := range rows {
		s1, s2 := slice.Unpack(s)
		row := &sliceRow{
			Slice: s, Subset1: s1, Subset2: s2,
			LambdaCoulomb: lambdaC[s], LambdaLJ: lambdaL[s],
			RecipCoulomb: recipC[s],
		}
		if recipL != nil {
			row.RecipLJ = recipL[s]
		}
		if directC != nil {
			row.DirectCoulomb, row.DirectLJ = directC[s], directL[s]
		}
		row.Scaled = lambdaC[s]*(row.RecipCoulomb+row.DirectCoulomb) +
			lambdaL[s]*(row.RecipLJ+row.DirectLJ)
		rows[s] = row
	}

	f, err := os.Create(fname)
	if err != nil {
		log.Fatal(err.Error())
	}
	defer f.Close()
	if err := gocsv.Marshal(&rows, f); err != nil {
		log.Fatal(err.Error())
	}
}
