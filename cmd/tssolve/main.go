// Command tssolve evolves a wavefunction in a harmonic trap on an in-process
// cluster of ranks and stamps periodic snapshots. It is configured through
// the environment; see internal/config.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	trottersuzuki "github.com/orgnanonana/trotter-suzuki-mpi"
	"github.com/orgnanonana/trotter-suzuki-mpi/cluster"
	"github.com/orgnanonana/trotter-suzuki-mpi/gpu"
	"github.com/orgnanonana/trotter-suzuki-mpi/internal/config"
	"github.com/orgnanonana/trotter-suzuki-mpi/internal/logger"
	"github.com/orgnanonana/trotter-suzuki-mpi/potentials"
	"github.com/orgnanonana/trotter-suzuki-mpi/snapshot"
)

// normDrift is the relative real-time norm change that gets a warning.
const normDrift = 1e-8

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("run failed")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if cfg.Kernel != "cpu" {
		if _, ok := gpu.CurrentBackendInfo(); !ok {
			gpu.RegisterMockBackend()
			log.Warn().Str("kernel", cfg.Kernel).Msg("no accelerator backend linked, using the host mock")
		}
	}

	rec := &recorder{}

	if cfg.StorePath != "" {
		st, err := snapshot.Open(cfg.StorePath)
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := st.BeginRun(snapshot.RunMeta{
			Kernel:   cfg.Kernel,
			Ranks:    cfg.Ranks,
			NX:       cfg.Dim,
			NY:       cfg.Dim,
			LengthX:  cfg.LengthX,
			LengthY:  cfg.LengthY,
			DeltaT:   cfg.DeltaT,
			ImagTime: cfg.ImagTime,
		})
		if err != nil {
			return err
		}

		rec.store, rec.runID = st, id
		log.Info().Str("run", id).Str("store", cfg.StorePath).Msg("recording run")
	}

	world, err := cluster.NewWorld(cfg.Ranks)
	if err != nil {
		return err
	}

	return world.Run(ctx, func(ctx context.Context, c *cluster.Comm) error {
		return solveRank(ctx, c, cfg, logger.ForRank(log, c.Rank()), rec)
	})
}

// recorder indexes root's snapshots in the store, when one is configured.
type recorder struct {
	store *snapshot.Store
	runID string
}

func (r *recorder) record(iteration int, t, norm, energy float64, paths []string) error {
	if r.store == nil {
		return nil
	}

	recs := make([]snapshot.FrameRecord, len(paths))
	for i, p := range paths {
		recs[i] = snapshot.FrameRecord{RunID: r.runID, Iteration: iteration, Time: t, Norm: norm, Energy: energy, Path: p}
	}

	return r.store.AppendFrames(recs...)
}

func initialProfile(name string) trottersuzuki.Profile {
	switch name {
	case "exp":
		return trottersuzuki.ExponentialProfile{NX: 1, NY: 1}
	case "sinus":
		return trottersuzuki.SinusoidProfile{NX: 1, NY: 1}
	default:
		return trottersuzuki.GaussianProfile{}
	}
}

func solveRank(ctx context.Context, c *cluster.Comm, cfg *config.Config, log zerolog.Logger, rec *recorder) error {
	l, err := trottersuzuki.NewLattice(c, cfg.Dim, cfg.LengthX, cfg.LengthY,
		trottersuzuki.WithPeriodic(cfg.PeriodicX, cfg.PeriodicY),
		trottersuzuki.WithRotation(cfg.Omega))
	if err != nil {
		return err
	}

	s, err := trottersuzuki.NewProfileState(l, initialProfile(cfg.State))
	if err != nil {
		return err
	}

	h, err := trottersuzuki.NewHamiltonian(l, trottersuzuki.WithCoupling(cfg.Coupling))
	if err != nil {
		return err
	}

	h.InitializePotential(potentials.Harmonic(1, 1))

	solver, err := trottersuzuki.NewSolver(l, s, h, cfg.DeltaT, cfg.Kernel, trottersuzuki.WithLogger(log))
	if err != nil {
		return err
	}
	defer solver.Close()

	log.Debug().Stringer("lattice", l).Msg("tile ready")

	w := &snapshot.Writer{Dir: cfg.OutputDir, Format: snapshot.Format(cfg.SnapshotFormat)}
	chunk := max(1, (cfg.Iterations+cfg.Snapshots-1)/cfg.Snapshots)

	var norm0 float64

	for done := 0; ; {
		norm, err := solver.SquaredNorm()
		if err != nil {
			return err
		}

		energy, err := solver.TotalEnergy()
		if err != nil {
			return err
		}

		_, paths, err := w.Stamp(l, s, "psi", done)
		if err != nil {
			return err
		}

		if done == 0 {
			norm0 = norm
		}

		if c.Rank() == snapshot.Root {
			log.Info().
				Str("iteration", humanize.Comma(int64(done))).
				Float64("time", solver.CurrentEvolutionTime).
				Float64("norm", norm).
				Float64("energy", energy).
				Msg("snapshot")

			if !cfg.ImagTime && math.Abs(norm-norm0) > normDrift*norm0 {
				log.Warn().Float64("norm0", norm0).Float64("norm", norm).Msg("norm drift")
			}

			if err := rec.record(done, solver.CurrentEvolutionTime, norm, energy, paths); err != nil {
				return err
			}
		}

		if done >= cfg.Iterations {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		n := min(chunk, cfg.Iterations-done)
		if err := solver.Evolve(n, cfg.ImagTime); err != nil {
			return err
		}

		done += n
	}
}
