// Package trottersuzuki evolves one- and two-component 2D wavefunctions with
// the Trotter-Suzuki splitting, over a lattice decomposed into tiles that
// exchange halos by message passing.
//
// A run is built bottom up: a Lattice fixes the global grid and this rank's
// tile, a State holds the field on the tile, a Hamiltonian holds the
// physical coefficients and potential, and a Solver binds them to one of the
// registered kernels ("cpu", "gpu", "hybrid") and advances the field:
//
//	err := w.Run(ctx, func(ctx context.Context, comm *cluster.Comm) error {
//		l, err := trottersuzuki.NewLattice(comm, 256, 20, 20)
//		if err != nil {
//			return err
//		}
//		s, err := trottersuzuki.NewGaussianState(l, trottersuzuki.GaussianProfile{Omega: 1, Norm: 1})
//		if err != nil {
//			return err
//		}
//		h, err := trottersuzuki.NewHamiltonian(l, trottersuzuki.WithCoupling(10))
//		if err != nil {
//			return err
//		}
//		h.InitializePotential(potentials.Harmonic(1, 1))
//		solver, err := trottersuzuki.NewSolver(l, s, h, 1e-3, "cpu")
//		if err != nil {
//			return err
//		}
//		defer solver.Close()
//		return solver.Evolve(1000, true)
//	})
//
// Every kernel runs the same arithmetic, so results agree bit for bit across
// backends and block sizes.
package trottersuzuki
