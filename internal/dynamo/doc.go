// Package dynamo provides core primitives for integrating ODE systems.
//
// The package defines the fundamental interfaces and types shared by the
// solver, the spin model and the ensemble engine:
//
//   - [State]: vector representing system state
//   - [System]: right-hand side of dX/dt = f(X, t)
//   - [Integrator], [AdaptiveIntegrator]: numerical steppers
//   - [WeylSymbol]: scalar used for the energy conservation diagnostic
//
// # Example
//
//	rhs := spins.NewBBGKY(params)
//	sol, _ := integrators.Solve(ctx, integrators.NewRK45(), rhs, x0, grid, opts)
//
// # Thread Safety
//
// Systems may carry scratch buffers and are NOT safe for concurrent use.
// Every rank builds its own System.
package dynamo
