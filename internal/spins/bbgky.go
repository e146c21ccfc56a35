package spins

import (
	"github.com/san-kum/dtwa/internal/dynamo"
)

// levi lists the non-zero Levi-Civita entries ε_{a c d} for each a.
var levi = [3][2]struct {
	c, d int
	sign float64
}{
	{{1, 2, 1}, {2, 1, -1}},
	{{2, 0, 1}, {0, 2, -1}},
	{{0, 1, 1}, {1, 0, -1}},
}

func eps(a, b, c int) float64 {
	return float64((a-b)*(b-c)*(c-a)) / 2
}

// BBGKY is the right-hand side of the site means s^a_i and connected
// correlations g^{ab}_{ij}, with three-point cumulants dropped. It is exact
// for N <= 2.
//
// A BBGKY owns a 3N + 9N² workspace and must not be shared between
// goroutines. Build one per rank with NewBBGKY.
type BBGKY struct {
	p *Params
	n int

	// k[c][i*n+k] = J_ik J^c / norm
	k [3][]float64

	ws    []float64
	field []float64 // F^c_i = h^c + Σ_k K^c_ik s^c_k
	full  []float64 // C^{ab}_ij = s^a_i s^b_j + g^{ab}_ij
}

func NewBBGKY(p *Params) *BBGKY {
	n := p.N
	b := &BBGKY{p: p, n: n, ws: make([]float64, 3*n+9*n*n)}
	b.field = b.ws[:3*n]
	b.full = b.ws[3*n:]
	for c := 0; c < 3; c++ {
		b.k[c] = make([]float64, n*n)
		for i := range p.couplings {
			b.k[c][i] = p.couplings[i] * p.J[c] / p.norm
		}
	}
	return b
}

func (b *BBGKY) StateDim() int { return b.p.StateDim() }

func (b *BBGKY) gi(a, c, i, j int) int {
	return (a*3+c)*b.n*b.n + i*b.n + j
}

func (b *BBGKY) Derive(x dynamo.State, _ float64) dynamo.State {
	n := b.n
	h := b.p.H
	s := x[:3*n]
	g := x[3*n:]

	dx := make(dynamo.State, len(x))
	ds := dx[:3*n]
	dg := dx[3*n:]

	for c := 0; c < 3; c++ {
		kc := b.k[c]
		for i := 0; i < n; i++ {
			f := h[c]
			for k := 0; k < n; k++ {
				if k != i {
					f += kc[i*n+k] * s[c*n+k]
				}
			}
			b.field[c*n+i] = f
		}
	}
	for a := 0; a < 3; a++ {
		for c := 0; c < 3; c++ {
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					idx := b.gi(a, c, i, j)
					b.full[idx] = s[a*n+i]*s[c*n+j] + g[idx]
				}
			}
		}
	}

	// ds^a_i = 2 Σ ε_acd [F^c_i s^d_i + Σ_k K^c_ik g^{dc}_ik]
	for a := 0; a < 3; a++ {
		for i := 0; i < n; i++ {
			sum := 0.0
			for _, e := range levi[a] {
				kc := b.k[e.c]
				term := b.field[e.c*n+i] * s[e.d*n+i]
				for k := 0; k < n; k++ {
					if k != i {
						term += kc[i*n+k] * g[b.gi(e.d, e.c, i, k)]
					}
				}
				sum += e.sign * term
			}
			ds[a*n+i] = 2 * sum
		}
	}

	for a := 0; a < 3; a++ {
		for bb := 0; bb < 3; bb++ {
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					if i == j {
						continue
					}
					dc := b.pairRate(s, g, a, bb, i, j)
					dg[b.gi(a, bb, i, j)] = dc - ds[a*n+i]*s[bb*n+j] - s[a*n+i]*ds[bb*n+j]
				}
			}
		}
	}
	return dx
}

// pairRate is dC^{ab}_ij/dt for i != j.
func (b *BBGKY) pairRate(s, g []float64, a, bb, i, j int) float64 {
	n := b.n
	h := b.p.H
	v := 0.0

	// the i-j bond itself
	for d := 0; d < 3; d++ {
		if e := eps(a, bb, d); e != 0 {
			v += e * b.k[bb][i*n+j] * s[d*n+i]
		}
		if e := eps(bb, a, d); e != 0 {
			v += e * b.k[a][i*n+j] * s[d*n+j]
		}
	}

	// precession of site i in the field and the bonds to third sites k
	for _, e := range levi[a] {
		c, d := e.c, e.d
		kc := b.k[c]
		t := h[c] * b.full[b.gi(d, bb, i, j)]
		sdi, sbj := s[d*n+i], s[bb*n+j]
		gdb := g[b.gi(d, bb, i, j)]
		for k := 0; k < n; k++ {
			if k == i || k == j || kc[i*n+k] == 0 {
				continue
			}
			sck := s[c*n+k]
			t += kc[i*n+k] * (sck*sdi*sbj + sck*gdb + sdi*g[b.gi(c, bb, k, j)] + sbj*g[b.gi(c, d, k, i)])
		}
		v += e.sign * t
	}

	// same for site j
	for _, e := range levi[bb] {
		c, d := e.c, e.d
		kc := b.k[c]
		t := h[c] * b.full[b.gi(a, d, i, j)]
		sai, sdj := s[a*n+i], s[d*n+j]
		gad := g[b.gi(a, d, i, j)]
		for k := 0; k < n; k++ {
			if k == i || k == j || kc[j*n+k] == 0 {
				continue
			}
			sck := s[c*n+k]
			t += kc[j*n+k] * (sai*sck*sdj + sai*g[b.gi(c, d, k, j)] + sck*gad + sdj*g[b.gi(a, c, i, k)])
		}
		v += e.sign * t
	}
	return 2 * v
}

// Weyl is the Weyl symbol of the Hamiltonian,
// Σ_{i<j} Σ_a K^a_ij (s^a_i s^a_j + g^{aa}_ij) + Σ_i h·s_i.
func (b *BBGKY) Weyl(x dynamo.State) float64 {
	n := b.n
	s := x[:3*n]
	g := x[3*n:]
	hw := 0.0
	for a := 0; a < 3; a++ {
		ka := b.k[a]
		for i := 0; i < n; i++ {
			hw += b.p.H[a] * s[a*n+i]
			for j := i + 1; j < n; j++ {
				hw += ka[i*n+j] * (s[a*n+i]*s[a*n+j] + g[b.gi(a, a, i, j)])
			}
		}
	}
	return hw
}
