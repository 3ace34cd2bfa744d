package traveltime

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/couchcryptid/seismic-template-trim/internal/domain"
)

// Supported phase names.
const (
	PhaseUpgoingS = "s"
	PhaseS        = "S"
)

// ErrUnsupportedPhase is returned for phase names the model cannot trace.
var ErrUnsupportedPhase = errors.New("traveltime: unsupported phase")

const (
	scanSteps  = 1000
	bisections = 60
)

type slab struct {
	h, v float64 // flattened thickness and velocity
}

// path is the layer stack seen from one source depth.
type path struct {
	above []slab // surface to source
	below []slab // source to model bottom
	pUp   float64
	pDown float64
}

// Arrivals returns the arrivals of the requested phases for a source at
// depthKm and a receiver distanceDeg away, sorted by time. A phase with no
// ray reaching the distance is simply absent.
func (m *Model) Arrivals(ctx context.Context, depthKm, distanceDeg float64, phases []string) ([]domain.Arrival, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if depthKm < 0 || depthKm >= m.bottom {
		return nil, fmt.Errorf("traveltime: source depth %.3f km outside model %s", depthKm, m.Name)
	}
	if distanceDeg < 0 || math.IsNaN(distanceDeg) {
		return nil, fmt.Errorf("traveltime: invalid distance %v deg", distanceDeg)
	}

	pth := m.pathFrom(depthKm)
	target := distanceDeg * math.Pi / 180 * m.radius

	var out []domain.Arrival
	for _, phase := range phases {
		var found []ray
		switch phase {
		case PhaseUpgoingS:
			if r, ok := pth.shootUp(target); ok {
				found = append(found, r)
			}
		case PhaseS:
			found = pth.shootDown(target)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedPhase, phase)
		}
		for _, r := range found {
			out = append(out, domain.Arrival{
				Phase:       phase,
				Time:        r.t,
				RayParam:    r.p * m.radius * math.Pi / 180,
				DistanceDeg: distanceDeg,
			})
		}
	}

	slices.SortStableFunc(out, func(a, b domain.Arrival) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	return out, nil
}

func (m *Model) pathFrom(zs float64) path {
	var pth path
	fs := m.flatDepth(zs)
	for _, l := range m.layers {
		ft, fb := m.flatDepth(l.top), m.flatDepth(l.bottom)
		switch {
		case l.bottom <= zs:
			pth.above = append(pth.above, slab{h: fb - ft, v: l.v})
		case l.top >= zs:
			pth.below = append(pth.below, slab{h: fb - ft, v: l.v})
		default:
			pth.above = append(pth.above, slab{h: fs - ft, v: l.v})
			pth.below = append(pth.below, slab{h: fb - fs, v: l.v})
		}
	}

	vmax := m.flatVelocity(m.shearAt(zs), zs)
	for _, s := range pth.above {
		vmax = max(vmax, s.v)
	}
	pth.pUp = 1 / vmax
	if len(pth.below) > 0 {
		vmax = max(vmax, pth.below[0].v)
	}
	pth.pDown = 1 / vmax
	return pth
}

type ray struct {
	p, x, t float64
}

func leg(s slab, p float64) (x, t float64, ok bool) {
	pv := p * s.v
	if pv >= 1 {
		return 0, 0, false
	}
	c := math.Sqrt(1 - pv*pv)
	return s.h * pv / c, s.h / (s.v * c), true
}

func (pth path) up(p float64) (ray, bool) {
	r := ray{p: p}
	for _, s := range pth.above {
		x, t, ok := leg(s, p)
		if !ok {
			return ray{}, false
		}
		r.x += x
		r.t += t
	}
	return r, true
}

// down traces a ray leaving the source downward, turning at the first
// slab it cannot enter and returning to the surface.
func (pth path) down(p float64) (ray, bool) {
	r, ok := pth.up(p)
	if !ok {
		return ray{}, false
	}
	for i, s := range pth.below {
		x, t, ok := leg(s, p)
		if !ok {
			if i == 0 {
				return ray{}, false
			}
			return r, true
		}
		r.x += 2 * x
		r.t += 2 * t
	}
	return ray{}, false
}

// shootUp finds the upgoing ray reaching target km. The upgoing distance
// grows monotonically with the ray parameter.
func (pth path) shootUp(target float64) (ray, bool) {
	if len(pth.above) == 0 {
		return ray{}, false
	}
	hi := pth.pUp * (1 - 1e-12)
	far, ok := pth.up(hi)
	if !ok || far.x < target {
		return ray{}, false
	}
	lo := 0.0
	for range bisections {
		mid := (lo + hi) / 2
		r, _ := pth.up(mid)
		if r.x < target {
			lo = mid
		} else {
			hi = mid
		}
	}
	r, _ := pth.up((lo + hi) / 2)
	return r, true
}

// shootDown scans the ray parameter for downgoing rays bracketing the
// target and refines each bracket. Layered models can give several
// turning rays at one distance; all are returned.
func (pth path) shootDown(target float64) []ray {
	if len(pth.below) == 0 {
		return nil
	}
	var found []ray
	pmax := pth.pDown * (1 - 1e-12)
	prev, prevOK := pth.down(0)
	for i := 1; i <= scanSteps; i++ {
		p := pmax * float64(i) / scanSteps
		cur, ok := pth.down(p)
		if ok && prevOK && (prev.x-target)*(cur.x-target) <= 0 && prev.x != cur.x {
			found = append(found, pth.refine(prev, cur, target))
		}
		prev, prevOK = cur, ok
	}
	return found
}

func (pth path) refine(a, b ray, target float64) ray {
	rising := b.x > a.x
	for range bisections {
		mid, ok := pth.down((a.p + b.p) / 2)
		if !ok {
			break
		}
		if (mid.x < target) == rising {
			a = mid
		} else {
			b = mid
		}
	}
	if b.x == a.x {
		return a
	}
	f := (target - a.x) / (b.x - a.x)
	return ray{
		p: a.p + f*(b.p-a.p),
		x: target,
		t: a.t + f*(b.t-a.t),
	}
}
