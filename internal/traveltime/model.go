// Package traveltime predicts S-wave arrival times from a 1-D velocity
// model given in .tvel format.
//
// The spherical model is mapped through the earth-flattening transform
// onto a stack of thin constant-velocity layers, and arrivals are found
// by shooting rays over the ray parameter.
package traveltime

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/seismic-template-trim/internal/domain"
)

// ModelExt is the file extension of velocity models.
const ModelExt = ".tvel"

// Sub-layer thickness in km. The shallow part of the model, where most
// local rays turn, is sampled more finely.
const (
	fineStep    = 1.0
	coarseStep  = 5.0
	fineToDepth = 200.0
)

type point struct {
	depth float64
	vp    float64
	vs    float64
}

// layer is one constant-velocity slab. Depths are spherical, velocity is
// the flattened S velocity.
type layer struct {
	top, bottom float64
	v           float64
}

// Model is a travel-time model built once and queried concurrently. It is
// immutable after Load.
type Model struct {
	Name   string
	radius float64
	points []point
	layers []layer
	bottom float64 // deepest depth carrying S waves
}

// Load reads {dir}/{name}.tvel.
func Load(dir, name string) (*Model, error) {
	return LoadFile(filepath.Join(dir, name+ModelExt))
}

// LoadFile reads and builds a model from a .tvel file.
func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrModel, path, err)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), ModelExt)
	return Parse(f, name, domain.EarthRadiusKm)
}

// Parse builds a model from .tvel content: two header lines followed by
// "depth vp vs [density]" rows with non-decreasing depth. A repeated depth
// marks a discontinuity. S propagation stops at the first zero shear
// velocity below the surface (the outer core).
func Parse(r io.Reader, name string, radiusKm float64) (*Model, error) {
	if radiusKm <= 0 {
		radiusKm = domain.EarthRadiusKm
	}

	sc := bufio.NewScanner(r)
	var pts []point
	line := 0
	for sc.Scan() {
		line++
		if line <= 2 {
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			return nil, fmt.Errorf("%w: %s line %d: want depth vp vs", domain.ErrModel, name, line)
		}
		var vals [3]float64
		for i := range vals {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s line %d: %v", domain.ErrModel, name, line, err)
			}
			vals[i] = v
		}
		p := point{depth: vals[0], vp: vals[1], vs: vals[2]}
		if p.vs < 0 || p.vp <= 0 {
			return nil, fmt.Errorf("%w: %s line %d: invalid velocity", domain.ErrModel, name, line)
		}
		if n := len(pts); n > 0 && p.depth < pts[n-1].depth {
			return nil, fmt.Errorf("%w: %s line %d: depth decreases", domain.ErrModel, name, line)
		}
		pts = append(pts, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrModel, name, err)
	}
	if len(pts) < 2 {
		return nil, fmt.Errorf("%w: %s: fewer than two model points", domain.ErrModel, name)
	}
	if pts[0].depth != 0 {
		return nil, fmt.Errorf("%w: %s: model must start at the surface", domain.ErrModel, name)
	}
	if pts[0].vs == 0 {
		return nil, fmt.Errorf("%w: %s: no shear velocity at the surface", domain.ErrModel, name)
	}

	m := &Model{Name: name, radius: radiusKm}
	for i, p := range pts {
		if i > 0 && p.vs == 0 {
			break
		}
		if p.depth >= radiusKm {
			break
		}
		m.points = append(m.points, p)
	}
	m.build()
	if len(m.layers) == 0 {
		return nil, fmt.Errorf("%w: %s: model has no S-wave layers", domain.ErrModel, name)
	}
	return m, nil
}

func (m *Model) build() {
	for i := 0; i+1 < len(m.points); i++ {
		a, b := m.points[i], m.points[i+1]
		if b.depth == a.depth {
			continue
		}
		step := coarseStep
		if a.depth < fineToDepth {
			step = fineStep
		}
		n := int(math.Ceil((b.depth - a.depth) / step))
		for k := range n {
			top := a.depth + (b.depth-a.depth)*float64(k)/float64(n)
			bot := a.depth + (b.depth-a.depth)*float64(k+1)/float64(n)
			mid := (top + bot) / 2
			vs := a.vs + (b.vs-a.vs)*(mid-a.depth)/(b.depth-a.depth)
			m.layers = append(m.layers, layer{top: top, bottom: bot, v: m.flatVelocity(vs, mid)})
		}
	}
	if len(m.layers) > 0 {
		m.bottom = m.layers[len(m.layers)-1].bottom
	}
}

// flatDepth maps spherical depth to flattened depth.
func (m *Model) flatDepth(z float64) float64 {
	return m.radius * math.Log(m.radius/(m.radius-z))
}

func (m *Model) flatVelocity(v, z float64) float64 {
	return v * m.radius / (m.radius - z)
}

// shearAt interpolates the spherical S velocity at depth z, taking the
// upper side of a discontinuity.
func (m *Model) shearAt(z float64) float64 {
	for i := 0; i+1 < len(m.points); i++ {
		a, b := m.points[i], m.points[i+1]
		if z <= b.depth && b.depth > a.depth {
			return a.vs + (b.vs-a.vs)*(z-a.depth)/(b.depth-a.depth)
		}
	}
	return m.points[len(m.points)-1].vs
}

// MaxDepthKm is the deepest source depth the model can answer for.
func (m *Model) MaxDepthKm() float64 { return m.bottom }
