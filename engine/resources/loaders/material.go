package loaders

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spaghettifunk/anima-rc/engine/cfg"
	"github.com/spaghettifunk/anima-rc/engine/core"
	"github.com/spaghettifunk/anima-rc/engine/math"
	"github.com/spaghettifunk/anima-rc/engine/resources"
)

// maxBaseDepth bounds the chain of `base` materials merged into one.
const maxBaseDepth = 16

// MaterialLoader reads material files:
//
//	base = "other_material"    # merged in, keys here win
//	texture = "textures/brick"
//	color = 1.0, 0.5, 0.5
//	alpha = 0.75
type MaterialLoader struct{}

func (ml *MaterialLoader) Params(params interface{}) (interface{}, error) {
	var opts resources.MaterialOptions
	switch p := params.(type) {
	case nil:
	case resources.MaterialOptions:
		opts = p
	case *resources.MaterialOptions:
		if p != nil {
			opts = *p
		}
	default:
		return nil, fmt.Errorf("material options must be resources.MaterialOptions, got %T", params)
	}
	if opts.Quality < resources.QualityHigh || opts.Quality > resources.QualityLow {
		return nil, fmt.Errorf("invalid material quality %d", opts.Quality)
	}
	return opts, nil
}

func (ml *MaterialLoader) Load(req *Request) (resources.Payload, error) {
	opts := req.Params.(resources.MaterialOptions)

	mat, err := cfg.Open(req.Path)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	mergeBases(mat, req)

	m := &resources.Material{
		Options: opts,
		Color:   math.Vec3{X: 1, Y: 1, Z: 1},
		Alpha:   1,
	}
	if tex, ok := mat.Get("", "texture"); ok && tex != "" {
		h, err := req.Deps.Load(resources.ResourceTypeTexture, tex, resources.TextureOptions{
			NeedsAlpha: false,
			Quality:    opts.Quality,
		})
		if err != nil {
			core.LogWarn("Material %s: failed to load texture %s: %s", req.URI, tex, err)
		} else {
			m.Texture = h
		}
	}
	if v, ok := mat.Get("", "color"); ok {
		c := [3]float32{1, 1, 1}
		scanFloats(v, c[:])
		m.Color = math.Vec3{X: c[0], Y: c[1], Z: c[2]}
	}
	if v, ok := mat.Get("", "alpha"); ok {
		a := [1]float32{1}
		scanFloats(v, a[:])
		m.Alpha = a[0]
	}
	return m, nil
}

func mergeBases(mat *cfg.Store, req *Request) {
	seen := map[string]bool{req.Path: true}
	cur := mat
	defer func() {
		if cur != mat {
			cur.Close()
		}
	}()
	for depth := 0; depth < maxBaseDepth; depth++ {
		base, ok := cur.Get("", "base")
		if !ok || base == "" {
			return
		}
		path, _, err := req.Deps.Resolve(base, resources.ResourceTypeMaterial)
		if err != nil {
			core.LogWarn("Material %s: cannot resolve base %s: %s", req.URI, base, err)
			return
		}
		if seen[path] {
			core.LogWarn("Material %s: base chain loops at %s", req.URI, path)
			return
		}
		seen[path] = true
		next, err := cfg.Open(path)
		if err != nil {
			core.LogWarn("Material %s: cannot read base %s: %s", req.URI, path, err)
			return
		}
		mat.Merge(next, false)
		if cur != mat {
			cur.Close()
		}
		cur = next
	}
	core.LogWarn("Material %s: base chain deeper than %d, ignoring the rest", req.URI, maxBaseDepth)
}

func (ml *MaterialLoader) Unload(p resources.Payload, deps Dependencies) {
	m, ok := p.(*resources.Material)
	if !ok {
		return
	}
	if m.Texture.IsValid() {
		deps.Release(m.Texture)
		m.Texture = resources.Handle{}
	}
}

func (ml *MaterialLoader) Matches(stored, requested interface{}, p resources.Payload) bool {
	return stored.(resources.MaterialOptions).Quality == requested.(resources.MaterialOptions).Quality
}

// scanFloats parses comma separated floats into out, stopping at the first
// field that does not start with a number. Fields after that keep their value.
func scanFloats(s string, out []float32) int {
	fields := strings.Split(s, ",")
	n := 0
	for n < len(out) && n < len(fields) {
		f, ok := leadingFloat(fields[n])
		if !ok {
			break
		}
		out[n] = f
		n++
	}
	return n
}

// leadingFloat parses the longest numeric prefix of s after leading blanks.
func leadingFloat(s string) (float32, bool) {
	s = strings.TrimLeft(s, " \t\n")
	for end := len(s); end > 0; end-- {
		if f, err := strconv.ParseFloat(s[:end], 32); err == nil {
			return float32(f), true
		}
	}
	return 0, false
}
