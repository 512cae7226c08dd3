package loaders

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/spaghettifunk/anima-rc/engine/math"
	"github.com/spaghettifunk/anima-rc/engine/resources"
)

// p3m container:
//
//	"P3M" version:u8 flags:u8 parts:u16
//	per part:
//	  material uri  len:u16 bytes
//	  vertices      count:u32 (8 x f32: position, normal, uv)
//	  indices       count:u32 u32...
//
// Little endian. With ModelFlagZstd set, everything after the header is one
// zstd frame.
const (
	modelMagic   = "P3M"
	ModelVersion = 1

	ModelFlagZstd uint8 = 0x1
)

const (
	maxModelParts   = 1 << 12
	maxPartVertices = 1 << 24
	maxPartIndices  = 1 << 26
)

var ErrBadModel = errors.New("malformed p3m model")

// ModelPart is one part of a model being encoded.
type ModelPart struct {
	Material string
	Vertices []math.Vertex3D
	Indices  []uint32
}

// EncodeModel writes parts in the p3m format.
func EncodeModel(w io.Writer, parts []ModelPart, compress bool) error {
	if len(parts) > maxModelParts {
		return fmt.Errorf("too many model parts: %d", len(parts))
	}
	flags := uint8(0)
	if compress {
		flags |= ModelFlagZstd
	}
	header := []byte(modelMagic)
	header = append(header, ModelVersion, flags)
	header = binary.LittleEndian.AppendUint16(header, uint16(len(parts)))
	if _, err := w.Write(header); err != nil {
		return err
	}

	var body bytes.Buffer
	for _, p := range parts {
		if len(p.Material) > 0xffff {
			return fmt.Errorf("material uri too long: %d bytes", len(p.Material))
		}
		binary.Write(&body, binary.LittleEndian, uint16(len(p.Material)))
		body.WriteString(p.Material)
		binary.Write(&body, binary.LittleEndian, uint32(len(p.Vertices)))
		for _, v := range p.Vertices {
			binary.Write(&body, binary.LittleEndian, [8]float32{
				v.Position.X, v.Position.Y, v.Position.Z,
				v.Normal.X, v.Normal.Y, v.Normal.Z,
				v.Texcoord.X, v.Texcoord.Y,
			})
		}
		binary.Write(&body, binary.LittleEndian, uint32(len(p.Indices)))
		binary.Write(&body, binary.LittleEndian, p.Indices)
	}

	if !compress {
		_, err := w.Write(body.Bytes())
		return err
	}
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if _, err := io.Copy(enc, &body); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// DecodeModel reads a p3m stream.
func DecodeModel(r io.Reader) ([]ModelPart, error) {
	var header [7]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrBadModel)
	}
	if string(header[:3]) != modelMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrBadModel)
	}
	if header[3] != ModelVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadModel, header[3])
	}
	flags := header[4]
	count := int(binary.LittleEndian.Uint16(header[5:]))
	if count > maxModelParts {
		return nil, fmt.Errorf("%w: %d parts", ErrBadModel, count)
	}

	body := r
	if flags&ModelFlagZstd != 0 {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		body = dec
	}
	br := bufio.NewReader(body)

	parts := make([]ModelPart, 0, count)
	for i := 0; i < count; i++ {
		p, err := readPart(br)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
		parts = append(parts, p)
	}
	return parts, nil
}

func readPart(r io.Reader) (ModelPart, error) {
	var p ModelPart

	var nameLen uint16
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return p, fmt.Errorf("%w: %s", ErrBadModel, err)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return p, fmt.Errorf("%w: %s", ErrBadModel, err)
	}
	p.Material = string(name)

	var nv uint32
	if err := binary.Read(r, binary.LittleEndian, &nv); err != nil {
		return p, fmt.Errorf("%w: %s", ErrBadModel, err)
	}
	if nv > maxPartVertices {
		return p, fmt.Errorf("%w: %d vertices", ErrBadModel, nv)
	}
	vertices, err := readVertices(r, int(nv))
	if err != nil {
		return p, err
	}
	p.Vertices = vertices

	var ni uint32
	if err := binary.Read(r, binary.LittleEndian, &ni); err != nil {
		return p, fmt.Errorf("%w: %s", ErrBadModel, err)
	}
	if ni > maxPartIndices {
		return p, fmt.Errorf("%w: %d indices", ErrBadModel, ni)
	}
	indices, err := readIndices(r, int(ni))
	if err != nil {
		return p, err
	}
	p.Indices = indices
	for _, idx := range p.Indices {
		if idx >= nv {
			return p, fmt.Errorf("%w: index %d out of range (%d vertices)", ErrBadModel, idx, nv)
		}
	}
	return p, nil
}

// Counts come from the file, so slices grow with the data actually read
// rather than being sized up front.
const readChunk = 4096

func readVertices(r io.Reader, n int) ([]math.Vertex3D, error) {
	out := make([]math.Vertex3D, 0, min(n, readChunk))
	buf := make([]float32, min(n, readChunk)*8)
	for len(out) < n {
		batch := buf[:min(n-len(out), readChunk)*8]
		if err := binary.Read(r, binary.LittleEndian, batch); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBadModel, err)
		}
		for f := batch; len(f) >= 8; f = f[8:] {
			out = append(out, math.Vertex3D{
				Position: math.Vec3{X: f[0], Y: f[1], Z: f[2]},
				Normal:   math.Vec3{X: f[3], Y: f[4], Z: f[5]},
				Texcoord: math.Vec2{X: f[6], Y: f[7]},
			})
		}
	}
	return out, nil
}

func readIndices(r io.Reader, n int) ([]uint32, error) {
	out := make([]uint32, 0, min(n, readChunk))
	buf := make([]uint32, min(n, readChunk))
	for len(out) < n {
		batch := buf[:min(n-len(out), readChunk)]
		if err := binary.Read(r, binary.LittleEndian, batch); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBadModel, err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

type ModelLoader struct{}

func (ml *ModelLoader) Params(params interface{}) (interface{}, error) {
	var opts resources.ModelOptions
	switch p := params.(type) {
	case nil:
	case resources.ModelOptions:
		opts = p
	case *resources.ModelOptions:
		if p != nil {
			opts = *p
		}
	default:
		return nil, fmt.Errorf("model options must be resources.ModelOptions, got %T", params)
	}
	if opts.Quality < resources.QualityHigh || opts.Quality > resources.QualityLow {
		return nil, fmt.Errorf("invalid model quality %d", opts.Quality)
	}
	return opts, nil
}

func (ml *ModelLoader) Load(req *Request) (resources.Payload, error) {
	opts := req.Params.(resources.ModelOptions)

	f, err := os.Open(req.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	parts, err := DecodeModel(f)
	if err != nil {
		return nil, err
	}

	m := &resources.Model{
		Options:   opts,
		Geometry:  make([]resources.Geometry, 0, len(parts)),
		Materials: make([]resources.Handle, 0, len(parts)),
	}
	for i, p := range parts {
		h, err := req.Deps.Load(resources.ResourceTypeMaterial, p.Material, resources.MaterialOptions{Quality: opts.Quality})
		if err != nil {
			ml.Unload(m, req.Deps)
			return nil, fmt.Errorf("part %d material %s: %w", i, p.Material, err)
		}
		m.Materials = append(m.Materials, h)
		m.Geometry = append(m.Geometry, resources.Geometry{
			Vertices: p.Vertices,
			Indices:  p.Indices,
			Extents:  math.Bounds(p.Vertices),
		})
	}
	return m, nil
}

func (ml *ModelLoader) Unload(p resources.Payload, deps Dependencies) {
	m, ok := p.(*resources.Model)
	if !ok {
		return
	}
	for _, h := range m.Materials {
		deps.Release(h)
	}
	m.Materials = nil
	m.Geometry = nil
}

func (ml *ModelLoader) Matches(stored, requested interface{}, p resources.Payload) bool {
	return stored.(resources.ModelOptions).Quality == requested.(resources.ModelOptions).Quality
}
