package resources

import (
	"fmt"
	"image"
	"strings"

	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-rc/engine/cfg"
	"github.com/spaghettifunk/anima-rc/engine/math"
)

type ResourceType int

/** @brief Pre-defined resource types. The order is part of the data below. */
const (
	/** @brief Key/value configuration store. */
	ResourceTypeConfig ResourceType = iota
	/** @brief Console script source text. */
	ResourceTypeConsoleScript
	/** @brief Entity definition (key/value store). */
	ResourceTypeEntity
	/** @brief Game script source text. */
	ResourceTypeGameScript
	/** @brief Opaque map data. */
	ResourceTypeMap
	/** @brief Material: colour, alpha and an optional texture. */
	ResourceTypeMaterial
	/** @brief Model: geometry parts, each with a material. */
	ResourceTypeModel
	/** @brief Player model definition (key/value store). */
	ResourceTypePlayerModel
	/** @brief Prop definition (key/value store). */
	ResourceTypeProp
	/** @brief Sound, either PCM or still compressed. */
	ResourceTypeSound
	/** @brief Texture image. */
	ResourceTypeTexture

	ResourceTypeCount
)

var typeNames = [ResourceTypeCount]string{
	"config",
	"console_script",
	"entity",
	"game_script",
	"map",
	"material",
	"model",
	"player_model",
	"prop",
	"sound",
	"texture",
}

func (t ResourceType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("resource_type(%d)", int(t))
	}
	return typeNames[t]
}

func (t ResourceType) Valid() bool {
	return t >= 0 && t < ResourceTypeCount
}

// ParseResourceType accepts the names returned by String, case-insensitively.
func ParseResourceType(s string) (ResourceType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range typeNames {
		if name == s {
			return ResourceType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown resource type %q", s)
}

// Extensions lists, per type, the file extensions tried in order when a URI
// is resolved. An empty string tries the bare path.
var Extensions = [ResourceTypeCount][]string{
	ResourceTypeConfig:        {".cfg", ".txt"},
	ResourceTypeConsoleScript: {".psh", ".txt"},
	ResourceTypeEntity:        {".txt"},
	ResourceTypeGameScript:    {".pgs", ".txt"},
	ResourceTypeMap:           {".pmf"},
	ResourceTypeMaterial:      {".txt"},
	ResourceTypeModel:         {".p3m"},
	ResourceTypePlayerModel:   {".txt"},
	ResourceTypeProp:          {".txt"},
	ResourceTypeSound:         {".ogg", ".mp3", ".wav"},
	ResourceTypeTexture:       {".png", ".jpg", ".tga", ".bmp", ""},
}

// InitialGroupCapacity is the number of slots each type's group starts with.
var InitialGroupCapacity = [ResourceTypeCount]int{4, 2, 8, 8, 1, 16, 8, 2, 16, 16, 16}

/** @brief Texture resolution selector. Lower qualities are downscaled on load. */
type Quality int

const (
	QualityHigh Quality = iota
	QualityMedium
	QualityLow
)

func (q Quality) String() string {
	switch q {
	case QualityHigh:
		return "high"
	case QualityMedium:
		return "medium"
	case QualityLow:
		return "low"
	}
	return fmt.Sprintf("quality(%d)", int(q))
}

// Divisor is the factor each texture dimension is divided by.
func (q Quality) Divisor() int {
	switch q {
	case QualityMedium:
		return 2
	case QualityLow:
		return 4
	}
	return 1
}

func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "high":
		return QualityHigh, nil
	case "medium":
		return QualityMedium, nil
	case "low":
		return QualityLow, nil
	}
	return QualityHigh, fmt.Errorf("unknown quality %q", s)
}

/** @brief Parameters used when loading a texture. */
type TextureOptions struct {
	/** @brief Forces a 4 channel image. */
	NeedsAlpha bool
	Quality    Quality
}

/** @brief Parameters used when loading a material. */
type MaterialOptions struct {
	/** @brief Quality passed to the material's texture. */
	Quality Quality
}

/** @brief Parameters used when loading a model. */
type ModelOptions struct {
	/** @brief Quality passed to every part's material. */
	Quality Quality
}

// Handle is an opaque reference to a cached resource. The zero value is the
// invalid handle. A handle goes stale once its entry is destroyed, even if the
// slot is reused.
type Handle struct {
	Type       ResourceType
	Index      uint32
	Generation uint32
	// Owner is the id of the cache that issued the handle.
	Owner uuid.UUID
}

func (h Handle) IsValid() bool {
	return h.Owner != uuid.Nil
}

func (h Handle) String() string {
	if !h.IsValid() {
		return "invalid"
	}
	return fmt.Sprintf("%s#%d.%d", h.Type, h.Index, h.Generation)
}

/**
 * @brief The bookkeeping shared by every cache entry.
 */
type Header struct {
	Type ResourceType
	/** @brief Slot position inside the type's group. */
	Index uint32
	/** @brief The resolved file path the entry was decoded from. */
	Path string
	/** @brief crc32 of Path, compared before the full path. */
	PathHash   uint32
	Refs       int
	Generation uint32
}

// Payload is the decoded content of an entry. It is implemented by exactly
// one struct per decodable type.
type Payload interface {
	payload()
}

type Config struct {
	Store *cfg.Store
}

// Script is the payload of console and game scripts.
type Script struct {
	Text string
}

// Definition is the payload of entity, prop and player model definitions.
type Definition struct {
	Store *cfg.Store
}

type Map struct {
	Data []byte
}

/**
 * @brief A decoded material.
 */
type Material struct {
	Options MaterialOptions
	/** @brief The material's texture, or the invalid handle when it has none. */
	Texture Handle
	/** @brief RGB colour, white by default. */
	Color math.Vec3
	/** @brief Opacity, 1 by default. */
	Alpha float32
}

/**
 * @brief The vertex and index data of one model part.
 */
type Geometry struct {
	Vertices []math.Vertex3D
	Indices  []uint32
	Extents  math.Extents3D
}

// Model keeps Geometry and Materials parallel: part i uses Materials[i].
type Model struct {
	Options   ModelOptions
	Geometry  []Geometry
	Materials []Handle
}

// Parts returns the number of parts of the model.
func (m *Model) Parts() int {
	return len(m.Geometry)
}

/** @brief Encoding of a Sound payload's Data. */
type SoundFormat int

const (
	/** @brief Interleaved PCM samples. */
	SoundFormatPCM SoundFormat = iota
	SoundFormatOgg
	SoundFormatMP3
)

func (f SoundFormat) String() string {
	switch f {
	case SoundFormatPCM:
		return "pcm"
	case SoundFormatOgg:
		return "ogg"
	case SoundFormatMP3:
		return "mp3"
	}
	return fmt.Sprintf("sound_format(%d)", int(f))
}

/**
 * @brief A decoded or still compressed sound.
 */
type Sound struct {
	Format SoundFormat
	/** @brief PCM samples when Format is SoundFormatPCM, the file bytes otherwise. */
	Data []byte
	/** @brief Length in frames. */
	Len      int
	Freq     int
	Channels int
	Stereo   bool
	/** @brief 8-bit unsigned samples when set, 16-bit signed little endian otherwise. */
	Is8Bit bool
}

func (s *Sound) BitDepth() int {
	if s.Is8Bit {
		return 8
	}
	return 16
}

/**
 * @brief A decoded texture.
 */
type Texture struct {
	Options TextureOptions
	/** @brief The (possibly downscaled) pixels, always 4 bytes per pixel. */
	Image  *image.NRGBA
	Width  int
	Height int
	/**
	 * @brief Logical channel count: 3 (RGB, alpha ignored) or 4 (RGBA). The
	 * buffer keeps an alpha byte either way; with 3 channels it is opaque for
	 * opaque sources.
	 */
	Channels int
}

func (*Config) payload()     {}
func (*Script) payload()     {}
func (*Definition) payload() {}
func (*Map) payload()        {}
func (*Material) payload()   {}
func (*Model) payload()      {}
func (*Sound) payload()      {}
func (*Texture) payload()    {}
