package regmap

import (
	"fmt"
	"strings"

	"github.com/aldas/go-canxl-regs"
	"github.com/aldas/go-canxl-regs/regmap/definitions"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// EmbeddedFileName returns name of embedded register map file for variant sub-block.
func EmbeddedFileName(v canxl.Variant, b canxl.Block) string {
	return strings.ToLower(string(v)) + "_" + strings.ToLower(string(b)) + ".json"
}

// LoadEmbedded loads register map that is compiled into the binary.
func LoadEmbedded(v canxl.Variant, b canxl.Block) (Schema, error) {
	if err := canxl.CheckSupported(v, b); err != nil {
		return Schema{}, err
	}
	return LoadSchema(definitions.FS, EmbeddedFileName(v, b))
}

// EmbeddedSchemas loads all register maps that are compiled into the binary.
func EmbeddedSchemas() ([]Schema, error) {
	result := make([]Schema, 0, 6)
	for _, v := range canxl.Variants() {
		for _, b := range canxl.SupportedBlocks(v) {
			s, err := LoadEmbedded(v, b)
			if err != nil {
				return nil, err
			}
			result = append(result, s)
		}
	}
	return result, nil
}

type registryKey struct {
	variant canxl.Variant
	block   canxl.Block
}

func (k registryKey) String() string {
	return string(k.variant) + "/" + string(k.block)
}

// Registry holds decoders of all supported variant sub-blocks.
type Registry struct {
	decoders map[registryKey]*Decoder
}

// NewRegistry creates decoders for all embedded register maps. Overlays are merged into register maps of their
// variant sub-block in given order.
func NewRegistry(config DecoderConfig, overlays ...Overlay) (*Registry, error) {
	schemas, err := EmbeddedSchemas()
	if err != nil {
		return nil, err
	}
	r := &Registry{decoders: make(map[registryKey]*Decoder, len(schemas))}
	for _, s := range schemas {
		for _, o := range overlays {
			if o.Variant != s.Variant || o.Block != s.Block {
				continue
			}
			if s, err = s.Merge(o); err != nil {
				return nil, err
			}
		}
		r.decoders[registryKey{variant: s.Variant, block: s.Block}] = NewDecoderWithConfig(s, config)
	}
	return r, nil
}

// Decoder returns decoder for variant sub-block.
func (r *Registry) Decoder(v canxl.Variant, b canxl.Block) (*Decoder, error) {
	if err := canxl.CheckSupported(v, b); err != nil {
		return nil, err
	}
	d, ok := r.decoders[registryKey{variant: v, block: b}]
	if !ok {
		return nil, fmt.Errorf("%w: %v/%v", canxl.ErrUnsupportedBlock, v, b)
	}
	return d, nil
}

// Modules returns sorted `VARIANT/BLOCK` names of all decoders in registry.
func (r *Registry) Modules() []string {
	keys := maps.Keys(r.decoders)
	result := make([]string, 0, len(keys))
	for _, k := range keys {
		result = append(result, k.String())
	}
	slices.Sort(result)
	return result
}
