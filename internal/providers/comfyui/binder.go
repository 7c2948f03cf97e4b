package comfyui

import (
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"tryon/internal/domain"
)

// maxSeed keeps randomized seeds exactly representable as JSON numbers.
const maxSeed = 1 << 50

// Bind validates tmpl, clones it and writes the uploaded asset names into the
// person and garment slots. A slot missing from the template is skipped. The
// assignment is read back before the graph is returned.
func Bind(tmpl *Template, personName, garmentName string) (Graph, error) {
	if tmpl == nil {
		return nil, &domain.ShapeError{Defect: domain.DefectEmptyGraph, Msg: "ComfyUI workflow JSON is required"}
	}
	if err := ValidateShape(tmpl.nodes); err != nil {
		return nil, err
	}
	g := tmpl.Clone()
	setImage(g, PersonSlot, personName)
	setImage(g, GarmentSlot, garmentName)
	if err := AssertUsesImages(g, personName, garmentName); err != nil {
		return nil, err
	}
	return g, nil
}

// AssertUsesImages checks that the reserved slots present in g hold the
// expected names. Empty expectations are not checked.
func AssertUsesImages(g Graph, personName, garmentName string) error {
	for _, slot := range []struct{ id, want string }{
		{PersonSlot, personName},
		{GarmentSlot, garmentName},
	} {
		if slot.want == "" {
			continue
		}
		if _, ok := g[slot.id].(map[string]any); !ok {
			continue
		}
		if got := imageOf(g, slot.id); got != slot.want {
			return &domain.BindingMismatch{Slot: slot.id, Expected: slot.want, Actual: got}
		}
	}
	return nil
}

// Refresh gives g per-run values so ComfyUI does not serve a cached result:
// KSampler seeds are randomized and SaveImage prefixes get a unique suffix.
// The reserved slots are never modified.
func Refresh(g Graph, rng *rand.Rand) {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	for id, v := range g {
		if id == PersonSlot || id == GarmentSlot {
			continue
		}
		node, ok := v.(map[string]any)
		if !ok {
			continue
		}
		inputs, ok := node["inputs"].(map[string]any)
		if !ok {
			continue
		}
		switch node["class_type"] {
		case "KSampler":
			inputs["seed"] = seed(rng)
		case "KSamplerAdvanced":
			inputs["noise_seed"] = seed(rng)
		case "SaveImage":
			prefix, _ := inputs["filename_prefix"].(string)
			if prefix == "" {
				prefix = "ComfyUI"
			}
			inputs["filename_prefix"] = prefix + "_tryon_" + token
		}
	}
}

func seed(rng *rand.Rand) int64 {
	if rng == nil {
		return rand.Int64N(maxSeed)
	}
	return rng.Int64N(maxSeed)
}

func setImage(g Graph, slot, name string) {
	node, ok := g[slot].(map[string]any)
	if !ok {
		return
	}
	inputs, ok := node["inputs"].(map[string]any)
	if !ok {
		inputs = map[string]any{}
		node["inputs"] = inputs
	}
	inputs["image"] = name
}
