package comfyui

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"tryon/internal/domain"
)

// Reserved node ids receiving the caller's images.
const (
	PersonSlot  = "78"
	GarmentSlot = "106"
)

// DefaultTemplateVersion identifies the embedded Qwen image-edit graph.
const DefaultTemplateVersion = "qwen-image-edit-2509"

//go:embed default_workflow.json
var defaultWorkflowJSON []byte

// Graph is a ComfyUI API-format prompt: node id -> {class_type, inputs, _meta}.
// Values are plain JSON trees (maps, slices, scalars).
type Graph map[string]any

// Template is an immutable, versioned graph. Callers only ever receive clones.
type Template struct {
	version string
	nodes   Graph
}

// NewTemplate snapshots nodes into a template; later changes to nodes are
// not observed.
func NewTemplate(version string, nodes map[string]any) *Template {
	return &Template{version: version, nodes: cloneGraph(nodes)}
}

// Version returns the template identifier.
func (t *Template) Version() string { return t.version }

// Len returns the number of top-level entries.
func (t *Template) Len() int { return len(t.nodes) }

// Clone returns a deep copy safe to mutate.
func (t *Template) Clone() Graph { return cloneGraph(t.nodes) }

// ImageOf returns the image assigned to slot in the template itself.
func (t *Template) ImageOf(slot string) string { return imageOf(t.nodes, slot) }

var defaultTemplate = sync.OnceValue(func() *Template {
	tmpl, err := ParseTemplate(DefaultTemplateVersion, defaultWorkflowJSON)
	if err != nil {
		panic(fmt.Sprintf("comfyui: embedded workflow: %v", err))
	}
	return tmpl
})

// DefaultTemplate returns the embedded person/garment try-on graph.
func DefaultTemplate() *Template {
	return defaultTemplate()
}

// ParseTemplate decodes a JSON API-format export. Numbers keep their exact
// textual form so large seeds survive the round trip.
func ParseTemplate(version string, data []byte) (*Template, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var nodes map[string]any
	if err := dec.Decode(&nodes); err != nil {
		return nil, &domain.ShapeError{Defect: domain.DefectMalformedPayload, Msg: err.Error()}
	}
	return &Template{version: version, nodes: nodes}, nil
}

// LoadTemplateFile reads a workflow export from disk. Files ending in .yaml
// or .yml are decoded as YAML, everything else as JSON. The version is the
// file name plus a content digest.
func LoadTemplateFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("comfyui: read workflow: %w", err)
	}
	sum := sha256.Sum256(data)
	version := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + "@" + hex.EncodeToString(sum[:6])

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &domain.ShapeError{Defect: domain.DefectMalformedPayload, Msg: err.Error()}
		}
		nodes, ok := normalizeYAML(raw).(map[string]any)
		if raw != nil && !ok {
			return nil, &domain.ShapeError{Defect: domain.DefectMalformedPayload, Msg: "workflow must be a mapping"}
		}
		return &Template{version: version, nodes: nodes}, nil
	default:
		return ParseTemplate(version, data)
	}
}

// ValidateShape rejects payloads that ComfyUI's /prompt endpoint cannot run.
func ValidateShape(nodes map[string]any) error {
	if len(nodes) == 0 {
		return &domain.ShapeError{Defect: domain.DefectEmptyGraph, Msg: "ComfyUI workflow JSON is required"}
	}
	if list, ok := nodes["nodes"]; ok {
		if _, isList := list.([]any); isList {
			return &domain.ShapeError{
				Defect: domain.DefectWrongFormat,
				Msg: "provided JSON looks like a ComfyUI UI workflow export (contains 'nodes'); " +
					"export the workflow in API prompt format (e.g. 'Save (API format)')",
			}
		}
	}
	for _, v := range nodes {
		if node, ok := v.(map[string]any); ok {
			if _, has := node["class_type"]; has {
				return nil
			}
		}
	}
	return &domain.ShapeError{
		Defect: domain.DefectNotExecutable,
		Msg:    "workflow must be a mapping of node_id -> {class_type, inputs}",
	}
}

func imageOf(g map[string]any, slot string) string {
	node, ok := g[slot].(map[string]any)
	if !ok {
		return ""
	}
	inputs, ok := node["inputs"].(map[string]any)
	if !ok {
		return ""
	}
	s, _ := inputs["image"].(string)
	return s
}

func cloneGraph(src map[string]any) Graph {
	if src == nil {
		return Graph{}
	}
	return Graph(cloneValue(src).(map[string]any))
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case Graph:
		return cloneValue(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// normalizeYAML converts map[any]any nodes, which yaml produces for
// non-string keys, into JSON-compatible maps.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return v
	}
}
