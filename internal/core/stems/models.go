package stems

// Model describes one separation model and the stems it produces.
type Model struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Stems       []string `json:"stems"`
}

// Models is the catalog of supported separation models, keyed by the name
// passed to the separator binary.
var Models = map[string]Model{
	"htdemucs": {
		Name:        "htdemucs",
		Description: "Hybrid Transformer Demucs (default, 4 stems)",
		Stems:       []string{"vocals", "drums", "bass", "other"},
	},
	"htdemucs_6s": {
		Name:        "htdemucs_6s",
		Description: "Hybrid Transformer Demucs, 6 stem variant",
		Stems:       []string{"vocals", "drums", "bass", "guitar", "piano", "other"},
	},
	"htdemucs_ft": {
		Name:        "htdemucs_ft",
		Description: "Fine-tuned Hybrid Transformer Demucs (slower, higher quality)",
		Stems:       []string{"vocals", "drums", "bass", "other"},
	},
}

// DefaultModel is used when a request names no model.
const DefaultModel = "htdemucs"

// ModelStems returns the stems a model produces, falling back to the
// default model's catalog entry for unknown names.
func ModelStems(model string) []string {
	if m, ok := Models[model]; ok {
		return append([]string(nil), m.Stems...)
	}
	return append([]string(nil), Models[DefaultModel].Stems...)
}
