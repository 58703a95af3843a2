package handlers

import (
	"context"
	"sort"
	"time"

	"github.com/benasterisk/stemtube/internal/core/stems"
)

// ToolChecker probes one external tool.
type ToolChecker interface {
	Health(ctx context.Context) (version string, latency time.Duration, err error)
}

type SystemHandler struct {
	tools map[string]ToolChecker
}

func NewSystemHandler(tools map[string]ToolChecker) *SystemHandler {
	return &SystemHandler{tools: tools}
}

type ModelDTO struct {
	Name        string   `json:"name" doc:"Model name"`
	Description string   `json:"description" doc:"Human description"`
	Stems       []string `json:"stems" doc:"Stems the model produces"`
	Default     bool     `json:"default" doc:"Used when no model is requested"`
}

func (h *SystemHandler) Models(_ context.Context, _ *EmptyInput) (*DataOutput[[]ModelDTO], error) {
	out := make([]ModelDTO, 0, len(stems.Models))
	for name, m := range stems.Models {
		out = append(out, ModelDTO{
			Name:        m.Name,
			Description: m.Description,
			Stems:       m.Stems,
			Default:     name == stems.DefaultModel,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return OK(out), nil
}

type ToolStatusDTO struct {
	Available bool   `json:"available" doc:"Tool responded to a probe"`
	Version   string `json:"version,omitempty" doc:"Reported version"`
	LatencyMS int64  `json:"latency_ms" doc:"Probe round-trip time"`
	Error     string `json:"error,omitempty" doc:"Probe failure"`
}

// Tools probes every configured external tool. Failures are reported per
// tool, not as a request error.
func (h *SystemHandler) Tools(ctx context.Context, _ *EmptyInput) (*DataOutput[map[string]ToolStatusDTO], error) {
	out := make(map[string]ToolStatusDTO, len(h.tools))
	for name, checker := range h.tools {
		version, latency, err := checker.Health(ctx)
		status := ToolStatusDTO{Available: err == nil, Version: version, LatencyMS: latency.Milliseconds()}
		if err != nil {
			status.Error = err.Error()
		}
		out[name] = status
	}
	return OK(out), nil
}
