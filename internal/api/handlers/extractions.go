package handlers

import (
	"context"
	"os"

	"github.com/danielgtaylor/huma/v2"

	"github.com/benasterisk/stemtube/internal/api/middleware"
	"github.com/benasterisk/stemtube/internal/core/session"
	"github.com/benasterisk/stemtube/internal/core/stems"
)

type ExtractionsHandler struct {
	sessions *session.Registry
}

func NewExtractionsHandler(sessions *session.Registry) *ExtractionsHandler {
	return &ExtractionsHandler{sessions: sessions}
}

type ExtractionDTO struct {
	ID            string            `json:"id" doc:"Extraction ID"`
	AudioPath     string            `json:"audio_path" doc:"Source audio file"`
	Model         string            `json:"model" doc:"Separation model"`
	OutputDir     string            `json:"output_dir" doc:"Destination directory"`
	SelectedStems []string          `json:"selected_stems" doc:"Requested stems"`
	TwoStemMode   bool              `json:"two_stem_mode" doc:"Primary stem plus complement"`
	PrimaryStem   string            `json:"primary_stem,omitempty" doc:"Primary stem in two-stem mode"`
	Status        string            `json:"status" doc:"Lifecycle status"`
	Progress      float64           `json:"progress" doc:"Progress percentage"`
	Message       string            `json:"message,omitempty" doc:"Current stage description"`
	OutputPaths   map[string]string `json:"output_paths,omitempty" doc:"Stem name to file path"`
	ZipPath       string            `json:"zip_path,omitempty" doc:"Archive of all stems"`
	Error         string            `json:"error,omitempty" doc:"Failure reason"`
}

func extractionDTO(it *stems.Item) ExtractionDTO {
	return ExtractionDTO{
		ID:            it.ID,
		AudioPath:     it.AudioPath,
		Model:         it.Model,
		OutputDir:     it.OutputDir,
		SelectedStems: it.SelectedStems,
		TwoStemMode:   it.TwoStemMode,
		PrimaryStem:   it.PrimaryStem,
		Status:        string(it.Status),
		Progress:      it.Progress,
		Message:       it.Message,
		OutputPaths:   it.OutputPaths,
		ZipPath:       it.ZipPath,
		Error:         it.ErrorMessage,
	}
}

type ExtractionListDTO struct {
	Active    []ExtractionDTO `json:"active"`
	Queued    []ExtractionDTO `json:"queued"`
	Completed []ExtractionDTO `json:"completed"`
	Failed    []ExtractionDTO `json:"failed"`
}

func (h *ExtractionsHandler) List(ctx context.Context, _ *EmptyInput) (*DataOutput[ExtractionListDTO], error) {
	snap := h.sessions.Get(middleware.SessionID(ctx)).Extractions.List()
	return OK(ExtractionListDTO{
		Active:    extractionDTOs(snap.Active),
		Queued:    extractionDTOs(snap.Queued),
		Completed: extractionDTOs(snap.Completed),
		Failed:    extractionDTOs(snap.Failed),
	}), nil
}

func extractionDTOs(items []*stems.Item) []ExtractionDTO {
	out := make([]ExtractionDTO, 0, len(items))
	for _, it := range items {
		out = append(out, extractionDTO(it))
	}
	return out
}

type ExtractionIDInput struct {
	ID string `path:"id" doc:"Extraction ID"`
}

func (h *ExtractionsHandler) Get(ctx context.Context, input *ExtractionIDInput) (*DataOutput[ExtractionDTO], error) {
	it, ok := h.sessions.Get(middleware.SessionID(ctx)).Extractions.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("extraction not found")
	}
	return OK(extractionDTO(it)), nil
}

type AddExtractionInput struct {
	Body struct {
		AudioPath     string   `json:"audio_path" minLength:"1" doc:"Path to the audio file to separate"`
		Model         string   `json:"model,omitempty" doc:"Separation model; defaults come from settings"`
		OutputDir     string   `json:"output_dir,omitempty" doc:"Destination directory; falls back to the default when unwritable"`
		SelectedStems []string `json:"selected_stems,omitempty" doc:"Stems to keep; defaults to all the model produces"`
		TwoStemMode   bool     `json:"two_stem_mode,omitempty" doc:"Produce the primary stem plus the mix of everything else"`
		PrimaryStem   string   `json:"primary_stem,omitempty" doc:"Primary stem in two-stem mode"`
	}
}

func (h *ExtractionsHandler) Add(ctx context.Context, input *AddExtractionInput) (*DataOutput[ExtractionDTO], error) {
	if _, err := os.Stat(input.Body.AudioPath); err != nil {
		return nil, huma.Error422UnprocessableEntity("audio file does not exist")
	}

	model := input.Body.Model
	if model == "" {
		model = stems.DefaultModel
	}
	m, ok := stems.Models[model]
	if !ok {
		return nil, huma.Error422UnprocessableEntity("unknown model: " + model)
	}

	available := make(map[string]bool, len(m.Stems))
	for _, s := range m.Stems {
		available[s] = true
	}
	for _, s := range input.Body.SelectedStems {
		if !available[s] {
			return nil, huma.Error422UnprocessableEntity("model " + model + " does not produce stem " + s)
		}
	}
	if input.Body.TwoStemMode {
		if input.Body.PrimaryStem == "" {
			return nil, huma.Error422UnprocessableEntity("two-stem mode requires a primary stem")
		}
		if !available[input.Body.PrimaryStem] {
			return nil, huma.Error422UnprocessableEntity("model " + model + " does not produce stem " + input.Body.PrimaryStem)
		}
	}

	item := stems.NewItem(input.Body.AudioPath, model, input.Body.SelectedStems)
	item.OutputDir = input.Body.OutputDir
	item.TwoStemMode = input.Body.TwoStemMode
	item.PrimaryStem = input.Body.PrimaryStem

	dto := extractionDTO(item)
	mgr := h.sessions.Get(middleware.SessionID(ctx)).Extractions
	id := mgr.Add(item)
	// Re-read the record so the response reflects an output dir fallback.
	if got, ok := mgr.Get(id); ok {
		dto = extractionDTO(got)
	}
	return OK(dto), nil
}

func (h *ExtractionsHandler) Cancel(ctx context.Context, input *ExtractionIDInput) (*MsgOutput, error) {
	if !h.sessions.Get(middleware.SessionID(ctx)).Extractions.Cancel(input.ID) {
		return nil, huma.Error404NotFound("extraction not found or already finished")
	}
	return Msg("extraction cancelled"), nil
}
