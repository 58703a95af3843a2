package handlers

import (
	"context"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/benasterisk/stemtube/internal/database"
)

type SettingsHandler struct {
	settings *database.SettingsStore
	defaults SettingsDTO
}

// SettingsDTO mirrors the runtime-adjustable settings. Unset keys fall back
// to the configured defaults.
type SettingsDTO struct {
	VideoQuality         string `json:"video_quality" doc:"Default video download quality"`
	AudioQuality         string `json:"audio_quality" doc:"Default audio download quality"`
	MaxConcurrent        int    `json:"max_concurrent" doc:"Concurrent download limit"`
	UseGPU               bool   `json:"use_gpu" doc:"Run separation on the GPU"`
	MaxConcurrentExtract int    `json:"max_concurrent_extractions" doc:"Concurrent extraction limit with GPU"`
	DefaultModel         string `json:"default_model" doc:"Default separation model"`
}

func NewSettingsHandler(settings *database.SettingsStore, defaults SettingsDTO) *SettingsHandler {
	return &SettingsHandler{settings: settings, defaults: defaults}
}

func (h *SettingsHandler) Get(_ context.Context, _ *EmptyInput) (*DataOutput[SettingsDTO], error) {
	d := h.defaults
	return OK(SettingsDTO{
		VideoQuality:         h.settings.Get("video_quality", d.VideoQuality),
		AudioQuality:         h.settings.Get("audio_quality", d.AudioQuality),
		MaxConcurrent:        h.settings.GetInt("max_concurrent", d.MaxConcurrent),
		UseGPU:               h.settings.GetBool("use_gpu", d.UseGPU),
		MaxConcurrentExtract: h.settings.GetInt("max_concurrent_extractions", d.MaxConcurrentExtract),
		DefaultModel:         h.settings.Get("default_model", d.DefaultModel),
	}), nil
}

type UpdateSettingsInput struct {
	Body struct {
		VideoQuality         *string `json:"video_quality,omitempty" enum:"best,4K,1080p,720p,480p,360p" doc:"Default video download quality"`
		AudioQuality         *string `json:"audio_quality,omitempty" doc:"Default audio download quality"`
		MaxConcurrent        *int    `json:"max_concurrent,omitempty" minimum:"1" maximum:"10" doc:"Concurrent download limit"`
		UseGPU               *bool   `json:"use_gpu,omitempty" doc:"Run separation on the GPU"`
		MaxConcurrentExtract *int    `json:"max_concurrent_extractions,omitempty" minimum:"1" maximum:"4" doc:"Concurrent extraction limit with GPU"`
		DefaultModel         *string `json:"default_model,omitempty" doc:"Default separation model"`
	}
}

// Update persists the provided fields. Running jobs keep their parameters;
// concurrency changes apply from the next worker iteration.
func (h *SettingsHandler) Update(ctx context.Context, input *UpdateSettingsInput) (*DataOutput[SettingsDTO], error) {
	b := input.Body
	set := func(key string, value *string) error {
		if value == nil {
			return nil
		}
		return h.settings.Set(ctx, key, *value)
	}
	setInt := func(key string, value *int) error {
		if value == nil {
			return nil
		}
		return h.settings.Set(ctx, key, strconv.Itoa(*value))
	}

	var err error
	if err = set("video_quality", b.VideoQuality); err == nil {
		err = set("audio_quality", b.AudioQuality)
	}
	if err == nil {
		err = setInt("max_concurrent", b.MaxConcurrent)
	}
	if err == nil && b.UseGPU != nil {
		err = h.settings.Set(ctx, "use_gpu", strconv.FormatBool(*b.UseGPU))
	}
	if err == nil {
		err = setInt("max_concurrent_extractions", b.MaxConcurrentExtract)
	}
	if err == nil {
		err = set("default_model", b.DefaultModel)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to store settings", err)
	}

	return h.Get(ctx, nil)
}
