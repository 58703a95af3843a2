package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/benasterisk/stemtube/internal/youtube"
)

type SearchHandler struct {
	yt *youtube.Client
}

func NewSearchHandler(yt *youtube.Client) *SearchHandler {
	return &SearchHandler{yt: yt}
}

type SearchInput struct {
	Query string `query:"q" minLength:"1" doc:"Search query"`
	Limit int    `query:"limit" default:"20" minimum:"1" maximum:"50" doc:"Maximum number of results"`
}

func (h *SearchHandler) Search(ctx context.Context, input *SearchInput) (*DataOutput[[]youtube.Video], error) {
	videos, err := h.yt.Search(ctx, input.Query, input.Limit)
	if err != nil {
		return nil, huma.Error502BadGateway("search failed", err)
	}
	if videos == nil {
		videos = []youtube.Video{}
	}
	return OK(videos), nil
}

type SuggestInput struct {
	Query string `query:"q" minLength:"1" doc:"Partial search query"`
}

func (h *SearchHandler) Suggest(ctx context.Context, input *SuggestInput) (*DataOutput[[]string], error) {
	suggestions, err := h.yt.Suggest(ctx, input.Query)
	if err != nil {
		return nil, huma.Error502BadGateway("suggestions failed", err)
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	return OK(suggestions), nil
}
