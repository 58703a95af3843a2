package youtube

import (
	"encoding/json"
	"fmt"
)

// The innertube search response nests results several renderer layers deep.
// Only the fields on the videoRenderer path are decoded; everything else is
// ignored.
type searchResponse struct {
	Contents struct {
		TwoColumnSearchResultsRenderer struct {
			PrimaryContents struct {
				SectionListRenderer struct {
					Contents []struct {
						ItemSectionRenderer struct {
							Contents []struct {
								VideoRenderer *videoRenderer `json:"videoRenderer"`
							} `json:"contents"`
						} `json:"itemSectionRenderer"`
					} `json:"contents"`
				} `json:"sectionListRenderer"`
			} `json:"primaryContents"`
		} `json:"twoColumnSearchResultsRenderer"`
	} `json:"contents"`
}

type videoRenderer struct {
	VideoID string `json:"videoId"`
	Title   struct {
		Runs []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"title"`
	Thumbnail struct {
		Thumbnails []struct {
			URL string `json:"url"`
		} `json:"thumbnails"`
	} `json:"thumbnail"`
	LengthText struct {
		SimpleText string `json:"simpleText"`
	} `json:"lengthText"`
	OwnerText struct {
		Runs []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"ownerText"`
	ViewCountText struct {
		SimpleText string `json:"simpleText"`
	} `json:"viewCountText"`
}

func parseSearchResponse(raw []byte) ([]Video, error) {
	var resp searchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	var videos []Video
	sections := resp.Contents.TwoColumnSearchResultsRenderer.PrimaryContents.SectionListRenderer.Contents
	for _, section := range sections {
		for _, item := range section.ItemSectionRenderer.Contents {
			r := item.VideoRenderer
			// Ads, shelves and playlist entries have no videoRenderer.
			if r == nil || r.VideoID == "" {
				continue
			}
			videos = append(videos, r.toVideo())
		}
	}
	return videos, nil
}

func (r *videoRenderer) toVideo() Video {
	v := Video{
		ID:       r.VideoID,
		Duration: r.LengthText.SimpleText,
		Views:    r.ViewCountText.SimpleText,
	}
	for _, run := range r.Title.Runs {
		v.Title += run.Text
	}
	if len(r.OwnerText.Runs) > 0 {
		v.Channel = r.OwnerText.Runs[0].Text
	}
	// Thumbnails are ordered smallest first; take the largest.
	if n := len(r.Thumbnail.Thumbnails); n > 0 {
		v.ThumbnailURL = r.Thumbnail.Thumbnails[n-1].URL
	}
	return v
}

// parseSuggestions decodes the firefox-client completion payload, a JSON
// array whose second element lists the suggestions.
func parseSuggestions(raw []byte) ([]string, error) {
	var payload []json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}
	if len(payload) < 2 {
		return nil, nil
	}
	var suggestions []string
	if err := json.Unmarshal(payload[1], &suggestions); err != nil {
		return nil, fmt.Errorf("decode suggestion list: %w", err)
	}
	return suggestions, nil
}
