package download

// FormatString maps a quality tier to a yt-dlp format-selection expression.
// Audio always requests the best available audio-only stream; video tiers
// clamp to a maximum resolution.
func FormatString(kind Kind, quality string) string {
	if kind == KindAudio {
		return "bestaudio/best"
	}

	switch quality {
	case "best":
		return "bestvideo+bestaudio/best"
	case "4K":
		return "bestvideo[height<=2160]+bestaudio/best[height<=2160]"
	case "1080p":
		return "bestvideo[height<=1080]+bestaudio/best[height<=1080]"
	case "720p":
		return "bestvideo[height<=720]+bestaudio/best[height<=720]"
	case "480p":
		return "bestvideo[height<=480]+bestaudio/best[height<=480]"
	case "360p":
		return "bestvideo[height<=360]+bestaudio/best[height<=360]"
	default:
		return "bestvideo+bestaudio/best"
	}
}
