package config

import (
	"github.com/knadh/koanf/v2"
)

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"server.host": "0.0.0.0",
		"server.port": 5011,

		"auth.jwt_expiry":     "24h",
		"auth.admin_username": "administrator",

		"downloads.max_concurrent": 3,
		"downloads.video_quality":  "720p",
		"downloads.audio_quality":  "best",

		"extraction.use_gpu":        true,
		"extraction.max_concurrent": 1,
		"extraction.default_model":  "htdemucs",

		"tools.ytdlp_binary":  "yt-dlp",
		"tools.demucs_binary": "demucs",
		"tools.ffmpeg_binary": "ffmpeg",

		"logging.level": "info",
	}

	for key, val := range defaults {
		k.Set(key, val)
	}
	return nil
}
