package config

import "strings"

// MaskedValue replaces sensitive values in Summary.
const MaskedValue = "***MASKED***"

// EnvOverrides lists the environment variables that override the settings file.
var EnvOverrides = []string{
	// Google
	"GEMINI_API_KEY",
	"GOOGLE_API_KEY",
	"GOOGLE_CLIENT_ID",
	"GOOGLE_CLIENT_SECRET",
	"GOOGLE_CLOUD_PROJECT_ID",
	"GOOGLE_CLOUD_LOCATION",

	// Social platforms
	"INSTAGRAM_ACCESS_TOKEN",
	"INSTAGRAM_USER_ID",
	"TIKTOK_ACCESS_TOKEN",
	"TIKTOK_CLIENT_KEY",
	"TIKTOK_CLIENT_SECRET",
	"TWITTER_API_KEY",
	"TWITTER_API_SECRET",
	"TWITTER_ACCESS_TOKEN",
	"TWITTER_ACCESS_SECRET",
	"TWITTER_BEARER_TOKEN",

	// Commerce
	"SHOPIFY_API_KEY",
	"SHOPIFY_API_SECRET",
	"SHOPIFY_STORE_URL",
	"PRINTFUL_API_KEY",

	// Runtime
	"ENVIRONMENT",
	"DEBUG_MODE",
	"MAX_RETRY_ATTEMPTS",
}

// SensitiveKeys are masked by Summary.
var SensitiveKeys = []string{
	"GEMINI_API_KEY",
	"GOOGLE_API_KEY",
	"GOOGLE_CLIENT_SECRET",
	"INSTAGRAM_ACCESS_TOKEN",
	"TIKTOK_ACCESS_TOKEN",
	"TIKTOK_CLIENT_SECRET",
	"TWITTER_API_KEY",
	"TWITTER_API_SECRET",
	"TWITTER_ACCESS_TOKEN",
	"TWITTER_ACCESS_SECRET",
	"TWITTER_BEARER_TOKEN",
	"SHOPIFY_API_KEY",
	"SHOPIFY_API_SECRET",
	"PRINTFUL_API_KEY",
}

// RequiredSettings must be present and non-empty in the merged configuration.
var RequiredSettings = []string{
	"OLLAMA_API_BASE_URL",
	"COMFYUI_API_BASE_URL",
	"OLLAMA_MODEL",
	"COMFYUI_LORA_NAME",
	"COMFYUI_CHECKPOINT_NAME",
	"BRAND_NAME",
	"MASCOT_NAME",
}

// RequiredSecrets gate startup: absent or placeholder values are rejected.
var RequiredSecrets = []string{
	"GEMINI_API_KEY",
	"GOOGLE_CLOUD_PROJECT_ID",
}

// Placeholder returns the documented placeholder string for key,
// e.g. "your_gemini_api_key_here".
func Placeholder(key string) string {
	return "your_" + strings.ToLower(key) + "_here"
}

func isSensitive(key string) bool {
	for _, k := range SensitiveKeys {
		if k == key {
			return true
		}
	}
	return false
}
