// Package config loads relay configuration from a JSON or YAML file plus
// environment overrides, and keeps the system instructions file current.
//
// The environment variables mirror the ones a Gemini Live deployment already
// uses: GOOGLE_API_KEY, MODEL_DEV_API, VOICE_DEV_API and LOG_LEVEL.
package config
