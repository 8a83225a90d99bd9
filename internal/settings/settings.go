// Package settings exposes a typed accessor surface over the string-valued
// settings table. Values are decoded per a fixed key-to-type map; callers
// never see the raw string bag.
package settings

import (
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"whisperjournal/internal/models"
)

// Settings is the decoded, typed view of the settings table.
type Settings struct {
	VaultPath            string `json:"vaultPath"`
	WhisperModel         string `json:"whisperModel"`
	WhisperModelPath     string `json:"whisperModelPath"`
	WhisperPrompt        string `json:"whisperPrompt"`
	LLMBaseURL           string `json:"llmBaseUrl"`
	LLMModel             string `json:"llmModel"`
	KeepAudio            bool   `json:"keepAudio"`
	DefaultTimezone      string `json:"defaultTimezone"`
	UserName             string `json:"userName"`
	VadEnabled           bool   `json:"vadEnabled"`
	VadModelPath         string `json:"vadModelPath"`
	ChunkDurationSeconds int    `json:"chunkDurationSeconds"`
}

type valueKind int

const (
	kindString valueKind = iota
	kindBool
	kindInt
)

// keySpec fixes the camelCase JSON name, the snake_case column key, and the
// decoded type for one setting.
type keySpec struct {
	json string
	key  string
	kind valueKind
}

var keySpecs = []keySpec{
	{"vaultPath", "vault_path", kindString},
	{"whisperModel", "whisper_model", kindString},
	{"whisperModelPath", "whisper_model_path", kindString},
	{"whisperPrompt", "whisper_prompt", kindString},
	{"llmBaseUrl", "llm_base_url", kindString},
	{"llmModel", "llm_model", kindString},
	{"keepAudio", "keep_audio", kindBool},
	{"defaultTimezone", "default_timezone", kindString},
	{"userName", "user_name", kindString},
	{"vadEnabled", "vad_enabled", kindBool},
	{"vadModelPath", "vad_model_path", kindString},
	{"chunkDurationSeconds", "chunk_duration_seconds", kindInt},
}

var defaults = map[string]string{
	"vault_path":             "",
	"whisper_model":          "base.en",
	"whisper_model_path":     "",
	"whisper_prompt":         "",
	"llm_base_url":           "http://localhost:11434",
	"llm_model":              "llama3.1",
	"keep_audio":             "true",
	"default_timezone":       "UTC",
	"user_name":              "",
	"vad_enabled":            "false",
	"vad_model_path":         "",
	"chunk_duration_seconds": "60",
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Seed inserts the default value for every key that has no row yet.
// Called once at startup; existing values are never overwritten.
func (s *Service) Seed() error {
	for key, value := range defaults {
		var count int64
		if err := s.db.Model(&models.Setting{}).Where("key = ?", key).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			if err := s.db.Create(&models.Setting{Key: key, Value: value}).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// Load reads and decodes every setting. Missing rows fall back to defaults.
func (s *Service) Load() (*Settings, error) {
	var rows []models.Setting
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	raw := make(map[string]string, len(defaults))
	for k, v := range defaults {
		raw[k] = v
	}
	for _, row := range rows {
		raw[row.Key] = row.Value
	}

	out := &Settings{}
	for _, spec := range keySpecs {
		value := raw[spec.key]
		switch spec.key {
		case "vault_path":
			out.VaultPath = value
		case "whisper_model":
			out.WhisperModel = value
		case "whisper_model_path":
			out.WhisperModelPath = value
		case "whisper_prompt":
			out.WhisperPrompt = value
		case "llm_base_url":
			out.LLMBaseURL = value
		case "llm_model":
			out.LLMModel = value
		case "keep_audio":
			out.KeepAudio = value == "true"
		case "default_timezone":
			out.DefaultTimezone = value
		case "user_name":
			out.UserName = value
		case "vad_enabled":
			out.VadEnabled = value == "true"
		case "vad_model_path":
			out.VadModelPath = value
		case "chunk_duration_seconds":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				out.ChunkDurationSeconds = n
			} else {
				out.ChunkDurationSeconds = 60
			}
		}
	}
	return out, nil
}

// Update applies a partial update keyed by the camelCase JSON names. Unknown
// keys and wrongly-typed values are rejected before anything is written.
func (s *Service) Update(patch map[string]interface{}) error {
	encoded := make(map[string]string, len(patch))
	for jsonName, value := range patch {
		spec, ok := specByJSON(jsonName)
		if !ok {
			return fmt.Errorf("unknown setting %q", jsonName)
		}
		str, err := encodeValue(spec, value)
		if err != nil {
			return err
		}
		encoded[spec.key] = str
	}
	for key, value := range encoded {
		res := s.db.Model(&models.Setting{}).Where("key = ?", key).Update("value", value)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := s.db.Create(&models.Setting{Key: key, Value: value}).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func specByJSON(name string) (keySpec, bool) {
	for _, spec := range keySpecs {
		if spec.json == name {
			return spec, true
		}
	}
	return keySpec{}, false
}

func encodeValue(spec keySpec, value interface{}) (string, error) {
	switch spec.kind {
	case kindString:
		v, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("setting %q expects a string", spec.json)
		}
		return v, nil
	case kindBool:
		v, ok := value.(bool)
		if !ok {
			return "", fmt.Errorf("setting %q expects a boolean", spec.json)
		}
		return strconv.FormatBool(v), nil
	case kindInt:
		// JSON numbers decode as float64.
		switch v := value.(type) {
		case float64:
			if v != float64(int(v)) || v <= 0 {
				return "", fmt.Errorf("setting %q expects a positive integer", spec.json)
			}
			return strconv.Itoa(int(v)), nil
		case int:
			if v <= 0 {
				return "", fmt.Errorf("setting %q expects a positive integer", spec.json)
			}
			return strconv.Itoa(v), nil
		default:
			return "", fmt.Errorf("setting %q expects an integer", spec.json)
		}
	}
	return "", fmt.Errorf("setting %q has no decoder", spec.json)
}
