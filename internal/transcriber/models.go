package transcriber

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ModelSearchDirs returns the directories scanned for speech model files.
// When an explicit model path is configured its directory is scanned too.
func ModelSearchDirs(explicitPath string) []string {
	var dirs []string
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".cache", "whisper-journal", "models"))
	}
	if explicitPath != "" {
		dirs = append(dirs, filepath.Dir(explicitPath))
	}
	return dirs
}

// ResolveModelPath turns the configured model name into a file path. An
// explicit path wins when it exists; otherwise the search dirs are scanned for
// the conventional ggml-<name>.bin file.
func ResolveModelPath(modelName, explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err == nil {
			return explicitPath, nil
		}
		return "", fmt.Errorf("configured model path %s does not exist", explicitPath)
	}
	filename := "ggml-" + modelName + ".bin"
	for _, dir := range ModelSearchDirs("") {
		candidate := filepath.Join(dir, filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("model %s not found (looked for %s)", modelName, filename)
}

// InstalledModel is one speech model file found on disk.
type InstalledModel struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// ListModels scans the search dirs for ggml-*.bin files.
func ListModels(explicitPath string) []InstalledModel {
	seen := map[string]bool{}
	var models []InstalledModel
	for _, dir := range ModelSearchDirs(explicitPath) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, de := range entries {
			name := de.Name()
			if de.IsDir() || !strings.HasPrefix(name, "ggml-") || !strings.HasSuffix(name, ".bin") {
				continue
			}
			path := filepath.Join(dir, name)
			if seen[path] {
				continue
			}
			seen[path] = true
			info, err := de.Info()
			if err != nil {
				continue
			}
			models = append(models, InstalledModel{
				Name: strings.TrimSuffix(strings.TrimPrefix(name, "ggml-"), ".bin"),
				Path: path,
				Size: info.Size(),
			})
		}
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models
}
