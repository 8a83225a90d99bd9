package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"whisperjournal/internal/settings"
	"whisperjournal/internal/store"
	"whisperjournal/internal/transcriber"
)

type SystemHandler struct {
	store    *store.Store
	settings *settings.Service
	version  string
}

func NewSystemHandler(st *store.Store, svc *settings.Service, version string) *SystemHandler {
	return &SystemHandler{store: st, settings: svc, version: version}
}

// Health reports liveness
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": h.version,
	})
}

// Prerequisites probes the external tools the pipeline depends on
func (h *SystemHandler) Prerequisites(c *gin.Context) {
	s, err := h.settings.Load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}

	checkBinary := func(name string) gin.H {
		path, err := exec.LookPath(name)
		if err != nil {
			return gin.H{"ok": false, "detail": name + " not found in PATH"}
		}
		return gin.H{"ok": true, "detail": path}
	}

	model := gin.H{"ok": false, "detail": "no model configured"}
	if s.WhisperModel != "" || s.WhisperModelPath != "" {
		if path, err := transcriber.ResolveModelPath(s.WhisperModel, s.WhisperModelPath); err == nil {
			model = gin.H{"ok": true, "detail": path}
		} else {
			model = gin.H{"ok": false, "detail": err.Error()}
		}
	}

	vault := gin.H{"ok": false, "detail": "vault path not configured"}
	if s.VaultPath != "" {
		if info, err := os.Stat(s.VaultPath); err == nil && info.IsDir() {
			vault = gin.H{"ok": true, "detail": s.VaultPath}
		} else {
			vault = gin.H{"ok": false, "detail": "vault path is not a directory"}
		}
	}

	llmCheck := gin.H{"ok": false, "detail": "LLM base URL not configured"}
	if s.LLMBaseURL != "" {
		client := &http.Client{Timeout: 2 * time.Second}
		if resp, err := client.Get(s.LLMBaseURL); err == nil {
			resp.Body.Close()
			llmCheck = gin.H{"ok": true, "detail": s.LLMBaseURL}
		} else {
			llmCheck = gin.H{"ok": false, "detail": s.LLMBaseURL + " is unreachable"}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"ffmpeg":       checkBinary("ffmpeg"),
		"ffprobe":      checkBinary("ffprobe"),
		"whisper":      checkBinary("whisper-cli"),
		"whisperModel": model,
		"vault":        vault,
		"llm":          llmCheck,
	})
}

type validatePathRequest struct {
	Path string `json:"path"`
}

// ValidatePath checks that a path exists, is a directory, and is writable
func (h *SystemHandler) ValidatePath(c *gin.Context) {
	var req validatePathRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}

	resp := gin.H{"exists": false, "isDir": false, "writable": false, "valid": false}
	info, err := os.Stat(req.Path)
	if err != nil {
		c.JSON(http.StatusOK, resp)
		return
	}
	resp["exists"] = true
	if !info.IsDir() {
		c.JSON(http.StatusOK, resp)
		return
	}
	resp["isDir"] = true

	probe, err := os.CreateTemp(req.Path, ".write-probe-*")
	if err != nil {
		c.JSON(http.StatusOK, resp)
		return
	}
	probe.Close()
	os.Remove(probe.Name())
	resp["writable"] = true
	resp["valid"] = true
	c.JSON(http.StatusOK, resp)
}

// WhisperModels lists the speech models installed in the search directories
func (h *SystemHandler) WhisperModels(c *gin.Context) {
	s, err := h.settings.Load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"models":     transcriber.ListModels(s.WhisperModelPath),
		"searchDirs": transcriber.ModelSearchDirs(s.WhisperModelPath),
	})
}

type openNoteRequest struct {
	EntryID string `json:"entryId"`
	Action  string `json:"action"`
}

// OpenNote fires the platform command to open the entry's note
func (h *SystemHandler) OpenNote(c *gin.Context) {
	var req openNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.EntryID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entryId is required"})
		return
	}
	entry, err := h.store.GetEntry(req.EntryID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load entry"})
		return
	}
	if entry.NotePath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Entry has no note yet"})
		return
	}
	s, err := h.settings.Load()
	if err != nil || s.VaultPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Vault path is not configured"})
		return
	}
	absPath := filepath.Join(s.VaultPath, filepath.FromSlash(entry.NotePath))

	var cmd *exec.Cmd
	switch req.Action {
	case "obsidian":
		uri := "obsidian://open?path=" + url.QueryEscape(absPath)
		cmd = openCommand(uri, false)
	case "finder":
		cmd = openCommand(absPath, true)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown action"})
		return
	}
	if cmd == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No opener available on this platform"})
		return
	}
	if err := cmd.Start(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open: " + err.Error()})
		return
	}
	go cmd.Wait()
	c.JSON(http.StatusOK, gin.H{"opened": true})
}

// openCommand picks the platform opener. reveal opens the containing folder
// with the file selected where the platform supports it.
func openCommand(target string, reveal bool) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		if reveal {
			return exec.Command("open", "-R", target)
		}
		return exec.Command("open", target)
	case "linux":
		if reveal {
			return exec.Command("xdg-open", filepath.Dir(target))
		}
		return exec.Command("xdg-open", target)
	case "windows":
		if reveal {
			return exec.Command("explorer", "/select,", target)
		}
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	}
	return nil
}

// ServeAudio streams an audio file from the vault. Only journal/audio paths
// are served; traversal in any form is rejected.
func (h *SystemHandler) ServeAudio(c *gin.Context) {
	rel := strings.TrimPrefix(c.Param("path"), "/")

	s, err := h.settings.Load()
	if err != nil || s.VaultPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Vault path is not configured"})
		return
	}
	abs, ok := resolveVaultAudio(s.VaultPath, rel)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden path"})
		return
	}
	if _, err := os.Stat(abs); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Audio not found"})
		return
	}
	c.File(abs)
}

// resolveVaultAudio maps a request path onto the vault, accepting only clean
// relative paths under journal/audio that stay inside the vault root after
// resolution.
func resolveVaultAudio(vault, rel string) (string, bool) {
	if rel == "" || strings.HasPrefix(rel, "/") || filepath.IsAbs(rel) {
		return "", false
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if strings.HasPrefix(cleaned, "..") {
		return "", false
	}
	if !strings.HasPrefix(filepath.ToSlash(cleaned), "journal/audio/") {
		return "", false
	}
	vaultAbs, err := filepath.Abs(vault)
	if err != nil {
		return "", false
	}
	abs := filepath.Join(vaultAbs, cleaned)
	if !strings.HasPrefix(abs, vaultAbs+string(filepath.Separator)) {
		return "", false
	}
	return abs, true
}
