package skill

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"volition/internal/desire"
)

// maxReadBytes caps file_read output so a skill cannot flood a prompt.
const maxReadBytes = 256 * 1024

// TaskLister supplies the current task snapshot for the task_list skill.
// Wired by the engine so the skill package stays free of store imports.
type TaskLister func(ctx context.Context) (any, error)

// BuiltinDeps carries what the built-in skills need from the host.
type BuiltinDeps struct {
	Workspace string
	Tasks     TaskLister

	// ShellWhitelist is the exact set of command names shell_command may
	// run. Empty disables the skill entirely.
	ShellWhitelist []string
}

// RegisterBuiltins installs the standard skill set.
func RegisterBuiltins(r *Registry, deps BuiltinDeps) error {
	ws := deps.Workspace
	notesDir := filepath.Join(ws, ".volition", "notes")

	builtins := []struct {
		manifest Manifest
		handler  Handler
	}{
		{
			manifest: Manifest{
				ID:          "file_read",
				Category:    "filesystem",
				Description: "Read a text file inside the workspace",
				Inputs: []FieldSpec{
					{Name: "path", Type: "path", Required: true},
				},
				Outputs:            []FieldSpec{{Name: "content", Type: "string"}},
				Risk:               desire.RiskLow,
				MinTrustLevel:      desire.TrustSuggest,
				AllowedDirectories: []string{ws},
				ReadOnly:           true,
			},
			handler: fileRead,
		},
		{
			manifest: Manifest{
				ID:          "file_stat",
				Category:    "filesystem",
				Description: "Report existence, size, and modification time of a path",
				Inputs: []FieldSpec{
					{Name: "path", Type: "path", Required: true},
				},
				Risk:               desire.RiskNone,
				MinTrustLevel:      desire.TrustObserve,
				AllowedDirectories: []string{ws},
				ReadOnly:           true,
			},
			handler: fileStat,
		},
		{
			manifest: Manifest{
				ID:            "task_list",
				Category:      "introspection",
				Description:   "List the engine's current desires and their statuses",
				Risk:          desire.RiskNone,
				MinTrustLevel: desire.TrustObserve,
				ReadOnly:      true,
			},
			handler: func(ctx context.Context, _ map[string]any) (any, error) {
				if deps.Tasks == nil {
					return nil, fmt.Errorf("task listing not wired")
				}
				return deps.Tasks(ctx)
			},
		},
		{
			manifest: Manifest{
				ID:          "note_write",
				Category:    "filesystem",
				Description: "Append a note to the workspace notes directory",
				Inputs: []FieldSpec{
					{Name: "name", Type: "string", Required: true, Validator: noteName},
					{Name: "text", Type: "string", Required: true},
				},
				Risk:               desire.RiskLow,
				MinTrustLevel:      desire.TrustSupervisedAuto,
				AllowedDirectories: []string{notesDir},
			},
			handler: noteWrite(notesDir),
		},
	}

	if len(deps.ShellWhitelist) > 0 {
		builtins = append(builtins, struct {
			manifest Manifest
			handler  Handler
		}{
			manifest: Manifest{
				ID:          "shell_command",
				Category:    "system",
				Description: "Run a whitelisted command in the workspace",
				Inputs: []FieldSpec{
					{Name: "command", Type: "command", Required: true},
				},
				Outputs:          []FieldSpec{{Name: "output", Type: "string"}, {Name: "exit_code", Type: "number"}},
				Risk:             desire.RiskHigh,
				MinTrustLevel:    desire.TrustBoundedAuto,
				RequiresApproval: true,
				CommandWhitelist: deps.ShellWhitelist,
			},
			handler: shellCommand(ws),
		})
	}

	for _, b := range builtins {
		if err := r.Register(b.manifest, b.handler); err != nil {
			return err
		}
	}
	return nil
}

func fileRead(_ context.Context, inputs map[string]any) (any, error) {
	path := inputs["path"].(string)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxReadBytes {
		return nil, fmt.Errorf("%s is %d bytes, over the %d byte read limit", path, info.Size(), maxReadBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return map[string]any{"content": string(data), "size": info.Size()}, nil
}

func fileStat(_ context.Context, inputs map[string]any) (any, error) {
	path := inputs["path"].(string)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return map[string]any{"exists": false}, nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"exists":   true,
		"size":     info.Size(),
		"is_dir":   info.IsDir(),
		"modified": info.ModTime().UTC().Format(time.RFC3339),
	}, nil
}

// noteName keeps note files flat inside the notes directory.
func noteName(v any) error {
	s, _ := v.(string)
	if s == "" {
		return fmt.Errorf("empty name")
	}
	if strings.ContainsAny(s, "/\\") || s == "." || s == ".." {
		return fmt.Errorf("name must be a bare file name")
	}
	return nil
}

func noteWrite(notesDir string) Handler {
	return func(_ context.Context, inputs map[string]any) (any, error) {
		name := inputs["name"].(string)
		text := inputs["text"].(string)

		if err := os.MkdirAll(notesDir, 0o755); err != nil {
			return nil, err
		}
		path := filepath.Join(notesDir, name+".md")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		stamp := time.Now().UTC().Format(time.RFC3339)
		if _, err := fmt.Fprintf(f, "\n---\n%s\n\n%s\n", stamp, text); err != nil {
			return nil, err
		}
		return map[string]any{"path": path}, nil
	}
}

func shellCommand(workdir string) Handler {
	return func(ctx context.Context, inputs map[string]any) (any, error) {
		command := inputs["command"].(string)
		tokens := strings.Fields(command)

		cmd := exec.CommandContext(ctx, tokens[0], tokens[1:]...)
		cmd.Dir = workdir
		out, err := cmd.CombinedOutput()

		exitCode := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			} else {
				return nil, err
			}
		}
		return map[string]any{"output": string(out), "exit_code": exitCode}, nil
	}
}
