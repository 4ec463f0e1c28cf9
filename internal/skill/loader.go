package skill

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"volition/internal/logging"
)

// RunSpec describes how a pack skill executes: a fixed binary plus an
// argument template. ${name} placeholders are replaced with validated
// input values.
type RunSpec struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
	Workdir string   `yaml:"workdir,omitempty"`
}

// PackSkill is one entry in a skill pack file.
type PackSkill struct {
	Manifest `yaml:",inline"`
	Run      RunSpec `yaml:"run"`
}

// Pack is a YAML skill pack.
type Pack struct {
	Name   string      `yaml:"name"`
	Skills []PackSkill `yaml:"skills"`
}

// PacksDir is where skill packs live relative to the workspace.
func PacksDir(workspace string) string {
	return filepath.Join(workspace, ".volition", "skills")
}

// LoadPacks reads every *.yaml pack under the workspace skills directory and
// registers its skills. A malformed pack is skipped with a log line; one bad
// file never blocks the rest.
func LoadPacks(r *Registry, workspace string) error {
	dir := PacksDir(workspace)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	log := logging.Get(logging.CategorySkill)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn("LoadPacks: cannot read %s: %v", path, err)
			continue
		}
		var pack Pack
		if err := yaml.Unmarshal(data, &pack); err != nil {
			log.Warn("LoadPacks: %s is not a valid pack: %v", path, err)
			continue
		}
		for _, ps := range pack.Skills {
			if err := registerPackSkill(r, ps); err != nil {
				log.Warn("LoadPacks: %s: %v", path, err)
			}
		}
		log.Info("LoadPacks: loaded %s (%d skills)", name, len(pack.Skills))
	}
	return nil
}

func registerPackSkill(r *Registry, ps PackSkill) error {
	if ps.Run.Command == "" {
		return fmt.Errorf("pack skill %s: run.command is required", ps.ID)
	}
	run := ps.Run
	return r.Register(ps.Manifest, func(ctx context.Context, inputs map[string]any) (any, error) {
		args := make([]string, len(run.Args))
		for i, a := range run.Args {
			args[i] = substitute(a, inputs)
		}
		cmd := exec.CommandContext(ctx, run.Command, args...)
		if run.Workdir != "" {
			cmd.Dir = run.Workdir
		}
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
	})
}

// substitute replaces ${name} placeholders with input values. Unknown
// placeholders are left as-is so the failure surfaces in command output
// rather than silently running with an empty argument.
func substitute(arg string, inputs map[string]any) string {
	for k, v := range inputs {
		arg = strings.ReplaceAll(arg, "${"+k+"}", fmt.Sprint(v))
	}
	return arg
}
