package main

import (
	"context"
	"fmt"

	"volition/internal/config"
	"volition/internal/desire"
	"volition/internal/executor"
	"volition/internal/lifecycle"
	"volition/internal/llm"
	"volition/internal/logging"
	"volition/internal/planner"
	"volition/internal/review"
	"volition/internal/skill"
	"volition/internal/store"
)

// engine bundles everything a command needs after wiring.
type engine struct {
	cfg      config.Config
	store    *store.Store
	registry *skill.Registry
	mgr      *lifecycle.Manager
	audit    *logging.AuditLogger
}

func (e *engine) close() {
	if e.store != nil {
		e.store.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
	logging.Sync()
}

// buildEngine wires the full engine for a workspace. Commands that only
// inspect state pay the same wiring cost; the LLM client is lazy and makes
// no calls until a pipeline stage needs it.
func buildEngine(ctx context.Context) (*engine, error) {
	ws := resolveWorkspace()

	cfg, err := config.Load(ws)
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(ws, logging.Config{
		Debug:   cfg.Logging.Debug,
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		Enabled: cfg.Logging.Enabled,
	}); err != nil {
		return nil, err
	}

	audit := logging.NewDiscardAuditLogger()
	if cfg.Logging.AuditLog {
		audit, err = logging.NewAuditLogger(ws)
		if err != nil {
			return nil, err
		}
	}

	st, err := store.Open(store.DefaultPath(ws))
	if err != nil {
		audit.Close()
		return nil, err
	}

	client, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		st.Close()
		audit.Close()
		return nil, err
	}
	audited := llm.NewAudited(client, audit)

	trust := desire.TrustLevel(cfg.Engine.DefaultTrustLevel)

	registry := skill.NewRegistry(audit)
	if err := skill.RegisterBuiltins(registry, skill.BuiltinDeps{
		Workspace: ws,
		Tasks:     taskLister(st),
	}); err != nil {
		st.Close()
		audit.Close()
		return nil, err
	}
	if err := skill.LoadPacks(registry, ws); err != nil {
		logging.Get(logging.CategoryBoot).Warn("skill pack load failed: %v", err)
	}

	skillExec := executor.NewSkillExecutor(registry, cfg.Executor.SkillTimeout)
	var exec executor.Executor = skillExec
	if cfg.Executor.Backend == "delegate" {
		exec = executor.NewDelegateExecutor(audited, cfg.Executor.DelegateTimeout)
	}

	catalog := func() []skill.Manifest { return registry.ListAvailable(trust) }

	mgr := lifecycle.NewManager(cfg, lifecycle.Deps{
		Store:    st,
		Planner:  planner.New(audited, cfg.Planner, catalog, audit),
		Reviewer: review.NewReviewer(audited, cfg.Review, audit),
		Verifier: review.NewVerifier(skillExec, audited, review.VerifierOptions{
			Timeout:           cfg.Executor.VerifyTimeout,
			Trust:             trust,
			TaskListAvailable: true,
		}),
		Outcome:  review.NewOutcomeReviewer(audited, cfg.Review, audit),
		Executor: exec,
		Registry: registry,
		Audit:    audit,
	})

	return &engine{cfg: cfg, store: st, registry: registry, mgr: mgr, audit: audit}, nil
}

// taskLister exposes the desire buckets to the task_list skill.
func taskLister(st *store.Store) skill.TaskLister {
	return func(ctx context.Context) (any, error) {
		desires, err := st.ListActive()
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(desires))
		for _, d := range desires {
			out = append(out, map[string]any{
				"id":       d.ID,
				"title":    d.Title,
				"status":   string(d.Status),
				"strength": d.Strength,
			})
		}
		return out, nil
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func statusLine(d *desire.Desire) string {
	return fmt.Sprintf("%-8s  %-17s  %.2f  %s", shortID(d.ID), d.Status, d.Strength, d.Title)
}
