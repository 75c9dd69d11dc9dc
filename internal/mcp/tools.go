package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bruj0/spec-kitty-sub000/internal/engine"
	"github.com/bruj0/spec-kitty-sub000/pkg/merge"
	"github.com/bruj0/spec-kitty-sub000/pkg/workunit"
)

type startInput struct {
	Feature string `json:"feature" jsonschema:"required,Feature slug"`
	UnitID  string `json:"unit_id" jsonschema:"required,Work package ID (e.g. WP03)"`
	Base    string `json:"base,omitempty" jsonschema:"Explicit base branch override"`
	Actor   string `json:"actor,omitempty" jsonschema:"Who is starting the unit"`
}

type startOutput struct {
	UnitID     string `json:"unit_id" jsonschema:"Work package ID"`
	Lane       string `json:"lane" jsonschema:"Lane after the transition"`
	Branch     string `json:"branch" jsonschema:"Unit branch checked out in the workspace"`
	Workspace  string `json:"workspace" jsonschema:"Worktree path"`
	Base       string `json:"base" jsonschema:"Resolved base branch"`
	BaseSource string `json:"base_source" jsonschema:"Where the base came from (explicit, target, or dependency)"`
	Ready      bool   `json:"ready" jsonschema:"Whether every dependency was done at start time"`
	Advisory   string `json:"advisory,omitempty" jsonschema:"Conflict-risk note for multi-parent units"`
}

type advanceInput struct {
	Feature string `json:"feature" jsonschema:"required,Feature slug"`
	UnitID  string `json:"unit_id" jsonschema:"required,Work package ID"`
	To      string `json:"to" jsonschema:"required,Destination lane (planned doing for_review done rejected)"`
	Actor   string `json:"actor,omitempty" jsonschema:"Who is moving the unit"`
	Note    string `json:"note,omitempty" jsonschema:"History note for the transition"`
}

type advanceOutput struct {
	UnitID string `json:"unit_id" jsonschema:"Work package ID"`
	Lane   string `json:"lane" jsonschema:"Lane after the transition"`
	Owner  string `json:"owner,omitempty" jsonschema:"Current owner"`
}

type statusInput struct {
	Feature string `json:"feature" jsonschema:"required,Feature slug"`
}

type statusOutput struct {
	Feature      string              `json:"feature" jsonschema:"Feature slug"`
	Target       string              `json:"target" jsonschema:"Target branch"`
	TargetExists bool                `json:"target_exists" jsonschema:"Whether the target branch exists"`
	Units        []engine.UnitStatus `json:"units" jsonschema:"Per-unit lane and readiness"`
	Ready        []string            `json:"ready" jsonschema:"Units whose dependencies are all done"`
	Problem      string              `json:"problem,omitempty" jsonschema:"Structural dependency graph error, if any"`
}

type mergeInput struct {
	Feature string `json:"feature" jsonschema:"required,Feature slug"`
	DryRun  bool   `json:"dry_run,omitempty" jsonschema:"Forecast the merge without mutating anything"`
	Force   bool   `json:"force,omitempty" jsonschema:"Merge multi-parent units directly instead of requiring combined dependency branches"`
}

type mergeConflict struct {
	UnitID string   `json:"unit_id" jsonschema:"Unit whose branch conflicted"`
	Branch string   `json:"branch" jsonschema:"Conflicting branch"`
	Files  []string `json:"files" jsonschema:"Conflicted files"`
	Dir    string   `json:"dir" jsonschema:"Working tree left in the conflicted state"`
}

type mergeForecast struct {
	File    string   `json:"file" jsonschema:"File shared between unit branches"`
	UnitIDs []string `json:"unit_ids" jsonschema:"Units touching the file"`
	Class   string   `json:"class" jsonschema:"Predicted outcome (none, auto_resolvable, or manual)"`
}

type mergeOutput struct {
	Feature   string          `json:"feature" jsonschema:"Feature slug"`
	Target    string          `json:"target" jsonschema:"Target branch"`
	DryRun    bool            `json:"dry_run" jsonschema:"Whether this was a forecast"`
	Order     []string        `json:"order" jsonschema:"Dependency-respecting merge order"`
	Merged    []string        `json:"merged,omitempty" jsonschema:"Units merged into the target"`
	Pending   []string        `json:"pending,omitempty" jsonschema:"Units left unmerged by a halt"`
	Skipped   []string        `json:"skipped,omitempty" jsonschema:"Units with no branch to merge"`
	Conflict  *mergeConflict  `json:"conflict,omitempty" jsonschema:"Conflict that halted the merge"`
	Forecasts []mergeForecast `json:"forecasts,omitempty" jsonschema:"Per-file conflict forecasts (dry run only)"`
}

type workspaceListInput struct {
	Feature string `json:"feature" jsonschema:"required,Feature slug"`
}

type workspaceInfo struct {
	UnitID string `json:"unit_id" jsonschema:"Work package ID"`
	Branch string `json:"branch" jsonschema:"Unit branch"`
	Path   string `json:"path" jsonschema:"Worktree path"`
}

type workspaceListOutput struct {
	Workspaces []workspaceInfo `json:"workspaces" jsonschema:"Existing worktrees"`
	Count      int             `json:"count" jsonschema:"Number of worktrees"`
}

type lockSweepInput struct{}

type lockSweepOutput struct {
	Reclaimed []string `json:"reclaimed" jsonschema:"Resource IDs whose markers were reclaimed"`
	Count     int      `json:"count" jsonschema:"Number of reclaimed markers"`
}

func (s *Server) actor(requested string) string {
	if requested != "" {
		return requested
	}
	return s.defaultActor
}

func (s *Server) registerTools() {
	// work_package_start
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "work_package_start",
		Description: "Start a work package: create its isolated worktree on the resolved base branch and move it to doing",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args startInput) (*mcp.CallToolResult, startOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "work_package_start")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "work_package_start")
			s.metrics.RecordInvocation(ctx, "work_package_start", time.Since(start), toolErr)
		}()

		res, err := s.engine.Start(ctx, args.Feature, args.UnitID, args.Base, s.actor(args.Actor))
		if err != nil {
			toolErr = fmt.Errorf("start failed: %w", err)
			return nil, startOutput{}, toolErr
		}

		out := startOutput{
			UnitID:     res.Unit.ID,
			Lane:       res.Unit.Lane.String(),
			Branch:     res.Workspace.Branch,
			Workspace:  res.Workspace.Path,
			Base:       res.Resolution.Base,
			BaseSource: res.Resolution.Source.String(),
			Ready:      res.Ready,
			Advisory:   res.Resolution.Advisory,
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("%s started on %s (base %s)", out.UnitID, out.Branch, out.Base)},
			},
		}, out, nil
	})

	// work_package_advance
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "work_package_advance",
		Description: "Move a work package to another lane (for_review, done, rejected, or back to planned/doing)",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args advanceInput) (*mcp.CallToolResult, advanceOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "work_package_advance")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "work_package_advance")
			s.metrics.RecordInvocation(ctx, "work_package_advance", time.Since(start), toolErr)
		}()

		to, err := workunit.ParseLane(args.To)
		if err != nil {
			toolErr = err
			return nil, advanceOutput{}, err
		}

		u, err := s.engine.Advance(ctx, args.Feature, args.UnitID, to, s.actor(args.Actor), args.Note)
		if err != nil {
			toolErr = fmt.Errorf("advance failed: %w", err)
			return nil, advanceOutput{}, toolErr
		}

		out := advanceOutput{
			UnitID: u.ID,
			Lane:   u.Lane.String(),
			Owner:  u.Owner,
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("%s moved to %s", out.UnitID, out.Lane)},
			},
		}, out, nil
	})

	// feature_status
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "feature_status",
		Description: "Report every work package's lane, the ready set, and any dependency graph problem",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args statusInput) (*mcp.CallToolResult, statusOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "feature_status")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "feature_status")
			s.metrics.RecordInvocation(ctx, "feature_status", time.Since(start), toolErr)
		}()

		st, err := s.engine.Status(ctx, args.Feature)
		if err != nil {
			toolErr = fmt.Errorf("status failed: %w", err)
			return nil, statusOutput{}, toolErr
		}

		out := statusOutput{
			Feature:      st.Feature,
			Target:       st.Target,
			TargetExists: st.TargetExists,
			Units:        st.Units,
			Ready:        st.Ready,
			Problem:      st.Problem,
		}
		text := fmt.Sprintf("%d units, %d ready", len(out.Units), len(out.Ready))
		if out.Problem != "" {
			text = "dependency graph problem: " + out.Problem
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, out, nil
	})

	// feature_merge
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "feature_merge",
		Description: "Merge done work package branches into the feature's target branch in dependency order, or forecast the merge with dry_run",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args mergeInput) (*mcp.CallToolResult, mergeOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "feature_merge")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "feature_merge")
			s.metrics.RecordInvocation(ctx, "feature_merge", time.Since(start), toolErr)
		}()

		if args.DryRun {
			report, err := s.engine.MergeDryRun(ctx, args.Feature)
			if err != nil {
				toolErr = fmt.Errorf("merge dry run failed: %w", err)
				return nil, mergeOutput{}, toolErr
			}
			out := mergeOutput{
				Feature: report.Feature,
				Target:  report.Target,
				DryRun:  true,
				Order:   report.Order,
				Skipped: report.Skipped,
			}
			for _, f := range report.Forecasts {
				out.Forecasts = append(out.Forecasts, mergeForecast{
					File:    f.File,
					UnitIDs: f.UnitIDs,
					Class:   f.Class.String(),
				})
			}
			text := fmt.Sprintf("would merge %s into %s", strings.Join(out.Order, ", "), out.Target)
			if n := report.ManualCount(); n > 0 {
				text += fmt.Sprintf(" (%d files predicted to need manual resolution)", n)
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: text}},
			}, out, nil
		}

		session, err := s.engine.Merge(ctx, args.Feature, args.Force)
		if err != nil {
			toolErr = fmt.Errorf("merge failed: %w", err)
			return nil, mergeOutput{}, toolErr
		}

		out := mergeOutput{
			Feature: session.Feature,
			Target:  session.Target,
			Order:   session.Order,
			Merged:  session.Merged(),
			Pending: session.Pending(),
		}
		for id, r := range session.Results {
			if r == merge.ResultSkipped {
				out.Skipped = append(out.Skipped, id)
			}
		}
		text := fmt.Sprintf("merged %d of %d units into %s", len(out.Merged), len(out.Order), out.Target)
		if session.Conflict != nil {
			out.Conflict = &mergeConflict{
				UnitID: session.Conflict.UnitID,
				Branch: session.Conflict.Branch,
				Files:  session.Conflict.Files,
				Dir:    session.Conflict.Dir,
			}
			text = fmt.Sprintf("merge halted on %s: conflicts in %s (resolve in %s)",
				out.Conflict.UnitID, strings.Join(out.Conflict.Files, ", "), out.Conflict.Dir)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, out, nil
	})

	// workspace_list
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "workspace_list",
		Description: "List the feature's existing worktrees",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args workspaceListInput) (*mcp.CallToolResult, workspaceListOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "workspace_list")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "workspace_list")
			s.metrics.RecordInvocation(ctx, "workspace_list", time.Since(start), toolErr)
		}()

		workspaces, err := s.engine.Workspaces(ctx, args.Feature)
		if err != nil {
			toolErr = fmt.Errorf("workspace list failed: %w", err)
			return nil, workspaceListOutput{}, toolErr
		}

		out := workspaceListOutput{Workspaces: make([]workspaceInfo, 0, len(workspaces))}
		for _, ws := range workspaces {
			out.Workspaces = append(out.Workspaces, workspaceInfo{
				UnitID: ws.UnitID,
				Branch: ws.Branch,
				Path:   ws.Path,
			})
		}
		out.Count = len(out.Workspaces)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Found %d workspaces", out.Count)},
			},
		}, out, nil
	})

	// lock_sweep
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "lock_sweep",
		Description: "Reclaim lock markers held by dead or expired owners",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args lockSweepInput) (*mcp.CallToolResult, lockSweepOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "lock_sweep")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "lock_sweep")
			s.metrics.RecordInvocation(ctx, "lock_sweep", time.Since(start), toolErr)
		}()

		reclaimed, err := s.engine.SweepLocks(ctx)
		if err != nil {
			toolErr = fmt.Errorf("lock sweep failed: %w", err)
			return nil, lockSweepOutput{}, toolErr
		}

		out := lockSweepOutput{Reclaimed: reclaimed, Count: len(reclaimed)}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Reclaimed %d lock markers", out.Count)},
			},
		}, out, nil
	})
}
