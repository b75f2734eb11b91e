package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/execview/prefs"
	"github.com/deepnoodle-ai/execview/store"
	"github.com/deepnoodle-ai/execview/viewer"
	"github.com/deepnoodle-ai/wonton/cli"
)

func registerListCommand(app *cli.App) {
	app.Command("list").
		Description("List executions").
		NoArgs().
		Flags(
			cli.String("workflow", "w").Help("Only list executions of this workflow"),
		).
		Run(func(ctx *cli.Context) error {
			rt, err := setup(ctx)
			if err != nil {
				return err
			}
			return runList(context.Background(), rt, ctx.String("workflow"))
		})
}

func runList(ctx context.Context, rt *runtime, workflowID string) error {
	s := store.New(rt.client, store.Options{Logger: rt.logger})
	if err := s.LoadExecutions(ctx, workflowID); err != nil {
		return cli.Errorf("listing executions: %v", err)
	}
	return renderExecutions(out, s.Executions())
}

func registerShowCommand(app *cli.App) {
	app.Command("show").
		Description("Show an execution with its timeline and recent logs").
		Args("execution-id").
		Flags(
			cli.Int("logs", "n").Default(20).Help("Number of log lines to show (0 for all)"),
		).
		Run(func(ctx *cli.Context) error {
			rt, err := setup(ctx)
			if err != nil {
				return err
			}
			return runShow(context.Background(), rt, ctx.Arg(0), ctx.Int("logs"))
		})
}

func runShow(ctx context.Context, rt *runtime, executionID string, logLimit int) error {
	s := store.New(rt.client, store.Options{Logger: rt.logger})
	if err := s.LoadExecution(ctx, executionID); err != nil {
		return cli.Errorf("loading execution: %v", err)
	}
	return renderExecution(out, s.Current(), logLimit)
}

func registerStartCommand(app *cli.App) {
	app.Command("start").
		Description("Start a workflow execution").
		Args("workflow-id").
		Flags(
			cli.String("profile", "p").Help("Artifact profile (" + profileList() + ")"),
			cli.Bool("watch", "").Help("Watch the execution until it finishes"),
			cli.String("step", "").Help("With --watch, only show steps and logs matching this glob"),
		).
		Run(func(ctx *cli.Context) error {
			rt, err := setup(ctx)
			if err != nil {
				return err
			}
			profile, err := rt.artifactProfile(ctx.String("profile"))
			if err != nil {
				return err
			}
			workflowID := ctx.Arg(0)
			if !ctx.Bool("watch") {
				return runStart(context.Background(), rt, workflowID, profile)
			}

			filter, err := compileStepFilter(ctx.String("step"))
			if err != nil {
				return err
			}
			return watch(rt, filter, func(ctx context.Context, v *viewer.Viewer) error {
				exec, err := v.Start(ctx, workflowID, profile.String())
				if err != nil {
					return cli.Errorf("starting workflow: %v", err)
				}
				fmt.Fprintf(out, "Started %s with profile %s\n", boldStyle.Sprint(exec.ID), profile)
				return nil
			})
		})
}

func runStart(ctx context.Context, rt *runtime, workflowID string, profile prefs.Profile) error {
	s := store.New(rt.client, store.Options{Logger: rt.logger})
	exec, err := s.Start(ctx, workflowID, profile.String())
	if err != nil {
		return cli.Errorf("starting workflow: %v", err)
	}
	s.Wait()
	fmt.Fprintf(out, "Started %s (%s, profile %s)\n", boldStyle.Sprint(exec.ID), formatStatus(string(exec.Status)), profile)
	return nil
}

func registerStopCommand(app *cli.App) {
	app.Command("stop").
		Description("Cancel a running execution").
		Args("execution-id").
		Run(func(ctx *cli.Context) error {
			rt, err := setup(ctx)
			if err != nil {
				return err
			}
			return runStop(context.Background(), rt, ctx.Arg(0))
		})
}

func runStop(ctx context.Context, rt *runtime, executionID string) error {
	s := store.New(rt.client, store.Options{Logger: rt.logger})
	if err := s.LoadExecution(ctx, executionID); err != nil {
		return cli.Errorf("loading execution: %v", err)
	}
	if current := s.Current(); current.IsTerminal() {
		fmt.Fprintf(out, "Execution %s already %s\n", executionID, formatStatus(string(current.Status)))
		return nil
	}
	if err := s.Stop(ctx, executionID); err != nil {
		return cli.Errorf("stopping execution: %v", err)
	}
	fmt.Fprintf(out, "Execution %s %s\n", executionID, formatStatus(string(s.Current().Status)))
	return nil
}

func registerWatchCommand(app *cli.App) {
	app.Command("watch").
		Description("Follow an execution live until it finishes").
		Args("execution-id").
		Flags(
			cli.String("step", "s").Help("Only show steps and logs matching this glob"),
		).
		Run(func(ctx *cli.Context) error {
			rt, err := setup(ctx)
			if err != nil {
				return err
			}
			filter, err := compileStepFilter(ctx.String("step"))
			if err != nil {
				return err
			}
			id := ctx.Arg(0)
			return watch(rt, filter, func(ctx context.Context, v *viewer.Viewer) error {
				if err := v.Open(ctx, id); err != nil {
					return cli.Errorf("loading execution: %v", err)
				}
				return nil
			})
		})
}

func registerProfileCommand(app *cli.App) {
	app.Command("profile").
		Description("Show or set the default artifact profile").
		Args("profile?").
		Run(func(ctx *cli.Context) error {
			rt, err := setup(ctx)
			if err != nil {
				return err
			}
			var value string
			if ctx.NArg() > 0 {
				value = ctx.Arg(0)
			}
			return runProfile(rt, value)
		})
}

func runProfile(rt *runtime, value string) error {
	if value == "" {
		current := rt.prefs.Profile()
		for _, p := range prefs.Profiles() {
			marker := "  "
			if p == current {
				marker = successStyle.Sprint("* ")
			}
			fmt.Fprintln(out, marker+p.String())
		}
		return nil
	}
	p, err := prefs.ParseProfile(value)
	if err != nil {
		return err
	}
	if err := rt.prefs.SetProfile(p); err != nil {
		return err
	}
	fmt.Fprintf(out, "Default artifact profile set to %s\n", boldStyle.Sprint(p))
	return nil
}

// profileList renders the valid profiles for help text.
func profileList() string {
	names := make([]string, 0, len(prefs.Profiles()))
	for _, p := range prefs.Profiles() {
		names = append(names, p.String())
	}
	return strings.Join(names, ", ")
}
