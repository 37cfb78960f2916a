package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"scriptreel/internal/api"
	"scriptreel/internal/ipc"
	"scriptreel/internal/progress"
	"scriptreel/internal/roster"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		tier       string
		ref        string
		rosterPath string
		assetsPath string
		watch      bool
	)
	cmd := &cobra.Command{
		Use:   "submit <script-file|->",
		Short: "Submit a script for generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readScript(cmd, args[0])
			if err != nil {
				return err
			}
			req := api.StartRequest{Script: text, ScriptRef: strings.TrimSpace(ref), QualityTier: strings.TrimSpace(tier)}
			if req.ScriptRef == "" && args[0] != "-" {
				req.ScriptRef = filepath.Base(args[0])
			}
			if rosterPath != "" {
				cast, err := roster.Load(rosterPath)
				if err != nil {
					return err
				}
				req.Characters = api.FromRoster(cast)
			}
			if assetsPath != "" {
				assets, err := readImportedAssets(assetsPath)
				if err != nil {
					return err
				}
				req.Assets = assets
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Submit(cmd.Context(), req)
				if err != nil {
					return err
				}
				if err := ctx.render(cmd, resp, func() error {
					fmt.Fprintf(cmd.OutOrStdout(), "Submitted generation %s (%s)\n", resp.ID, resp.Status)
					return nil
				}); err != nil {
					return err
				}
				if !watch {
					return nil
				}
				return watchGeneration(cmd, ctx, client, resp.ID)
			})
		},
	}
	cmd.Flags().StringVarP(&tier, "tier", "t", "", "Quality tier (draft, standard, premium)")
	cmd.Flags().StringVar(&ref, "ref", "", "Caller reference stored with the generation")
	cmd.Flags().StringVar(&rosterPath, "roster", "", "Character roster YAML file")
	cmd.Flags().StringVar(&assetsPath, "assets", "", "JSON file of existing assets to import")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow progress until the generation finishes")
	return cmd
}

func readScript(cmd *cobra.Command, source string) (string, error) {
	var (
		data []byte
		err  error
	)
	if source == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("script is empty")
	}
	return string(data), nil
}

func readImportedAssets(path string) ([]api.ImportedAsset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read assets: %w", err)
	}
	var assets []api.ImportedAsset
	if err := json.Unmarshal(data, &assets); err != nil {
		return nil, fmt.Errorf("parse assets %s: %w", path, err)
	}
	return assets, nil
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [generation-id]",
		Short: "Show daemon status, or one generation's progress",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return showDaemonStatus(cmd, ctx)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				g, err := client.Generation(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return ctx.render(cmd, g, func() error {
					printGeneration(cmd.OutOrStdout(), g, shouldColorize(cmd.OutOrStdout()))
					return nil
				})
			})
		},
	}
}

func printGeneration(out io.Writer, g *api.Generation, colorize bool) {
	fmt.Fprintln(out, renderStatusLine("Generation", statusInfo, g.ID, colorize))
	if g.ScriptRef != "" {
		fmt.Fprintln(out, renderStatusLine("Script", statusInfo, g.ScriptRef, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Status", statusKindFor(g.Status), formatStatusLabel(g.Status), colorize))
	fmt.Fprintln(out, renderStatusLine("Quality tier", statusInfo, g.QualityTier, colorize))
	progressLine := formatPercent(g.Progress.Percent)
	if g.Progress.Stage != "" {
		progressLine = g.Progress.Stage + " " + progressLine
	}
	if g.Progress.Message != "" {
		progressLine += " " + g.Progress.Message
	}
	fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, progressLine, colorize))
	if g.PipelineRetries > 0 {
		fmt.Fprintln(out, renderStatusLine("Pipeline retries", statusWarn, fmt.Sprintf("%d", g.PipelineRetries), colorize))
	}
	if g.ErrorMessage != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, g.ErrorMessage, colorize))
	}
	if g.OutputURL != "" {
		fmt.Fprintln(out, renderStatusLine("Output", statusOK, g.OutputURL, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Created", statusInfo, formatDisplayTime(g.CreatedAt), colorize))
	fmt.Fprintln(out, renderStatusLine("Updated", statusInfo, formatDisplayTime(g.UpdatedAt), colorize))
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List generations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				gens, err := client.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				return ctx.render(cmd, api.GenerationListResponse{Generations: gens}, func() error {
					if len(gens) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "No generations")
						return nil
					}
					fmt.Fprint(cmd.OutOrStdout(), renderTable([]column{
						{header: "ID"},
						{header: "Script"},
						{header: "Status"},
						{header: "Tier"},
						{header: "Progress", align: alignRight},
						{header: "Created"},
					}, buildGenerationRows(gens)))
					return nil
				})
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func newAssetsCommand(ctx *commandContext) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "assets <generation-id>",
		Short: "List a generation's assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				assets, err := client.Assets(cmd.Context(), args[0], kind)
				if err != nil {
					return err
				}
				return ctx.render(cmd, api.AssetListResponse{GenerationID: args[0], Assets: assets}, func() error {
					if len(assets) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "No assets")
						return nil
					}
					fmt.Fprint(cmd.OutOrStdout(), renderTable([]column{
						{header: "ID"},
						{header: "Kind"},
						{header: "Category"},
						{header: "Scene", align: alignRight},
						{header: "Character"},
						{header: "Status"},
						{header: "Source"},
						{header: "Retries", align: alignRight},
						{header: "URL / Error", maxWidth: 60},
					}, buildAssetRows(assets)))
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Only assets of this kind (audio, image, video)")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <generation-id>",
		Short: "Cancel a generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				g, err := client.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return ctx.render(cmd, g, func() error {
					fmt.Fprintf(cmd.OutOrStdout(), "Generation %s %s\n", g.ID, strings.ToLower(formatStatusLabel(g.Status)))
					return nil
				})
			})
		},
	}
}

func newTierCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tier <generation-id> <draft|standard|premium>",
		Short: "Change the quality tier of a pending generation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				g, err := client.SetQualityTier(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return ctx.render(cmd, g, func() error {
					fmt.Fprintf(cmd.OutOrStdout(), "Generation %s quality tier set to %s\n", g.ID, g.QualityTier)
					return nil
				})
			})
		},
	}
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <generation-id>",
		Short: "Follow a generation's progress until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				return watchGeneration(cmd, ctx, client, args[0])
			})
		},
	}
}

// watchGeneration prints progress events and fails when the generation
// ends in anything but completed.
func watchGeneration(cmd *cobra.Command, ctx *commandContext, client *ipc.Client, id string) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	var last progress.Event
	err := client.Watch(cmd.Context(), id, func(ev progress.Event) error {
		last = ev
		if ctx.jsonOutput() {
			return json.NewEncoder(out).Encode(ev)
		}
		label := fallback(ev.Stage, "progress")
		kind := statusInfo
		if ev.Final {
			kind = statusKindFor(ev.Status)
		}
		message := formatPercent(ev.Percent)
		if ev.Message != "" {
			message += " " + ev.Message
		}
		fmt.Fprintln(out, renderStatusLine(label, kind, message, colorize))
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	if last.Final && last.Status != "" && last.Status != "completed" {
		return fmt.Errorf("generation %s ended %s", id, last.Status)
	}
	return nil
}
