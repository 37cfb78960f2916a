package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"scriptreel/internal/config"
	"scriptreel/internal/ipc"
	"scriptreel/internal/roster"
	"scriptreel/internal/script"
	"scriptreel/internal/storyboard"
)

type parseOutput struct {
	Characters []string         `json:"characters"`
	Scenes     []script.Scene   `json:"scenes"`
	Warnings   []script.Warning `json:"warnings,omitempty"`
}

// segmentScript parses and segments a script file with the configured
// policies. Names from an optional roster seed speaker detection.
func segmentScript(cmd *cobra.Command, cfg *config.Config, source, rosterPath string) (parseOutput, error) {
	text, err := readScript(cmd, source)
	if err != nil {
		return parseOutput{}, err
	}
	var known []string
	if rosterPath != "" {
		cast, err := roster.Load(rosterPath)
		if err != nil {
			return parseOutput{}, err
		}
		known = cast.Names()
	}
	parsed := script.ParseWithOptions(text, known, script.Options{
		UnknownSpeaker: script.SpeakerPolicy(cfg.Script.UnknownSpeakerPolicy),
	})
	scenes := script.Segmenter{FallbackThreshold: cfg.Script.FallbackDialogueThreshold}.Segment(parsed)
	return parseOutput{Characters: parsed.Characters, Scenes: scenes, Warnings: parsed.Warnings}, nil
}

func newParseCommand(ctx *commandContext) *cobra.Command {
	var rosterPath string
	cmd := &cobra.Command{
		Use:   "parse <script-file|->",
		Short: "Parse and segment a script locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			result, err := segmentScript(cmd, cfg, args[0], rosterPath)
			if err != nil {
				return err
			}
			return ctx.render(cmd, result, func() error {
				out := cmd.OutOrStdout()
				rows := make([][]string, 0, len(result.Scenes))
				for _, sc := range result.Scenes {
					rows = append(rows, []string{
						fmt.Sprintf("%d", sc.Number),
						fallback(sc.Heading, "-"),
						fallback(strings.Join(sc.Speakers(), ", "), "-"),
						fmt.Sprintf("%d", len(sc.Dialogues)),
						fmt.Sprintf("%d", len(sc.SoundCues)),
						fallback(strings.Join(sc.CameraMovements, ", "), "-"),
					})
				}
				fmt.Fprint(out, renderTable([]column{
					{header: "Scene", align: alignRight},
					{header: "Heading", maxWidth: 40},
					{header: "Speakers", maxWidth: 40},
					{header: "Lines", align: alignRight},
					{header: "Cues", align: alignRight},
					{header: "Camera"},
				}, rows))
				fmt.Fprintf(out, "Characters: %s\n", fallback(strings.Join(result.Characters, ", "), "none"))
				for _, w := range result.Warnings {
					fmt.Fprintf(out, "warning: line %d: %s (%q)\n", w.Line, w.Reason, w.Text)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rosterPath, "roster", "", "Character roster YAML file")
	return cmd
}

func newStoryboardCommand(ctx *commandContext) *cobra.Command {
	var (
		rosterPath string
		output     string
		title      string
		generation string
	)
	cmd := &cobra.Command{
		Use:   "storyboard <script-file>",
		Short: "Render a storyboard PDF of the script's scenes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			result, err := segmentScript(cmd, cfg, args[0], rosterPath)
			if err != nil {
				return err
			}
			opts := storyboard.Options{Title: title}
			if opts.Title == "" && args[0] != "-" {
				opts.Title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			if generation != "" {
				images, err := sceneImages(cmd, ctx, generation)
				if err != nil {
					return err
				}
				opts.Images = images
			}
			if output == "" {
				output = filepath.Join(cfg.Paths.OutputDir, storyboard.FileName(opts.Title))
			}
			if err := storyboard.WriteFile(output, result.Scenes, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote storyboard with %d scenes to %s\n", len(result.Scenes), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&rosterPath, "roster", "", "Character roster YAML file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination PDF (defaults to the output directory)")
	cmd.Flags().StringVar(&title, "title", "", "Storyboard title")
	cmd.Flags().StringVarP(&generation, "generation", "g", "", "Use completed scene images from this generation")
	return cmd
}

// sceneImages maps scene numbers to the completed image assets of a
// generation.
func sceneImages(cmd *cobra.Command, ctx *commandContext, id string) (map[int]string, error) {
	images := make(map[int]string)
	err := ctx.withClient(func(client *ipc.Client) error {
		assets, err := client.Assets(cmd.Context(), id, "image")
		if err != nil {
			return err
		}
		for _, a := range assets {
			if a.SceneNumber == nil || a.URL == "" || a.Status != "completed" {
				continue
			}
			if _, taken := images[*a.SceneNumber]; !taken {
				images[*a.SceneNumber] = a.URL
			}
		}
		return nil
	})
	return images, err
}
