package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sitecms/internal/content"
	"github.com/roach88/sitecms/internal/store"
	"github.com/roach88/sitecms/internal/validate"
)

// NewResolveCommand creates the resolve command.
func NewResolveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [section]",
		Short: "Print the public content tree",
		Long: `Print what the public site renders right now: schema defaults
overlaid with published content. Drafts and content scheduled for later
are not included.

Examples:
  sitecms resolve
  sitecms resolve contact --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := opts.formatter(cmd)
			res := a.resolver.Resolve(cmd.Context())
			for _, w := range res.Warnings {
				out.VerboseLog("warning: %s", w)
			}

			var tree content.Value = res.Tree
			if len(args) == 1 {
				section, err := res.Section(args[0])
				if err != nil {
					return NewExitError(ExitFailure, err.Error())
				}
				tree = section
			}
			return out.Render(tree, func(w io.Writer) {
				writeIndented(w, tree)
			})
		},
	}
}

type fieldSummary struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

type sectionSummary struct {
	Key    string         `json:"key"`
	Label  string         `json:"label"`
	Keyed  bool           `json:"keyed"`
	Fields []fieldSummary `json:"fields"`
}

// NewSectionsCommand creates the sections command.
func NewSectionsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sections",
		Short: "List editable sections and their fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			var summaries []sectionSummary
			for _, sec := range a.engine.Sections() {
				s := sectionSummary{Key: sec.Key, Label: sec.Label, Keyed: sec.Keyed}
				for _, f := range sec.Fields {
					m := f.Meta()
					s.Fields = append(s.Fields, fieldSummary{
						Name: m.Name, Kind: string(f.Kind()), Label: m.Label, Required: m.Required,
					})
				}
				summaries = append(summaries, s)
			}

			return opts.formatter(cmd).Render(summaries, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				for _, s := range summaries {
					keyed := ""
					if s.Keyed {
						keyed = " (keyed)"
					}
					fmt.Fprintf(tw, "%s%s\t%s\n", s.Key, keyed, s.Label)
					for _, f := range s.Fields {
						req := ""
						if f.Required {
							req = "required"
						}
						fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.Name, f.Kind, req)
					}
				}
				tw.Flush()
			})
		},
	}
}

// valueFlags selects how a value argument is read.
type valueFlags struct {
	text bool
}

func (v *valueFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&v.text, "text", false, "treat the value as a plain string instead of JSON")
}

// read parses arg as JSON, or takes it verbatim with --text. "-" reads
// standard input.
func (v *valueFlags) read(cmd *cobra.Command, arg string) (content.Value, error) {
	data := []byte(arg)
	if arg == "-" {
		var err error
		if data, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read value from stdin", err)
		}
	}
	if v.text {
		return content.String(strings.TrimSuffix(string(data), "\n")), nil
	}
	value, err := content.ParseJSON(data)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "value is not valid JSON (use --text for plain strings)", err)
	}
	return value, nil
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(opts *RootOptions) *cobra.Command {
	var value valueFlags
	cmd := &cobra.Command{
		Use:   "validate <section> <key> <value>",
		Short: "Check a value against the schema without saving",
		Long: `Check a value against the schema without saving it. Every
violation is listed.

Exit codes:
  0 - Value is valid
  1 - Value has violations
  2 - Command error

Examples:
  sitecms validate contact phone '"555-0100"'
  sitecms validate testimonials default - < testimonials.json`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := value.read(cmd, args[2])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := opts.formatter(cmd)
			violations, err := a.engine.Validate(args[0], args[1], v)
			if err != nil {
				return out.Fail(err)
			}
			if violations == nil {
				violations = []validate.Violation{}
			}
			result := struct {
				Valid      bool                 `json:"valid"`
				Violations []validate.Violation `json:"violations"`
			}{len(violations) == 0, violations}

			if err := out.Render(result, func(w io.Writer) {
				if result.Valid {
					fmt.Fprintln(w, "✓ valid")
					return
				}
				fmt.Fprintf(w, "✗ %d violation(s)\n", len(violations))
				for _, vi := range violations {
					fmt.Fprintf(w, "  - %s\n", vi.Message)
				}
			}); err != nil {
				return err
			}
			if !result.Valid {
				return NewExitError(ExitFailure, fmt.Sprintf("%d violation(s)", len(violations)))
			}
			return nil
		},
	}
	value.register(cmd)
	return cmd
}

// NewSaveCommand creates the save command.
func NewSaveCommand(opts *RootOptions) *cobra.Command {
	var (
		value valueFlags
		draft bool
	)
	cmd := &cobra.Command{
		Use:   "save <section> <key> <value>",
		Short: "Save a value as a draft",
		Long: `Save a value for a content unit. The unit becomes a draft until
published; the replaced value is kept as a revision. The value is
validated first unless --draft is given.

Examples:
  sitecms save contact phone --text "555-0100"
  sitecms save hero default - < hero.json
  sitecms save service_areas ogdenville '{"name": "Ogdenville"}'`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := value.read(cmd, args[2])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := opts.formatter(cmd)
			save := a.engine.Save
			if draft {
				save = a.engine.SaveDraft
			}
			res, err := save(cmd.Context(), a.identity, args[0], args[1], v)
			if err != nil {
				return out.Fail(err)
			}
			return out.Render(res, func(w io.Writer) {
				fmt.Fprintf(w, "✓ saved %s/%s as draft\n", res.Item.Section, res.Item.Key)
				if res.Revision != nil {
					fmt.Fprintf(w, "  previous value kept as revision %s\n", res.Revision.ID)
				}
			})
		},
	}
	value.register(cmd)
	cmd.Flags().BoolVar(&draft, "draft", false, "skip validation (autosave semantics)")
	return cmd
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <section> [key]",
		Short: "Publish drafts of a section or a single unit",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			key := ""
			if len(args) == 2 {
				key = args[1]
			}
			out := opts.formatter(cmd)
			res, err := a.engine.Publish(cmd.Context(), a.identity, args[0], key)
			if err != nil {
				return out.Fail(err)
			}
			return out.Render(res, func(w io.Writer) {
				if res.Published == 0 {
					fmt.Fprintln(w, "✓ nothing to publish")
					return
				}
				fmt.Fprintf(w, "✓ published %d unit(s)\n", res.Published)
			})
		},
	}
}

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand(opts *RootOptions) *cobra.Command {
	var in time.Duration
	cmd := &cobra.Command{
		Use:   "schedule <section> <key> [time]",
		Short: "Publish a draft at a future time",
		Long: `Publish a draft at a future time given as RFC 3339 or with --in.
The public site keeps showing the previous state until then.

Examples:
  sitecms schedule cta heading 2026-03-01T08:00:00Z
  sitecms schedule cta heading --in 2h`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 3) == (in != 0) {
				return NewExitError(ExitCommandError, "give either a time argument or --in")
			}
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			at := time.Now().Add(in)
			if len(args) == 3 {
				if at, err = time.Parse(time.RFC3339, args[2]); err != nil {
					return WrapExitError(ExitCommandError, "invalid time", err)
				}
			}

			out := opts.formatter(cmd)
			st, err := a.engine.Schedule(cmd.Context(), a.identity, args[0], args[1], at)
			if err != nil {
				return out.Fail(err)
			}
			return out.Render(st, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s/%s scheduled for %s\n", st.Section, st.Key, st.ScheduledFor.UTC().Format(time.RFC3339))
			})
		},
	}
	cmd.Flags().DurationVar(&in, "in", 0, "publish after this duration")
	return cmd
}

// NewRevisionsCommand creates the revisions command.
func NewRevisionsCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "revisions <section> <key>",
		Short: "List earlier values of a content unit, newest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := opts.formatter(cmd)
			revs := []store.Revision{}
			it, err := a.store.FindItem(cmd.Context(), args[0], args[1])
			switch {
			case store.IsNotFound(err):
			case err != nil:
				return out.Fail(err)
			default:
				if revs, err = a.engine.Revisions(cmd.Context(), a.identity, it.ID, limit); err != nil {
					return out.Fail(err)
				}
			}

			return out.Render(revs, func(w io.Writer) {
				if len(revs) == 0 {
					fmt.Fprintln(w, "No revisions.")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSEQ\tBY\tAT\tCONTENT")
				for _, r := range revs {
					data, _ := content.Canonical(r.Content)
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
						r.ID, r.Seq, r.CreatedBy, r.CreatedAt.UTC().Format(time.RFC3339), truncate(string(data), 60))
				}
				tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum revisions to list (default: configured revision_limit)")
	return cmd
}

// NewRollbackCommand creates the rollback command.
func NewRollbackCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <revision-id>",
		Short: "Restore a revision as a draft",
		Long: `Write the content of a revision back as a draft. The current value
is kept as a new revision. Publish to make the restored value public.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := opts.formatter(cmd)
			res, err := a.engine.Rollback(cmd.Context(), a.identity, args[0])
			if err != nil {
				return out.Fail(err)
			}
			return out.Render(res, func(w io.Writer) {
				if !res.Applied {
					fmt.Fprintf(w, "! %s\n", res.Warning)
					return
				}
				fmt.Fprintf(w, "✓ restored %s/%s from revision %s as draft\n",
					res.Item.Section, res.Item.Key, res.Restored.ID)
			})
		},
	}
}

// NewResetCommand creates the reset command.
func NewResetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <section> <key>",
		Short: "Delete a stored unit so the section falls back to defaults",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := opts.formatter(cmd)
			existed, err := a.engine.Reset(cmd.Context(), a.identity, args[0], args[1])
			if err != nil {
				return out.Fail(err)
			}
			result := map[string]bool{"reset": existed}
			return out.Render(result, func(w io.Writer) {
				if !existed {
					fmt.Fprintln(w, "✓ nothing stored")
					return
				}
				fmt.Fprintf(w, "✓ reset %s/%s to defaults\n", args[0], args[1])
			})
		},
	}
}

func writeIndented(w io.Writer, v content.Value) {
	data, err := content.MarshalValue(v)
	if err != nil {
		fmt.Fprintf(w, "<%v>\n", err)
		return
	}
	var raw json.RawMessage = data
	pretty, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		fmt.Fprintln(w, string(data))
		return
	}
	fmt.Fprintln(w, string(pretty))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
