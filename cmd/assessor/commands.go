package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pavelanni/assessor/internal/bank"
	"github.com/pavelanni/assessor/internal/evaluate"
	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/report"
	"github.com/pavelanni/assessor/internal/session"
	"github.com/pavelanni/assessor/internal/store"
)

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate the saved answers of a session",
		Long: "Evaluate the saved answers of a session and print the results as JSON.\n" +
			"Without --session, lists the sessions found in the SQLite slot.",
		RunE: runEvaluate,
	}
	f := cmd.Flags()
	f.String("session", "", "Session ID to evaluate")
	f.Bool("record", false, "Record the scores in the scores summary")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addBankFlags(cmd)
	addSlotFlags(cmd)
	addEvaluatorFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func questionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Inspect question banks",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the questions of the configured banks",
		RunE:  runQuestionsList,
	}
	addBankFlags(list)
	addLogFlags(list)

	validate := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check question bank files for problems",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuestionsValidate,
	}
	addLogFlags(validate)

	cmd.AddCommand(list, validate)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the finalized scores as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("title", "", "Title for the export (default: bank title)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addBankFlags(cmd)
	addSlotFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

type keyLister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	questions, err := bank.LoadFiles(v.GetStringSlice("questions"))
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	slot, err := openSlot(ctx, v)
	if err != nil {
		return err
	}
	defer slot.Close()

	id := v.GetString("session")
	if id == "" {
		return listSessions(ctx, slot, cmd.OutOrStdout())
	}

	pipeline, err := buildPipeline(ctx, v)
	if err != nil {
		return err
	}
	s, err := session.NewManager(questions, slot, model.ExamConfig{}).Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load session %s: %w", id, err)
	}

	items := evaluate.ItemsFor(s.Sequence(), s.Answers)
	batch := pipeline.Run(ctx, items, func(done, total int) {
		fmt.Fprintf(cmd.ErrOrStderr(), "evaluated %d/%d\n", done, total)
	})

	if v.GetBool("record") {
		added, err := report.New(slot).RecordBatch(ctx, s.ID, s.StudentName, batch)
		switch {
		case errors.Is(err, report.ErrNothingEvaluated):
			slog.Warn("no answer could be evaluated, scores not recorded", "session", s.ID, "answers", len(items))
		case err != nil:
			return err
		default:
			slog.Info("recorded scores", "session", s.ID, "entries", len(added))
		}
	}
	return writeOutput(v.GetString("output"), cmd.OutOrStdout(), batch.QuestionResults())
}

func listSessions(ctx context.Context, slot store.Backend, w io.Writer) error {
	kl, ok := slot.(keyLister)
	if !ok {
		return errors.New("--session is required for this slot backend")
	}
	keys, err := kl.Keys(ctx, "session/")
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	for _, k := range keys {
		if id, found := strings.CutSuffix(strings.TrimPrefix(k, "session/"), "/sequence"); found {
			fmt.Fprintln(w, id)
		}
	}
	return nil
}

func runQuestionsList(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	b, err := bank.LoadFiles(v.GetStringSlice("questions"))
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "SET\tID\tKIND\tGRADED\tPROMPT\n")
	for _, ref := range b.Flatten() {
		q := ref.Question
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", ref.SetID, q.ID, q.Kind, q.HasReference(), truncate(q.Prompt, 60))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s: %d questions in %d sets\n", b.Title, b.Count(), len(b.Sets))
	return nil
}

func runQuestionsValidate(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)

	failed := 0
	for _, path := range args {
		b, err := bank.LoadFile(path)
		if err != nil {
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%d questions)\n", path, b.Count())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files invalid", failed, len(args))
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	title := v.GetString("title")
	if title == "" {
		b, err := bank.LoadFiles(v.GetStringSlice("questions"))
		if err != nil {
			return fmt.Errorf("load questions: %w", err)
		}
		title = b.Title
	}

	slot, err := openSlot(ctx, v)
	if err != nil {
		return err
	}
	defer slot.Close()

	export, err := report.New(slot).Export(ctx, title)
	if err != nil {
		return fmt.Errorf("export scores: %w", err)
	}
	return writeOutput(v.GetString("output"), cmd.OutOrStdout(), export)
}

func writeOutput(path string, stdout io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	w := stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
