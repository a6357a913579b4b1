package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/goagiq/mcp-markitdown-ui/ocr"
	"github.com/goagiq/mcp-markitdown-ui/ocr/tesseract"
	"github.com/spf13/cobra"
)

var (
	convertOutput   string
	convertMetadata bool
)

var convertCmd = &cobra.Command{
	Use:   "convert <file>",
	Short: "Convert a PDF or image to markdown",
	Args:  cobra.ExactArgs(1),
	RunE:  runConvert,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the configured vision models with their performance history",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

func init() {
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "write markdown to this file instead of stdout")
	convertCmd.Flags().BoolVar(&convertMetadata, "metadata", false, "print conversion metadata as JSON to stderr")
	rootCmd.AddCommand(convertCmd, serveCmd, modelsCmd)
}

// newOrchestrator wires the OCR pipeline from s. Tesseract is optional: when it
// cannot be loaded, local OCR is switched off with a warning.
func newOrchestrator(s settings) (*ocr.Orchestrator, error) {
	config := s.OCR

	prompt, err := loadOCRPrompt(promptsDir, getLikelyLanguage())
	if err != nil {
		return nil, err
	}
	config.VisionPrompt = prompt

	var opts []ocr.Option
	if config.EnableLocalOCR || config.FallbackToLocalOCR {
		engine, err := tesseract.New(s.TesseractLangs...)
		if err != nil {
			log.WithError(err).Warn("Local OCR disabled")
			config.EnableLocalOCR = false
			config.FallbackToLocalOCR = false
		} else {
			opts = append(opts, ocr.WithLocalEngine(engine))
		}
	}

	store, err := newPerformanceStore(s)
	if err != nil {
		return nil, err
	}
	opts = append(opts, ocr.WithTracker(ocr.NewModelPerformanceTracker(store)))

	return ocr.NewOrchestrator(config, opts...)
}

func runConvert(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(os.Getenv)
	if err != nil {
		return err
	}
	orchestrator, err := newOrchestrator(s)
	if err != nil {
		return err
	}
	defer func() {
		if err := orchestrator.Close(); err != nil {
			log.Errorf("Error closing orchestrator: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := orchestrator.ConvertFile(ctx, args[0])
	if err != nil {
		return err
	}

	if convertOutput == "" {
		if _, err := io.WriteString(cmd.OutOrStdout(), result.Markdown+"\n"); err != nil {
			return err
		}
	} else {
		if err := os.WriteFile(convertOutput, []byte(result.Markdown), 0644); err != nil {
			return fmt.Errorf("error writing %s: %w", convertOutput, err)
		}
		color.New(color.FgGreen).Fprintf(cmd.ErrOrStderr(), "✓ Wrote %s\n", convertOutput)
	}

	if convertMetadata {
		enc := json.NewEncoder(cmd.ErrOrStderr())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result.Metadata); err != nil {
			return fmt.Errorf("error encoding metadata: %w", err)
		}
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(os.Getenv)
	if err != nil {
		return err
	}
	orchestrator, err := newOrchestrator(s)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Jobs keep running while the listener drains; they stop with the process context
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	store := NewJobStore()
	app := &App{
		Converter: orchestrator,
		Jobs:      store,
		Queue:     startWorkerPool(jobCtx, store, orchestrator, s.JobWorkers, s.JobQueueSize),
	}

	if logLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	app.registerRoutes(router)

	addr := listenAddress
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Server started on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to run server: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Error shutting down server: %v", err)
	}
	cancelJobs()
	app.Queue.Stop()

	if err := orchestrator.Close(); err != nil {
		return err
	}
	log.Info("Server stopped")
	return nil
}

func runModels(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(os.Getenv)
	if err != nil {
		return err
	}
	orchestrator, err := newOrchestrator(s)
	if err != nil {
		return err
	}
	defer orchestrator.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	printModelStatuses(cmd.OutOrStdout(), orchestrator.ModelStatuses(ctx))
	return nil
}

// printModelStatuses writes one line per model in ranked order.
func printModelStatuses(w io.Writer, statuses []ocr.ModelStatus) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	for i, st := range statuses {
		fmt.Fprintf(w, "%d. %-28s", i+1, st.Name)
		switch {
		case st.Available == nil:
			yellow.Fprint(w, "unknown  ")
		case *st.Available:
			green.Fprint(w, "installed")
		default:
			red.Fprint(w, "missing  ")
		}
		p := st.Performance
		fmt.Fprintf(w, "  score %6.2f  ok %d  failed %d  avg %.1fs\n",
			st.Score, p.SuccessCount, p.FailureCount, p.AvgResponseTime)
	}
}
