package main

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/goagiq/mcp-markitdown-ui/ocr"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Global Variables and Constants
var (

	// Logger
	log = logrus.New()

	// Environment Variables
	logLevel      = strings.ToLower(os.Getenv("LOG_LEVEL"))
	listenAddress = os.Getenv("LISTEN_ADDRESS")
	promptsDir    = "prompts"

	// Flags
	envFile string
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "markitdown-ocr",
	Short: "Convert PDFs and images to markdown with vision models",
	Long: `markitdown-ocr extracts text from PDFs and images. Text-based PDFs are read from their
text layer; scanned pages go through quality assessment, image enhancement, local OCR
and a ranked chain of vision models.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnv(envFile); err != nil {
			return err
		}
		initLogger()
		if noColor {
			color.NoColor = true
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadEnv loads a dotenv file. A missing file is not an error; variables
// already set in the environment take precedence.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	// Re-read values captured before the file was loaded
	logLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	listenAddress = os.Getenv("LISTEN_ADDRESS")
	return nil
}

func initLogger() {
	level := logrus.InfoLevel
	switch logLevel {
	case "debug":
		level = logrus.DebugLevel
	case "info":
		level = logrus.InfoLevel
	case "warn":
		level = logrus.WarnLevel
	case "error":
		level = logrus.ErrorLevel
	default:
		if logLevel != "" {
			log.Fatalf("Invalid log level: '%s'.", logLevel)
		}
	}

	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	ocr.SetLogLevel(level)
}

// getLikelyLanguage determines the likely language of the document content
func getLikelyLanguage() string {
	likelyLanguage := os.Getenv("LLM_LANGUAGE")
	if likelyLanguage == "" {
		likelyLanguage = "English"
	}
	return strings.Title(strings.ToLower(likelyLanguage))
}
