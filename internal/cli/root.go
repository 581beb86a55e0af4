// Package cli implements the placeholder-anonymizer command line.
package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"placeholder-anonymizer/internal/config"
	"placeholder-anonymizer/internal/detector"
	"placeholder-anonymizer/internal/logger"
	"placeholder-anonymizer/internal/metrics"
)

// Modes are the accepted values of the positional mode argument.
var Modes = []string{ModeAnonymize, ModeDeanonymize}

const (
	ModeAnonymize   = "anonymize"
	ModeDeanonymize = "deanonymize"
)

// RootOptions holds the command-line flags. Flags left unset fall back to
// the config file and environment.
type RootOptions struct {
	ConfigFile  string
	MappingFile string
	Language    string
	Detectors   []string
	LogLevel    string
	Stats       bool
}

// DetectorFactory builds the detector used by an anonymize run.
type DetectorFactory func(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (detector.Detector, error)

// NewRootCommand creates the placeholder-anonymizer command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultDetector)
}

func newRootCommand(newDetector DetectorFactory) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "placeholder-anonymizer <anonymize|deanonymize>",
		Short: "Reversible placeholder anonymization of text on stdin",
		Long: `Replace sensitive values in text read from stdin with placeholders such as
<PERSON_0>, saving the value-to-placeholder mapping to a file, and restore
them later from that mapping even after the text has been edited.

  anonymize     detect, substitute, save the mapping, print {"anonymized_text": ...}
  deanonymize   load the mapping, restore, print {"deanonymized_text": ...}

The default regex detector works offline and finds structured values such
as emails, phone numbers and card numbers. Names and locations need a
Presidio analyzer or an Ollama model: --detectors presidio,regex`,
		Args:          cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs:     Modes,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd, args[0], cfg, opts, newDetector)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "YAML config file (default "+config.DefaultFile+" if present)")
	cmd.Flags().StringVar(&opts.MappingFile, "entity-mapping-file", "~/.cache/presidio_mapping.json",
		"mapping file; a .db or .bolt extension selects the bbolt store")
	cmd.Flags().StringVar(&opts.Language, "language", "en", "language of the input text")
	cmd.Flags().StringSliceVar(&opts.Detectors, "detectors", []string{"regex"}, "detectors to run, in order (regex,presidio,ollama); regex finds structured values only, names and locations need presidio or ollama")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug|info|warn|error)")
	cmd.Flags().BoolVar(&opts.Stats, "stats", false, "write a JSON metrics snapshot to stderr")

	return cmd
}

// resolveConfig loads the config file and env, then applies the flags the
// user actually set.
func resolveConfig(cmd *cobra.Command, opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("entity-mapping-file") {
		cfg.MappingFile = opts.MappingFile
	}
	if flags.Changed("language") {
		cfg.Language = opts.Language
	}
	if flags.Changed("detectors") {
		cfg.Detectors = opts.Detectors
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.LogLevel
	}
	return cfg, nil
}

func defaultDetector(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (detector.Detector, error) {
	chain, err := detector.New(cfg.Detectors, detector.Options{
		Entities:               cfg.Entities,
		PresidioEndpoint:       cfg.PresidioEndpoint,
		PresidioScoreThreshold: cfg.PresidioScoreThreshold,
		OllamaEndpoint:         cfg.OllamaEndpoint,
		OllamaModel:            cfg.OllamaModel,
		AIConfidence:           cfg.AIConfidence,
		Timeout:                cfg.DetectorTimeout,
	}, log, m)
	if err != nil {
		return nil, err
	}
	log.Debugf("chain", "running %s", strings.Join(chain.Detectors(), ","))
	return chain, nil
}
