package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"placeholder-anonymizer/internal/anonymizer"
	"placeholder-anonymizer/internal/config"
	"placeholder-anonymizer/internal/detector"
	"placeholder-anonymizer/internal/logger"
	"placeholder-anonymizer/internal/mapping"
	"placeholder-anonymizer/internal/metrics"
)

// run performs one pass. Anonymize: read stdin, detect, substitute, save
// the mapping, print. Deanonymize: read stdin, load the mapping,
// substitute, print.
func run(cmd *cobra.Command, mode string, cfg *config.Config, opts *RootOptions, newDetector DetectorFactory) error {
	runID := uuid.NewString()
	log := logger.New("cli", cfg.LogLevel, cmd.ErrOrStderr()).WithRun(runID)
	m := metrics.New(runID)

	log.Debugf("start", "mode=%s mapping=%s language=%s detectors=%s",
		mode, cfg.MappingFile, cfg.Language, strings.Join(cfg.Detectors, ","))

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimRight(string(data), "\n")

	backend, err := mapping.Open(cfg.MappingFile, log.Module("mapping"))
	if err != nil {
		return err
	}

	var out *Output
	switch mode {
	case ModeAnonymize:
		out, err = anonymize(cmdContext(cmd), text, cfg, backend, log, m, newDetector)
	case ModeDeanonymize:
		out, err = deanonymize(text, backend, log, m)
	default:
		err = fmt.Errorf("invalid mode %q: must be one of %v", mode, Modes)
	}
	if err != nil {
		return err
	}

	if err := out.Write(cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if opts.Stats {
		if err := writeStats(cmd.ErrOrStderr(), m.Snapshot()); err != nil {
			return fmt.Errorf("write stats: %w", err)
		}
	}
	return nil
}

func anonymize(ctx context.Context, text string, cfg *config.Config, backend mapping.Backend,
	log *logger.Logger, m *metrics.Metrics, newDetector DetectorFactory) (*Output, error) {
	language, err := detector.NormalizeLanguage(cfg.Language)
	if err != nil {
		return nil, err
	}
	d, err := newDetector(cfg, log.Module("detector"), m)
	if err != nil {
		return nil, err
	}

	res, err := anonymizer.New(d, log.Module("anonymizer"), m).Anonymize(ctx, text, language)
	if err != nil {
		return nil, err
	}
	if err := backend.Save(res.Mapping); err != nil {
		return nil, err
	}
	log.Infof("anonymize", "saved %d placeholders to %s", res.Mapping.Len(), backend.Path())
	return &Output{Key: "anonymized_text", Text: res.Text}, nil
}

func deanonymize(text string, backend mapping.Backend, log *logger.Logger, m *metrics.Metrics) (*Output, error) {
	store, err := backend.Load()
	if err != nil {
		return nil, err
	}
	restored, err := anonymizer.New(nil, log.Module("anonymizer"), m).Deanonymize(text, store)
	if err != nil {
		return nil, err
	}
	return &Output{Key: "deanonymized_text", Text: restored}, nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
