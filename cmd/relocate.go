package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/open-policy-agent/jar-relocator/internal/config"
	"github.com/open-policy-agent/jar-relocator/internal/logging"
	"github.com/open-policy-agent/jar-relocator/internal/storage"
	"github.com/open-policy-agent/jar-relocator/internal/transformer"
)

type relocateParams struct {
	relocationParams
	logParams
	jobs        int
	metricsFile string
	noProgress  bool
}

func relocateCommand() *cobra.Command {
	var p relocateParams

	c := &cobra.Command{
		Use:   "relocate [flags] [JAR...]",
		Short: "Relocate packages inside jars in place",
		Long: `Relocate rewrites each jar in place. A jar is only replaced once its
relocated copy has been written completely; on any error it is left untouched.

When object storage is configured, each relocated jar is published after it
has been replaced.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelocate(cmd, args, &p)
		},
	}

	addRelocationFlags(c.Flags(), &p.relocationParams)
	addLogFlags(c.Flags(), &p.logParams)
	c.Flags().IntVarP(&p.jobs, "jobs", "j", 0, "number of jars relocated concurrently (default from configuration, or 1)")
	c.Flags().StringVar(&p.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file on exit")
	c.Flags().BoolVar(&p.noProgress, "no-progress", false, "disable the progress bar")

	return c
}

func runRelocate(cmd *cobra.Command, args []string, p *relocateParams) (err error) {
	ctx := cmd.Context()
	log := p.logger(cmd.ErrOrStderr())

	if p.metricsFile != "" {
		defer func() {
			if werr := prometheus.WriteToTextfile(p.metricsFile, prometheus.DefaultGatherer); werr != nil {
				err = errors.Join(err, fmt.Errorf("write metrics: %w", werr))
			}
		}()
	}

	cfg, jars, err := p.load(cmd, args)
	if err != nil {
		return err
	}

	rules, err := cfg.Rules()
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		log.Warnf("no relocations configured, jars are rewritten unchanged")
	}

	jobs := p.jobs
	if jobs == 0 {
		jobs = max(cfg.Options.Jobs, 1)
	}

	t := transformer.New().
		WithRules(rules).
		WithLogger(log).
		WithServiceFiles(cfg.Options.ServiceFiles).
		WithTempDir(cfg.Options.TempDir)
	if !p.noProgress && jobs == 1 {
		t = t.WithProgress(cmd.ErrOrStderr())
	}

	var publisher storage.ObjectStorage
	if cfg.ObjectStorage != nil {
		publisher, err = storage.New(ctx, *cfg.ObjectStorage)
		if err != nil {
			return err
		}
	}

	out := &syncWriter{w: cmd.OutOrStdout()}
	var (
		mu         sync.Mutex
		publishErr error
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for _, jar := range jars {
		g.Go(func() error {
			result, err := t.Transform(ctx, jar)
			if err != nil {
				return fmt.Errorf("relocate %s: %w", jar, err)
			}
			out.printf("%s: %d entries, %d classes rewritten, %d relocated, %d directories added (%s, %v)\n",
				jar, result.Entries, result.Classes, result.Relocated, result.Directories,
				humanize.Bytes(uint64(result.Size)), result.Duration.Round(time.Millisecond))

			if publisher == nil {
				return nil
			}
			if err := publish(ctx, log, publisher, cfg.Options.Revision, jar); err != nil {
				mu.Lock()
				publishErr = errors.Join(publishErr, err)
				mu.Unlock()
				return nil
			}
			out.printf("%s: published to %s\n", jar, publisher)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return publishErr
}

// publish uploads a jar that was already replaced locally. Failures do not
// stop the remaining jars.
func publish(ctx context.Context, log *logging.Logger, publisher storage.ObjectStorage, revision, jar string) error {
	abs, err := filepath.Abs(jar)
	if err != nil {
		return err
	}

	rev, err := config.ResolveRevision(revision, filepath.Dir(abs))
	if err != nil {
		return fmt.Errorf("resolve revision for %s: %w", jar, err)
	}

	log.Debugf("publishing %s to %s (revision %q)", jar, publisher, rev)
	if err := storage.Publish(ctx, publisher, jar, rev); err != nil {
		log.Errorf("%v", err)
		return err
	}
	return nil
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) printf(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.w, format, args...)
}
