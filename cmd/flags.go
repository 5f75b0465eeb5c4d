package cmd

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thediveo/enumflag/v2"

	"github.com/open-policy-agent/jar-relocator/internal/config"
	"github.com/open-policy-agent/jar-relocator/internal/logging"
)

var logLevels = map[logging.Level][]string{
	logging.Error: {"error"},
	logging.Warn:  {"warn", "warning"},
	logging.Info:  {"info"},
	logging.Debug: {"debug"},
}

var logFormats = map[logging.Format][]string{
	logging.FormatConsole: {"console", "text"},
	logging.FormatJSON:    {"json"},
}

type logParams struct {
	level  logging.Level
	format logging.Format
}

func addLogFlags(fs *pflag.FlagSet, p *logParams) {
	p.level = logging.Info
	fs.Var(enumflag.New(&p.level, "level", logLevels, enumflag.EnumCaseInsensitive), "log-level", "log level: error, warn, info or debug")
	fs.Var(enumflag.New(&p.format, "format", logFormats, enumflag.EnumCaseInsensitive), "log-format", "log format: console or json")
}

func (p *logParams) logger(w io.Writer) *logging.Logger {
	return logging.NewLogger(logging.Config{Level: p.level, Format: p.format, Output: w})
}

// relocationParams are the inputs shared by the commands that run a pass:
// where relocations come from and how the pass behaves.
type relocationParams struct {
	configFiles  []string
	pom          string
	relocations  []string
	serviceFiles bool
	tempDir      string
}

func addRelocationFlags(fs *pflag.FlagSet, p *relocationParams) {
	fs.StringSliceVarP(&p.configFiles, "config", "c", nil, "configuration file or directory, may be repeated (default "+config.DefaultPath()+")")
	fs.StringVar(&p.pom, "pom", "", "read relocations and the artifact path from a Maven pom.xml")
	fs.StringArrayVarP(&p.relocations, "relocation", "r", nil, "relocation as pattern[=shadedPattern], may be repeated")
	fs.BoolVar(&p.serviceFiles, "service-files", false, "relocate META-INF/services provider files")
	fs.StringVar(&p.tempDir, "temp-dir", "", "directory for temporary archives, must be on the same file system as the jars")
}

// load merges the relocation sources in order of precedence: configuration
// files, then the pom, then --relocation flags. Jars default to the pom
// artifact when no arguments are given.
func (p *relocationParams) load(cmd *cobra.Command, args []string) (*config.Root, []string, error) {
	var (
		cfg *config.Root
		err error
	)
	if len(p.configFiles) > 0 {
		cfg, err = config.ParseFiles(p.configFiles)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, nil, err
	}

	jars := args
	if p.pom != "" {
		pom, err := config.ParsePOMFile(p.pom)
		if err != nil {
			return nil, nil, err
		}
		cfg.AddRelocations(pom.Relocations...)
		if len(jars) == 0 {
			jars = []string{filepath.Join(filepath.Dir(p.pom), pom.Artifact())}
		}
	}

	for _, s := range p.relocations {
		rel, err := config.ParseRelocation(s)
		if err != nil {
			return nil, nil, fmt.Errorf("--relocation %q: %w", s, err)
		}
		cfg.AddRelocations(rel)
	}

	if cmd.Flags().Changed("service-files") {
		cfg.Options.ServiceFiles = p.serviceFiles
	}
	if p.tempDir != "" {
		cfg.Options.TempDir = p.tempDir
	}

	if len(jars) == 0 {
		return nil, nil, errors.New("no jar given and no --pom to read the artifact from")
	}

	return cfg, jars, nil
}
