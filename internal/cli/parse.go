package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/kumarabd/gokit/logger"
	"github.com/kumarabd/ingestion-plane/miner/pkg/cache"
	"github.com/kumarabd/ingestion-plane/miner/pkg/ingest"
	"github.com/kumarabd/ingestion-plane/miner/pkg/logtypes"
	"github.com/kumarabd/ingestion-plane/miner/pkg/matcher"
	"github.com/kumarabd/ingestion-plane/miner/pkg/merge"
	"github.com/kumarabd/ingestion-plane/miner/pkg/miner"
	"github.com/kumarabd/ingestion-plane/miner/pkg/token"
	"github.com/kumarabd/ingestion-plane/miner/pkg/trie"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// maxLineBytes bounds a single line read from an input file
const maxLineBytes = 1 << 20

var (
	seedPath string
	outPath  string
)

var parseCmd = &cobra.Command{
	Use:   "parse <path|glob> [path|glob...]",
	Short: "Mine templates from log files",
	Long: `Reads every file matched by the given paths or glob patterns line by line
and prints the templates discovered, with the number of lines each covers.

Examples:
  minerctl parse /var/log/app.log
  minerctl parse "logs/**/*.log" --output json
  minerctl parse app.log --seed known.yaml --out templates.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringVar(&seedPath, "seed", "", "YAML file of templates inserted before mining")
	parseCmd.Flags().StringVar(&outPath, "out", "", "write templates to this file instead of stdout")
	rootCmd.AddCommand(parseCmd)
}

// parseOptions carries everything a parse run needs
type parseOptions struct {
	Patterns  []string
	Seed      []string
	Format    string
	Tokenizer *token.Config
	Merge     *merge.Config
	Trie      *trie.Config
	Miner     *miner.Config
}

func runParse(cmd *cobra.Command, args []string) error {
	opts, err := optionsFromViper(args)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	return run(cmd.Context(), opts, w)
}

// optionsFromViper overlays the loaded config file and environment on the defaults
func optionsFromViper(args []string) (parseOptions, error) {
	opts := parseOptions{
		Patterns:  args,
		Format:    viper.GetString("output"),
		Tokenizer: token.DefaultConfig(),
		Merge:     merge.DefaultConfig(),
		Trie:      &trie.Config{},
		Miner:     miner.DefaultConfig(),
	}
	opts.Merge.NoisePatterns = ingest.NewMasker().NoisePatterns()

	sections := map[string]interface{}{
		"tokenizer": opts.Tokenizer,
		"merge":     opts.Merge,
		"trie":      opts.Trie,
		"miner":     opts.Miner,
	}
	for key, target := range sections {
		if !viper.IsSet(key) {
			continue
		}
		if err := viper.UnmarshalKey(key, target); err != nil {
			return opts, fmt.Errorf("config section %s: %w", key, err)
		}
	}

	if seedPath != "" {
		seed, err := loadSeed(seedPath)
		if err != nil {
			return opts, err
		}
		opts.Seed = seed
	}
	return opts, nil
}

// run mines every file matched by opts.Patterns and renders the result to w
func run(ctx context.Context, opts parseOptions, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	paths, err := expandPaths(opts.Patterns)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no files match %v", opts.Patterns)
	}

	tok, err := token.New(opts.Tokenizer)
	if err != nil {
		return err
	}
	render, err := newRenderer(opts.Format, w, tok.Placeholder())
	if err != nil {
		return err
	}
	svc, err := newService(tok, opts)
	if err != nil {
		return err
	}

	normalizer := ingest.NewHandler(ingest.DefaultConfig())
	batchSize := opts.Miner.MaxBatch
	if batchSize <= 0 {
		batchSize = miner.DefaultConfig().MaxBatch
	}

	total := 0
	for _, path := range paths {
		n, err := mineFile(ctx, svc, normalizer, path, batchSize)
		total += n
		if err != nil {
			return err
		}
	}

	return render.Render(svc.Templates(), total)
}

func newService(tok *token.Tokenizer, opts parseOptions) (*miner.Service, error) {
	log, err := logger.New("minerctl", logger.Options{Format: logger.SyslogLogFormat})
	if err != nil {
		return nil, err
	}
	engine, err := merge.New(opts.Merge, tok)
	if err != nil {
		return nil, err
	}
	c, err := cache.New(nil)
	if err != nil {
		return nil, err
	}

	cfg := *opts.Miner
	cfg.SeedTemplates = append(append([]string(nil), cfg.SeedTemplates...), opts.Seed...)
	return miner.New(&cfg, log,
		miner.WithTokenizer(tok),
		miner.WithEngine(engine),
		miner.WithMatcher(matcher.New(tok, c)),
		miner.WithTrieConfig(opts.Trie),
	)
}

// mineFile feeds the lines of path to svc in batches and returns how many were read
func mineFile(ctx context.Context, svc *miner.Service, normalizer *ingest.Handler, path string, batchSize int) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	read := 0
	batch := make([]logtypes.Line, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := svc.Process(ctx, batch); err != nil {
			return fmt.Errorf("mine %s: %w", path, err)
		}
		batch = batch[:0]
		return nil
	}

	for scanner.Scan() {
		read++
		line, err := normalizer.NormalizeLine(logtypes.Line{Message: scanner.Text()})
		if err != nil {
			continue
		}
		batch = append(batch, line)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return read, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return read, fmt.Errorf("read %s: %w", path, err)
	}
	return read, flush()
}
