package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fastctx/fastctx/pkg/config"
	"github.com/fastctx/fastctx/pkg/mcptools"
	"github.com/fastctx/fastctx/pkg/models"
	"github.com/fastctx/fastctx/pkg/server"
	"github.com/fastctx/fastctx/pkg/validation"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	envFiles []string
	askK     int
	askSteps bool

	cfg    *config.Config
	logger zerolog.Logger

	rootCmd = &cobra.Command{
		Use:   "fastctx",
		Short: "Turn code repositories into a Neo4j knowledge graph",
		Long: `fastctx ingests source trees into a Neo4j knowledge graph with an LLM,
answers questions over the graph and serves code context to MCP clients.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFiles...); err != nil {
				return err
			}
			cfg = config.Default()
			config.LoadFromEnv(cfg)
			logger = newLogger(cfg)
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the MCP endpoint",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	ingestCmd = &cobra.Command{
		Use:   "ingest [directory]",
		Short: "Extract a graph from a local directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), models.RunKindLocal, args[0])
		},
	}

	githubCmd = &cobra.Command{
		Use:   "github [url]",
		Short: "Download a GitHub repository and extract a graph from it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), models.RunKindGitHub, args[0])
		},
	}

	indexCmd = &cobra.Command{
		Use:   "index [directory]",
		Short: "Store, embed and extract a codebase for retrieval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), models.RunKindIndex, args[0])
		},
	}

	cypherCmd = &cobra.Command{
		Use:   "cypher [query]",
		Short: "Run a read-only Cypher query",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCypher,
	}

	schemaCmd = &cobra.Command{
		Use:   "schema",
		Short: "Print the graph schema",
		Args:  cobra.NoArgs,
		RunE:  runSchema,
	}

	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from the graph",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	mcpCmd = &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE:  runMCP,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("fastctx " + config.Version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")
	askCmd.Flags().IntVar(&askK, "k", 4, "rows handed to the answer prompt")
	askCmd.Flags().BoolVar(&askSteps, "steps", false, "print the generated Cypher and its rows")

	rootCmd.AddCommand(serveCmd, ingestCmd, githubCmd, indexCmd, cypherCmd, schemaCmd, askCmd, mcpCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func shutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	printBanner(cfg)

	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	if err := a.runner.Recover(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to recover interrupted runs")
	}

	srv := server.New(cfg, server.Services{
		Store:     a.store,
		Chain:     a.chain,
		Runner:    a.runner,
		Tools:     a.tools,
		Workspace: a.workspace,
	}, validation.New(), logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Msg("Server ready to accept requests")
		errCh <- srv.Start()
	}()

	select {
	case err = <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("Server failed")
		}
	case <-ctx.Done():
		logger.Info().Msg("Shutting down gracefully...")
	}

	shutdownCtx, cancel := shutdownContext()
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Error().Err(serr).Msg("Failed to stop server")
	}
	a.Close(shutdownCtx)
	return err
}

func runOnce(ctx context.Context, kind, target string) error {
	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := shutdownContext()
		defer cancel()
		a.Close(shutdownCtx)
	}()

	run, err := a.runner.Run(ctx, kind, target)
	if run != nil {
		printJSON(run)
	}
	return err
}

func runCypher(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	rows, err := a.store.RunQuery(ctx, strings.Join(args, " "), nil)
	if err != nil {
		return err
	}
	printJSON(models.QueryResponse{Rows: rows, Count: len(rows)})
	return nil
}

func runSchema(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	schema, err := a.chain.Schema(ctx)
	if err != nil {
		return err
	}
	fmt.Println(schema.Text())
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	resp, err := a.chain.Ask(ctx, strings.Join(args, " "), askK)
	if err != nil {
		return err
	}
	if askSteps {
		printJSON(resp.IntermediateSteps)
	}
	fmt.Println(resp.Answer)
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := shutdownContext()
		defer cancel()
		a.Close(shutdownCtx)
	}()

	logger.Info().Msg("Serving MCP over stdio")
	return mcptools.ServeStdio(ctx, mcptools.NewServer(a.tools, config.Version), os.Stdin, os.Stdout)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Error().Err(err).Msg("Failed to encode output")
	}
}

func printBanner(cfg *config.Config) {
	// Light blue color code
	lightBlue := "\033[1;36m"
	reset := "\033[0m"

	fmt.Print(lightBlue)
	fmt.Println("//////////////////////////////////////////////")
	fmt.Println("//..........................................//")
	fmt.Println("//....__..........._........_...............//")
	fmt.Println("//.../ _|.__._.___|.|_.___.|.|_.__.__.......//")
	fmt.Println("//..|.|_./ _`./ __|.__/ __||.__|\\.\\/./......//")
	fmt.Println("//..|.._|.(_|.\\__.\\.||.(__.|.|_.>..<.......//")
	fmt.Println("//..|_|..\\__,_|___/\\__\\___|.\\__/_/\\_\\......//")
	fmt.Println("//..........................................//")
	fmt.Println("//////////////////////////////////////////////")
	fmt.Print(reset)

	fmt.Println()
	fmt.Println("//////////////////////////// fastctx " + config.Version + " /////////////////////////")
	fmt.Println("----------------------------------------------------------------------")
	fmt.Println("Server Configuration:")
	fmt.Printf("  Host: %s\n", cfg.Host)
	fmt.Printf("  Port: %d\n", cfg.Port)
	fmt.Printf("  CORS origins: %s\n", strings.Join(cfg.CORSOrigins, ", "))
	fmt.Println()
	fmt.Println("Graph Configuration:")
	fmt.Printf("  Neo4j: %s\n", cfg.Neo4jURI)
	fmt.Printf("  Vector index: %s (%d dims)\n", cfg.VectorIndex, cfg.VectorDimensions)
	fmt.Printf("  Write queries: %v\n", cfg.AllowWriteQueries)
	fmt.Println()
	fmt.Println("LLM Configuration:")
	fmt.Printf("  Provider: %s\n", cfg.LLMProvider)
	fmt.Printf("  Model: %s\n", cfg.LLMModel)
	fmt.Println()
	fmt.Println("Cache Configuration:")
	fmt.Printf("  Type: %s\n", cfg.CacheType)
	fmt.Printf("  TTL: %d seconds\n", cfg.CacheTTL)
	if cfg.CacheType == "redis" {
		fmt.Printf("  Redis: %s:%d\n", cfg.RedisHost, cfg.RedisPort)
	}
	fmt.Println()
	fmt.Println("Other Configuration:")
	fmt.Printf("  Run ledger: %s\n", cfg.StorageType)
	fmt.Printf("  Chunk size: %d (overlap %d)\n", cfg.ChunkSize, cfg.ChunkOverlap)
	fmt.Printf("  Workspace: %s (max %d files)\n", cfg.WorkspaceDir, cfg.WorkspaceMaxFiles)
	fmt.Println("----------------------------------------------------------------------")
	fmt.Println()
}
