/*
Purpose:
- dtm raster functions

Description:
- Service hosting terrain raster functions (latitude, solar radiation index, vector ruggedness measure)
  for tiled raster processing engines.

Releases:
- v1.0.0 - 2025-09-15: initial release

Author:
- Klaus Tockloth

Copyright:
- © 2025 | Klaus Tockloth

Contact:
- klaus.tockloth@googlemail.com

Remarks:
- Usage 'tile' API : POST /v1/{latitude|sri|vrm} with a TileRequest
- Usage 'functions' API : GET /v1/functions
- The 'builtin' resolver works without GDAL, but only for EPSG geographic, web mercator and UTM systems.

Links:
- https://pkg.go.dev/github.com/airbusgeo/godal
- https://pkg.go.dev/github.com/spf13/cobra
- https://pkg.go.dev/github.com/go-chi/chi/v5
- https://pkg.go.dev/gopkg.in/yaml.v3
- https://pkg.go.dev/gopkg.in/natefinch/lumberjack.v2
*/

// main package
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"klaus/elevation/dtm-raster-functions/internal/service"
	"klaus/elevation/dtm-raster-functions/pkg/coords"
	"klaus/elevation/dtm-raster-functions/pkg/coords/gdalsrs"
)

// general program info
var (
	progName      = strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(filepath.Base(os.Args[0])))
	progVersion   = "v1.0.0"
	progDate      = "2025-09-15"
	progPurpose   = "dtm raster functions"
	progInfo      = "Service hosting terrain raster functions for tiled raster processing engines."
	progCopyright = "© 2025 | Klaus Tockloth"
)

// command line flags
var (
	configFile   string
	functionName string
	requestFile  string
)

var rootCmd = &cobra.Command{
	Use:     progName,
	Short:   progPurpose,
	Long:    progInfo,
	Version: progVersion + " (" + progDate + ")",
	// without subcommand the service is started
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the raster function service (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var functionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "Print the description of all raster functions as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFunctions()
	},
}

var tileCmd = &cobra.Command{
	Use:     "tile",
	Short:   "Process one tile request file and print the tile response as JSON",
	Example: "  " + progName + " tile --function vrm --request vrm-request.json",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTile(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", progName+".yaml", "configuration file")

	tileCmd.Flags().StringVar(&functionName, "function", "", "raster function (latitude, sri, vrm)")
	tileCmd.Flags().StringVar(&requestFile, "request", "", "file with tile request (JSON)")
	_ = tileCmd.MarkFlagRequired("function")
	_ = tileCmd.MarkFlagRequired("request")

	rootCmd.AddCommand(serveCmd, functionsCmd, tileCmd)
}

/*
main starts this program.
*/
func main() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

/*
loadConfig loads the program configuration. Offline commands fall back to
the default configuration if the file does not exist.
*/
func loadConfig(required bool) (service.Config, error) {
	_, err := os.Stat(configFile)
	if err != nil && !required {
		config := service.DefaultConfig()
		config.Resolver = service.ResolverBuiltin
		return config, nil
	}
	config, err := service.LoadConfig(configFile)
	if err != nil {
		return service.Config{}, fmt.Errorf("configuration file [%s] invalid: %w", configFile, err)
	}
	return config, nil
}

/*
newResolver returns the configured spatial reference resolver.
*/
func newResolver(config service.Config) coords.Resolver {
	if config.Resolver == service.ResolverGDAL {
		// initialize GDAL, register all known GDAL drivers
		godal.RegisterAll()
		return gdalsrs.Resolver{}
	}
	return coords.Builtin{}
}

/*
replacer adjusts logging objects: source basename only, time as RFC3339Nano.
*/
func replacer(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.SourceKey {
		source := a.Value.Any().(*slog.Source)   // get source object
		source.File = filepath.Base(source.File) // basepath only
	}
	if a.Key == slog.TimeKey {
		return slog.String("time", a.Value.Time().Format(time.RFC3339Nano)) // local time -> RFC3339Nano
	}
	return a
}

/*
newFileLogger sets the default logger to a rotated JSON log file.
*/
func newFileLogger(config service.Config) *lumberjack.Logger {
	// logging: log file output and rotate (with lumberjack package)
	logfile := filepath.Join(config.LogDirectory, progName+".log")
	lumberjackLogger := &lumberjack.Logger{
		Filename: logfile,
		MaxSize:  128,  // megabytes
		MaxAge:   28,   // days
		Compress: true, // gzip rotated log
	}

	// log level
	logLevel := new(slog.LevelVar)
	logLevel.Set(parseLogLevel(config.LogLevel))

	// define logger
	logger := slog.New(slog.NewJSONHandler(lumberjackLogger, &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: true, ReplaceAttr: replacer}).WithAttrs([]slog.Attr{slog.String("prog", progName)}))
	slog.SetDefault(logger)
	return lumberjackLogger
}

/*
newStderrLogger sets the default logger for the offline commands.
*/
func newStderrLogger(config service.Config) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       parseLogLevel(config.LogLevel),
		ReplaceAttr: replacer}))
	slog.SetDefault(logger)
}

/*
runFunctions prints the function catalog.
*/
func runFunctions() error {
	config, err := loadConfig(false)
	if err != nil {
		return err
	}
	newStderrLogger(config)

	catalog, err := service.NewCatalog(config, newResolver(config))
	if err != nil {
		return err
	}
	return printJSON(catalog.Describe())
}

/*
runTile processes one tile request file offline.
*/
func runTile(ctx context.Context) error {
	config, err := loadConfig(false)
	if err != nil {
		return err
	}
	newStderrLogger(config)

	source, err := os.ReadFile(requestFile)
	if err != nil {
		return fmt.Errorf("error [%w] at os.ReadFile()", err)
	}
	var tileRequest service.TileRequest
	err = json.Unmarshal(source, &tileRequest)
	if err != nil {
		return fmt.Errorf("error [%w] at json.Unmarshal()", err)
	}

	svc, err := service.New(config, newResolver(config))
	if err != nil {
		return err
	}
	defer svc.Close()

	tileResponse, err := svc.Process(ctx, functionName, tileRequest)
	if err != nil {
		return fmt.Errorf("error [%w] at svc.Process()", err)
	}
	return printJSON(tileResponse)
}

func printJSON(v any) error {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error [%w] at json.MarshalIndent()", err)
	}
	fmt.Println(string(jsonData))
	return nil
}

/*
parseLogLevel parses log level setting from configuration.
*/
func parseLogLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
