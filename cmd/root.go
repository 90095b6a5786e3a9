package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/layouttiler/internal/config"
	"github.com/kiesman99/layouttiler/internal/logging"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "layouttiler [image]",
	Short: "Cut an image into a deep zoom tile pyramid and upload it to a layout service",
	Long: `layouttiler converts a single raster image into a deep zoom tile pyramid
and uploads every JPEG tile plus a finalization record to a layout service.

Each zoom level is resampled from the full image, padded with a background
color to an exact multiple of the tile size, sliced into tiles and uploaded
one at a time.

Examples:
  # Upload a floor plan with 256 pixel tiles
  layouttiler floor.png --server https://layouts.example.com --layout-key floor-1 --secret s3cret

  # Same, with a black background and 512 pixel tiles
  layouttiler upload floor.png --background 0,0,0 --tile-size 512

  # Show the zoom levels an image would produce
  layouttiler plan floor.png

  # Start the local control API
  layouttiler serve --port 8080`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: false,
	// If no subcommand is specified and we have args, run the upload command
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no args, show help
		if len(args) == 0 {
			return cmd.Help()
		}
		// Otherwise, delegate to upload command
		return runUpload(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.layouttiler.yaml)")

	// Logging
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console|json)")
	rootCmd.PersistentFlags().String("log-file", "", "write logs to a rotating file instead of stderr")

	// Layout service options, shared by upload and serve
	rootCmd.PersistentFlags().StringP("server", "s", "", "layout service base URL")
	rootCmd.PersistentFlags().StringP("layout-key", "k", "", "layout key to upload into")
	rootCmd.PersistentFlags().String("secret", "", "upload secret (sent as __sc__ and apikey)")
	rootCmd.PersistentFlags().StringP("background", "b", "255,255,255", "padding color as 'r,g,b' or '#rrggbb'")
	rootCmd.PersistentFlags().IntP("tile-size", "t", config.DefaultTileSize, "tile size in pixels")
	rootCmd.PersistentFlags().Duration("timeout", config.DefaultTimeout, "timeout for each layout service request")
	rootCmd.PersistentFlags().String("user-agent", config.DefaultUserAgent, "HTTP User-Agent header")

	// Bind flags to viper
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.BindPFlag(config.KeyServer, rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag(config.KeyLayoutKey, rootCmd.PersistentFlags().Lookup("layout-key"))
	viper.BindPFlag(config.KeySecret, rootCmd.PersistentFlags().Lookup("secret"))
	viper.BindPFlag(config.KeyBackground, rootCmd.PersistentFlags().Lookup("background"))
	viper.BindPFlag(config.KeyTileSize, rootCmd.PersistentFlags().Lookup("tile-size"))
	viper.BindPFlag(config.KeyTimeout, rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag(config.KeyUserAgent, rootCmd.PersistentFlags().Lookup("user-agent"))
}

// initConfig reads in .env, config file and ENV variables if set.
func initConfig() {
	// A missing .env is fine; values may come from flags or the environment.
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".layouttiler" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".layouttiler")
	}

	// LAYOUTTILER_LAYOUT_KEY, LAYOUTTILER_LOG_LEVEL, ...
	viper.SetEnvPrefix("layouttiler")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from the log.* viper keys.
func newLogger(cmd *cobra.Command) (logging.Logger, error) {
	return logging.New(cmd.ErrOrStderr(), logging.Options{
		Level:      viper.GetString("log.level"),
		Format:     viper.GetString("log.format"),
		File:       viper.GetString("log.file"),
		MaxSizeMB:  100,
		MaxAgeDays: 28,
	})
}
