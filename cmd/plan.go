package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/layouttiler/internal/config"
	"github.com/kiesman99/layouttiler/internal/pyramid"
	"github.com/kiesman99/layouttiler/pkg/tile"
)

var planCmd = &cobra.Command{
	Use:   "plan <image>",
	Short: "Print the zoom levels an image would produce without uploading",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	tileSize := viper.GetInt(config.KeyTileSize)

	size, err := pyramid.ImageSize(args[0])
	if err != nil {
		return err
	}

	plan, err := tile.NewPlan(size.Width, size.Height, tileSize)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "==Raster Size: %dx%d\n", plan.Width, plan.Height)
	fmt.Fprintf(w, "==Tile Size: %d\n", plan.TileSize)
	fmt.Fprintf(w, "==Zoom Levels: %d (max zoom %d)\n", plan.LevelCount, plan.MaxZoom())
	fmt.Fprintf(w, "==Total Tiles: %s\n", humanize.Comma(int64(plan.TotalTiles())))

	for _, level := range plan.Levels() {
		canvas := int64(level.Canvas.Width) * int64(level.Canvas.Height) * 4
		fmt.Fprintf(w, "==Zoom Level %d: scale %.6f, resampled %dx%d, canvas %dx%d (%s), %dx%d tiles\n",
			level.Zoom, level.Scale,
			level.Resampled.Width, level.Resampled.Height,
			level.Canvas.Width, level.Canvas.Height, humanize.Bytes(uint64(canvas)),
			level.Tiles, level.Tiles)
	}
	return nil
}
