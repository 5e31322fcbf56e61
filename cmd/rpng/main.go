// Command rpng inspects and edits png files: chunk reports, CRC
// checks, metadata stripping, image data chunk surgery and full
// recompression.
package main

import (
	"fmt"
	"os"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/smallgraphics/rpng"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

// eachFile runs fn over every path, with a progress bar once more
// than one file is involved.
func eachFile(paths []string, fn func(path string) error) error {
	var bar *pb.ProgressBar
	if len(paths) > 1 {
		bar = pb.StartNew(len(paths))
		defer bar.Finish()
	}
	var firstErr error
	for _, path := range paths {
		if err := fn(path); err != nil {
			fmt.Fprintf(os.Stderr, "%s %s: %v\n", red("error:"), path, err)
			if firstErr == nil {
				firstErr = err
			}
		}
		if bar != nil {
			bar.Increment()
		}
	}
	return firstErr
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>...",
		Short: "Print a per-chunk report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				info, err := rpng.ChunkInfoFile(path)
				if err != nil {
					return err
				}
				fmt.Printf("%s\n%s\n", bold(path), info)
			}
			return nil
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>...",
		Short: "Verify every chunk CRC",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := false
			for _, path := range args {
				ok, err := rpng.ChunkCheckAllValidFile(path)
				if err != nil {
					return err
				}
				if ok {
					fmt.Printf("%s %s\n", green("ok"), path)
				} else {
					fmt.Printf("%s %s\n", red("INVALID"), path)
					failed = true
				}
			}
			if failed {
				return fmt.Errorf("crc check failed")
			}
			return nil
		},
	}
}

func stripCmd() *cobra.Command {
	var chunkType string
	cmd := &cobra.Command{
		Use:   "strip <file>...",
		Short: "Remove ancillary chunks, or one chunk type",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return eachFile(args, func(path string) error {
				if chunkType != "" {
					return rpng.ChunkRemoveFile(path, chunkType)
				}
				return rpng.ChunkRemoveAncillaryFile(path)
			})
		},
	}
	cmd.Flags().StringVarP(&chunkType, "type", "t", "", "remove only this chunk type")
	return cmd
}

func combineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "combine <file>...",
		Short: "Merge all IDAT chunks into one",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return eachFile(args, rpng.ChunkCombineImageDataFile)
		},
	}
}

func splitCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "split <file>...",
		Short: "Split oversized IDAT chunks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return eachFile(args, func(path string) error {
				return rpng.ChunkSplitImageDataFile(path, size)
			})
		},
	}
	cmd.Flags().IntVarP(&size, "size", "s", 8192, "maximum IDAT payload size in bytes")
	return cmd
}

func textCmd() *cobra.Command {
	var keyword, value string
	var compressed bool
	cmd := &cobra.Command{
		Use:   "text <file>...",
		Short: "Add a text metadata chunk",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return eachFile(args, func(path string) error {
				if compressed {
					return rpng.ChunkWriteCompTextFile(path, keyword, value)
				}
				return rpng.ChunkWriteTextFile(path, keyword, value)
			})
		},
	}
	cmd.Flags().StringVarP(&keyword, "keyword", "k", "Comment", "text chunk keyword")
	cmd.Flags().StringVarP(&value, "value", "m", "", "text chunk contents")
	cmd.Flags().BoolVarP(&compressed, "compressed", "z", false, "write a zTXt chunk instead of tEXt")
	return cmd
}

func recompressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompress <file>...",
		Short: "Decode and re-encode the image data",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return eachFile(args, func(path string) error {
				img, err := rpng.LoadImage(path)
				if err != nil {
					return err
				}
				return rpng.SaveImage(path, img)
			})
		},
	}
}

func main() {
	var verbose bool
	root := &cobra.Command{
		Use:           "rpng",
		Short:         "Inspect and edit png chunk streams",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				rpng.SetLogger(zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
					Level(zerolog.DebugLevel).With().Timestamp().Logger())
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(infoCmd(), checkCmd(), stripCmd(), combineCmd(),
		splitCmd(), textCmd(), recompressCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("error:"), err)
		os.Exit(1)
	}
}
