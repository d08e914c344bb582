package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bhanoday10307/inplace/rewrite"
)

var (
	mode          string
	pattern       string
	replacement   string
	bufferSize    int
	jobs          int
	rewriteBinary bool
)

var rootCmd = &cobra.Command{
	Use:   "inplace [flags] file...",
	Short: "Rewrite huge text files line by line, in place",
	Long: `inplace streams each file through a fixed-size buffer, applies a line
transform and writes the result back over the region it came from, so
files far larger than memory rewrite without a temporary copy. A
transformed line must not be longer than the original, and "\r\n"
terminators come out as "\n".`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := pickTransform()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		config := &rewrite.Config{
			BufferSize:    bufferSize,
			Workers:       jobs,
			RewriteBinary: rewriteBinary,
		}
		if failed := rewrite.Run(ctx, args, t, config); failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(args))
		}
		return nil
	},
}

func pickTransform() (rewrite.Transform, error) {
	switch mode {
	case "quoted":
		return rewrite.ReverseQuoted, nil
	case "line":
		return rewrite.Reverse, nil
	case "pattern":
		if pattern == "" {
			return nil, fmt.Errorf("--mode pattern needs --pattern")
		}
		return rewrite.Replace(pattern, replacement)
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}

func init() {
	rootCmd.Flags().StringVar(&mode, "mode", "quoted", `transform to apply: "quoted", "line" or "pattern"`)
	rootCmd.Flags().StringVar(&pattern, "pattern", "", "regular expression for --mode pattern")
	rootCmd.Flags().StringVar(&replacement, "replace", "", "replacement text for --mode pattern")
	rootCmd.Flags().IntVar(&bufferSize, "buffer-size", 0, "line buffer capacity in bytes per file (0 for 64K)")
	rootCmd.Flags().IntVar(&jobs, "jobs", 0, "files rewritten concurrently (0 for 4)")
	rootCmd.Flags().BoolVar(&rewriteBinary, "rewrite-binary", false, "rewrite files that look binary instead of skipping them")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("inplace at=main.err err=%q\n", err)
	}
}
