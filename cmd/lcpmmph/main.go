// Command lcpmmph builds and queries monotone minimal perfect hash
// functions from newline-separated string lists.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"lcpmmph/mmph"
	"lcpmmph/transform"
)

type buildFlags struct {
	encoding       string
	zipped         bool
	signatureWidth int
	tempDir        string
	verbose        bool
}

func main() {
	root := &cobra.Command{
		Use:   "lcpmmph",
		Short: "monotone minimal perfect hash functions over sorted string lists",
	}
	root.AddCommand(buildCommand(), queryCommand(), statsCommand())
	if err := root.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func buildCommand() *cobra.Command {
	f := new(buildFlags)
	cmd := &cobra.Command{
		Use:   "build FUNCTION [STRINGFILE]",
		Short: "Build a function from a sorted, newline-separated string list ('-' or no file for stdin)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(f, args)
		},
	}
	cmd.Flags().StringVarP(&f.encoding, "encoding", "e", "iso",
		"Bit-string encoding of the input strings. [possible values: iso, utf16, utf32]")
	cmd.Flags().BoolVarP(&f.zipped, "zipped", "z", false, "The string list is compressed in gzip format.")
	cmd.Flags().IntVarP(&f.signatureWidth, "signature-width", "s", 0,
		"Per-key signature width in bits for probabilistic rejection of unknown keys.")
	cmd.Flags().StringVarP(&f.tempDir, "temp-dir", "T", "", "A directory for temporary files.")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Log construction progress.")
	return cmd
}

func strategyForName(name string) (transform.Strategy[string], error) {
	switch name {
	case "iso":
		return transform.PrefixFreeISO(), nil
	case "utf16":
		return transform.PrefixFreeUTF16(), nil
	case "utf32":
		return transform.PrefixFreeUTF32(), nil
	}
	return nil, fmt.Errorf("unknown encoding %q", name)
}

func runBuild(f *buildFlags, args []string) error {
	strategy, err := strategyForName(f.encoding)
	if err != nil {
		return err
	}

	input := io.Reader(os.Stdin)
	if len(args) == 2 && args[1] != "-" {
		file, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer file.Close()
		input = file
	}
	if f.zipped {
		gz, err := gzip.NewReader(input)
		if err != nil {
			return fmt.Errorf("opening gzip input: %w", err)
		}
		defer gz.Close()
		input = gz
	}

	logrus.Info("loading strings...")
	bar := progressbar.DefaultBytes(-1, "reading")
	keys, err := readLines(io.TeeReader(input, bar))
	if err != nil {
		return err
	}
	_ = bar.Finish()
	logrus.WithField("keys", len(keys)).Info("loaded")

	builder := mmph.NewBuilder[string]().
		KeysSlice(keys).
		Transform(strategy).
		SignatureWidth(f.signatureWidth).
		TempDir(f.tempDir)
	if f.verbose {
		logrus.SetLevel(logrus.DebugLevel)
		builder.Logger(logrus.StandardLogger())
	}

	m, err := builder.Build()
	if err != nil {
		return err
	}

	data, err := m.Serialize()
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[0], data, 0o644); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"file": args[0],
		"size": humanize.Bytes(uint64(len(data))),
	}).Info("completed")
	return nil
}

func readLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<24)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func loadFunction(path string) (*mmph.LcpMonotone[string], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return mmph.Deserialize[string](data)
}

func queryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "query FUNCTION [KEY...]",
		Short: "Print the rank of each key (reads stdin when no keys are given)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadFunction(args[0])
			if err != nil {
				return err
			}

			keys := args[1:]
			if len(keys) == 0 {
				keys, err = readLines(os.Stdin)
				if err != nil {
					return err
				}
			}
			w := bufio.NewWriter(os.Stdout)
			defer w.Flush()
			for _, k := range keys {
				fmt.Fprintf(w, "%d\t%s\n", m.Get(k), k)
			}
			return nil
		},
	}
}

func statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats FUNCTION",
		Short: "Print the size breakdown of a serialized function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadFunction(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("keys: %s\n", humanize.Comma(m.Size()))
			if m.Size() > 0 {
				fmt.Printf("bits/key: %.2f\n", float64(m.NumBits())/float64(m.Size()))
			}
			fmt.Print(m.MemReport().String())
			return nil
		},
	}
}
