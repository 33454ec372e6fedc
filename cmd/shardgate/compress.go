package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shardgate-project/shardgate/internal/huffman"
)

func compressCmd() *cobra.Command {
	var (
		inFile  string
		outFile string
	)

	cmd := &cobra.Command{
		Use:   "compress [hex]",
		Short: "Compress a payload the way the login server does",
		Long: `Compress a payload with the client Huffman table.

The payload is given as a hex argument or read from --file. With --out the
compressed bytes are written to a file; otherwise they are printed as hex.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readPayload(args, inFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outFile != "" {
				n, err := compressToFile(outFile, src)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d bytes -> %d bytes (%d bits) written to %s\n",
					len(src), n, huffman.CompressedBits(src), outFile)
				return nil
			}

			compressed := huffman.Compress(src)
			fmt.Fprintf(out, "%d bytes -> %d bytes (%d bits)\n", len(src), len(compressed), huffman.CompressedBits(src))
			fmt.Fprintln(out, hex.EncodeToString(compressed))
			return nil
		},
	}

	cmd.Flags().StringVarP(&inFile, "file", "f", "", "read the raw payload from a file")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write the compressed payload to a file")

	return cmd
}

func readPayload(args []string, inFile string) ([]byte, error) {
	switch {
	case inFile != "" && len(args) > 0:
		return nil, fmt.Errorf("give either a hex argument or --file, not both")
	case inFile != "":
		data, err := os.ReadFile(inFile)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		return data, nil
	case len(args) == 1:
		data, err := hex.DecodeString(strings.Join(strings.Fields(args[0]), ""))
		if err != nil {
			return nil, fmt.Errorf("invalid hex payload: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("no payload given")
	}
}

// compressToFile streams the compressed form of src into path and returns
// the number of bytes written.
func compressToFile(path string, src []byte) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	cw := &countingWriter{w: f}
	hw := huffman.NewWriter(cw)
	if _, err := hw.Write(src); err != nil {
		return cw.n, err
	}
	if err := hw.Close(); err != nil {
		return cw.n, err
	}
	return cw.n, f.Close()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
