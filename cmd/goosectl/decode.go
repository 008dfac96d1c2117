package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/slonegd/gogoose/goose"
)

func cmdDecode() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [HEX]",
		Short: "Decode a GOOSE frame given in hex, from the argument or stdin",
		Example: `  goosectl decode 010ccd010001001ab6032f1c88b8...
  tshark -T fields -e frame.raw -r capture.pcap | goosectl decode`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input string
			if len(args) == 1 {
				input = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				input = string(data)
			}

			w := cmd.OutOrStdout()
			for i, line := range strings.Split(input, "\n") {
				pkt, err := parseHex(line)
				if err != nil {
					return fmt.Errorf("line %d: %w", i+1, err)
				}
				if len(pkt) == 0 {
					continue
				}
				frame := goose.NewUnknownFrame()
				if err := frame.UpdateFromUnknownPacket(pkt); err != nil {
					return fmt.Errorf("line %d: %w", i+1, err)
				}
				writeFrame(w, "frame", frame)
			}
			return nil
		},
	}
}

// parseHex пропускает пробелы, двоеточия и префикс 0x
func parseHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.NewReplacer(" ", "", ":", "", "\t", "", "\r", "").Replace(s)
	return hex.DecodeString(s)
}
