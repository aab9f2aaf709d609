// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// supportedFormat describes one carvable format's fixed header/footer
// signatures, the way internal/signature hard-codes them.
type supportedFormat struct {
	Name   string
	Desc   string
	Header []byte
	Footer []byte
}

var supportedFormats = []supportedFormat{
	{
		Name:   "jpeg",
		Desc:   "JPEG/JFIF/Exif still image",
		Header: []byte{0xFF, 0xD8, 0xFF},
		Footer: []byte{0xFF, 0xD9},
	},
	{
		Name:   "png",
		Desc:   "Portable Network Graphics still image",
		Header: []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
		Footer: []byte{0x49, 0x45, 0x4E, 0x44, 0xAE, 0x42, 0x60, 0x82},
	},
}

func DefineFormatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "formats",
		Short: "List the file formats this build can carve",
		Long: `The 'formats' command displays the header and footer byte signatures
the signature scanner and carving engine recognize. Unlike a
plugin-extensible scanner, this build carves exactly JPEG and PNG: both
formats' structural parsers and validators are compiled in rather than
loaded at runtime.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         RunFormats,
	}
	return cmd
}

func RunFormats(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESC\tHEADER\tFOOTER")
	for _, f := range supportedFormats {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			f.Name, f.Desc, hex.EncodeToString(f.Header), hex.EncodeToString(f.Footer))
	}
	return w.Flush()
}
