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
package dfxml

import (
	"encoding/xml"
	"io"
)

// DFXMLWriter streams a carve report: one header, then one
// <fileobject> per recovered file as the extractor produces them, so a
// long scan never buffers the whole report in memory.
type DFXMLWriter struct {
	w   io.Writer
	enc *xml.Encoder
}

// NewDFXMLWriter returns a writer producing indented, diffable output.
func NewDFXMLWriter(w io.Writer) *DFXMLWriter {
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	return &DFXMLWriter{
		w:   w,
		enc: enc,
	}
}

// WriteHeader opens the document: the XML declaration, the root <dfxml>
// tag with its version attribute, and the metadata/creator/source block.
func (w *DFXMLWriter) WriteHeader(hdr DFXMLHeader) error {
	_, _ = w.w.Write([]byte(xml.Header))

	start := xml.StartElement{
		Name: xml.Name{Local: "dfxml"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmloutputversion"}, Value: hdr.XmlOutput},
		},
	}

	if err := w.enc.EncodeToken(start); err != nil {
		return err
	}

	// XmlOutput already went out as an attribute on the start tag; blank
	// it so Encode, which writes hdr as a nested <dfxml> element, does not
	// repeat the attribute there.
	out := hdr.XmlOutput
	hdr.XmlOutput = ""

	if err := w.enc.Encode(hdr); err != nil {
		return err
	}
	hdr.XmlOutput = out
	return nil
}

// WriteFileObject appends one recovered file's entry, byte runs and
// carve method included.
func (w *DFXMLWriter) WriteFileObject(obj FileObject) error {
	return w.enc.Encode(obj)
}

// Close terminates the root element and flushes buffered output.
func (w *DFXMLWriter) Close() error {
	if err := w.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: "dfxml"}}); err != nil {
		return err
	}
	return w.enc.Flush()
}
