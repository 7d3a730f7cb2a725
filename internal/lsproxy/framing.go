/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package lsproxy

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"net/textproto"
	"strconv"

	"github.com/google/go-dap"
)

const (
	contentLengthHeader = "Content-Length"

	// Size of the read buffer used to reassemble messages.
	DefaultReadBufferSize = 64 * 1024

	// Upper bound on the size of a header block. Real headers are a few dozen bytes;
	// anything this large means the stream is not framed at all.
	MaxHeaderBlockSize = 64 * 1024
)

// Message is a single framed protocol message as it appeared on the wire.
type Message struct {
	// Header is the raw header block, including the empty line that terminates it.
	Header []byte

	// Payload is exactly Content-Length bytes of message body.
	Payload []byte
}

// NewMessage frames the payload with a freshly computed Content-Length header.
func NewMessage(payload []byte) *Message {
	framed := Encode(payload)
	return &Message{
		Header:  framed[:len(framed)-len(payload)],
		Payload: framed[len(framed)-len(payload):],
	}
}

// WriteTo writes the message to w exactly as it was received (or framed).
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	bufs := net.Buffers{m.Header, m.Payload}
	return bufs.WriteTo(w)
}

// Bytes returns the complete framed message.
func (m *Message) Bytes() []byte {
	retval := make([]byte, 0, len(m.Header)+len(m.Payload))
	retval = append(retval, m.Header...)
	return append(retval, m.Payload...)
}

// Encode prepends a Content-Length header to the payload. No other headers are emitted.
// The LSP base protocol framing is the same as the DAP base protocol framing.
func Encode(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(payload) + 32)
	// Writes to a bytes.Buffer do not fail.
	_ = dap.WriteBaseMessage(&buf, payload)
	return buf.Bytes()
}

// Decoder reads framed messages from a byte stream. It owns all buffering, so callers
// only ever see complete messages regardless of how the underlying reads are chunked.
// Decoder is not goroutine-safe.
type Decoder struct {
	reader *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return NewDecoderSize(r, DefaultReadBufferSize)
}

func NewDecoderSize(r io.Reader, size int) *Decoder {
	return &Decoder{
		reader: bufio.NewReaderSize(r, size),
	}
}

// Buffered returns the reader the decoder consumes from. Reading from it continues
// with the first byte following the last decoded message.
func (d *Decoder) Buffered() io.Reader {
	return d.reader
}

// Next reads the next complete message.
// It returns io.EOF if the stream ends cleanly between messages, and a *FramingError
// if the stream ends in the middle of a message or the header block is malformed.
func (d *Decoder) Next() (*Message, error) {
	var header []byte
	contentLength := -1

	for {
		line, readErr := d.readLine(len(header))
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if len(header) == 0 && len(line) == 0 {
					return nil, io.EOF
				}
				return nil, newFramingError("stream ended inside header block", io.ErrUnexpectedEOF)
			}
			return nil, readErr
		}

		header = append(header, line...)

		trimmed := bytes.TrimRight(line, "\r\n")
		if len(trimmed) == 0 {
			break // End of headers
		}

		name, value, found := bytes.Cut(trimmed, []byte(":"))
		if !found {
			return nil, newFramingError("malformed header line "+strconv.Quote(string(trimmed)), nil)
		}

		if textproto.CanonicalMIMEHeaderKey(string(textproto.TrimBytes(name))) != contentLengthHeader {
			continue // Content-Type and anything else is ignored
		}

		length, parseErr := strconv.Atoi(string(textproto.TrimBytes(value)))
		if parseErr != nil || length < 0 {
			return nil, newFramingError("invalid Content-Length value "+strconv.Quote(string(value)), parseErr)
		}
		contentLength = length
	}

	if contentLength < 0 {
		return nil, newFramingError("missing Content-Length header", nil)
	}

	// The declared length is not trusted for allocation; the buffer grows as bytes arrive.
	var payload bytes.Buffer
	read, readErr := payload.ReadFrom(io.LimitReader(d.reader, int64(contentLength)))
	if readErr != nil {
		return nil, readErr
	}
	if read < int64(contentLength) {
		return nil, newFramingError("stream ended inside message payload", io.ErrUnexpectedEOF)
	}

	return &Message{Header: header, Payload: payload.Bytes()}, nil
}

// readLine reads a single header line, including the line terminator.
// The returned slice is a copy and stays valid across subsequent reads.
func (d *Decoder) readLine(headerSoFar int) ([]byte, error) {
	var line []byte
	for {
		chunk, readErr := d.reader.ReadSlice('\n')
		line = append(line, chunk...)
		if headerSoFar+len(line) > MaxHeaderBlockSize {
			return nil, newFramingError("header block too large", nil)
		}

		switch {
		case readErr == nil:
			return line, nil
		case errors.Is(readErr, bufio.ErrBufferFull):
			continue
		default:
			return line, readErr
		}
	}
}
