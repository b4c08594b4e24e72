/*
 * Copyright 2026 The fbsql Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package transport wraps a raw connection with the two optional stream
// transforms of the wire protocol: symmetric encryption and zlib
// compression. Both are enabled at most once for the life of the
// connection and compose as compress-then-encrypt on the way out,
// decrypt-then-decompress on the way in.
package transport

import (
	"bufio"
	"io"
	"net"
	"time"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"

	"github.com/fbsql/fbsql/utils/log"
	"github.com/fbsql/fbsql/wirecrypt"
)

// Buffer sizes follow the protocol's historical 32K segment ceiling.
const defaultBufSize = 32 * 1024

// Errors of the stream layer.
var (
	// ErrCryptAlreadyEnabled indicates a second attempt to key the stream.
	ErrCryptAlreadyEnabled = errors.New("wire encryption already enabled")
	// ErrCompressionAlreadyEnabled indicates a second attempt to enable compression.
	ErrCompressionAlreadyEnabled = errors.New("wire compression already enabled")
)

// Stream is the buffered, transformable byte stream a connection runs on.
// It is not safe for concurrent use; the owning connection serializes all
// access behind its lock.
type Stream struct {
	conn net.Conn
	br   *bufio.Reader
	bw   *bufio.Writer

	readCipher  wirecrypt.Cipher
	writeCipher wirecrypt.Cipher

	compressed bool
	zr         io.ReadCloser
	zw         *zlib.Writer

	timeout time.Duration
}

// NewStream wraps conn.
func NewStream(conn net.Conn) *Stream {
	return &Stream{
		conn: conn,
		br:   bufio.NewReaderSize(conn, defaultBufSize),
		bw:   bufio.NewWriterSize(conn, defaultBufSize),
	}
}

// SetTimeout sets the network timeout applied to each read and write. Zero
// disables it.
func (s *Stream) SetTimeout(d time.Duration) {
	s.timeout = d
}

// SetCipher keys both directions of the stream. One-way: once enabled the
// transform stays for the life of the connection.
func (s *Stream) SetCipher(read, write wirecrypt.Cipher) (err error) {
	if s.readCipher != nil || s.writeCipher != nil {
		return errors.WithStack(ErrCryptAlreadyEnabled)
	}
	s.readCipher = read
	s.writeCipher = write
	return
}

// Encrypted reports whether the stream has been keyed.
func (s *Stream) Encrypted() bool {
	return s.readCipher != nil
}

// EnableCompression layers zlib on the stream. One-way, like SetCipher.
// The inflater is created lazily on the first read so enabling at a clean
// message boundary never blocks.
func (s *Stream) EnableCompression() (err error) {
	if s.compressed {
		return errors.WithStack(ErrCompressionAlreadyEnabled)
	}
	s.compressed = true
	s.zw = zlib.NewWriter(cipherWriter{s})
	return
}

// Compressed reports whether compression has been enabled.
func (s *Stream) Compressed() bool {
	return s.compressed
}

// cipherReader decrypts bytes coming off the buffered socket. Buffered but
// not yet consumed bytes stay ciphertext, so enabling the cipher between
// messages is safe even if the server pipelined ahead.
type cipherReader struct {
	s *Stream
}

func (cr cipherReader) Read(p []byte) (n int, err error) {
	s := cr.s
	if s.timeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.timeout))
	}
	n, err = s.br.Read(p)
	if n > 0 && s.readCipher != nil {
		s.readCipher.XORKeyStream(p[:n], p[:n])
	}
	return
}

// cipherWriter encrypts bytes on their way to the buffered socket.
type cipherWriter struct {
	s *Stream
}

func (cw cipherWriter) Write(p []byte) (n int, err error) {
	s := cw.s
	if s.timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	}
	if s.writeCipher == nil {
		return s.bw.Write(p)
	}
	ct := make([]byte, len(p))
	s.writeCipher.XORKeyStream(ct, p)
	return s.bw.Write(ct)
}

// Read reads decrypted, decompressed bytes.
func (s *Stream) Read(p []byte) (n int, err error) {
	if !s.compressed {
		return cipherReader{s}.Read(p)
	}
	if s.zr == nil {
		if s.zr, err = zlib.NewReader(cipherReader{s}); err != nil {
			err = errors.Wrap(err, "init wire decompression")
			return
		}
	}
	return s.zr.Read(p)
}

// Write queues plaintext bytes for the peer. Nothing is guaranteed to reach
// the socket until Flush.
func (s *Stream) Write(p []byte) (n int, err error) {
	if s.compressed {
		return s.zw.Write(p)
	}
	return cipherWriter{s}.Write(p)
}

// Flush delivers every queued byte of the current logical message, forcing
// a sync point through the compressor when one is active.
func (s *Stream) Flush() (err error) {
	if s.compressed {
		if err = s.zw.Flush(); err != nil {
			return errors.Wrap(err, "flush wire compression")
		}
	}
	if err = s.bw.Flush(); err != nil {
		return errors.Wrap(err, "flush stream")
	}
	return
}

// Close shuts the stream down. The socket is closed first; transform
// teardown errors after that point are suppressed. A message mid-flight is
// already lost when Close is called, so there is nothing to flush.
func (s *Stream) Close() (err error) {
	err = s.conn.Close()
	if s.zw != nil {
		if cerr := s.zw.Close(); cerr != nil {
			log.WithError(cerr).Debug("wire compression close failed")
		}
	}
	if s.zr != nil {
		if cerr := s.zr.Close(); cerr != nil {
			log.WithError(cerr).Debug("wire decompression close failed")
		}
	}
	return
}

// RemoteAddr returns the remote network address.
func (s *Stream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// LocalAddr returns the local network address.
func (s *Stream) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}
