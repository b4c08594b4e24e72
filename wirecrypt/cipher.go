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

// Package wirecrypt holds the wire-encryption plugins negotiated during the
// connection handshake. Each plugin turns the session key produced by
// authentication into a pair of stream ciphers, one per direction.
package wirecrypt

import (
	"crypto/rc4"
	"crypto/sha256"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20"
)

// Cipher is a directional stream cipher.
type Cipher interface {
	XORKeyStream(dst, src []byte)
}

// Plugin creates ciphers for one negotiated algorithm. The server's
// specific data (an IV for ChaCha, unused for Arc4) is passed through
// verbatim.
type Plugin struct {
	Name string
	New  func(sessionKey, specificData []byte) (Cipher, error)
}

var plugins = map[string]*Plugin{
	"Arc4": {
		Name: "Arc4",
		New: func(sessionKey, _ []byte) (Cipher, error) {
			c, err := rc4.NewCipher(sessionKey)
			if err != nil {
				return nil, errors.Wrap(err, "init Arc4 wire cipher")
			}
			return c, nil
		},
	},
	"ChaCha": {
		Name: "ChaCha",
		New:  newChaCha,
	},
}

// Lookup returns the plugin with the given name.
func Lookup(name string) (p *Plugin, err error) {
	p, ok := plugins[name]
	if !ok {
		err = errors.Errorf("unknown wire crypt plugin %q", name)
	}
	return
}

// KnownPlugins returns the plugin names the client may offer, most
// preferred first.
func KnownPlugins() []string {
	return []string{"ChaCha", "Arc4"}
}

// The ChaCha plugin keys the cipher with sha256(session key). The server's
// specific data carries the nonce: either 12 bytes, or 16 bytes where the
// trailing word is the initial block counter.
func newChaCha(sessionKey, specificData []byte) (c Cipher, err error) {
	key := sha256.Sum256(sessionKey)
	var counter uint32
	nonce := specificData
	switch len(specificData) {
	case chacha20.NonceSize:
	case chacha20.NonceSize + 4:
		nonce = specificData[:chacha20.NonceSize]
		tail := specificData[chacha20.NonceSize:]
		counter = uint32(tail[0]) | uint32(tail[1])<<8 | uint32(tail[2])<<16 | uint32(tail[3])<<24
	default:
		err = errors.Errorf("bad ChaCha nonce length %d", len(specificData))
		return
	}
	cc, err := chacha20.NewUnauthenticatedCipher(key[:], nonce)
	if err != nil {
		err = errors.Wrap(err, "init ChaCha wire cipher")
		return
	}
	cc.SetCounter(counter)
	c = cc
	return
}
