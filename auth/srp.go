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

package auth

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

// SRP-6a over the Firebird group. The proof hash differs per plugin (sha1
// for Srp, sha256 for Srp256); the session key is always sha1 of the
// shared secret.

var (
	srpPrime, _ = new(big.Int).SetString(
		"E67D2E994B2F900C3F41F08F5BB2627ED0D49EE1FE767A52EFCD565CD6E76881"+
			"2C3E1E9CE8F0A8BEA6CB13CD29DDEBF7A96D4A93B55D488DF099A15C89DCB064"+
			"0738EB2CBDD9A8F7BAB561AB1B0DC1C6CDABF303264A08D1BCA932D1F1EE428B"+
			"619D970F342ABA9A65793B8B2F041AE5364350C16F735F56ECBCA87BD57B29E7", 16)
	srpGenerator = big.NewInt(2)
	srpK, _      = new(big.Int).SetString("1277432915985975349439481660349303019122249719989", 10)
)

const srpKeyBits = 128

// Srp is the client side of one SRP attempt.
type Srp struct {
	name       string
	proofHash  func() hash.Hash
	user       string
	password   string
	private    *big.Int
	public     *big.Int
	sessionKey []byte
	status     Status
}

// NewSrp returns the sha1-proof plugin ("Srp").
func NewSrp(user, password string) *Srp {
	return &Srp{name: "Srp", proofHash: sha1.New, user: user, password: password}
}

// NewSrp256 returns the sha256-proof plugin ("Srp256").
func NewSrp256(user, password string) *Srp {
	return &Srp{name: "Srp256", proofHash: sha256.New, user: user, password: password}
}

// Name returns the wire plugin name.
func (s *Srp) Name() string {
	return s.name
}

// Status returns the current attempt state.
func (s *Srp) Status() Status {
	return s.status
}

// HasSessionKey reports whether the attempt derived a transport key.
func (s *Srp) HasSessionKey() bool {
	return len(s.sessionKey) > 0
}

// SessionKey returns the derived key bytes, nil before success.
func (s *Srp) SessionKey() []byte {
	return s.sessionKey
}

// Zero scrubs the attempt's secrets.
func (s *Srp) Zero() {
	s.password = ""
	s.private = nil
	if s.status != StatusSuccess {
		Zero(s.sessionKey)
		s.sessionKey = nil
	}
}

// Authenticate advances the attempt. Round one (serverData nil) yields the
// hex form of the client public key; round two consumes salt and server
// public key and yields the client proof, deriving the session key.
func (s *Srp) Authenticate(serverData []byte) (clientData []byte, status Status, err error) {
	switch s.status {
	case StatusSuccess, StatusFailed:
		err = errors.WithStack(ErrAuthSyncFailure)
		return
	}

	if len(serverData) == 0 {
		// Without credentials the attempt idles until the caller supplies
		// them; producing a public key would only waste a server round.
		if s.user == "" || s.password == "" {
			s.status = StatusContinue
			status = s.status
			return
		}
		if s.private == nil {
			if s.private, err = rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), srpKeyBits)); err != nil {
				err = errors.Wrap(err, "generate srp private key")
				return
			}
			s.public = new(big.Int).Exp(srpGenerator, s.private, srpPrime)
		}
		clientData = []byte(hexBig(s.public))
		s.status = StatusMoreData
		status = s.status
		return
	}

	salt, serverPublic, derr := decodeServerData(serverData)
	if derr != nil {
		s.status = StatusFailed
		err = derr
		return
	}
	proof, key, perr := s.proof(salt, serverPublic)
	if perr != nil {
		s.status = StatusFailed
		err = perr
		return
	}
	s.sessionKey = key
	clientData = proof
	s.status = StatusSuccess
	status = s.status
	return
}

// Server data layout: 2-byte little-endian length + salt, then 2-byte
// little-endian length + hex-encoded server public key.
func decodeServerData(data []byte) (salt []byte, serverPublic *big.Int, err error) {
	if len(data) < 2 {
		err = errors.New("srp server data too short")
		return
	}
	n := int(binary.LittleEndian.Uint16(data))
	if len(data) < 2+n+2 {
		err = errors.New("srp server data truncated")
		return
	}
	salt = data[2 : 2+n]
	rest := data[2+n:]
	m := int(binary.LittleEndian.Uint16(rest))
	if len(rest) < 2+m {
		err = errors.New("srp server key truncated")
		return
	}
	raw, herr := hex.DecodeString(string(rest[2 : 2+m]))
	if herr != nil {
		err = errors.Wrap(herr, "srp server key not hex")
		return
	}
	serverPublic = new(big.Int).SetBytes(raw)
	return
}

func hexBig(v *big.Int) string {
	return strings.ToUpper(hex.EncodeToString(v.Bytes()))
}

func sha1Of(parts ...[]byte) []byte {
	h := sha1.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func (s *Srp) proof(salt []byte, serverPublic *big.Int) (proof, sessionKey []byte, err error) {
	if serverPublic.Sign() <= 0 || new(big.Int).Mod(serverPublic, srpPrime).Sign() == 0 {
		err = errors.New("srp server public key out of range")
		return
	}

	u := new(big.Int).SetBytes(sha1Of(s.public.Bytes(), serverPublic.Bytes()))
	identityHash := sha1Of([]byte(strings.ToUpper(s.user) + ":" + s.password))
	x := new(big.Int).SetBytes(sha1Of(salt, identityHash))

	// S = (B - k*g^x) ^ (a + u*x) mod N
	gx := new(big.Int).Exp(srpGenerator, x, srpPrime)
	base := new(big.Int).Sub(serverPublic, new(big.Int).Mul(srpK, gx))
	base.Mod(base, srpPrime)
	exp := new(big.Int).Add(s.private, new(big.Int).Mul(u, x))
	secret := new(big.Int).Exp(base, exp, srpPrime)

	sessionKey = sha1Of(secret.Bytes())

	// M = H(H(N) xor H(g), H(user), salt, A, B, K)
	hn := new(big.Int).SetBytes(sha1Of(srpPrime.Bytes()))
	hg := new(big.Int).SetBytes(sha1Of(srpGenerator.Bytes()))
	ngXor := new(big.Int).Xor(hn, hg)

	h := s.proofHash()
	h.Write(ngXor.Bytes())
	h.Write(sha1Of([]byte(strings.ToUpper(s.user))))
	h.Write(salt)
	h.Write(s.public.Bytes())
	h.Write(serverPublic.Bytes())
	h.Write(sessionKey)
	proof = []byte(strings.ToUpper(hex.EncodeToString(h.Sum(nil))))
	return
}
