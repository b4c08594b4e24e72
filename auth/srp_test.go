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
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

// srpServer is the minimal verifier side of the exchange, enough to prove
// both ends derive the same session key.
type srpServer struct {
	salt    []byte
	private *big.Int
	public  *big.Int
	x       *big.Int
}

func newSrpServer(t *testing.T, user, password string) *srpServer {
	t.Helper()
	s := &srpServer{salt: make([]byte, 32)}
	if _, err := rand.Read(s.salt); err != nil {
		t.Fatal(err)
	}
	identityHash := sha1Of([]byte(strings.ToUpper(user) + ":" + password))
	s.x = new(big.Int).SetBytes(sha1Of(s.salt, identityHash))
	verifier := new(big.Int).Exp(srpGenerator, s.x, srpPrime)

	var err error
	if s.private, err = rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), srpKeyBits)); err != nil {
		t.Fatal(err)
	}
	gb := new(big.Int).Exp(srpGenerator, s.private, srpPrime)
	kv := new(big.Int).Mul(srpK, verifier)
	s.public = new(big.Int).Mod(new(big.Int).Add(kv, gb), srpPrime)
	return s
}

// wireData packs salt and hex(B) the way op_cond_accept carries them.
func (s *srpServer) wireData() []byte {
	pub := []byte(strings.ToUpper(hex.EncodeToString(s.public.Bytes())))
	out := make([]byte, 0, 4+len(s.salt)+len(pub))
	var l [2]byte
	binary.LittleEndian.PutUint16(l[:], uint16(len(s.salt)))
	out = append(out, l[:]...)
	out = append(out, s.salt...)
	binary.LittleEndian.PutUint16(l[:], uint16(len(pub)))
	out = append(out, l[:]...)
	out = append(out, pub...)
	return out
}

func (s *srpServer) sessionKey(clientPublicHex []byte) []byte {
	raw, _ := hex.DecodeString(string(clientPublicHex))
	clientPublic := new(big.Int).SetBytes(raw)
	u := new(big.Int).SetBytes(sha1Of(clientPublic.Bytes(), s.public.Bytes()))
	verifier := new(big.Int).Exp(srpGenerator, s.x, srpPrime)
	// S = (A * v^u) ^ b mod N
	vu := new(big.Int).Exp(verifier, u, srpPrime)
	base := new(big.Int).Mod(new(big.Int).Mul(clientPublic, vu), srpPrime)
	secret := new(big.Int).Exp(base, s.private, srpPrime)
	return sha1Of(secret.Bytes())
}

func TestSrpKeyAgreement(t *testing.T) {
	for _, mk := range []func(u, p string) *Srp{NewSrp, NewSrp256} {
		client := mk("sysdba", "masterkey")

		Convey("client and server agree on the session key via "+client.Name(), t, func() {
			server := newSrpServer(t, "SYSDBA", "masterkey")

			pub, status, err := client.Authenticate(nil)
			So(err, ShouldBeNil)
			So(status, ShouldEqual, StatusMoreData)
			So(len(pub), ShouldBeGreaterThan, 0)

			proof, status, err := client.Authenticate(server.wireData())
			So(err, ShouldBeNil)
			So(status, ShouldEqual, StatusSuccess)
			So(len(proof), ShouldBeGreaterThan, 0)
			So(client.HasSessionKey(), ShouldBeTrue)
			So(client.SessionKey(), ShouldResemble, server.sessionKey(pub))
		})
	}
}

func TestSrpSingleSuccess(t *testing.T) {
	Convey("advancing a successful attempt is a sync failure", t, func() {
		client := NewSrp("sysdba", "masterkey")
		server := newSrpServer(t, "SYSDBA", "masterkey")

		_, _, err := client.Authenticate(nil)
		So(err, ShouldBeNil)
		_, _, err = client.Authenticate(server.wireData())
		So(err, ShouldBeNil)

		key := append([]byte(nil), client.SessionKey()...)
		_, _, err = client.Authenticate(server.wireData())
		So(errors.Cause(err), ShouldEqual, ErrAuthSyncFailure)
		// The original key must survive untouched; no re-derivation.
		So(client.SessionKey(), ShouldResemble, key)
	})
}

func TestSrpMissingCredentials(t *testing.T) {
	Convey("a plugin without credentials idles in AUTH_CONTINUE", t, func() {
		client := NewSrp256("", "")
		data, status, err := client.Authenticate(nil)
		So(err, ShouldBeNil)
		So(status, ShouldEqual, StatusContinue)
		So(data, ShouldBeNil)

		// Still not terminal: a later round with credentials present may
		// proceed, so advancing again is not a sync failure.
		_, status, err = client.Authenticate(nil)
		So(err, ShouldBeNil)
		So(status, ShouldEqual, StatusContinue)
	})
}

func TestSrpZero(t *testing.T) {
	Convey("zeroing a failed attempt scrubs its secrets", t, func() {
		client := NewSrp("sysdba", "masterkey")
		_, _, err := client.Authenticate(nil)
		So(err, ShouldBeNil)
		client.Zero()
		So(client.SessionKey(), ShouldBeNil)
	})

	Convey("zeroing after success keeps the session key for the transport", t, func() {
		client := NewSrp("sysdba", "masterkey")
		server := newSrpServer(t, "SYSDBA", "masterkey")
		_, _, err := client.Authenticate(nil)
		So(err, ShouldBeNil)
		_, _, err = client.Authenticate(server.wireData())
		So(err, ShouldBeNil)
		client.Zero()
		So(client.HasSessionKey(), ShouldBeTrue)
	})
}

func TestChain(t *testing.T) {
	Convey("the chain follows the server-advertised order", t, func() {
		c := NewChain(NewSrp256("u", "p"), NewSrp("u", "p"))
		So(c.Names(), ShouldResemble, []string{"Srp256", "Srp"})

		c.Narrow("Srp256,Srp,Legacy_Auth", nil)
		So(c.Names(), ShouldResemble, []string{"Srp256", "Srp"})

		So(c.Current().Name(), ShouldEqual, "Srp256")
		So(c.Next().Name(), ShouldEqual, "Srp")
		So(c.Next(), ShouldBeNil)
	})

	Convey("narrowing drops plugins the server did not advertise", t, func() {
		c := NewChain(NewSrp256("u", "p"), NewSrp("u", "p"))
		c.Narrow("Srp", nil)
		So(c.Names(), ShouldResemble, []string{"Srp"})
	})

	Convey("server keys narrow the candidates further", t, func() {
		c := NewChain(NewSrp256("u", "p"), NewSrp("u", "p"))
		c.Narrow("Srp256,Srp", []KnownServerKey{
			{Type: "Symmetric", Plugins: []string{"Srp"}},
		})
		So(c.Names(), ShouldResemble, []string{"Srp"})
	})

	Convey("keys naming only wire-crypt plugins leave the chain alone", t, func() {
		c := NewChain(NewSrp256("u", "p"), NewSrp("u", "p"))
		c.Narrow("Srp256,Srp", []KnownServerKey{
			{Type: "Symmetric", Plugins: []string{"ChaCha", "Arc4"}},
		})
		So(c.Names(), ShouldResemble, []string{"Srp256", "Srp"})
	})
}
