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

package client

import (
	"bytes"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/fbsql/fbsql/auth"
	"github.com/fbsql/fbsql/protocol"
	"github.com/fbsql/fbsql/wire"
	"github.com/fbsql/fbsql/wirecrypt"
)

// Handshake errors.
var (
	// ErrWireCryptRequired indicates the client demanded encryption but
	// authentication produced no session key to derive it from.
	ErrWireCryptRequired = errors.New("wire encryption required but no session key available")
)

// Key-material clumplet tags of the accept keys buffer.
const (
	keyTagType           = 0
	keyTagPlugins        = 1
	keyTagKnownPlugins   = 2
	keyTagPluginSpecific = 3
)

// serverKeys is the encryption key material advertised in op_cond_accept /
// op_accept_data.
type serverKeys struct {
	keys []auth.KnownServerKey
	// specific maps a crypt plugin name to its server-provided data
	// (a nonce for ChaCha).
	specific map[string][]byte
}

func (sk *serverKeys) offers(keyType, plugin string) bool {
	for _, k := range sk.keys {
		if k.Type != keyType {
			continue
		}
		for _, p := range k.Plugins {
			if p == plugin {
				return true
			}
		}
	}
	return false
}

// parseServerKeys walks the keys buffer: tag, one length byte, value.
// TAG_KEY_TYPE opens an entry, TAG_KEY_PLUGINS closes it; plugin-specific
// values carry the plugin name NUL-separated from the data. Unknown tags
// are skipped for forward compatibility.
func parseServerKeys(buf []byte) (sk serverKeys, err error) {
	sk.specific = map[string][]byte{}
	var curType string
	for i := 0; i < len(buf); {
		tag := buf[i]
		i++
		if i >= len(buf) {
			err = errors.Wrapf(ErrMalformedInfo, "keys tag %d without length", tag)
			return
		}
		l := int(buf[i])
		i++
		if i+l > len(buf) {
			err = errors.Wrapf(ErrMalformedInfo, "keys tag %d value overruns buffer", tag)
			return
		}
		v := buf[i : i+l]
		i += l
		switch tag {
		case keyTagType:
			curType = string(v)
		case keyTagPlugins:
			sk.keys = append(sk.keys, auth.KnownServerKey{
				Type:    curType,
				Plugins: splitPluginList(string(v)),
			})
		case keyTagPluginSpecific:
			if j := bytes.IndexByte(v, 0); j >= 0 {
				sk.specific[string(v[:j])] = append([]byte(nil), v[j+1:]...)
			}
		case keyTagKnownPlugins:
			// Server-side auth plugin list; the accept record already
			// names the chosen one.
		}
	}
	return
}

func splitPluginList(s string) (out []string) {
	for _, p := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	}) {
		if p != "" {
			out = append(out, p)
		}
	}
	return
}

// buildUserID assembles the CNCT identification block of op_connect.
func (c *Connection) buildUserID(pluginList []string, specificData []byte) (uid []byte, err error) {
	p := NewBareParamBuffer()

	osUser := os.Getenv("USER")
	if osUser == "" {
		osUser = "fbsql"
	}
	host, _ := os.Hostname()

	if err = p.AddString(protocol.CnctLogin, c.cfg.User, c.encoding); err != nil {
		return
	}
	if len(pluginList) > 0 {
		if err = p.AddString(protocol.CnctPluginName, pluginList[0], c.encoding); err != nil {
			return
		}
		if err = p.AddString(protocol.CnctPluginList, strings.Join(pluginList, ","), c.encoding); err != nil {
			return
		}
	}
	// Specific data travels in 254-byte chunks, each prefixed by its index.
	for i := 0; len(specificData) > 0; i++ {
		chunk := specificData
		if len(chunk) > 254 {
			chunk = chunk[:254]
		}
		specificData = specificData[len(chunk):]
		p.AddBytes(protocol.CnctSpecificData, append([]byte{byte(i)}, chunk...))
	}
	p.AddBytes(protocol.CnctClientCrypt, wire.EncodeVaxInteger(int64(c.cfg.WireCrypt), 4))
	if err = p.AddString(protocol.CnctUser, osUser, c.encoding); err != nil {
		return
	}
	if err = p.AddString(protocol.CnctHost, host, c.encoding); err != nil {
		return
	}
	p.AddBytes(protocol.CnctUserVerification, nil)
	return p.Bytes(), nil
}

// acceptRecord is the decoded body of op_accept / op_accept_data /
// op_cond_accept.
type acceptRecord struct {
	version       int32
	architecture  int32
	acceptType    int32
	data          []byte
	pluginName    string
	authenticated bool
	keys          serverKeys
}

func (c *Connection) readAcceptLocked(op int32) (acc acceptRecord, err error) {
	if acc.version, err = c.dec.ReadInt32(); err != nil {
		return
	}
	acc.version = protocol.UnmaskVersion(acc.version)
	if acc.architecture, err = c.dec.ReadInt32(); err != nil {
		return
	}
	if acc.acceptType, err = c.dec.ReadInt32(); err != nil {
		return
	}
	if op == protocol.OpAccept {
		return
	}
	if acc.data, err = c.dec.ReadBuffer(); err != nil {
		return
	}
	if acc.pluginName, err = c.dec.ReadString(c.encoding); err != nil {
		return
	}
	var authed int32
	if authed, err = c.dec.ReadInt32(); err != nil {
		return
	}
	acc.authenticated = authed != 0
	var keysBuf []byte
	if keysBuf, err = c.dec.ReadBuffer(); err != nil {
		return
	}
	acc.keys, err = parseServerKeys(keysBuf)
	return
}

// identify runs the op_connect negotiation: protocol selection, the
// authentication rounds, then the optional stream transforms. On return
// the connection speaks the accepted protocol version and the server is
// waiting for the op_attach (or op_create) that was announced.
func (c *Connection) identify(database string, chain *auth.Chain) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	plugin := chain.Current()
	if plugin == nil {
		return errors.WithStack(auth.ErrPluginsExhausted)
	}
	firstData, _, err := plugin.Authenticate(nil)
	if err != nil {
		return errors.Wrap(err, "prepare auth data")
	}

	uid, err := c.buildUserID(chain.Names(), firstData)
	if err != nil {
		return errors.Wrap(err, "build user identification")
	}

	registry := protocol.DefaultRegistry()
	descs := registry.Descriptors()
	if err = c.writeConnectLocked(database, uid, descs); err != nil {
		return
	}
	if err = c.stream.Flush(); err != nil {
		return errors.Wrap(err, "flush op_connect")
	}

	op, err := c.readOperationLocked()
	if err != nil {
		return errors.Wrap(err, "read connect reply")
	}
	var acc acceptRecord
	switch op {
	case protocol.OpAccept, protocol.OpAcceptData, protocol.OpCondAccept:
		if acc, err = c.readAcceptLocked(op); err != nil {
			return errors.Wrap(err, "read accept record")
		}
	case protocol.OpResponse:
		if _, err = protocol.ReadGenericResponse(c.dec, c.encoding); err != nil {
			return errors.Wrap(errors.Cause(err), "connection rejected")
		}
		return errors.WithStack(protocol.ErrConnectionRejected)
	default:
		return errors.Wrapf(protocol.ErrUnexpectedOperation, "connect reply %d", op)
	}

	desc, err := registry.Select(acc.version, acc.architecture, acc.acceptType)
	if err != nil {
		return
	}
	c.version = desc.ProtocolVersion
	c.behavior = desc.Behavior
	c.lazy = acc.acceptType&protocol.PtypeMask == protocol.PtypeLazySend

	if op != protocol.OpAccept && !acc.authenticated {
		if plugin, err = c.continueAuthLocked(chain, &acc); err != nil {
			return
		}
	}

	// Compression kicks in at this exact message boundary when both ends
	// asked for it.
	if acc.acceptType&protocol.PflagCompress != 0 {
		if err = c.stream.EnableCompression(); err != nil {
			return
		}
	}

	if c.behavior.WireCrypt && c.cfg.WireCrypt != WireCryptDisabled {
		if err = c.enableWireCryptLocked(plugin, &acc.keys); err != nil {
			return
		}
	}
	return
}

func (c *Connection) writeConnectLocked(database string, uid []byte, descs []*protocol.Descriptor) (err error) {
	words := []int32{
		protocol.OpConnect,
		protocol.OpAttach,
		protocol.ConnectVersion3,
		protocol.ArchGeneric,
	}
	for _, w := range words {
		if err = c.enc.WriteInt32(w); err != nil {
			return errors.Wrap(err, "write op_connect")
		}
	}
	if err = c.enc.WriteString(database, c.encoding); err != nil {
		return errors.Wrap(err, "write database path")
	}
	if err = c.enc.WriteInt32(int32(len(descs))); err != nil {
		return errors.Wrap(err, "write version count")
	}
	if err = c.enc.WriteBuffer(uid); err != nil {
		return errors.Wrap(err, "write user identification")
	}
	for _, d := range descs {
		maxType := d.MaxType
		if c.cfg.Compress {
			// Compression is offered as a ptype flag; the server echoes it
			// in the accept type when it agrees.
			maxType |= protocol.PflagCompress
		}
		for _, w := range []int32{
			protocol.MaskVersion(d.Version), d.Architecture, d.MinType, maxType, d.Weight,
		} {
			if err = c.enc.WriteInt32(w); err != nil {
				return errors.Wrap(err, "write protocol descriptor")
			}
		}
	}
	return
}

// continueAuthLocked drives op_cont_auth rounds until the server accepts,
// switching plugins when the server insists on a different one.
func (c *Connection) continueAuthLocked(chain *auth.Chain, acc *acceptRecord) (plugin auth.Plugin, err error) {
	chain.Narrow(acc.pluginName, acc.keys.keys)
	plugin = chain.Current()
	if plugin == nil {
		err = errors.Wrapf(auth.ErrPluginsExhausted, "server insists on plugin %q", acc.pluginName)
		return
	}
	serverData := acc.data

	for {
		var clientData []byte
		var status auth.Status
		if clientData, status, err = plugin.Authenticate(serverData); err != nil {
			return
		}
		if status == auth.StatusFailed {
			if plugin = chain.Next(); plugin == nil {
				err = errors.WithStack(auth.ErrPluginsExhausted)
				return
			}
			if clientData, _, err = plugin.Authenticate(nil); err != nil {
				return
			}
		}

		if err = c.writeContAuthLocked(clientData, plugin.Name(), chain.Names()); err != nil {
			return
		}
		if err = c.stream.Flush(); err != nil {
			err = errors.Wrap(err, "flush op_cont_auth")
			return
		}

		var op int32
		if op, err = c.readOperationLocked(); err != nil {
			err = errors.Wrap(err, "read auth round reply")
			return
		}
		switch op {
		case protocol.OpResponse:
			_, err = protocol.ReadGenericResponse(c.dec, c.encoding)
			return
		case protocol.OpContAuth, protocol.OpCondAccept, protocol.OpAcceptData:
			var round acceptRecord
			if op == protocol.OpContAuth {
				if round.data, err = c.dec.ReadBuffer(); err != nil {
					return
				}
				if round.pluginName, err = c.dec.ReadString(c.encoding); err != nil {
					return
				}
				// Plugin list and keys close the record.
				if _, err = c.dec.ReadBuffer(); err != nil {
					return
				}
				var keysBuf []byte
				if keysBuf, err = c.dec.ReadBuffer(); err != nil {
					return
				}
				if round.keys, err = parseServerKeys(keysBuf); err != nil {
					return
				}
			} else {
				if round, err = c.readAcceptLocked(op); err != nil {
					return
				}
				if round.authenticated {
					mergeKeys(&acc.keys, &round.keys)
					return
				}
			}
			mergeKeys(&acc.keys, &round.keys)
			if round.pluginName != "" && round.pluginName != plugin.Name() {
				chain.Narrow(round.pluginName, round.keys.keys)
				if plugin = chain.Current(); plugin == nil {
					err = errors.Wrapf(auth.ErrPluginsExhausted, "server switched to plugin %q", round.pluginName)
					return
				}
				serverData = nil
				continue
			}
			serverData = round.data
		default:
			err = errors.Wrapf(protocol.ErrUnexpectedOperation, "auth round reply %d", op)
			return
		}
	}
}

func mergeKeys(dst, src *serverKeys) {
	dst.keys = append(dst.keys, src.keys...)
	if dst.specific == nil {
		dst.specific = map[string][]byte{}
	}
	for k, v := range src.specific {
		dst.specific[k] = v
	}
}

func (c *Connection) writeContAuthLocked(data []byte, pluginName string, pluginList []string) (err error) {
	if err = c.enc.WriteInt32(protocol.OpContAuth); err != nil {
		return errors.Wrap(err, "write op_cont_auth")
	}
	if err = c.enc.WriteBuffer(data); err != nil {
		return errors.Wrap(err, "write auth data")
	}
	if err = c.enc.WriteString(pluginName, c.encoding); err != nil {
		return errors.Wrap(err, "write auth plugin name")
	}
	if err = c.enc.WriteString(strings.Join(pluginList, ","), c.encoding); err != nil {
		return errors.Wrap(err, "write auth plugin list")
	}
	if err = c.enc.WriteBuffer(nil); err != nil {
		return errors.Wrap(err, "write auth keys")
	}
	return
}

// enableWireCryptLocked negotiates op_crypt with the most preferred plugin
// both sides support, then keys the stream. The op_crypt packet itself is
// the last plaintext message; its op_response already arrives encrypted.
func (c *Connection) enableWireCryptLocked(plugin auth.Plugin, keys *serverKeys) (err error) {
	if plugin == nil || !plugin.HasSessionKey() {
		if c.cfg.WireCrypt == WireCryptRequired {
			return errors.WithStack(ErrWireCryptRequired)
		}
		return
	}

	var chosen *wirecrypt.Plugin
	var specific []byte
	for _, name := range wirecrypt.KnownPlugins() {
		if len(keys.keys) > 0 && !keys.offers("Symmetric", name) {
			continue
		}
		if chosen, err = wirecrypt.Lookup(name); err != nil {
			return
		}
		specific = keys.specific[name]
		break
	}
	if chosen == nil {
		if c.cfg.WireCrypt == WireCryptRequired {
			return errors.WithStack(ErrWireCryptRequired)
		}
		return
	}

	if err = c.enc.WriteInt32(protocol.OpCrypt); err != nil {
		return errors.Wrap(err, "write op_crypt")
	}
	if err = c.enc.WriteString(chosen.Name, c.encoding); err != nil {
		return errors.Wrap(err, "write crypt plugin")
	}
	if err = c.enc.WriteString("Symmetric", c.encoding); err != nil {
		return errors.Wrap(err, "write crypt key type")
	}
	if err = c.stream.Flush(); err != nil {
		return errors.Wrap(err, "flush op_crypt")
	}

	key := plugin.SessionKey()
	read, err := chosen.New(key, specific)
	if err != nil {
		return
	}
	write, err := chosen.New(key, specific)
	if err != nil {
		return
	}
	if err = c.stream.SetCipher(read, write); err != nil {
		return
	}
	_, err = c.readGenericResponseLocked()
	return errors.Wrap(err, "confirm op_crypt")
}
