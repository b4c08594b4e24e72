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
	"github.com/pkg/errors"

	"github.com/fbsql/fbsql/auth"
	"github.com/fbsql/fbsql/protocol"
)

// ServiceAttachment is an attachment to the service manager rather than a
// database: backups, statistics, user management and the like run through
// it.
type ServiceAttachment struct {
	conn      *Connection
	handle    int32
	attached  bool
	listeners exceptionListeners
}

// serviceManagerName is the wire name of the service manager endpoint.
const serviceManagerName = "service_mgr"

// AttachService dials the server and attaches to its service manager.
// Config.Database is ignored; credentials and transport options apply as
// for a database attach.
func AttachService(cfg Config) (s *ServiceAttachment, err error) {
	conn, err := newConnection(cfg)
	if err != nil {
		return
	}
	if err = conn.connect(); err != nil {
		return
	}
	chain := auth.NewChain(
		auth.NewSrp256(cfg.User, cfg.Password),
		auth.NewSrp(cfg.User, cfg.Password),
	)
	if err = conn.identify(serviceManagerName, chain); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s = &ServiceAttachment{conn: conn}
	if err = s.attach(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return
}

func (s *ServiceAttachment) attach() (err error) {
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	spb := NewParamBuffer(protocol.SpbCurrentVersion)
	if c.cfg.User != "" {
		_ = spb.AddString(protocol.SpbUserName, c.cfg.User, c.encoding)
	}
	if c.cfg.Password != "" && !c.behavior.AuthData {
		_ = spb.AddString(protocol.SpbPassword, c.cfg.Password, c.encoding)
	}

	if err = c.enc.WriteInt32(protocol.OpServiceAttach); err != nil {
		return errors.Wrap(err, "write op_service_attach")
	}
	if err = c.enc.WriteInt32(0); err != nil {
		return errors.Wrap(err, "write service object")
	}
	if err = c.enc.WriteString(serviceManagerName, c.encoding); err != nil {
		return errors.Wrap(err, "write service name")
	}
	if err = c.enc.WriteBuffer(spb.Bytes()); err != nil {
		return errors.Wrap(err, "write service parameter block")
	}
	resp, err := c.opResponseLocked()
	if err != nil {
		return
	}
	s.handle = resp.ObjectHandle
	s.attached = true
	return
}

// Handle returns the server-assigned service handle.
func (s *ServiceAttachment) Handle() int32 {
	return s.handle
}

// AddExceptionListener registers an error observer on this service
// attachment.
func (s *ServiceAttachment) AddExceptionListener(l ExceptionListener) {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	s.listeners.add(l)
}

// Start launches a service task described by the given request block
// (isc_action_svc_* tags).
func (s *ServiceAttachment) Start(request []byte) (err error) {
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if !s.attached {
		return s.listeners.notify(errors.WithStack(ErrNotAttached))
	}
	if err = c.enc.WriteInt32(protocol.OpServiceStart); err != nil {
		return s.listeners.notify(errors.Wrap(err, "write op_service_start"))
	}
	if err = c.enc.WriteInt32(s.handle); err != nil {
		return s.listeners.notify(errors.Wrap(err, "write service handle"))
	}
	if err = c.enc.WriteInt32(0); err != nil {
		return s.listeners.notify(errors.Wrap(err, "write service incarnation"))
	}
	if err = c.enc.WriteBuffer(request); err != nil {
		return s.listeners.notify(errors.Wrap(err, "write service request"))
	}
	_, err = c.opResponseLocked()
	return s.listeners.notify(err)
}

// Query performs op_service_info: sendItems parameterize the running
// task, receiveItems select what to read back.
func (s *ServiceAttachment) Query(sendItems, receiveItems []byte, bufferLength int32) (data []byte, err error) {
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if !s.attached {
		err = s.listeners.notify(errors.WithStack(ErrNotAttached))
		return
	}
	if err = c.enc.WriteInt32(protocol.OpServiceInfo); err != nil {
		err = s.listeners.notify(errors.Wrap(err, "write op_service_info"))
		return
	}
	if err = c.enc.WriteInt32(s.handle); err != nil {
		err = s.listeners.notify(errors.Wrap(err, "write service handle"))
		return
	}
	if err = c.enc.WriteInt32(0); err != nil {
		err = s.listeners.notify(errors.Wrap(err, "write service incarnation"))
		return
	}
	if err = c.enc.WriteBuffer(sendItems); err != nil {
		err = s.listeners.notify(errors.Wrap(err, "write service send items"))
		return
	}
	if err = c.enc.WriteBuffer(receiveItems); err != nil {
		err = s.listeners.notify(errors.Wrap(err, "write service receive items"))
		return
	}
	if err = c.enc.WriteInt32(bufferLength); err != nil {
		err = s.listeners.notify(errors.Wrap(err, "write service buffer length"))
		return
	}
	resp, err := c.opResponseLocked()
	if err != nil {
		err = s.listeners.notify(err)
		return
	}
	return resp.Data, nil
}

// Detach ends the service attachment and closes the socket.
func (s *ServiceAttachment) Detach() (err error) {
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if !s.attached {
		return s.listeners.notify(errors.WithStack(ErrNotAttached))
	}
	if err = c.enc.WriteInt32(protocol.OpServiceDetach); err != nil {
		return s.listeners.notify(errors.Wrap(err, "write op_service_detach"))
	}
	if err = c.enc.WriteInt32(s.handle); err != nil {
		return s.listeners.notify(errors.Wrap(err, "write service handle"))
	}
	_, err = c.opResponseLocked()
	s.attached = false
	if cerr := c.closeLocked(); err == nil {
		err = cerr
	}
	return s.listeners.notify(err)
}
