package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/sammck-go/comlink/comlink"
)

// SSHChannelEndpoint adapts an ssh.Channel into a comlink.Endpoint,
// letting many independent comlink sessions multiplex over one
// authenticated ssh.Conn -- each comlink.Wrap/comlink.Expose pair gets its
// own channel instead of its own TCP connection, for deployments that
// already run an SSH transport. Length-prefixed framing is imposed here
// because ssh.Channel, unlike a WebSocket connection, has no built-in
// message boundary.
type SSHChannelEndpoint struct {
	comlink.ShutdownHelper
	ch ssh.Channel

	whc []comlink.MessageHandler

	startOnce sync.Once
}

// NewSSHChannelEndpoint wraps an already-accepted or already-opened
// ssh.Channel.
func NewSSHChannelEndpoint(ch ssh.Channel) *SSHChannelEndpoint {
	s := &SSHChannelEndpoint{ch: ch}
	s.InitShutdownHelper(comlink.NewLogger("ssh-endpoint", comlink.LogLevelWarning), s)
	return s
}

// DialSSHSubChannel opens a fresh channel of the given type over conn and
// wraps it, discarding inbound out-of-band requests on the channel (none
// are used by the wire protocol). This is what a host program calls to
// give a comlink session its own channel when the chosen transport is a
// single shared ssh.Conn rather than one socket per comlink pair.
func DialSSHSubChannel(conn ssh.Conn, channelType string, extraData []byte) (*SSHChannelEndpoint, error) {
	ch, reqs, err := conn.OpenChannel(channelType, extraData)
	if err != nil {
		return nil, fmt.Errorf("comlink/transport: opening ssh sub-channel: %w", err)
	}
	go ssh.DiscardRequests(reqs)
	return NewSSHChannelEndpoint(ch), nil
}

// Start begins the read loop. Idempotent, matching the Starter capability
// comlink probes for before first use.
func (s *SSHChannelEndpoint) Start() error {
	s.startOnce.Do(func() {
		go s.readLoop()
	})
	return nil
}

// readLoop decodes the length-prefixed frames this endpoint imposes on the
// raw ssh.Channel byte stream (ssh.Channel carries bytes, not messages).
func (s *SSHChannelEndpoint) readLoop() {
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(s.ch, lenBuf[:]); err != nil {
			s.StartShutdown(err)
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		data := make([]byte, n)
		if _, err := io.ReadFull(s.ch, data); err != nil {
			s.StartShutdown(err)
			return
		}
		s.Lock.Lock()
		handlers := append([]comlink.MessageHandler(nil), s.whc...)
		s.Lock.Unlock()
		msg := comlink.InboundMessage{Data: data}
		for _, h := range handlers {
			h(msg)
		}
	}
}

// HandleOnceShutdown implements comlink.OnceShutdownHandler: closes the
// underlying ssh.Channel, ending the read loop.
func (s *SSHChannelEndpoint) HandleOnceShutdown(completionErr error) error {
	err := s.ch.Close()
	if completionErr == nil {
		completionErr = err
	}
	return completionErr
}

// Post writes data as one length-prefixed frame.
func (s *SSHChannelEndpoint) Post(data []byte, _ []comlink.Transferable) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := s.ch.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := s.ch.Write(data)
	return err
}

func (s *SSHChannelEndpoint) Listen(h comlink.MessageHandler) {
	s.Lock.Lock()
	defer s.Lock.Unlock()
	s.whc = append(s.whc, h)
}

func (s *SSHChannelEndpoint) Unlisten(h comlink.MessageHandler) {
	s.Lock.Lock()
	defer s.Lock.Unlock()
	for i, existing := range s.whc {
		if funcEqual(existing, h) {
			s.whc = append(s.whc[:i], s.whc[i+1:]...)
			return
		}
	}
}
