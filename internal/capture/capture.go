// Package capture replays NEGOTIATE exchanges recorded in pcap or pcapng
// files through a fresh Negotiator, showing what this server would have
// answered to each recorded client.
package capture

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	smb "github.com/marmos91/dittosmb/internal/adapter/smb"
	"github.com/marmos91/dittosmb/internal/adapter/smb/negotiate"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/metrics"
)

// pcapngMagic is the Section Header Block type.
const pcapngMagic = 0x0A0D0D0A

// maxReplayFrame bounds a reassembled NEGOTIATE. Real ones are a few
// hundred bytes.
const maxReplayFrame = 64 * 1024

var ErrNotCapture = errors.New("not a pcap or pcapng file")

// Options tunes a replay.
type Options struct {
	// Port is the server TCP port. Default 445.
	Port uint16

	// Identity is the server identity answering the replayed requests.
	Identity negotiate.ServerIdentity

	SigningRequired bool
}

// Result is the replay of one NEGOTIATE.
type Result struct {
	Time     time.Time `json:"time" yaml:"time"`
	Client   string    `json:"client" yaml:"client"`
	Server   string    `json:"server" yaml:"server"`
	Family   string    `json:"family" yaml:"family"`
	Offered  []string  `json:"offered" yaml:"offered"`
	Selected string    `json:"selected,omitempty" yaml:"selected,omitempty"`
	Upgrade  bool      `json:"upgrade" yaml:"upgrade"`
	Status   string    `json:"status,omitempty" yaml:"status,omitempty"`
	Outcome  string    `json:"outcome" yaml:"outcome"`
	Error    string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// packetReader is satisfied by pcapgo.Reader and pcapgo.NgReader.
type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// ReplayFile opens path and replays it.
func ReplayFile(path string, opts Options) ([]Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Replay(f, opts)
}

// Replay reads every packet, reassembles client-to-server TCP payloads on
// opts.Port and feeds the leading NEGOTIATE frames of each stream to a
// per-stream Negotiator. An SMB1 request upgraded with the wildcard
// keeps the stream open for the SMB2 NEGOTIATE that follows.
func Replay(r io.Reader, opts Options) ([]Result, error) {
	if opts.Port == 0 {
		opts.Port = 445
	}

	pr, err := openReader(r)
	if err != nil {
		return nil, err
	}

	streams := make(map[string]*stream)
	var order []*stream
	var results []Result

	for {
		data, ci, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return results, fmt.Errorf("read packet: %w", err)
		}

		packet := gopacket.NewPacket(data, pr.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		tcpLayer := packet.Layer(layers.LayerTypeTCP)
		netLayer := packet.NetworkLayer()
		if tcpLayer == nil || netLayer == nil {
			continue
		}
		tcp := tcpLayer.(*layers.TCP)
		if uint16(tcp.DstPort) != opts.Port {
			continue
		}

		nf := netLayer.NetworkFlow()
		key := fmt.Sprintf("%s:%d>%s:%d", nf.Src(), tcp.SrcPort, nf.Dst(), tcp.DstPort)
		s, ok := streams[key]
		if !ok {
			s = newStream(nf.Src().String(), nf.Dst().String(), tcp, opts)
			streams[key] = s
			order = append(order, s)
		}
		results = append(results, s.add(tcp, ci.Timestamp)...)
	}

	for _, s := range order {
		if r := s.leftover(); r != nil {
			results = append(results, *r)
		}
	}
	logger.Debug("Capture replayed", "streams", len(order), "negotiations", len(results))
	return results, nil
}

func openReader(r io.Reader) (packetReader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotCapture, err)
	}

	if binary.BigEndian.Uint32(magic) == pcapngMagic {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotCapture, err)
		}
		return ng, nil
	}
	pr, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotCapture, err)
	}
	return pr, nil
}

// stream is one client-to-server byte stream.
type stream struct {
	client, server string
	opts           Options
	neg            *negotiate.Negotiator

	started bool
	nextSeq uint32
	buf     bytes.Buffer
	done    bool
	last    time.Time
}

func newStream(src, dst string, tcp *layers.TCP, opts Options) *stream {
	return &stream{
		client: fmt.Sprintf("%s:%d", src, tcp.SrcPort),
		server: fmt.Sprintf("%s:%d", dst, tcp.DstPort),
		opts:   opts,
		neg:    negotiate.New(opts.Identity, nil, opts.SigningRequired),
	}
}

// add appends an in-order segment and replays every complete frame.
// Retransmissions are dropped; a gap ends the stream.
func (s *stream) add(tcp *layers.TCP, ts time.Time) []Result {
	if s.done {
		return nil
	}
	s.last = ts

	if tcp.SYN {
		s.started = true
		s.nextSeq = tcp.Seq + 1
		return nil
	}
	if len(tcp.Payload) == 0 {
		return nil
	}
	if !s.started {
		// Capture began mid-connection.
		s.started = true
		s.nextSeq = tcp.Seq
	}

	switch diff := int32(tcp.Seq - s.nextSeq); {
	case diff < 0:
		return nil
	case diff > 0:
		s.done = true
		return []Result{s.failure(ts, "", fmt.Errorf("missing %d bytes of client data", diff))}
	}
	s.buf.Write(tcp.Payload)
	s.nextSeq += uint32(len(tcp.Payload))

	var out []Result
	for !s.done {
		frame, n, err := smb.SplitFrame(s.buf.Bytes(), maxReplayFrame)
		if errors.Is(err, smb.ErrIncompleteFrame) {
			break
		}
		if err != nil {
			s.done = true
			out = append(out, s.failure(ts, "", err))
			break
		}
		s.buf.Next(n)
		if frame == nil {
			continue
		}
		out = append(out, s.replay(frame, ts))
	}
	return out
}

func (s *stream) replay(frame []byte, ts time.Time) Result {
	family := familyOf(frame)
	d, err := s.neg.Negotiate(frame)
	if d == nil {
		s.done = true
		return s.failure(ts, family, err)
	}

	r := Result{
		Time:     ts,
		Client:   s.client,
		Server:   s.server,
		Family:   family,
		Offered:  d.ClientDialects,
		Selected: d.DialectText,
		Upgrade:  d.Upgrade,
		Status:   d.Status.String(),
		Outcome:  metrics.OutcomeSuccess,
	}
	switch {
	case errors.Is(err, negotiate.ErrNoMutualDialect):
		r.Outcome = metrics.OutcomeNoDialect
		r.Error = err.Error()
	case err != nil:
		r.Outcome = metrics.OutcomeFailure
		r.Error = err.Error()
	case d.Upgrade:
		r.Outcome = metrics.OutcomeUpgrade
	}
	// After an upgrade the client sends an SMB2 NEGOTIATE on the same
	// stream; anything else ends the replay.
	if !d.Upgrade {
		s.done = true
	}
	return r
}

func (s *stream) failure(ts time.Time, family string, err error) Result {
	outcome := metrics.OutcomeFailure
	if errors.Is(err, negotiate.ErrFraming) {
		outcome = metrics.OutcomeMalformed
	}
	return Result{
		Time:    ts,
		Client:  s.client,
		Server:  s.server,
		Family:  family,
		Outcome: outcome,
		Error:   err.Error(),
	}
}

// leftover reports a stream that ended inside its first frame.
func (s *stream) leftover() *Result {
	if s.done || s.buf.Len() == 0 {
		return nil
	}
	r := s.failure(s.last, "", smb.ErrIncompleteFrame)
	return &r
}

func familyOf(frame []byte) string {
	if len(frame) < 4 {
		return ""
	}
	switch frame[0] {
	case 0xFF:
		return "SMB1"
	case 0xFE:
		return "SMB2"
	}
	return ""
}
