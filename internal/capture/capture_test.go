package capture

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/adapter/smb/dialect"
	"github.com/marmos91/dittosmb/internal/adapter/smb/negotiate"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/pkg/metrics"
)

var (
	clientIP = net.IPv4(10, 0, 0, 2)
	serverIP = net.IPv4(10, 0, 0, 1)
	epoch    = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

type segment struct {
	srcPort, dstPort uint16
	seq              uint32
	syn              bool
	payload          []byte
}

func netbios(msg []byte) []byte {
	out := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(out, uint32(len(msg)))
	copy(out[4:], msg)
	return out
}

func encodePacket(t *testing.T, s segment) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 6},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    clientIP,
		DstIP:    serverIP,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(s.srcPort),
		DstPort: layers.TCPPort(s.dstPort),
		Seq:     s.seq,
		SYN:     s.syn,
		ACK:     !s.syn,
		Window:  65535,
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(s.payload)))
	return buf.Bytes()
}

func writePcap(t *testing.T, segs []segment) *bytes.Buffer {
	t.Helper()
	var out bytes.Buffer
	w := pcapgo.NewWriter(&out)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for i, s := range segs {
		data := encodePacket(t, s)
		ci := gopacket.CaptureInfo{
			Timestamp:     epoch.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return &out
}

func writePcapng(t *testing.T, segs []segment) *bytes.Buffer {
	t.Helper()
	var out bytes.Buffer
	w, err := pcapgo.NewNgWriter(&out, layers.LinkTypeEthernet)
	require.NoError(t, err)
	for i, s := range segs {
		data := encodePacket(t, s)
		ci := gopacket.CaptureInfo{
			Timestamp:      epoch.Add(time.Duration(i) * time.Millisecond),
			CaptureLength:  len(data),
			Length:         len(data),
			InterfaceIndex: 0,
		}
		require.NoError(t, w.WritePacket(ci, data))
	}
	require.NoError(t, w.Flush())
	return &out
}

func testOptions() Options {
	return Options{
		Identity: negotiate.ServerIdentity{
			GUID:            uuid.MustParse("0b8f4a52-3c0e-4c1e-9d45-6f2a7b1e8c90"),
			MaxTransactSize: 1 << 20,
			MaxReadSize:     1 << 20,
			MaxWriteSize:    1 << 20,
			Clock:           func() time.Time { return epoch },
		},
	}
}

func smb2Negotiate(dialects ...dialect.Version) []byte {
	return netbios(negotiate.BuildSMB2Request(dialects, uuid.New(), types.NegotiateSigningEnabled, nil))
}

func TestReplaySegmentedSMB2Negotiate(t *testing.T) {
	frame := smb2Negotiate(dialect.SMB202, dialect.SMB210, dialect.SMB300)
	half := len(frame) / 2

	segs := []segment{
		{srcPort: 50000, dstPort: 445, seq: 1000, syn: true},
		{srcPort: 50000, dstPort: 445, seq: 1001, payload: frame[:half]},
		// retransmission of the first half
		{srcPort: 50000, dstPort: 445, seq: 1001, payload: frame[:half]},
		{srcPort: 50000, dstPort: 445, seq: 1001 + uint32(half), payload: frame[half:]},
	}

	results, err := Replay(writePcap(t, segs), testOptions())
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "SMB2", r.Family)
	assert.Equal(t, []string{"0x202", "0x210", "0x300"}, r.Offered)
	assert.Equal(t, "0x300", r.Selected)
	assert.Equal(t, metrics.OutcomeSuccess, r.Outcome)
	assert.Equal(t, "10.0.0.2:50000", r.Client)
	assert.Equal(t, "10.0.0.1:445", r.Server)
	assert.Empty(t, r.Error)
}

func TestReplayWildcardUpgrade(t *testing.T) {
	probe := netbios(negotiate.BuildSMB1Request([]string{"NT LM 0.12", "SMB 2.002", "SMB 2.???"}))
	follow := smb2Negotiate(dialect.SMB210, dialect.SMB311)

	segs := []segment{
		{srcPort: 50001, dstPort: 445, seq: 0, syn: true},
		{srcPort: 50001, dstPort: 445, seq: 1, payload: probe},
		{srcPort: 50001, dstPort: 445, seq: 1 + uint32(len(probe)), payload: follow},
	}

	results, err := Replay(writePcapng(t, segs), testOptions())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "SMB1", results[0].Family)
	assert.True(t, results[0].Upgrade)
	assert.Equal(t, metrics.OutcomeUpgrade, results[0].Outcome)
	assert.Equal(t, dialect.Wildcard.String(), results[0].Selected)

	assert.Equal(t, "SMB2", results[1].Family)
	assert.False(t, results[1].Upgrade)
	assert.Equal(t, "0x311", results[1].Selected)
	assert.Equal(t, metrics.OutcomeSuccess, results[1].Outcome)
}

func TestReplayIgnoresOtherPorts(t *testing.T) {
	segs := []segment{
		{srcPort: 40000, dstPort: 80, seq: 1, payload: []byte("GET / HTTP/1.1\r\n\r\n")},
		{srcPort: 50002, dstPort: 445, seq: 1, payload: smb2Negotiate(dialect.SMB210)},
	}

	results, err := Replay(writePcap(t, segs), testOptions())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "0x210", results[0].Selected)
}

func TestReplayCustomPort(t *testing.T) {
	segs := []segment{
		{srcPort: 50003, dstPort: 12445, seq: 1, payload: smb2Negotiate(dialect.SMB202)},
	}

	opts := testOptions()
	results, err := Replay(writePcap(t, segs), opts)
	require.NoError(t, err)
	assert.Empty(t, results)

	opts.Port = 12445
	results, err = Replay(writePcap(t, segs), opts)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestReplayNoMutualDialect(t *testing.T) {
	segs := []segment{
		{srcPort: 50004, dstPort: 445, seq: 1, payload: smb2Negotiate(dialect.Version(0x0100))},
	}

	results, err := Replay(writePcap(t, segs), testOptions())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, metrics.OutcomeNoDialect, results[0].Outcome)
	assert.Equal(t, types.StatusNotSupported.String(), results[0].Status)
	assert.NotEmpty(t, results[0].Error)
}

func TestReplayGapAndTruncation(t *testing.T) {
	frame := smb2Negotiate(dialect.SMB210)

	t.Run("gap", func(t *testing.T) {
		segs := []segment{
			{srcPort: 50005, dstPort: 445, seq: 1, payload: frame[:10]},
			{srcPort: 50005, dstPort: 445, seq: 50, payload: frame[10:]},
		}
		results, err := Replay(writePcap(t, segs), testOptions())
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, metrics.OutcomeFailure, results[0].Outcome)
		assert.Contains(t, results[0].Error, "missing")
	})

	t.Run("truncated", func(t *testing.T) {
		segs := []segment{
			{srcPort: 50006, dstPort: 445, seq: 1, payload: frame[:10]},
		}
		results, err := Replay(writePcap(t, segs), testOptions())
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, metrics.OutcomeFailure, results[0].Outcome)
	})
}

func TestReplayGarbage(t *testing.T) {
	segs := []segment{
		{srcPort: 50007, dstPort: 445, seq: 1, payload: netbios([]byte("not an smb message at all"))},
	}
	results, err := Replay(writePcap(t, segs), testOptions())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, metrics.OutcomeMalformed, results[0].Outcome)
}

func TestReplayRejectsNonCapture(t *testing.T) {
	_, err := Replay(bytes.NewReader([]byte("definitely not a pcap file")), testOptions())
	assert.ErrorIs(t, err, ErrNotCapture)

	_, err = ReplayFile("/nonexistent/capture.pcap", testOptions())
	assert.Error(t, err)
}
