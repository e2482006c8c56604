package proxy

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nolancs/RelayDNS/internal/metrics"
)

func mustListenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func buildQuery(t *testing.T, id uint16, name string) []byte {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	m.Id = id // SetQuestion assigns a random Id, so set ours after it
	raw, err := m.Pack()
	require.NoError(t, err)
	return raw
}

func buildAnswer(t *testing.T, id uint16, name, ip string) []byte {
	t.Helper()
	m := new(dns.Msg)
	m.Response = true
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	m.Id = id
	rr, err := dns.NewRR(dns.Fqdn(name) + " 300 IN A " + ip)
	require.NoError(t, err)
	m.Answer = append(m.Answer, rr)
	raw, err := m.Pack()
	require.NoError(t, err)
	return raw
}

type harness struct {
	t        *testing.T
	server   *Server
	upstream *net.UDPConn
	client   *net.UDPConn
	cancel   context.CancelFunc
	done     chan struct{}
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	upstream := mustListenUDP(t)

	cfg := Config{
		ClientAddr:     &net.UDPAddr{IP: net.ParseIP("127.0.0.1")},
		UpstreamAddr:   upstream.LocalAddr().(*net.UDPAddr),
		RequestTimeout: 200 * time.Millisecond,
		ScanInterval:   30 * time.Millisecond,
		Metrics:        metrics.New(prometheus.NewRegistry()),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	server, err := New(cfg)
	require.NoError(t, err)

	client, err := net.DialUDP("udp", nil, server.ClientAddr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = server.Run(ctx)
		close(done)
	}()

	h := &harness{t: t, server: server, upstream: upstream, client: client, cancel: cancel, done: done}
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		h.t.Error("server did not shut down in time")
	}
}

func (h *harness) readClientReply(timeout time.Duration) []byte {
	h.t.Helper()
	buf := make([]byte, 1024)
	require.NoError(h.t, h.client.SetReadDeadline(time.Now().Add(timeout)))
	n, err := h.client.Read(buf)
	require.NoError(h.t, err)
	return buf[:n]
}

func (h *harness) readUpstreamQuery(timeout time.Duration) ([]byte, *net.UDPAddr) {
	h.t.Helper()
	buf := make([]byte, 1024)
	require.NoError(h.t, h.upstream.SetReadDeadline(time.Now().Add(timeout)))
	n, src, err := h.upstream.ReadFromUDP(buf)
	require.NoError(h.t, err)
	return buf[:n], src
}

func TestHappyPath(t *testing.T) {
	h := newHarness(t, nil)

	query := buildQuery(t, 0x1234, "google.com.")
	_, err := h.client.Write(query)
	require.NoError(t, err)

	forwarded, src := h.readUpstreamQuery(time.Second)
	m := new(dns.Msg)
	require.NoError(t, m.Unpack(forwarded))
	require.NotEqual(t, uint16(0x1234), m.Id)
	require.Equal(t, "google.com.", m.Question[0].Name)

	answer := buildAnswer(t, m.Id, "google.com.", "93.184.216.34")
	_, err = h.upstream.WriteToUDP(answer, src)
	require.NoError(t, err)

	reply := h.readClientReply(time.Second)
	out := new(dns.Msg)
	require.NoError(t, out.Unpack(reply))
	require.Equal(t, uint16(0x1234), out.Id)
	require.True(t, out.Response)
	require.Len(t, out.Answer, 1)
}

func TestForeignReply(t *testing.T) {
	h := newHarness(t, nil)

	query := buildQuery(t, 0x1234, "example.com.")
	_, err := h.client.Write(query)
	require.NoError(t, err)

	forwarded, _ := h.readUpstreamQuery(time.Second)
	m := new(dns.Msg)
	require.NoError(t, m.Unpack(forwarded))

	impostor := mustListenUDP(t)
	answer := buildAnswer(t, m.Id, "example.com.", "1.2.3.4")
	// The upstream socket is bound to the unspecified address; reach it over
	// loopback on its port.
	upstreamSock := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: h.server.upstreamConn.LocalAddr().(*net.UDPAddr).Port}
	_, err = impostor.WriteToUDP(answer, upstreamSock)
	require.NoError(t, err)

	require.NoError(t, h.client.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	buf := make([]byte, 1024)
	_, err = h.client.Read(buf)
	require.Error(t, err, "client must not receive a reply from an unconfigured source")
}

func TestPassiveTimeout(t *testing.T) {
	h := newHarness(t, nil)

	query := buildQuery(t, 0x1234, "slow.example.")
	_, err := h.client.Write(query)
	require.NoError(t, err)

	forwarded, src := h.readUpstreamQuery(time.Second)
	m := new(dns.Msg)
	require.NoError(t, m.Unpack(forwarded))

	// Let the Sweeper reclaim the slot before the reply finally shows up.
	time.Sleep(300 * time.Millisecond)

	answer := buildAnswer(t, m.Id, "slow.example.", "9.9.9.9")
	_, err = h.upstream.WriteToUDP(answer, src)
	require.NoError(t, err)

	require.NoError(t, h.client.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	buf := make([]byte, 1024)
	_, err = h.client.Read(buf)
	require.Error(t, err, "a late reply after the sweeper already reclaimed the slot must be dropped silently")
}

func TestIDCollision(t *testing.T) {
	h := newHarness(t, nil)

	clientB, err := net.DialUDP("udp", nil, h.server.ClientAddr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientB.Close() })

	_, err = h.client.Write(buildQuery(t, 0x4242, "a.example."))
	require.NoError(t, err)
	_, err = clientB.Write(buildQuery(t, 0x4242, "b.example."))
	require.NoError(t, err)

	forwardedA, srcA := h.readUpstreamQuery(time.Second)
	forwardedB, srcB := h.readUpstreamQuery(time.Second)

	msgA, msgB := new(dns.Msg), new(dns.Msg)
	require.NoError(t, msgA.Unpack(forwardedA))
	require.NoError(t, msgB.Unpack(forwardedB))
	require.NotEqual(t, msgA.Id, msgB.Id, "distinct clients colliding on the client ID must get distinct proxy IDs")

	_, err = h.upstream.WriteToUDP(buildAnswer(t, msgA.Id, msgA.Question[0].Name, "1.1.1.1"), srcA)
	require.NoError(t, err)
	_, err = h.upstream.WriteToUDP(buildAnswer(t, msgB.Id, msgB.Question[0].Name, "2.2.2.2"), srcB)
	require.NoError(t, err)

	replyA := h.readClientReply(time.Second)
	outA := new(dns.Msg)
	require.NoError(t, outA.Unpack(replyA))
	require.Equal(t, uint16(0x4242), outA.Id)

	require.NoError(t, clientB.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 1024)
	n, err := clientB.Read(buf)
	require.NoError(t, err)
	outB := new(dns.Msg)
	require.NoError(t, outB.Unpack(buf[:n]))
	require.Equal(t, uint16(0x4242), outB.Id)
}

func TestResponseOnIngressIsDropped(t *testing.T) {
	h := newHarness(t, nil)

	response := buildAnswer(t, 0x1234, "example.com.", "1.1.1.1")
	_, err := h.client.Write(response)
	require.NoError(t, err)

	require.NoError(t, h.upstream.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = h.upstream.ReadFromUDP(make([]byte, 1024))
	require.Error(t, err, "a QR=1 datagram on the client socket must never be forwarded")
}

func TestOversizedDatagramDropped(t *testing.T) {
	h := newHarness(t, nil)

	oversized := make([]byte, 1024)
	_, err := h.client.Write(oversized)
	require.NoError(t, err)

	require.NoError(t, h.upstream.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = h.upstream.ReadFromUDP(make([]byte, 1024))
	require.Error(t, err, "an oversized datagram must never be forwarded")
}
