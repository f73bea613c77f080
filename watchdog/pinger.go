package watchdog

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// DefaultPingTimeout bounds one self-ping.
const DefaultPingTimeout = 5 * time.Second

// Pinger checks that the control server answers by calling its /api/ping over the network.
// The supervisor notification is sent by the ping handler, not by the Pinger.
type Pinger struct {
	logger  *zap.SugaredLogger
	client  *Client
	metrics *metrics
}

func newPinger(logger *zap.SugaredLogger, addr string, timeout time.Duration, m *metrics) (*Pinger, error) {
	client, err := NewClient(logger, addr,
		WithClientTimeout(timeout),
		WithClientRetryMax(0),
	)
	if err != nil {
		return nil, fmt.Errorf("building ping client: %w", err)
	}
	return &Pinger{
		logger:  logger,
		client:  client,
		metrics: m,
	}, nil
}

// Ping issues one self-ping. Failures are reported but never retried.
func (p *Pinger) Ping(ctx context.Context) error {
	err := p.client.Ping(ctx)
	p.metrics.recordPing(err)
	return err
}

// loopbackAddr returns the address a local client should dial to reach a listener bound to addr.
func loopbackAddr(addr net.Addr) string {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return addr.String()
	}
	host := "localhost"
	if tcpAddr.IP != nil && !tcpAddr.IP.IsUnspecified() {
		host = tcpAddr.IP.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(tcpAddr.Port))
}
