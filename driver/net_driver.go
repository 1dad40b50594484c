package driver

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/blockwatch/prober/contracts"
)

// NetDriver is the real-network driver: it delegates actual probing to an
// external process over a Unix-domain socket, using the two-frame IPC
// protocol from spec.md §6 (a 4-byte big-endian length prefix followed by
// a fixed-size request/response struct). It never simulates anything
// itself; original_source/drivers/ pairs one driver C-file per probe
// technique (ICMP echo, unreachable-port UDP, etc.) talking to the
// kernel directly, which a Go process cannot do from userspace without
// CAP_NET_RAW — this stub instead assumes an external probing helper
// bound to that socket.
type NetDriver struct {
	sockPath string
	conn     net.Conn
}

// NewNetDriver constructs an uninitialized NetDriver.
func NewNetDriver() *NetDriver { return &NetDriver{} }

func (d *NetDriver) Init(config string) error {
	if config == "" {
		return fmt.Errorf("net driver: config must be a unix socket path")
	}
	d.sockPath = config
	return nil
}

func (d *NetDriver) InitThread(ctx context.Context, h *Handle) error {
	conn, err := net.Dial("unix", d.sockPath)
	if err != nil {
		return fmt.Errorf("net driver: dial %s: %w", d.sockPath, err)
	}
	d.conn = conn
	go d.run(ctx, h)
	return nil
}

func (d *NetDriver) HandleReq(h *Handle, req contracts.ProbeReq) {
	frame := make([]byte, 4+4+8)
	binary.BigEndian.PutUint32(frame[0:4], 12)
	binary.BigEndian.PutUint32(frame[4:8], req.TargetIP)
	binary.BigEndian.PutUint64(frame[8:16], uint64(req.Wait))
	if _, err := d.conn.Write(frame); err != nil {
		h.yieldResp(contracts.ProbeResp{TargetIP: req.TargetIP, Verdict: contracts.Unresponsive})
	}
}

func (d *NetDriver) Destroy() {
	if d.conn != nil {
		d.conn.Close()
	}
}

// run reads length-prefixed response frames from the helper process and
// forwards each as a contracts.ProbeResp until the connection closes or
// the driver is terminated.
func (d *NetDriver) run(ctx context.Context, h *Handle) {
	defer h.signalDone()

	r := bufio.NewReader(d.conn)
	respCh := make(chan contracts.ProbeResp)
	errCh := make(chan error, 1)

	go func() {
		for {
			var length uint32
			if err := binary.Read(r, binary.BigEndian, &length); err != nil {
				errCh <- err
				return
			}
			buf := make([]byte, length)
			if _, err := fullRead(r, buf); err != nil {
				errCh <- err
				return
			}
			if len(buf) < 16 {
				errCh <- fmt.Errorf("net driver: short response frame")
				return
			}
			targetIP := binary.BigEndian.Uint32(buf[0:4])
			verdict := contracts.Verdict(binary.BigEndian.Uint32(buf[4:8]))
			rtt := time.Duration(binary.BigEndian.Uint64(buf[8:16]))
			respCh <- contracts.ProbeResp{TargetIP: targetIP, Verdict: verdict, RTT: rtt}
		}
	}()

	for {
		select {
		case <-h.terminated():
			return
		case <-ctx.Done():
			return
		case req := <-h.requests():
			d.HandleReq(h, req)
		case resp := <-respCh:
			h.yieldResp(resp)
		case err := <-errCh:
			if err != nil {
				h.markDead()
			}
			return
		}
	}
}

func fullRead(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
