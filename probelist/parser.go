package probelist

import (
	"compress/bzip2"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"strings"

	"github.com/blockwatch/prober/contracts"
	"github.com/klauspost/compress/zstd"
)

// LoadReport summarizes a single probelist load, used for the one-line log
// the reload path emits (SPEC_FULL.md §4.6 expansion).
type LoadReport struct {
	Version  string
	Accepted int
	Rejected int
}

type rawHost struct {
	HostIP string  `json:"host_ip"`
	EB     float64 `json:"e_b"`
}

type rawSlash24 struct {
	Version     string    `json:"version"`
	HostCnt     *int      `json:"host_cnt"`
	AvgRespRate *float64  `json:"avg_resp_rate"`
	Meta        []string  `json:"meta"`
	Hosts       []rawHost `json:"hosts"`
}

// Load opens the probelist file at path (optionally gzip/bzip2/zstd
// compressed, detected by suffix), streams its top-level key/value pairs,
// and returns a shuffled Probelist plus a load report. Rejected /24 entries
// (missing required fields) are skipped and counted, not fatal, except that
// a structurally invalid document is a fatal error per spec.md §7.
func Load(path string) (*Probelist, LoadReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadReport{}, fmt.Errorf("probelist: open %s: %w", path, err)
	}
	defer f.Close()

	r, err := decompress(path, f)
	if err != nil {
		return nil, LoadReport{}, fmt.Errorf("probelist: decompress %s: %w", path, err)
	}

	return parseStream(r)
}

func decompress(path string, f io.Reader) (io.Reader, error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		return gzip.NewReader(f)
	case strings.HasSuffix(path, ".bz2"):
		return bzip2.NewReader(f), nil
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	default:
		return f, nil
	}
}

// parseStream extracts each top-level key independently via a token-based
// decode loop, so memory use is bounded by one /24 entry at a time rather
// than the whole document (spec.md §4.6's streaming requirement).
func parseStream(r io.Reader) (*Probelist, LoadReport, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, LoadReport{}, fmt.Errorf("probelist: read opening token: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, LoadReport{}, fmt.Errorf("probelist: expected top-level JSON object")
	}

	blocks := make(map[uint32]*contracts.Slash24)
	order := make([]uint32, 0)
	report := LoadReport{}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, LoadReport{}, fmt.Errorf("probelist: read key: %w", err)
		}
		cidr, ok := keyTok.(string)
		if !ok {
			return nil, LoadReport{}, fmt.Errorf("probelist: non-string key")
		}

		var raw rawSlash24
		if err := dec.Decode(&raw); err != nil {
			return nil, LoadReport{}, fmt.Errorf("probelist: decode value for %s: %w", cidr, err)
		}

		block, err := buildSlash24(cidr, raw)
		if err != nil {
			report.Rejected++
			continue
		}
		if report.Version == "" {
			report.Version = raw.Version
		}
		blocks[block.Network] = block
		order = append(order, block.Network)
		report.Accepted++
	}

	// consume closing brace
	if _, err := dec.Token(); err != nil {
		return nil, LoadReport{}, fmt.Errorf("probelist: read closing token: %w", err)
	}

	shuffleBlocks(blocks)
	shuffleKeys(order)

	return New(report.Version, order, blocks), report, nil
}

func buildSlash24(cidr string, raw rawSlash24) (*contracts.Slash24, error) {
	network, err := parseNetworkKey(cidr)
	if err != nil {
		return nil, err
	}
	if raw.Version == "" {
		return nil, fmt.Errorf("probelist: %s missing version", cidr)
	}
	if raw.HostCnt == nil {
		return nil, fmt.Errorf("probelist: %s missing host_cnt", cidr)
	}
	if raw.Meta == nil {
		return nil, fmt.Errorf("probelist: %s missing meta", cidr)
	}
	if raw.AvgRespRate == nil {
		return nil, fmt.Errorf("probelist: %s missing avg_resp_rate", cidr)
	}
	if *raw.AvgRespRate <= 0 || *raw.AvgRespRate > 1 {
		return nil, fmt.Errorf("probelist: %s avg_resp_rate out of (0,1]", cidr)
	}
	if len(raw.Hosts) == 0 {
		return nil, fmt.Errorf("probelist: %s has no hosts", cidr)
	}

	hosts := make([]contracts.Host, 0, len(raw.Hosts))
	for _, h := range raw.Hosts {
		octet, err := hostOctet(h.HostIP)
		if err != nil {
			continue
		}
		hosts = append(hosts, contracts.Host{Octet: octet, ExpectedResponse: h.EB})
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("probelist: %s has no usable hosts", cidr)
	}

	return &contracts.Slash24{
		Network: network,
		Hosts:   hosts,
		AEB:     *raw.AvgRespRate,
		Tags:    append([]string(nil), raw.Meta...),
	}, nil
}

// parseNetworkKey parses "a.b.c.d/24" into its masked network key.
func parseNetworkKey(cidr string) (uint32, error) {
	if !strings.HasSuffix(cidr, "/24") {
		return 0, fmt.Errorf("probelist: key %q is not a /24", cidr)
	}
	ipStr := strings.TrimSuffix(cidr, "/24")
	ip := net.ParseIP(ipStr).To4()
	if ip == nil {
		return 0, fmt.Errorf("probelist: key %q is not a valid IPv4 address", cidr)
	}
	v := ipToUint32(ip)
	return Mask24(v), nil
}

func hostOctet(ipStr string) (byte, error) {
	ip := net.ParseIP(ipStr).To4()
	if ip == nil {
		return 0, fmt.Errorf("probelist: host_ip %q invalid", ipStr)
	}
	return ip[3], nil
}

func ipToUint32(ip net.IP) uint32 {
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}

// Uint32ToIP renders a network-byte-order uint32 back into a dotted quad.
func Uint32ToIP(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// shuffleKeys performs an in-place Fisher-Yates shuffle of the /24 order.
func shuffleKeys(order []uint32) {
	rand.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
}

// shuffleBlocks shuffles each block's host list in place.
func shuffleBlocks(blocks map[uint32]*contracts.Slash24) {
	for _, b := range blocks {
		rand.Shuffle(len(b.Hosts), func(i, j int) {
			b.Hosts[i], b.Hosts[j] = b.Hosts[j], b.Hosts[i]
		})
	}
}
