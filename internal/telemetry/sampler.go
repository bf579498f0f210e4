// Package telemetry samples host metrics (CPU, memory, disk, network
// identity and thermal zones) into upload-ready rows.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

const defaultSysfsRoot = "/sys/devices/virtual/thermal"

// Seams for tests.
var (
	cpuPercent    = cpu.PercentWithContext
	virtualMemory = mem.VirtualMemoryWithContext
	diskUsage     = disk.UsageWithContext
	netInterfaces = net.InterfacesWithContext
	osHostname    = os.Hostname
)

// Sample is one telemetry row. Optional fields stay nil when the source is
// unavailable and are omitted from the serialized row.
type Sample struct {
	RowID         string             `json:"row_id"`
	Host          string             `json:"host"`
	IPAddress     *string            `json:"ip_address,omitempty"`
	MACAddress    *string            `json:"mac_address,omitempty"`
	TSUTC         string             `json:"ts_utc"`
	TSEpochMS     int64              `json:"ts_epoch_ms"`
	CPUTempC      *float64           `json:"cpu_temp_c,omitempty"`
	CPUUsagePct   float64            `json:"cpu_usage_pct"`
	MemUsagePct   float64            `json:"mem_usage_pct"`
	DiskUsagePct  float64            `json:"disk_usage_pct"`
	ThermalZones  map[string]float64 `json:"thermal_zones"`
	EdgeAISummary *string            `json:"edge_ai_summary,omitempty"`
	ImagePath     *string            `json:"image_path,omitempty"`
	ImageCaptured bool               `json:"image_captured"`
	ImageAnalysis *string            `json:"image_ai_summary,omitempty"`
}

// Sampler collects samples from the local host. The zero value samples the
// real system; SysfsRoot and Now exist so tests can redirect them.
type Sampler struct {
	// SysfsRoot is where thermal_zone* directories live
	// (default /sys/devices/virtual/thermal).
	SysfsRoot string

	// DiskPath is the mount whose usage is reported (default "/").
	DiskPath string

	Now func() time.Time
}

// Sample collects one telemetry row. CPU, memory and disk usage failures
// abort the sample; missing thermal or network data does not.
func (s *Sampler) Sample(ctx context.Context) (Sample, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	diskPath := s.DiskPath
	if diskPath == "" {
		diskPath = "/"
	}

	cpuPct, err := cpuPercent(ctx, 0, false)
	if err != nil {
		return Sample{}, fmt.Errorf("cpu usage: %w", err)
	}
	if len(cpuPct) == 0 {
		return Sample{}, errors.New("cpu usage: no data")
	}
	vm, err := virtualMemory(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("memory usage: %w", err)
	}
	du, err := diskUsage(ctx, diskPath)
	if err != nil {
		return Sample{}, fmt.Errorf("disk usage: %w", err)
	}

	host, err := osHostname()
	if err != nil {
		host = "localhost"
	}

	ts := now().UTC()
	zones := s.readThermalZones()
	ip, mac := primaryNetworkInfo(ctx)

	return Sample{
		RowID:        uuid.NewString(),
		Host:         host,
		IPAddress:    ip,
		MACAddress:   mac,
		TSUTC:        ts.Format("2006-01-02T15:04:05Z"),
		TSEpochMS:    ts.UnixMilli(),
		CPUTempC:     cpuTempFromZones(zones),
		CPUUsagePct:  cpuPct[0],
		MemUsagePct:  vm.UsedPercent,
		DiskUsagePct: du.UsedPercent,
		ThermalZones: zones,
	}, nil
}

// readThermalZones walks thermal_zone* directories, pairing each zone's
// type with its temperature in degrees Celsius (sysfs reports millidegrees).
// Unreadable zones are skipped.
func (s *Sampler) readThermalZones() map[string]float64 {
	root := s.SysfsRoot
	if root == "" {
		root = defaultSysfsRoot
	}

	zones := map[string]float64{}
	dirs, err := filepath.Glob(filepath.Join(root, "thermal_zone*"))
	if err != nil {
		return zones
	}

	for _, dir := range dirs {
		zoneType, err := readTrimmed(filepath.Join(dir, "type"))
		if err != nil || zoneType == "" {
			continue
		}
		raw, err := readTrimmed(filepath.Join(dir, "temp"))
		if err != nil || raw == "" {
			continue
		}
		milli, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		zones[zoneType] = milli / 1000.0
	}
	return zones
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// cpuTempFromZones picks the CPU zone when one is labeled as such,
// preferring the Jetson and Raspberry Pi names, otherwise the hottest zone.
func cpuTempFromZones(zones map[string]float64) *float64 {
	if len(zones) == 0 {
		return nil
	}
	for _, key := range []string{"CPU-therm", "cpu-thermal", "CPU"} {
		if temp, ok := zones[key]; ok {
			return &temp
		}
	}
	var maxTemp float64
	first := true
	for _, temp := range zones {
		if first || temp > maxTemp {
			maxTemp = temp
			first = false
		}
	}
	return &maxTemp
}

// primaryNetworkInfo returns the IPv4 address and MAC of the first up,
// non-loopback interface carrying a usable address. When no interface
// qualifies, the MAC falls back to the uuid node id and the IP stays nil.
func primaryNetworkInfo(ctx context.Context) (*string, *string) {
	ifaces, err := netInterfaces(ctx)
	if err != nil {
		return nil, fallbackMAC()
	}

	for _, iface := range ifaces {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") || strings.HasPrefix(iface.Name, "lo") {
			continue
		}

		var ip, mac *string
		for _, addr := range iface.Addrs {
			v4 := ipv4From(addr.Addr)
			if v4 == "" || strings.HasPrefix(v4, "127.") || strings.HasPrefix(v4, "169.254.") {
				continue
			}
			ip = &v4
			break
		}
		if iface.HardwareAddr != "" && iface.HardwareAddr != "00:00:00:00:00:00" {
			hw := iface.HardwareAddr
			mac = &hw
		}
		if ip != nil || mac != nil {
			if mac == nil {
				mac = fallbackMAC()
			}
			return ip, mac
		}
	}
	return nil, fallbackMAC()
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

// ipv4From extracts the IPv4 address from a CIDR or plain address string.
func ipv4From(addr string) string {
	host := addr
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		host = addr[:i]
	}
	if strings.Count(host, ".") != 3 {
		return ""
	}
	return host
}

func fallbackMAC() *string {
	node := uuid.NodeID()
	if len(node) != 6 {
		return nil
	}
	mac := fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		node[0], node[1], node[2], node[3], node[4], node[5])
	return &mac
}
