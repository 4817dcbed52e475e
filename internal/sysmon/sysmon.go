// Package sysmon samples process and host resource usage for the
// operator health endpoint.
package sysmon

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Monitor tracks CPU usage (sampled from /proc/stat deltas) and
// process memory (from runtime.MemStats), refreshed on a timer.
type Monitor struct {
	mu          sync.RWMutex
	cpuUsage    float64
	lastStat    cpuStat
	lastSampled time.Time

	stop chan struct{}
}

type cpuStat struct {
	user, nice, system, idle, iowait, irq, softirq uint64
}

// Start begins sampling every interval in the background until Stop
// is called.
func Start(interval time.Duration) *Monitor {
	m := &Monitor{stop: make(chan struct{})}
	go m.loop(interval)
	return m
}

func (m *Monitor) loop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sample()
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) sample() {
	stat, err := readCPUStat()
	if err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastStat.user != 0 {
		total := float64((stat.user + stat.nice + stat.system + stat.idle + stat.iowait + stat.irq + stat.softirq) -
			(m.lastStat.user + m.lastStat.nice + m.lastStat.system + m.lastStat.idle + m.lastStat.iowait + m.lastStat.irq + m.lastStat.softirq))
		idleDelta := float64(stat.idle - m.lastStat.idle)
		if total > 0 {
			m.cpuUsage = (1.0 - idleDelta/total) * 100.0
		}
	}
	m.lastStat = stat
	m.lastSampled = time.Now()
}

// CPUPercent returns the most recently sampled host CPU usage.
func (m *Monitor) CPUPercent() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cpuUsage
}

// MemoryMB returns the process's current heap allocation in megabytes.
func (m *Monitor) MemoryMB() float64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return float64(stats.Alloc) / 1024.0 / 1024.0
}

// Stop ends the background sampling loop.
func (m *Monitor) Stop() {
	close(m.stop)
}

func readCPUStat() (cpuStat, error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return cpuStat{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return cpuStat{}, scanner.Err()
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 8 || fields[0] != "cpu" {
		return cpuStat{}, nil
	}

	vals := make([]uint64, 7)
	for i := 0; i < 7; i++ {
		vals[i], _ = strconv.ParseUint(fields[i+1], 10, 64)
	}
	return cpuStat{
		user: vals[0], nice: vals[1], system: vals[2], idle: vals[3],
		iowait: vals[4], irq: vals[5], softirq: vals[6],
	}, nil
}
