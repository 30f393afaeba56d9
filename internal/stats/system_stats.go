package stats

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"facegate/internal/core/recognition"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"
)

var (
	lastCPUTime        time.Time
	lastCPUUsage       float64
	cpuUsageMutex      sync.Mutex
	cpuUsageSampleRate = 500 * time.Millisecond
)

// SystemStats enthält aktuelle System- und Anwendungsstatistiken
type SystemStats struct {
	// CPU-Statistiken
	NumCPU     int     `json:"num_cpu"`
	GoRoutines int     `json:"go_routines"`
	CPUUsage   float64 `json:"cpu_usage"`

	// Speicher
	MemoryAlloc       uint64  `json:"memory_alloc"`
	MemorySys         uint64  `json:"memory_sys"`
	HostMemoryPercent float64 `json:"host_memory_percent"`
	MemoryAllocHuman  string  `json:"memory_alloc_human"`

	// Erkennungsschleife
	Loop recognition.Status `json:"loop"`

	Timestamp time.Time `json:"timestamp"`
}

// FormatBytes formatiert Bytes in lesbare Einheiten (KB, MB, GB)
func FormatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d Bytes", bytes)
	}
}

// GetCPUUsage berechnet die CPU-Auslastung mit gopsutil
func GetCPUUsage() float64 {
	cpuUsageMutex.Lock()
	defer cpuUsageMutex.Unlock()

	// Innerhalb der Sample-Rate den gecachten Wert zurückgeben
	if time.Since(lastCPUTime) < cpuUsageSampleRate && lastCPUTime.Unix() > 0 {
		return lastCPUUsage
	}

	percentages, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil {
		log.Warnf("Fehler bei CPU-Auslastungsmessung: %v", err)
		return 0.0
	}

	var usage float64
	if len(percentages) > 0 {
		usage = percentages[0] // Gesamtauslastung aller Kerne
	}

	lastCPUTime = time.Now()
	lastCPUUsage = usage
	return usage
}

// StatusSource liefert den Zustand der Erkennungsschleife
type StatusSource interface {
	Status() recognition.Status
}

// GetSystemStats erfasst aktuelle System- und Anwendungsstatistiken
func GetSystemStats(loop StatusSource) *SystemStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := &SystemStats{
		NumCPU:           runtime.NumCPU(),
		GoRoutines:       runtime.NumGoroutine(),
		CPUUsage:         GetCPUUsage(),
		MemoryAlloc:      memStats.Alloc,
		MemorySys:        memStats.Sys,
		MemoryAllocHuman: FormatBytes(memStats.Alloc),
		Timestamp:        time.Now(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats.HostMemoryPercent = vm.UsedPercent
	} else {
		log.Debugf("Fehler beim Lesen des Hauptspeichers: %v", err)
	}

	if loop != nil {
		stats.Loop = loop.Status()
	}
	return stats
}
