package timezone

import (
	"os"
	"sync"
	"time"
	_ "time/tzdata" // Zeitzonen auch ohne System-tzdata

	log "github.com/sirupsen/logrus"
)

var (
	mu              sync.RWMutex
	currentLocation *time.Location
)

// Initialize setzt die Zeitzone. Ein leerer Name nutzt die TZ-Umgebungsvariable, sonst UTC.
func Initialize(name string) {
	tzName := name
	if tzName == "" {
		tzName = os.Getenv("TZ")
	}
	if tzName == "" {
		tzName = "UTC"
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Warnf("Failed to load timezone %s: %v. Falling back to UTC.", tzName, err)
		loc = time.UTC
	} else {
		log.Infof("Successfully initialized timezone to %s", tzName)
	}

	mu.Lock()
	currentLocation = loc
	mu.Unlock()
}

// Location gibt die konfigurierte Zeitzone zurück
func Location() *time.Location {
	mu.RLock()
	loc := currentLocation
	mu.RUnlock()
	if loc == nil {
		Initialize("")
		return Location()
	}
	return loc
}

// Now gibt die aktuelle Zeit in der konfigurierten Zeitzone zurück
func Now() time.Time {
	return time.Now().In(Location())
}

// StartOfDay gibt Mitternacht des Tages von t in der konfigurierten Zeitzone zurück
func StartOfDay(t time.Time) time.Time {
	local := t.In(Location())
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, Location())
}

// Format formatiert ein time.Time-Objekt mit der konfigurierten Zeitzone
func Format(t time.Time, layout string) string {
	return t.In(Location()).Format(layout)
}

// ISO8601 formatiert ein time.Time-Objekt im ISO 8601-Format mit der konfigurierten Zeitzone
func ISO8601(t time.Time) string {
	return Format(t, time.RFC3339)
}
