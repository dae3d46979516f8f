package ingest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jack-merrell/offley.fm/internal/catalog"
)

// GeocodeArea resolves a place name to coordinates via OpenStreetMap so
// admins can type "Hitchin, UK" instead of digits. Best effort only; a
// station is perfectly valid without a location.
func GeocodeArea(areaName string) (*catalog.Location, error) {
	apiURL := "https://nominatim.openstreetmap.org/search"
	u, _ := url.Parse(apiURL)
	q := u.Query()
	q.Set("q", areaName)
	q.Set("format", "json")
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	req, _ := http.NewRequest("GET", u.String(), nil)
	// Nominatim REQUIRES a User-Agent
	req.Header.Set("User-Agent", "offley.fm/1.0")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no results for area: %s", areaName)
	}

	lat, err1 := strconv.ParseFloat(results[0].Lat, 64)
	lon, err2 := strconv.ParseFloat(results[0].Lon, 64)
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("unparseable coordinates for area: %s", areaName)
	}

	return &catalog.Location{
		Lat: catalog.RoundCoordinate(lat),
		Lon: catalog.RoundCoordinate(lon),
	}, nil
}
