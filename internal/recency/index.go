package recency

import (
	"encoding/json"
	"fmt"
	"time"

	"courtclip/internal/services"
)

// Entry is one published clip.
type Entry struct {
	Nombre string `json:"nombre"`
	URL    string `json:"url"`
}

// Index is the recency document written to each cell folder.
type Index struct {
	Videos     []Entry   `json:"videos"`
	GeneradoEl time.Time `json:"-"`
}

type wireIndex struct {
	Videos     []Entry `json:"videos"`
	GeneradoEl string  `json:"generado_el"`
}

// MarshalJSON renders generado_el as RFC 3339 UTC and videos as [] when empty.
func (i Index) MarshalJSON() ([]byte, error) {
	videos := i.Videos
	if videos == nil {
		videos = []Entry{}
	}
	return json.Marshal(wireIndex{Videos: videos, GeneradoEl: i.GeneradoEl.UTC().Format(time.RFC3339)})
}

// Decode parses a recency document. Entries missing a name or URL are
// rejected as corruption.
func Decode(data []byte) (Index, error) {
	var wire wireIndex
	if err := json.Unmarshal(data, &wire); err != nil {
		return Index{}, services.Wrap(services.ErrRegistryCorruption, "index", "decode", "malformed recency index", err)
	}
	generated, err := time.Parse(time.RFC3339, wire.GeneradoEl)
	if err != nil {
		return Index{}, services.Wrap(services.ErrRegistryCorruption, "index", "decode", "invalid generado_el", err)
	}
	for i, e := range wire.Videos {
		if e.Nombre == "" || e.URL == "" {
			return Index{}, services.Wrap(services.ErrRegistryCorruption, "index", "decode", fmt.Sprintf("entry %d is incomplete", i), nil)
		}
	}
	return Index{Videos: wire.Videos, GeneradoEl: generated.UTC()}, nil
}
