package imagery

import (
	"time"

	"github.com/surface-data/surface.report/internal/geo"
)

// ImageMeta is the metadata of one street-level image as returned by the
// imagery provider. URL points at the full-resolution thumbnail.
type ImageMeta struct {
	ID         string
	URL        string
	Location   *geo.Point
	CapturedAt *time.Time
	Heading    *float64
}

// Feature is one highway-network survey point from the geographic features
// provider.
type Feature struct {
	TOID          string
	Location      geo.Point
	SourceProduct string
	VersionDate   *time.Time
}
