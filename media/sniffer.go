package media

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dhowden/tag"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	ierrors "github.com/kapouer/url-inspector/internal/errors"
	"github.com/kapouer/url-inspector/types"
)

// Sniffer is the default Prober. It buffers the (already byte-capped)
// prefix in memory and decodes what it can: image headers for dimensions,
// container metadata for audio/video, content sniffing for everything else.
type Sniffer struct {
	// MaxBytes bounds the buffered prefix; zero means 512k.
	MaxBytes int64
}

const defaultMaxBytes = 512 * 1024

func (s Sniffer) Probe(kind types.Kind, r io.Reader) (map[string]any, error) {
	limit := s.MaxBytes
	if limit <= 0 {
		limit = defaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil && len(data) == 0 {
		return nil, ierrors.Wrap(err, "cannot read media prefix")
	}
	if len(data) == 0 {
		return nil, errors.New("empty media prefix")
	}

	tags := map[string]any{}
	switch kind {
	case types.KindImage:
		s.probeImage(data, tags)
	case types.KindAudio, types.KindVideo:
		s.probeContainer(data, tags)
	}
	if tags["mimetype"] == nil {
		mt := mimetype.Detect(data)
		tags["mimetype"] = mt.String()
		if ext := strings.TrimPrefix(mt.Extension(), "."); ext != "" {
			tags["extension"] = ext
		}
	}
	return tags, nil
}

func (s Sniffer) probeImage(data []byte, tags map[string]any) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// truncated prefixes can still carry a readable header; when even
		// that fails the generic sniff below takes over
		return
	}
	tags["imagewidth"] = float64(cfg.Width)
	tags["imageheight"] = float64(cfg.Height)
	tags["mimetype"] = "image/" + format
	tags["filetypeextension"] = format
}

func (s Sniffer) probeContainer(data []byte, tags map[string]any) {
	m, err := tag.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return
	}
	if v := m.Title(); v != "" {
		tags["title"] = v
	}
	if v := m.Artist(); v != "" {
		tags["artist"] = v
	}
	if v := m.Album(); v != "" {
		tags["album"] = v
	}
	if v := m.Year(); v != 0 {
		tags["datetimeoriginal"] = types.ToString(v)
	}
	if pic := m.Picture(); pic != nil && len(pic.Data) > 0 && pic.MIMEType != "" {
		tags["picture"] = "data:" + pic.MIMEType + ";base64," +
			base64.StdEncoding.EncodeToString(pic.Data)
	}
}
