package corpus

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/qrvid/corpus/internal/platform/corerr"
)

// Sidecar persists the per-artifact settings the retriever needs but the
// MP4 container doesn't carry on its own: the fps the artifact was muxed
// at (frame-seek math depends on it, spec.md §4.5), the frame resolution,
// the QR error-correction level it was rendered at, and the document id
// the artifact belongs to. Written next to the video as <video>.meta.json
// (SPEC_FULL.md §4), resolving spec.md §4.5's "persisted ... in a
// side-car" option.
type Sidecar struct {
	DocumentID             string `json:"document_id"`
	VideoFPS               float64 `json:"video_fps"`
	VideoWidth             int     `json:"video_width"`
	VideoHeight            int     `json:"video_height"`
	QRErrorCorrectionLevel string  `json:"qr_error_correction_level"`
}

func sidecarPath(videoPath string) string {
	return videoPath + ".meta.json"
}

func writeSidecar(videoPath string, sc Sidecar) error {
	raw, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return corerr.IO("corpus", "encode sidecar", err)
	}
	if err := os.MkdirAll(filepath.Dir(videoPath), 0o755); err != nil {
		return corerr.IO("corpus", "create video directory", err)
	}
	if err := os.WriteFile(sidecarPath(videoPath), raw, 0o644); err != nil {
		return corerr.IO("corpus", "write sidecar", err)
	}
	return nil
}

// ReadSidecar loads the side-car for videoPath. Callers that need
// video_fps for retrieval (internal/retriever) should prefer this over
// assuming the pipeline's current default.
func ReadSidecar(videoPath string) (Sidecar, error) {
	raw, err := os.ReadFile(sidecarPath(videoPath))
	if err != nil {
		return Sidecar{}, corerr.IO("corpus", "read sidecar", err)
	}
	var sc Sidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		return Sidecar{}, corerr.IO("corpus", "decode sidecar", err)
	}
	return sc, nil
}

func removeSidecar(videoPath string) error {
	err := os.Remove(sidecarPath(videoPath))
	if err != nil && !os.IsNotExist(err) {
		return corerr.IO("corpus", "remove sidecar", err)
	}
	return nil
}
