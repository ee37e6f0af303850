package builder

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"io"
	"time"
)

// ManifestPath is the name of the build manifest inside an artifact.
const ManifestPath = ".manifest.json"

// Manifest describes the artifact contents for consumers.
type Manifest struct {
	Pipeline string `json:"pipeline"`
	Revision string `json:"revision"`
	Files    int    `json:"files"`
	BuiltAt  string `json:"built_at"`
}

// writeArchive emits the processed files as a gzipped tar stream, manifest
// first. File order follows the (sorted) input slice so archives of the same
// content are byte-stable apart from the built_at stamp.
func writeArchive(w io.Writer, pipeline, revision string, files []file) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	manifest, err := json.Marshal(Manifest{
		Pipeline: pipeline,
		Revision: revision,
		Files:    len(files),
		BuiltAt:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	for _, f := range append([]file{{path: ManifestPath, content: manifest}}, files...) {
		if err := tw.WriteHeader(&tar.Header{
			Name: f.path,
			Mode: 0o644,
			Size: int64(len(f.content)),
		}); err != nil {
			return err
		}
		if _, err := tw.Write(f.content); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// ReadManifest extracts the build manifest from an artifact stream.
func ReadManifest(r io.Reader) (*Manifest, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err != nil {
			return nil, err
		}
		if hdr.Name != ManifestPath {
			continue
		}

		var m Manifest
		if err := json.NewDecoder(tr).Decode(&m); err != nil {
			return nil, err
		}
		return &m, nil
	}
}
