package storage

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matst80/slask-archive/pkg/common/jsoncompat"
	"github.com/matst80/slask-archive/pkg/types"
)

type TermRecord struct {
	Taxonomy string `json:"taxonomy"`
	Slug     string `json:"slug"`
	Name     string `json:"name"`
}

type SourceRecord struct {
	Id                  uint32 `json:"id"`
	Type                string `json:"type"`
	Slug                string `json:"slug"`
	Name                string `json:"name"`
	ExcludeFromMainList bool   `json:"excludeFromMainList,omitempty"`
}

type ItemRecord struct {
	Id             types.ItemId        `json:"id"`
	PostType       string              `json:"postType"`
	Title          string              `json:"title"`
	Slug           string              `json:"slug"`
	Content        string              `json:"content,omitempty"`
	PublishedAt    time.Time           `json:"publishedAt"`
	Terms          map[string][]string `json:"terms,omitempty"`
	Meta           map[string][]string `json:"meta,omitempty"`
	Sources        []uint32            `json:"sources,omitempty"`
	ShowInMainList *bool               `json:"showInMainList,omitempty"`
}

// Dataset is the portable dump both stores can import.
type Dataset struct {
	Taxonomies  []string       `json:"taxonomies"`
	SourceTypes []string       `json:"sourceTypes"`
	Terms       []TermRecord   `json:"terms"`
	Sources     []SourceRecord `json:"sources"`
	Items       []ItemRecord   `json:"items"`
}

// LoadDataset reads a dataset file; files ending in .gz are gunzipped.
func LoadDataset(fileName string) (*Dataset, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()

	var r io.Reader = file
	if strings.HasSuffix(fileName, ".gz") {
		zipReader, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("open gzip dataset: %w", err)
		}
		defer zipReader.Close()
		r = zipReader
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	ds := &Dataset{}
	if err = jsoncompat.Unmarshal(data, ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return ds, nil
}

// SaveDataset writes through a temp file and renames it into place.
func SaveDataset(ds *Dataset, fileName string) error {
	data, err := jsoncompat.Marshal(ds)
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	tmpFileName := filepath.Join(filepath.Dir(fileName), "."+filepath.Base(fileName)+".tmp")
	file, err := os.Create(tmpFileName)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	var w io.Writer = file
	var zipWriter *gzip.Writer
	if strings.HasSuffix(fileName, ".gz") {
		zipWriter = gzip.NewWriter(file)
		w = zipWriter
	}
	if _, err = w.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("write dataset: %w", err)
	}
	if zipWriter != nil {
		if err = zipWriter.Close(); err != nil {
			file.Close()
			return fmt.Errorf("flush dataset: %w", err)
		}
	}
	if err = file.Close(); err != nil {
		return fmt.Errorf("close dataset: %w", err)
	}
	return os.Rename(tmpFileName, fileName)
}
