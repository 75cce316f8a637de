package loaders

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/gdemo/engine/core"
	"github.com/spaghettifunk/gdemo/engine/renderer/metadata"
)

// BinaryLoader reads a whole file. Data holds the raw bytes.
type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s %s: %w: %w", assetType, path, err, core.ErrConfiguration)
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s %s: %w: %w", assetType, path, err, core.ErrConfiguration)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if p, ok := params.(map[string]string); ok && p["name"] != "" {
		name = p["name"]
	}

	return &metadata.Resource{
		Name:     name,
		FullPath: path,
		DataSize: uint64(len(buf)),
		Data:     buf,
	}, nil
}

func (bl *BinaryLoader) Unload(res *metadata.Resource) error {
	res.Data = nil
	res.DataSize = 0
	return nil
}
