package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/gdemo/engine/assets/loaders"
	"github.com/spaghettifunk/gdemo/engine/core"
	"github.com/spaghettifunk/gdemo/engine/renderer/metadata"
)

const changeBufferSize = 32

type AssetInfo struct {
	Path       string
	Type       metadata.ResourceType
	LastLoaded time.Time
}

// AssetChange is published when a watched asset is created, written or removed.
type AssetChange struct {
	Path string
	Type metadata.ResourceType
	Op   fsnotify.Op
}

/**
 * @brief Indexes the asset tree, loads files through per-type loaders and
 * watches the tree and individual files for changes. Changes are published
 * on a buffered channel and never block the watcher.
 */
type AssetManager struct {
	assets  map[string]AssetInfo
	loaders map[metadata.ResourceType]Loader
	roots   []string
	files   map[string]bool

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	changes  chan AssetChange
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	am := &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[metadata.ResourceType]Loader),
		files:    make(map[string]bool),
		fsnotify: fsWatch,
		changes:  make(chan AssetChange, changeBufferSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	// Register loaders
	am.registerLoader(metadata.ResourceTypeShader, &loaders.BinaryLoader{})
	am.registerLoader(metadata.ResourceTypeConfig, &loaders.BinaryLoader{})
	am.registerLoader(metadata.ResourceTypeBinary, &loaders.BinaryLoader{})

	go am.run(fsWatch.Events, fsWatch.Errors)
	return am, nil
}

// Initialize indexes and watches assetsDir and all of its sub-directories.
func (am *AssetManager) Initialize(assetsDir string) error {
	return am.addRecursive(filepath.Clean(assetsDir))
}

// WatchFile watches a single file outside the asset tree. Its directory is
// watched but only events for the file itself are published.
func (am *AssetManager) WatchFile(path string) error {
	if am.isClosed {
		return errors.New("asset manager already closed")
	}
	path = filepath.Clean(path)
	am.mutex.Lock()
	am.files[path] = true
	am.mutex.Unlock()

	if err := am.fsnotify.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}
	if _, err := os.Stat(path); err == nil {
		am.handleFileEvent(path)
	}
	return nil
}

// Changes delivers asset changes until Shutdown.
func (am *AssetManager) Changes() <-chan AssetChange {
	return am.changes
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.isClosed {
		return errors.New("asset manager already closed")
	}
	am.mutex.Lock()
	am.roots = append(am.roots, name)
	am.mutex.Unlock()
	return am.watchRecursive(name)
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType metadata.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// LoadAsset reads path with the loader registered for its type.
func (am *AssetManager) LoadAsset(path string, params interface{}) (*metadata.Resource, error) {
	path = filepath.Clean(path)

	am.mutex.RLock()
	asset, exists := am.assets[path]
	am.mutex.RUnlock()
	if !exists {
		asset = AssetInfo{Path: path, Type: am.assetType(path)}
	}
	if asset.Type == metadata.ResourceTypeNone {
		return nil, fmt.Errorf("unknown resource type for %s: %w", path, core.ErrConfiguration)
	}

	loader, loaderExists := am.loaders[asset.Type]
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type: %s: %w", asset.Type, core.ErrConfiguration)
	}

	res, err := loader.Load(path, asset.Type, params)
	if err != nil {
		return nil, err
	}

	// Update the loaded time
	asset.LastLoaded = time.Now()
	am.mutex.Lock()
	am.assets[path] = asset
	am.mutex.Unlock()

	core.LogDebug("Loaded %s %s (%d bytes).", asset.Type, path, res.DataSize)
	return res, nil
}

func (am *AssetManager) UnloadAsset(asset *metadata.Resource) error {
	am.mutex.RLock()
	info, exists := am.assets[filepath.Clean(asset.FullPath)]
	am.mutex.RUnlock()
	if !exists {
		return nil
	}
	if loader, ok := am.loaders[info.Type]; ok {
		return loader.Unload(asset)
	}
	return nil
}

// Lookup returns the index entry for path.
func (am *AssetManager) Lookup(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[filepath.Clean(path)]
	return info, ok
}

// Shutdown stops the watcher and closes the Changes channel.
func (am *AssetManager) Shutdown() error {
	if am.isClosed {
		return nil
	}
	am.isClosed = true
	close(am.done)
	<-am.stopped
	return nil
}

func (am *AssetManager) run(events <-chan fsnotify.Event, errs <-chan error) {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-events:
			if !ok {
				close(am.changes)
				return
			}
			am.handleEvent(e)

		case err, ok := <-errs:
			if !ok {
				// a nil channel is never selected
				errs = nil
				continue
			}
			core.LogError("asset watcher: %s", err)

		case <-am.done:
			am.fsnotify.Close()
			close(am.changes)
			return
		}
	}
}

func (am *AssetManager) handleEvent(e fsnotify.Event) {
	path := filepath.Clean(e.Name)
	if e.Op&fsnotify.Create != 0 {
		if s, err := os.Stat(path); err == nil && s.IsDir() {
			if am.underRoot(path) {
				if err := am.watchRecursive(path); err != nil {
					core.LogWarn("asset watcher: %s", err)
				}
			}
			return
		}
	}
	if !am.interested(path) {
		return
	}

	assetType := am.assetType(path)
	switch {
	case e.Op&(fsnotify.Create|fsnotify.Write) != 0:
		// Handle create or modify events
		am.handleFileEvent(path)
	case e.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		am.removeAsset(path)
	default:
		return
	}

	change := AssetChange{Path: path, Type: assetType, Op: e.Op}
	select {
	case am.changes <- change:
	default:
		core.LogWarn("asset change queue full, dropping %s %s", e.Op, path)
	}
}

// interested reports whether path is a typed asset under a watched root or
// an individually watched file.
func (am *AssetManager) interested(path string) bool {
	if am.assetType(path) == metadata.ResourceTypeNone {
		return false
	}
	am.mutex.RLock()
	watched := am.files[path]
	am.mutex.RUnlock()
	return watched || am.underRoot(path)
}

func (am *AssetManager) underRoot(path string) bool {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	for _, root := range am.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// watchRecursive adds all directories under the given one to the watch list
// and indexes the files found.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(filepath.Clean(walkPath))
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) {
	assetType := am.assetType(path)
	if assetType == metadata.ResourceTypeNone {
		return
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	info := am.assets[path]
	info.Path = path
	info.Type = assetType
	am.assets[path] = info
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, path)
}

// assetType is determineAssetType, except that only files registered with
// WatchFile count as config.
func (am *AssetManager) assetType(path string) metadata.ResourceType {
	t := determineAssetType(path)
	if t != metadata.ResourceTypeConfig {
		return t
	}
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	if !am.files[path] {
		return metadata.ResourceTypeNone
	}
	return t
}

func determineAssetType(path string) metadata.ResourceType {
	switch filepath.Ext(path) {
	case ".spv":
		return metadata.ResourceTypeShader
	case ".toml":
		return metadata.ResourceTypeConfig
	case ".bin":
		return metadata.ResourceTypeBinary
	default:
		return metadata.ResourceTypeNone
	}
}
