// Package storage persists harvested artifacts.
//
// An ArtifactStore maps each work item id to <dir>/<id><ext>. The existence
// of that file is the only record that an item has been harvested, so
// writes go through a temporary file in .pageharvest-partial/ and are
// published with a link (or rename) that never replaces an existing
// artifact. Names starting with .pageharvest belong to the store and are
// rejected as item ids.
//
// A RunLock (gofrs/flock on .pageharvest.lock) keeps two harvest processes
// from writing the same directory at once.
//
// Usage:
//
//	store, err := storage.NewArtifactStore(cfg.Artifacts)
//	if err != nil {
//	    return err
//	}
//	lock, err := store.AcquireRunLock()
//	if err != nil {
//	    return err // RunInProgress
//	}
//	defer lock.Release()
//
//	if !store.Exists("111-222") {
//	    err = store.Write("111-222", html)
//	}
package storage
