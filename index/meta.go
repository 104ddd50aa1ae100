package index

import (
	"encoding/json"

	"github.com/lumenidx/ftsengine/directory"
	"github.com/lumenidx/ftsengine/segment"
)

// Meta is the serialised snapshot written atomically per commit: the
// committed segment set, the committed opstamp, and an optional opaque
// payload (spec.md §3 IndexMeta, §6 meta.json).
type Meta struct {
	Segments         []segment.Meta `json:"segments"`
	CommittedOpstamp uint64         `json:"committed_opstamp"`
	Payload          string         `json:"payload,omitempty"`
}

func loadMeta(dir directory.Directory) (Meta, bool, error) {
	exists, err := dir.Exists(metaFileName)
	if err != nil {
		return Meta{}, false, err
	}
	if !exists {
		return Meta{}, false, nil
	}
	data, err := dir.AtomicRead(metaFileName)
	if err != nil {
		return Meta{}, false, err
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, false, err
	}
	return m, true, nil
}

func writeMeta(dir directory.Directory, m Meta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return dir.AtomicWrite(metaFileName, data)
}
