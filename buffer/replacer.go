package buffer

import (
	"sort"

	"github.com/pkg/errors"
	"heapdb/disk/pages"
)

var errNoVictim = errors.New("every resident page is dirty")

// IReplacer chooses which resident page to drop when the pool is full. Dirty pages hold uncommitted writes and
// must never be chosen.
type IReplacer interface {
	ChooseVictim(resident map[pages.PageID]pages.Page) (pages.PageID, error)
}

// OrderedReplacer evicts the clean page with the smallest page id, which makes eviction deterministic.
type OrderedReplacer struct{}

func (OrderedReplacer) ChooseVictim(resident map[pages.PageID]pages.Page) (pages.PageID, error) {
	ids := make([]pages.PageID, 0, len(resident))
	for pid := range resident {
		ids = append(ids, pid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	for _, pid := range ids {
		if _, dirty := resident[pid].IsDirty(); !dirty {
			return pid, nil
		}
	}

	return pages.PageID{}, errNoVictim
}
