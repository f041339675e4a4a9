package sessiondock

import (
	"fmt"
	"sort"
	"time"
)

// RecentWindow is the trailing period counted by the recent aggregate. A
// record aged exactly RecentWindow is not recent.
const RecentWindow = 24 * time.Hour

type ListingResult struct {
	Records []SessionRecord `json:"files"`
	Total   int             `json:"total"`
	Recent  int             `json:"recent"`
	Valid   int             `json:"valid"`
}

// Aggregator builds listings from whatever the store holds right now.
// Nothing is cached between calls.
type Aggregator struct {
	store RecordStore
}

func NewAggregator(store RecordStore) *Aggregator {
	return &Aggregator{store: store}
}

// ListAll normalizes every stored blob, sorts newest first, and computes the
// summary counters. Only a failing List aborts; corrupted records are data,
// not errors.
func (a *Aggregator) ListAll(now time.Time) (ListingResult, error) {
	blobs, err := a.store.List()
	if err != nil {
		return ListingResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	records := make([]SessionRecord, 0, len(blobs))
	for _, blob := range blobs {
		records = append(records, NormalizeRecord(blob.Identifier, blob.Bytes, blob.LastModified))
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})

	result := ListingResult{Records: records, Total: len(records)}
	nowMillis := now.UnixMilli()
	windowMillis := RecentWindow.Milliseconds()
	for _, record := range records {
		if nowMillis-record.Timestamp < windowMillis {
			result.Recent++
		}
		if record.Valid {
			result.Valid++
		}
	}
	return result, nil
}
