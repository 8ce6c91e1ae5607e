package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/picsave/internal/profile"
	"github.com/hrygo/picsave/store"
)

const testDim = 4

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	p := &profile.Profile{
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "test.db"),
		EmbeddingDim: testDim,
	}
	driver, err := NewDB(p)
	require.NoError(t, err)
	s := store.New(driver, p)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func createRecord(t *testing.T, s *store.Store, owner int64, fingerprint string, vec []float32) *store.MediaRecord {
	t.Helper()
	ctx := context.Background()
	_, err := s.UpsertUser(ctx, &store.UpsertUser{ID: owner})
	require.NoError(t, err)
	record, err := s.CreateMediaRecord(ctx, &store.MediaRecord{
		OwnerID:     owner,
		ContentRef:  "file-" + fingerprint,
		Fingerprint: fingerprint,
		Embedding:   vec,
		Kind:        store.MediaKindPhoto,
	})
	require.NoError(t, err)
	return record
}

func TestBLOBRoundTrip(t *testing.T) {
	vec := []float32{0.1, -2.5, 3, 0}
	got, err := blobToFloat32Array(float32ArrayToBLOB(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = blobToFloat32Array([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDistance(t *testing.T) {
	a := []float32{1, 0, 0, 0}
	b := []float32{0, 1, 0, 0}
	assert.InDelta(t, 0, distance(store.DistanceCosine, a, a), 1e-9)
	assert.InDelta(t, 1, distance(store.DistanceCosine, a, b), 1e-9)
	assert.InDelta(t, 2, distance(store.DistanceCosine, a, []float32{-1, 0, 0, 0}), 1e-9)
	assert.InDelta(t, 1.41421356, distance(store.DistanceEuclidean, a, b), 1e-6)
	assert.Equal(t, float64(1), distance(store.DistanceCosine, a, []float32{0, 0, 0, 0}))
}

func TestMediaRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	record := createRecord(t, s, 42, "abc", []float32{0.1, 0.2, 0.3, 0.4})
	assert.Positive(t, record.ID)
	assert.Equal(t, int32(0), record.UsesCount)
	assert.False(t, record.CreatedAt.IsZero())

	found, err := s.GetMediaRecord(ctx, &store.FindMediaRecord{OwnerID: 42, Fingerprint: "abc"})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, record.ID, found.ID)
	assert.Equal(t, "file-abc", found.ContentRef)
	assert.Equal(t, store.MediaKindPhoto, found.Kind)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, found.Embedding)

	// Same fingerprint under another owner is a different record.
	missing, err := s.GetMediaRecord(ctx, &store.FindMediaRecord{OwnerID: 43, Fingerprint: "abc"})
	require.NoError(t, err)
	assert.Nil(t, missing)

	deleted, err := s.DeleteMediaRecord(ctx, &store.DeleteMediaRecord{OwnerID: 42, Fingerprint: "abc"})
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteMediaRecord(ctx, &store.DeleteMediaRecord{OwnerID: 42, Fingerprint: "abc"})
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestCreateMediaRecordConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	createRecord(t, s, 42, "abc", []float32{1, 0, 0, 0})
	_, err := s.CreateMediaRecord(ctx, &store.MediaRecord{
		OwnerID:     42,
		ContentRef:  "other-file",
		Fingerprint: "abc",
		Embedding:   []float32{0, 1, 0, 0},
		Kind:        store.MediaKindSticker,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestCreateMediaRecordValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateMediaRecord(ctx, &store.MediaRecord{
		OwnerID: 1, ContentRef: "f", Fingerprint: "u", Embedding: []float32{1, 2}, Kind: store.MediaKindPhoto,
	})
	assert.Error(t, err, "wrong dimension must be rejected")

	_, err = s.CreateMediaRecord(ctx, &store.MediaRecord{
		OwnerID: 1, ContentRef: "f", Fingerprint: "u", Embedding: []float32{1, 2, 3, 4}, Kind: "gif",
	})
	assert.Error(t, err, "unknown kind must be rejected")
}

func TestIncrementMediaUsesScopedToOwner(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	record := createRecord(t, s, 42, "abc", []float32{1, 0, 0, 0})

	ok, err := s.IncrementMediaUses(ctx, &store.IncrementMediaUses{ID: record.ID, OwnerID: 99})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.IncrementMediaUses(ctx, &store.IncrementMediaUses{ID: record.ID + 1000, OwnerID: 42})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.IncrementMediaUses(ctx, &store.IncrementMediaUses{ID: record.ID, OwnerID: 42})
	require.NoError(t, err)
	assert.True(t, ok)

	found, err := s.GetMediaRecord(ctx, &store.FindMediaRecord{OwnerID: 42, Fingerprint: "abc"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), found.UsesCount)
}

func TestSearchMediaByPopularity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	uses := []int{5, 2, 9}
	ids := make([]int64, len(uses))
	for i, n := range uses {
		record := createRecord(t, s, 7, fmt.Sprintf("fp-%d", i), []float32{1, 0, 0, 0})
		ids[i] = record.ID
		for j := 0; j < n; j++ {
			_, err := s.IncrementMediaUses(ctx, &store.IncrementMediaUses{ID: record.ID, OwnerID: 7})
			require.NoError(t, err)
		}
	}
	// Another owner's record never shows up.
	createRecord(t, s, 8, "fp-x", []float32{1, 0, 0, 0})

	list, err := s.SearchMediaByPopularity(ctx, 7, store.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{ids[2], ids[0], ids[1]}, summaryIDs(list))
}

func TestSearchMediaByPopularityTiesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := createRecord(t, s, 7, "a", []float32{1, 0, 0, 0})
	second := createRecord(t, s, 7, "b", []float32{1, 0, 0, 0})

	list, err := s.SearchMediaByPopularity(ctx, 7, store.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{second.ID, first.ID}, summaryIDs(list))

	list, err = s.SearchMediaByRecency(ctx, 7, store.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{second.ID, first.ID}, summaryIDs(list))
}

func TestSearchMediaBySimilarity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	near := createRecord(t, s, 1, "near", []float32{1, 0.1, 0, 0})
	far := createRecord(t, s, 1, "far", []float32{0, 0, 1, 0})
	mid := createRecord(t, s, 1, "mid", []float32{1, 1, 0, 0})
	createRecord(t, s, 2, "other", []float32{1, 0, 0, 0})

	query := []float32{1, 0, 0, 0}
	for _, metric := range []store.DistanceMetric{store.DistanceCosine, store.DistanceEuclidean} {
		t.Run(string(metric), func(t *testing.T) {
			list, err := s.SearchMediaBySimilarity(ctx, 1, query, metric, store.Page{Limit: 10})
			require.NoError(t, err)
			assert.Equal(t, []int64{near.ID, mid.ID, far.ID}, summaryIDs(list))
		})
	}

	t.Run("offset and limit", func(t *testing.T) {
		list, err := s.SearchMediaBySimilarity(ctx, 1, query, store.DistanceCosine, store.Page{Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, []int64{mid.ID, far.ID}, summaryIDs(list))

		list, err = s.SearchMediaBySimilarity(ctx, 1, query, store.DistanceCosine, store.Page{Limit: 2, Offset: 5})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("rejects wrong dimension", func(t *testing.T) {
		_, err := s.SearchMediaBySimilarity(ctx, 1, []float32{1}, store.DistanceCosine, store.Page{Limit: 2})
		assert.Error(t, err)
	})
}

func TestSearchPaginationCoversEveryRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const total, pageSize = 7, 3
	want := map[int64]bool{}
	for i := 0; i < total; i++ {
		record := createRecord(t, s, 5, fmt.Sprintf("fp-%d", i), []float32{float32(i + 1), 1, 0, 0})
		want[record.ID] = true
	}

	seen := map[int64]bool{}
	offset := 0
	for {
		list, err := s.SearchMediaBySimilarity(ctx, 5, []float32{1, 1, 0, 0}, store.DistanceCosine, store.Page{Limit: pageSize + 1, Offset: offset})
		require.NoError(t, err)
		page := list
		if len(page) > pageSize {
			page = page[:pageSize]
		}
		for _, summary := range page {
			assert.False(t, seen[summary.ID], "record %d returned twice", summary.ID)
			seen[summary.ID] = true
		}
		if len(list) <= pageSize {
			break
		}
		offset += pageSize
	}
	assert.Equal(t, want, seen)
}

func TestListAllMediaRecordsWithConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 250; i++ {
		createRecord(t, s, int64(i%3+1), fmt.Sprintf("fp-%d", i), []float32{1, 0, 0, 0})
	}

	count := 0
	for summary, err := range s.ListAllMediaRecords(ctx) {
		require.NoError(t, err)
		// Writing while iterating must not block on the single connection.
		require.NoError(t, s.UpdateMediaEmbedding(ctx, &store.UpdateMediaEmbedding{ID: summary.ID, Embedding: []float32{0, 1, 0, 0}}))
		count++
	}
	assert.Equal(t, 250, count)

	found, err := s.GetMediaRecord(ctx, &store.FindMediaRecord{OwnerID: 1, Fingerprint: "fp-0"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0, 0}, found.Embedding)
}

func TestUpsertUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.UpsertUser(ctx, &store.UpsertUser{ID: 42})
	require.NoError(t, err)
	second, err := s.UpsertUser(ctx, &store.UpsertUser{ID: 42, At: first.LastActivity.Add(1000)})
	require.NoError(t, err)
	assert.Equal(t, int64(42), second.ID)
	assert.True(t, second.LastActivity.After(first.LastActivity))
}

func summaryIDs(list []*store.MediaSummary) []int64 {
	ids := make([]int64, 0, len(list))
	for _, summary := range list {
		ids = append(ids, summary.ID)
	}
	return ids
}
