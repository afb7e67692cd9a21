package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"commodities/domain/core/entities"
	"commodities/domain/readindex"
	pkgerrors "commodities/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func entries() []readindex.IndexEntry {
	byCountry := readindex.CountryKey(entities.FactBalance, "Peru")
	return []readindex.IndexEntry{
		{
			Key:       readindex.CountryKey(entities.FactBalance, "Peru"),
			Sort:      2020,
			ByCountry: &byCountry,
			ByType:    true,
			Payload: readindex.Payload{
				Fields: map[string]string{readindex.FieldTotalImports: "12.5"},
				Breakdown: map[string]map[string]string{
					readindex.BreakdownImports: {"Copper": "12.5"},
				},
			},
		},
		{
			Key:  readindex.CommodityKey(entities.FactPrices, "Copper"),
			Sort: 0,
			Payload: readindex.Payload{Series: []map[string]string{
				{readindex.FieldDate: "2021-01-01", readindex.FieldPrice: "7971.47"},
			}},
		},
	}
}

func TestSnapshotCodec(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	body, err := EncodeSnapshot("v1", entries(), at)
	require.NoError(t, err)

	version, decoded, err := DecodeSnapshot(body)
	require.NoError(t, err)
	assert.Equal(t, "v1", version)
	require.Len(t, decoded, 2)

	// canonical order puts Balance before Prices
	assert.Equal(t, entities.FactBalance, decoded[0].Key.Type)
	assert.Equal(t, "12.5", decoded[0].Payload.Breakdown[readindex.BreakdownImports]["Copper"])
	assert.Equal(t, "7971.47", decoded[1].Payload.Series[0][readindex.FieldPrice])

	_, _, err = DecodeSnapshot([]byte("not snappy"))
	assert.Error(t, err)
}

func TestSnapshotArchive_LocalRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	archive := NewSnapshotArchive(store, "/snapshots/", zap.NewNop())
	ctx := context.Background()

	_, _, err = archive.LoadLatest(ctx)
	assert.True(t, errors.Is(err, ErrObjectNotFound))

	uri, err := archive.Export(ctx, "v1", entries())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"))
	assert.True(t, strings.HasSuffix(uri, "snapshots/v1.json.sz"))

	_, err = archive.Export(ctx, "v2", entries()[:1])
	require.NoError(t, err)

	version, latest, err := archive.LoadLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", version)
	assert.Len(t, latest, 1)

	older, err := archive.Load(ctx, "v1")
	require.NoError(t, err)
	assert.Len(t, older, 2)
}

type fakeS3 struct {
	objects  map[string][]byte
	failPuts int
	puts     int
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts++
	if f.failPuts > 0 {
		f.failPuts--
		return nil, errors.New("SlowDown")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func TestS3Store_RetriesAndReadsBack(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{}, failPuts: 2}
	store := NewS3Store(client, "catalog-snapshots")
	store.baseDelay = time.Millisecond
	archive := NewSnapshotArchive(store, "index", zap.NewNop())
	ctx := context.Background()

	uri, err := archive.Export(ctx, "v1", entries())
	require.NoError(t, err)
	assert.Equal(t, "s3://catalog-snapshots/index/v1.json.sz", uri)
	assert.Equal(t, 4, client.puts)

	version, got, err := archive.LoadLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v1", version)
	assert.Len(t, got, 2)

	_, err = store.Get(ctx, "index/v9.json.sz")
	assert.True(t, errors.Is(err, ErrObjectNotFound))
	assert.False(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeExternal))
}

func TestS3Store_GivesUpAfterRetries(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{}, failPuts: 10}
	store := NewS3Store(client, "catalog-snapshots")
	store.baseDelay = time.Millisecond

	_, err := store.Put(context.Background(), "k", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUploadFailed))
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeExternal))
	assert.Equal(t, 4, client.puts)
}
